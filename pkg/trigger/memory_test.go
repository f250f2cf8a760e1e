package trigger

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	snemo "github.com/next-exp/snemo_go/pkg"
)

func TestNewMemoryLimits(t *testing.T) {
	_, err := NewMemory(0, 2)
	var cfgErr *snemo.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "address_size", cfgErr.Key)

	_, err = NewMemory(4, 33)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "data_size", cfgErr.Key)

	mem, err := NewMemory(16, 32)
	require.NoError(t, err)
	assert.Equal(t, 1<<16, mem.NumberOfAddresses())
}

func TestMemoryPushFetch(t *testing.T) {
	mem, err := NewMemory(3, 2)
	require.NoError(t, err)
	require.NoError(t, mem.SetDefault(0b01))

	require.NoError(t, mem.Push(0b101, 0b11))
	assert.Equal(t, uint32(0b11), mem.Fetch(0b101))
	assert.Equal(t, uint32(0b01), mem.Fetch(0b001))
	assert.Equal(t, uint32(0b01), mem.Fetch(100), "out of range reads the default")

	assert.Error(t, mem.Push(8, 0))
	assert.Error(t, mem.Push(1, 0b100))
	assert.Error(t, mem.SetDefault(4))
	assert.False(t, mem.Complete())
}

func TestMemoryStoreLoad(t *testing.T) {
	mem, err := NewMemory(4, 3)
	require.NoError(t, err)
	for addr := uint32(0); addr < 16; addr++ {
		require.NoError(t, mem.Push(addr, addr%5%8))
	}

	var buf bytes.Buffer
	require.NoError(t, mem.Store(&buf, "test memory"))
	assert.True(t, strings.HasPrefix(buf.String(), "#@description = test memory\n#@address_size = 4\n"))
	assert.NotContains(t, buf.String(), "0000 000", "default entries are not written")

	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.True(t, loaded.Complete())
	assert.True(t, mem.Equal(loaded))
	assert.Equal(t, "test memory", loaded.Description)

	// Storing the loaded memory again gives the same table.
	var first, second bytes.Buffer
	require.NoError(t, mem.Store(&first, "x"))
	require.NoError(t, loaded.Store(&second, "x"))
	assert.Equal(t, first.String(), second.String())
}

func TestLoadHeaderOnly(t *testing.T) {
	mem, err := Load(strings.NewReader("#@address_size = 2\n#@data_size = 1\n#@default_data = 1\n"))
	require.NoError(t, err)
	assert.True(t, mem.Complete())
	for addr := uint32(0); addr < 4; addr++ {
		assert.Equal(t, uint32(1), mem.Fetch(addr))
	}
}

func TestLoadRegisteredValues(t *testing.T) {
	table := `# a plain comment
#@address_size = 2
#@data_size = 2
#@registered_value = WIDE : 11
#@default_data = 00
01 WIDE
10 01
`
	mem, err := Load(strings.NewReader(table))
	require.NoError(t, err)
	assert.Equal(t, WideTrack, mem.Fetch(0b01))
	assert.Equal(t, NarrowRight, mem.Fetch(0b10))
	assert.Equal(t, NoTrack, mem.Fetch(0b11))
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		table string
		line  int
	}{
		{"metadata after data", "#@address_size = 2\n#@data_size = 1\n00 1\n#@default_data = 0\n", 4},
		{"bad address width", "#@address_size = 2\n#@data_size = 1\n000 1\n", 3},
		{"bad data", "#@address_size = 2\n#@data_size = 1\n00 x\n", 3},
		{"unknown key", "#@colour = blue\n", 1},
		{"missing sizes", "00 1\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.table))
			var formatErr *snemo.ErrMemoryFormat
			require.True(t, errors.As(err, &formatErr), "got %v", err)
			assert.Equal(t, tt.line, formatErr.Line)
		})
	}
}
