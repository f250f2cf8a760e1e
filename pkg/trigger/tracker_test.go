package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	snemo "github.com/next-exp/snemo_go/pkg"
)

// diagonalTrack crosses the nine layers of side 0 from row 44 to row 52.
func diagonalTrack(ct800 int) snemo.GeigerCTW {
	ctw := snemo.GeigerCTW{Clocktick800: ct800}
	for layer := 0; layer < NLayers; layer++ {
		ctw.Cells = append(ctw.Cells, snemo.CellAddress{Side: 0, Layer: layer, Row: 44 + layer})
	}
	return ctw
}

func newTrackerBuilder(t *testing.T) *TrackerRecordBuilder {
	memories, err := BuildMemories(DefaultMemoryConfig())
	require.NoError(t, err)
	return NewTrackerRecordBuilder(memories)
}

func TestTrackerRecordDiagonal(t *testing.T) {
	builder := newTrackerBuilder(t)
	records := builder.Build([]snemo.GeigerCTW{diagonalTrack(20)})
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, 10, rec.Clocktick1600)
	assert.True(t, rec.FinaleDecision)

	zone := rec.Zones[0][4]
	for _, bit := range []int{ZoneInner, ZoneOuter, ZoneMiddle, ZoneLeft, ZoneNearSourceLeft} {
		assert.True(t, zone.Has(bit), "bit %d of %s", bit, zone)
	}
	assert.False(t, zone.Has(ZoneRight))
	assert.Equal(t, "1011011", zone.String())

	assert.Equal(t, ZoneData(1<<ZoneNearSourceRight), rec.Zones[0][3], "row 44 is in the right half of zone 3")
	for iz := range rec.Zones[1] {
		assert.Zero(t, rec.Zones[1][iz])
	}
}

func TestTrackerRecordOddClockticks(t *testing.T) {
	builder := newTrackerBuilder(t)
	assert.Empty(t, builder.Build([]snemo.GeigerCTW{diagonalTrack(21)}))
}

func TestTrackerRecordIgnoresOutOfRange(t *testing.T) {
	builder := newTrackerBuilder(t)
	ctw := snemo.GeigerCTW{Clocktick800: 2, Cells: []snemo.CellAddress{
		{Side: 2, Layer: 0, Row: 0},
		{Side: 0, Layer: 9, Row: 0},
		{Side: 0, Layer: 0, Row: NRows},
	}}
	matrices := builder.Matrices([]snemo.GeigerCTW{ctw})
	require.Contains(t, matrices, 1)
	assert.True(t, matrices[1].Empty())
	assert.Equal(t, 3, builder.Ignored)
	assert.Empty(t, builder.Build(nil))
	assert.Zero(t, builder.Ignored, "counted per call")
}

func TestTrackerRecordSingleCell(t *testing.T) {
	builder := newTrackerBuilder(t)
	records := builder.Build([]snemo.GeigerCTW{{
		Clocktick800: 4,
		Cells:        []snemo.CellAddress{{Side: 1, Layer: 7, Row: 100}},
	}})
	assert.Empty(t, records, "an isolated outer cell sets no bit")
}
