package snemo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigurationJSON(t *testing.T) {
	path := writeFile(t, "run.json", `{
		"file_in": "events.jsonl",
		"num_workers": 4,
		"cat": {"magfield": "25 gauss", "nofflayers": 2}
	}`)
	config, err := LoadConfiguration(path)
	require.NoError(t, err)

	assert.Equal(t, "events.jsonl", config.FileIn)
	assert.Equal(t, 4, config.NumWorkers)
	assert.Equal(t, "CAT", config.Algorithm, "defaults survive")
	assert.True(t, config.NoDB)
	nofflayers, err := config.CAT.FetchInteger("nofflayers")
	require.NoError(t, err)
	assert.Equal(t, 2, nofflayers)
	assert.NotNil(t, config.Trigger)
}

func TestLoadConfigurationYAML(t *testing.T) {
	path := writeFile(t, "run.yaml", `
file_in: events.yaml
no_db: false
db_driver: mysql
trigger:
  activate_caraco: false
  calo:
    circular_buffer_depth: 6
`)
	config, err := LoadConfiguration(path)
	require.NoError(t, err)
	assert.Equal(t, "mysql", config.DBDriver)
	depth, err := config.Trigger.FetchInteger("calo.circular_buffer_depth")
	require.NoError(t, err)
	assert.Equal(t, 6, depth)
}

func TestLoadConfigurationErrors(t *testing.T) {
	_, err := LoadConfiguration(filepath.Join(t.TempDir(), "missing.json"))
	var openErr *ErrOpenFile
	assert.ErrorAs(t, err, &openErr)

	_, err = LoadConfiguration(writeFile(t, "bad.json", `{"num_workers": `))
	assert.Error(t, err)

	tests := []struct {
		name    string
		content string
		key     string
	}{
		{"workers", `{"num_workers": 0}`, "num_workers"},
		{"skip", `{"skip": -1}`, "skip"},
		{"max events", `{"max_events": -5}`, "max_events"},
		{"driver", `{"no_db": false, "db_driver": "postgres"}`, "db_driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfiguration(writeFile(t, "run.json", tt.content))
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
}
