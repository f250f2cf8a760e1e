package snemo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Configuration struct {
	MaxEvents   int    `json:"max_events" yaml:"max_events"`
	Verbosity   int    `json:"verbosity" yaml:"verbosity"`
	FileIn      string `json:"file_in" yaml:"file_in"`
	FileOut     string `json:"file_out" yaml:"file_out"`
	Skip        int    `json:"skip" yaml:"skip"`
	NumWorkers  int    `json:"num_workers" yaml:"num_workers"`
	WriteData   bool   `json:"write_data" yaml:"write_data"`
	Discard     bool   `json:"discard" yaml:"discard"`
	RunLabel    string `json:"run_label" yaml:"run_label"`
	Algorithm   string `json:"algorithm" yaml:"algorithm"`
	NoDB        bool   `json:"no_db" yaml:"no_db"`
	DBDriver    string `json:"db_driver" yaml:"db_driver"`
	DSN         string `json:"dsn" yaml:"dsn"`
	Host        string `json:"host" yaml:"host"`
	User        string `json:"user" yaml:"user"`
	Passwd      string `json:"pass" yaml:"pass"`
	DBName      string `json:"dbname" yaml:"dbname"`
	Compression int    `json:"compression_level" yaml:"compression_level"`

	CAT     Properties `json:"cat" yaml:"cat"`
	Trigger Properties `json:"trigger" yaml:"trigger"`
}

var configuration Configuration

func GetConfiguration() Configuration {
	return configuration
}

func SetConfiguration(config Configuration) {
	configuration = config
}

// DefaultConfiguration returns the values used when a key is absent from the
// configuration file.
func DefaultConfiguration() Configuration {
	var config Configuration
	config.MaxEvents = 1000000000
	config.Verbosity = 0
	config.Skip = 0
	config.NumWorkers = 1
	config.WriteData = true
	config.Discard = true
	config.Algorithm = "CAT"
	config.NoDB = true
	config.DBDriver = "sqlite"
	config.DSN = "snemo.db"
	config.Host = "localhost"
	config.User = "snemo"
	config.Passwd = "readonly"
	config.DBName = "SNEMO"
	config.Compression = 4
	config.CAT = Properties{}
	config.Trigger = Properties{}
	return config
}

// LoadConfiguration reads a JSON or YAML file (chosen by extension) on top of
// the defaults.
func LoadConfiguration(filename string) (Configuration, error) {
	config := DefaultConfiguration()

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, &ErrOpenFile{Filename: filename, Err: err}
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return config, err
	}
	if config.CAT == nil {
		config.CAT = Properties{}
	}
	if config.Trigger == nil {
		config.Trigger = Properties{}
	}
	if err := config.Check(); err != nil {
		return config, err
	}
	return config, nil
}

func (c Configuration) Check() error {
	if c.NumWorkers < 1 {
		return &ConfigurationError{Key: "num_workers", Reason: "must be at least 1"}
	}
	if c.Skip < 0 {
		return &ConfigurationError{Key: "skip", Reason: "cannot be negative"}
	}
	if c.MaxEvents < 0 {
		return &ConfigurationError{Key: "max_events", Reason: "cannot be negative"}
	}
	if !c.NoDB {
		switch c.DBDriver {
		case "sqlite", "mysql":
		default:
			return &ConfigurationError{Key: "db_driver", Reason: "must be sqlite or mysql, got " + c.DBDriver}
		}
	}
	return nil
}
