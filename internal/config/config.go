// Package config loads pipeline runtime configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all patchpipe configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RawData  RawDataConfig  `yaml:"rawdata"`
	Notes    NotesConfig    `yaml:"notes"`
	Logging  LoggingConfig  `yaml:"logging"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

// DatabaseConfig selects and addresses the result store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite, postgres
	Path   string `yaml:"path"`   // sqlite file path
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// RawDataConfig addresses the blob store holding experiment payloads.
type RawDataConfig struct {
	Driver string `yaml:"driver"` // fs, s3, memory
	Root   string `yaml:"root"`   // fs root directory
}

// NotesConfig addresses the manual QC annotation database.
type NotesConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// JobsConfig bounds CLI job execution.
type JobsConfig struct {
	Parallelism int `yaml:"parallelism"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Driver: "sqlite", Path: "patchpipe.db"},
		RawData:  RawDataConfig{Driver: "fs", Root: "./rawdata"},
		Notes:    NotesConfig{Path: "notes.db"},
		Logging:  LoggingConfig{Level: "info"},
		Jobs:     JobsConfig{Parallelism: 1},
	}
}

// Load reads path (optional) over the defaults, then applies PATCHPIPE_*
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		payload, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(payload, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString("PATCHPIPE_DB_DRIVER", &c.Database.Driver)
	setString("PATCHPIPE_DB_PATH", &c.Database.Path)
	setString("PATCHPIPE_DB_DSN", &c.Database.DSN)
	setString("PATCHPIPE_RAWDATA_DRIVER", &c.RawData.Driver)
	setString("PATCHPIPE_RAWDATA_FS_ROOT", &c.RawData.Root)
	setString("PATCHPIPE_NOTES_PATH", &c.Notes.Path)
	setString("PATCHPIPE_LOG_LEVEL", &c.Logging.Level)
	if v, ok := os.LookupEnv("PATCHPIPE_JOB_PARALLELISM"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Jobs.Parallelism = n
		}
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.RawData.Driver {
	case "fs", "s3", "memory":
	default:
		return fmt.Errorf("unsupported rawdata driver %q", c.RawData.Driver)
	}
	if c.Jobs.Parallelism < 1 {
		c.Jobs.Parallelism = 1
	}
	return nil
}
