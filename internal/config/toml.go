// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Layout    LayoutConfig    `toml:"layout"`
	Corpus    CorpusConfig    `toml:"corpus"`
	Optimizer OptimizerConfig `toml:"optimizer"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// LayoutConfig maps the starting layout and the board settings.
type LayoutConfig struct {
	Rows    []string `toml:"rows" validate:"omitempty,len=3,dive,len=10"`
	Fingers []string `toml:"fingers" validate:"omitempty,len=3,dive,len=10"`
	Locks   []string `toml:"locks" validate:"omitempty,len=3,dive,len=10"`
}

// CorpusConfig maps the corpus settings.
type CorpusConfig struct {
	Path         *string `toml:"path"`
	TrigramDepth *int    `toml:"trigram-depth" validate:"omitempty,gte=0,lte=100000"`
	Cache        *bool   `toml:"cache"`
}

// OptimizerConfig maps the search settings.
type OptimizerConfig struct {
	Strategy     *string `toml:"strategy" validate:"omitempty,oneof=climb lookahead multistart"`
	Objective    *string `toml:"objective" validate:"omitempty,oneof=keylag score"`
	Depth        *int    `toml:"depth" validate:"omitempty,gte=1,lte=6"`
	Restarts     *int    `toml:"restarts" validate:"omitempty,gte=0"`
	Workers      *int    `toml:"workers" validate:"omitempty,gte=1,lte=256"`
	Seed         *int64  `toml:"seed"`
	SanityTrials *int    `toml:"sanity-trials" validate:"omitempty,gte=0"`
	Cache        *bool   `toml:"cache"`
}

// TelemetryConfig maps the metrics endpoint.
type TelemetryConfig struct {
	Addr *string `toml:"metrics-addr" validate:"omitempty,hostname_port"`
}

var validate = validator.New()

// Validate checks value ranges.
func (c FileConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}
