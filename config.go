package weft

import (
	"fmt"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// Config is the runtime tuning block, loadable from a TOML file.
type Config struct {
	// Workers bounds concurrently executing task bodies. Zero means one per
	// CPU.
	Workers int `toml:"workers"`

	// LogLevel is a zerolog level name ("debug", "info", ...). Empty
	// disables level adjustment.
	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns the built-in tuning.
func DefaultConfig() Config {
	return Config{
		Workers: runtime.NumCPU(),
	}
}

// LoadConfig reads a TOML config file, applying defaults for absent keys.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return cfg, nil
}

// WithConfig applies a config block to a runtime.
func WithConfig(cfg Config) RuntimeOption {
	return func(rt *Runtime) {
		if cfg.Workers > 0 {
			WithWorkers(cfg.Workers)(rt)
		}
		if cfg.LogLevel != "" {
			if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
				rt.log = rt.log.Level(level)
			}
		}
	}
}
