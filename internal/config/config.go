package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/harryneopotter/aicli/internal/paths"
)

// Defaults applied to loaded server definitions.
const (
	DefaultTimeoutMs    = 10000
	DefaultMaxToolSteps = 5
)

// Load reads the config file and returns the parsed Config.
// If the config file does not exist, it returns an empty Config (no error).
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadFrom reads and parses a config file at the given path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{Servers: make(map[string]ServerDefinition)}
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Servers == nil {
		cfg.Servers = make(map[string]ServerDefinition)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Chat.MaxToolSteps <= 0 {
		cfg.Chat.MaxToolSteps = DefaultMaxToolSteps
	}
	for name, srv := range cfg.Servers {
		srv.Name = name
		if srv.TimeoutMs == 0 {
			srv.TimeoutMs = DefaultTimeoutMs
		}
		cfg.Servers[name] = srv
	}
}
