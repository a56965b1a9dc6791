package main

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed rosterctl.example.toml
var exampleConf []byte

// CtlConfig is the rosterctl configuration loaded from a TOML file.
type CtlConfig struct {
	Server ServerConfig `toml:"server"`
	Import ImportConfig `toml:"import"`
}

// ServerConfig points at the roster API.
type ServerConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// ImportConfig holds import command defaults.
type ImportConfig struct {
	Format string `toml:"format"`
}

// LoadCtlConfig reads and parses a TOML configuration file.
func LoadCtlConfig(path string) (*CtlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config CtlConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultCtlConfig returns a CtlConfig parsed from the embedded example.
func DefaultCtlConfig() *CtlConfig {
	var config CtlConfig
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}
