package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/jefferyharrell/tagline-roster/internal/importer"
)

func main() {
	logger := log.New(os.Stderr)

	config := DefaultCtlConfig()
	configPath := os.Getenv("ROSTERCTL_CONFIG")
	if configPath == "" {
		configPath = "rosterctl.toml"
	}
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := LoadCtlConfig(configPath)
		if err != nil {
			logger.Fatalf("config error: %v", err)
		}
		config = loaded
	}

	// Environment overrides for scripting and CI
	if url := os.Getenv("ROSTER_URL"); url != "" {
		config.Server.URL = url
	}
	if token := os.Getenv("ROSTER_TOKEN"); token != "" {
		config.Server.Token = token
	}

	runner := NewRunner(RunnerOpts{
		Config: config,
		Client: importer.NewClient(config.Server.URL, config.Server.Token),
		Logger: logger,
	})

	app := &cli.Command{
		Name:     "rosterctl",
		Usage:    "Manage the user roster: preview, import, export",
		Version:  "1.0.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("%v", err)
	}
}
