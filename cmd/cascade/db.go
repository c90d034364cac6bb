package main

import (
	"fmt"

	"cascade/pkg/config"
	"cascade/pkg/store"

	"github.com/spf13/cobra"
)

// loadConfig resolves the --config flag and loads the TOML file, falling
// back to defaults when it does not exist.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openStore opens the runtime database named by the config.
func openStore(cmd *cobra.Command) (config.Config, *store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return config.Config{}, nil, err
	}
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("open db: %w", err)
	}
	return cfg, s, nil
}
