package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clipd-io/clipd/internal/config"
	"github.com/clipd-io/clipd/internal/engine"
	"github.com/clipd-io/clipd/internal/store"
)

var (
	configPath string
	teamFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "clipd",
	Short: "Multi-surface clipboard manager",
	Long: `clipd captures, organizes, and syncs clipboard history.

Clips live in per-namespace histories: your personal history plus one
per team. Automatic captures are deduplicated by content; explicit
actions (add, import, merge, split) always create new records.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&teamFlag, "team", "t", "", "team namespace (default: personal)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "clips", Title: "Clip Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
	)
}

// loadConfig reads the effective configuration for this invocation.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openEngine opens the store and engine for the selected namespace.
// The caller must call close when done.
func openEngine(cfg *config.Config) (*engine.Engine, func()) {
	st, err := store.OpenSQLite(cfg.DBPath, teamFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}

	engCfg := engine.DefaultConfig()
	engCfg.Namespace = teamFlag

	eng, err := engine.New(st, engCfg)
	if err != nil {
		st.Close()
		fmt.Fprintf(os.Stderr, "Error loading clips: %v\n", err)
		os.Exit(1)
	}

	if cfg.Incognito {
		eng.SetIncognito(true)
	}

	return eng, func() {
		if err := st.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}
}
