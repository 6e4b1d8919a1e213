package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/treefix50/trainingtime/internal/config"
	xlog "github.com/treefix50/trainingtime/internal/log"
	"github.com/treefix50/trainingtime/internal/storage"
)

// cfg holds the loaded configuration, populated in PersistentPreRunE.
var cfg config.Config

var (
	configPath string
	logLevel   string
	logPretty  bool
)

var rootCmd = &cobra.Command{
	Use:           "trainingtime",
	Short:         "Serve training videos and track how much of each one viewers actually watched",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = os.Getenv("TRAININGTIME_CONFIG")
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("pretty") {
			loaded.Log.Pretty = logPretty
		}
		cfg = loaded

		xlog.Configure(xlog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file (default $TRAININGTIME_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", false, "human-readable log output")
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openStore opens the configured database, creating its directory first.
func openStore() (*storage.Store, error) {
	path := cfg.Storage.Path
	if path != ":memory:" && !cfg.Storage.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	store, err := storage.Open(path, storage.Options{
		BusyTimeout: cfg.Storage.BusyTimeout,
		Synchronous: cfg.Storage.Synchronous,
		CacheSize:   cfg.Storage.CacheSize,
		ReadOnly:    cfg.Storage.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return store, nil
}
