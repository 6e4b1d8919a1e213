package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	xlog "github.com/treefix50/trainingtime/internal/log"
	"github.com/treefix50/trainingtime/internal/server"
)

var serveFlags struct {
	addr string
	root string
	db   string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyServeFlags(cmd)
		logger := xlog.WithComponent("serve")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		srv, err := server.New(server.Options{
			Root:              cfg.Library.Root,
			Addr:              cfg.Server.Addr,
			Store:             store,
			CORS:              cfg.Server.CORS,
			RequestsPerMinute: cfg.Server.RequestsPerMinute,
			ScanInterval:      cfg.Library.ScanInterval,
			Watch:             cfg.Library.Watch,
			ResumeUnlocksSeek: cfg.Tracking.ResumeUnlocksSeek,
			PersistInterval:   cfg.Tracking.PersistInterval,
			SessionTTL:        cfg.Tracking.SessionTTL,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info().
			Str("addr", cfg.Server.Addr).
			Str("root", cfg.Library.Root).
			Str("db", cfg.Storage.Path).
			Bool("read_only", store.ReadOnly()).
			Msg("starting trainingtime")
		if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info().Msg("stopped")
		return nil
	},
}

func applyServeFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = serveFlags.addr
	}
	if cmd.Flags().Changed("root") {
		cfg.Library.Root = serveFlags.root
	}
	if cmd.Flags().Changed("db") {
		cfg.Storage.Path = serveFlags.db
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "listen address")
	serveCmd.Flags().StringVar(&serveFlags.root, "root", "", "training library root directory")
	serveCmd.Flags().StringVar(&serveFlags.db, "db", "", "sqlite database path")
	rootCmd.AddCommand(serveCmd)
}
