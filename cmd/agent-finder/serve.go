package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dispodojo/agent-finder/pkg/config"
	"github.com/dispodojo/agent-finder/pkg/metrics"
	"github.com/dispodojo/agent-finder/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Args:  cobra.NoArgs,
	Short: "Run the HTTP API server",
	Long: `Serves the upload, progress-streaming, and FSBO search API along
with Prometheus metrics on /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides config)")
	serveCmd.Flags().String("data-dir", "", "directory for uploads, results, and databases (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Server.DataDir = dir
	}
	// Keep the web cache next to the rest of the server state unless a
	// config file placed it elsewhere
	if cfg.Cache.Path == config.DefaultConfig().Cache.Path {
		cfg.Cache.Path = filepath.Join(cfg.Server.DataDir, "web_cache.db")
	}

	logger := newLogger(cfg)
	logger.Info("Agent Finder server starting", "version", version, "data_dir", cfg.Server.DataDir)

	srv, err := server.New(cfg, logger, metrics.NewDefault())
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}
