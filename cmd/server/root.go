package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/sieve/internal/app"
	"github.com/lyallcooper/sieve/internal/config"
	"github.com/lyallcooper/sieve/internal/logging"
)

// Version info - injected at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const shutdownTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "sieve-server",
		Short:         "Runs the sieve file analysis service",
		Long:          "sieve-server scans directories for duplicates, empty files, broken files and\nsimilar media, and serves the results over a JSON API with live progress events.",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			return run(ctx, cfg)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default searches . and the user config dir for sieve.yaml)")

	f := cmd.Flags()
	f.IntP("port", "p", 0, "HTTP port (default 8080)")
	f.String("bind-address", "", "Address to listen on (default 127.0.0.1)")
	f.String("db-path", "", "SQLite database path")
	f.Int("retention-days", 0, "Days of job history to keep (default 30)")
	f.String("log-file", "", "Also append logs to this file")
	f.String("log-level", "", "Log level: debug, info, warn or error")
	f.String("cache-dir", "", "Directory for hash and fingerprint caches")
	f.String("fclones-path", "", "fclones binary used for duplicate hashing")
	f.String("ffprobe-path", "", "ffprobe binary used for media checks")
	f.String("frontend-dir", "", "Serve a built frontend from this directory")
	f.String("scan-paths", "", "Comma-separated default scan directories")
	f.String("allowed-paths", "", "Comma-separated roots the API may touch")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer logger.Close()

	a, err := app.New(app.Options{
		Config:  cfg,
		Log:     logger.Logger,
		Version: version,
		Commit:  commit,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	a.Start()

	ln, err := net.Listen("tcp", a.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.HTTP.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "url", "http://"+ln.Addr().String())
		errCh <- a.HTTP.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.HTTP.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown error", "error", err)
		}
	}

	logger.Info("server stopped")
	return nil
}
