// Package app provides shared application initialization logic used by both
// the server (CLI) and desktop (Wails) entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lyallcooper/sieve/internal/config"
	"github.com/lyallcooper/sieve/internal/db"
	"github.com/lyallcooper/sieve/internal/engine"
	"github.com/lyallcooper/sieve/internal/events"
	"github.com/lyallcooper/sieve/internal/fclones"
	"github.com/lyallcooper/sieve/internal/ffprobe"
	"github.com/lyallcooper/sieve/internal/handlers"
	"github.com/lyallcooper/sieve/internal/metrics"
	"github.com/lyallcooper/sieve/internal/scheduler"
	"github.com/lyallcooper/sieve/internal/services"
)

// CleanupInterval is how often old history is pruned
const CleanupInterval = 24 * time.Hour

// Options contains options for creating the application.
type Options struct {
	Config *config.Config
	Log    *slog.Logger

	// Emitter receives every event in addition to the SSE broadcaster.
	// The desktop shell forwards them to the webview.
	Emitter events.Emitter

	// Version and Commit are shown in the settings.
	Version string
	Commit  string

	// DisableCSRF disables CSRF protection. Use for desktop mode where
	// the server only accepts local connections.
	DisableCSRF bool
}

// App wraps the HTTP server and associated resources.
type App struct {
	HTTP         *http.Server
	Config       *config.Config
	Database     *db.DB
	Orchestrator *services.Orchestrator
	Scheduler    *scheduler.Scheduler
	Events       *events.Broadcaster
	Handler      *handlers.Handler
	Registry     *prometheus.Registry

	log    *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// New initializes all application components. Call Close when done to
// release resources.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	log.Info("sieve starting", "db", cfg.DBPath, "addr", cfg.Addr(), "cache", cfg.CacheDir)

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Anything still "running" was cut off by the last shutdown
	if n, err := database.MarkInterruptedRuns(); err != nil {
		log.Warn("failed to mark interrupted runs", "error", err)
	} else if n > 0 {
		log.Info("marked interrupted runs as failed", "count", n)
	}
	log.Info("history retention", "days", database.RetentionDays(cfg.RetentionDays))

	fc, probe := detectTools(cfg, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	broadcaster := events.NewBroadcaster()
	var emitter events.Emitter = broadcaster
	if opts.Emitter != nil {
		emitter = events.Multi{broadcaster, opts.Emitter}
	}

	orch := services.New(services.Options{
		Emitter:  emitter,
		Log:      log,
		CacheDir: cfg.CacheDir,
		Fclones:  fc,
		Probe:    probe,
		History:  database,
		Metrics:  metrics.New(reg),
		MaxStack: cfg.MinStackBytes,
	})

	sched := scheduler.New(database, orch, log)

	h, err := handlers.New(handlers.Options{
		Commands:    orch,
		DB:          database,
		Config:      cfg,
		Events:      broadcaster,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Fclones:     fc,
		Version:     buildVersionString(opts.Version, opts.Commit),
		Log:         log,
		DisableCSRF: opts.DisableCSRF,
	})
	if err != nil {
		orch.Close()
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  60 * time.Second,
	}
	// Open event streams never go idle, so end them when shutdown begins
	srv.RegisterOnShutdown(broadcaster.Close)

	return &App{
		HTTP:         srv,
		Config:       cfg,
		Database:     database,
		Orchestrator: orch,
		Scheduler:    sched,
		Events:       broadcaster,
		Handler:      h,
		Registry:     reg,
		log:          log.With("component", "app"),
	}, nil
}

// detectTools returns the external helpers that are installed. Missing ones
// stay nil and the engines fall back to their built-in paths.
func detectTools(cfg *config.Config, log *slog.Logger) (fclones.ExecutorInterface, engine.Prober) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var fc fclones.ExecutorInterface
	executor := fclones.NewExecutor()
	if cfg.FclonesPath != "" {
		executor.SetBinaryPath(cfg.FclonesPath)
	}
	if err := executor.CheckInstalled(ctx); err != nil {
		log.Info("fclones not found, using built-in duplicate hashing", "error", err)
	} else {
		fc = executor
	}

	var probe engine.Prober
	prober := ffprobe.New()
	if cfg.FfprobePath != "" {
		prober.SetBinaryPath(cfg.FfprobePath)
	}
	if err := prober.CheckInstalled(ctx); err != nil {
		log.Warn("ffprobe not found, video and media checks are limited", "error", err)
	} else {
		probe = prober
	}
	return fc, probe
}

// Start runs the scheduler and the periodic history cleanup
func (a *App) Start() {
	if a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})

	a.Scheduler.Start()
	a.Handler.StartCSRFCleanup(ctx)

	go func() {
		defer close(a.done)
		ticker := time.NewTicker(CleanupInterval)
		defer ticker.Stop()

		a.RunCleanup()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.RunCleanup()
			}
		}
	}()
}

// RunCleanup deletes finished runs older than the retention period
func (a *App) RunCleanup() int64 {
	days := a.Database.RetentionDays(a.Config.RetentionDays)
	n, err := a.Database.CleanupOldData(days)
	if err != nil {
		a.log.Error("cleanup failed", "error", err)
		return 0
	}
	if n > 0 {
		a.log.Info("pruned job history", "runs", n, "retention_days", days)
	}
	return n
}

// Close stops background work, cancels running jobs and releases the
// database. The HTTP server is shut down by the caller.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
		<-a.done
		a.cancel = nil
	}
	a.Scheduler.Stop()
	a.Orchestrator.Close()
	a.Events.Close()
	if err := a.Database.Close(); err != nil {
		a.log.Warn("failed to close database", "error", err)
	}
}

func buildVersionString(version, commit string) string {
	if version == "" {
		version = "dev"
	}
	if strings.HasPrefix(version, "v") {
		return version
	}
	shortCommit := commit
	if len(shortCommit) > 7 {
		shortCommit = shortCommit[:7]
	}
	if shortCommit == "" {
		shortCommit = "unknown"
	}
	return version + "-" + shortCommit
}
