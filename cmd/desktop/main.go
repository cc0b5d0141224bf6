package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"

	"github.com/lyallcooper/sieve/internal/app"
	"github.com/lyallcooper/sieve/internal/config"
	"github.com/lyallcooper/sieve/internal/logging"
	"github.com/lyallcooper/sieve/internal/settings"
)

// Version info - injected at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Desktop defaults go in before config so env and config files still win
	setDesktopDefaults()

	cfg, err := config.Load("", nil)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	emitter := &runtimeEmitter{}
	server, err := app.New(app.Options{
		Config:      cfg,
		Log:         logger.Logger,
		Emitter:     emitter,
		Version:     version,
		Commit:      commit,
		DisableCSRF: true, // The webview talks to the handler in-process
	})
	if err != nil {
		logger.Error("failed to create app", "error", err)
		os.Exit(1)
	}

	desktopApp := NewApp(emitter)
	desktopApp.orch = server.Orchestrator

	err = wails.Run(&options.App{
		Title:     "Sieve",
		Width:     1200,
		Height:    800,
		MinWidth:  800,
		MinHeight: 600,
		AssetServer: &assetserver.Options{
			Handler: server.HTTP.Handler,
		},
		Logger: logging.NewWailsLogger(logger.Logger),
		OnStartup: func(ctx context.Context) {
			desktopApp.startup(ctx)
			server.Start()
		},
		OnShutdown: func(ctx context.Context) {
			logger.Info("shutting down")
			server.Close()
			logger.Info("shutdown complete")
		},
		Bind: []interface{}{
			desktopApp,
		},
		Mac: &mac.Options{
			TitleBar: &mac.TitleBar{
				TitlebarAppearsTransparent: false,
			},
			About: &mac.AboutInfo{
				Title:   "Sieve",
				Message: fmt.Sprintf("File Analysis\n\nVersion: %s", displayVersion()),
			},
		},
		Windows: &windows.Options{
			WebviewIsTransparent: false,
			WindowIsTranslucent:  false,
		},
	})
	if err != nil {
		logger.Error("wails error", "error", err)
		os.Exit(1)
	}
}

// setDesktopDefaults points the log file and helper binaries at their
// desktop locations unless the environment already sets them.
func setDesktopDefaults() {
	setDefaultEnv("LOG_FILE", filepath.Join(xdg.StateHome, settings.AppName, settings.AppName+".log"))
	if path := findBundled("fclones"); path != "" {
		setDefaultEnv("FCLONES_PATH", path)
	}
	if path := findBundled("ffprobe"); path != "" {
		setDefaultEnv("FFPROBE_PATH", path)
	}
}

func setDefaultEnv(key, value string) {
	key = config.EnvPrefix + "_" + key
	if os.Getenv(key) == "" {
		os.Setenv(key, value)
	}
}

// findBundled looks for a helper binary shipped next to the executable,
// then on PATH. It returns "" when neither has it.
func findBundled(name string) string {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}

	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)

		var candidates []string
		switch runtime.GOOS {
		case "darwin":
			// Sieve.app/Contents/MacOS/Sieve with helpers in Contents/Resources
			candidates = []string{
				filepath.Join(execDir, "..", "Resources", name),
				filepath.Join(execDir, name),
			}
		case "windows":
			candidates = []string{filepath.Join(execDir, name)}
		default:
			candidates = []string{
				filepath.Join(execDir, name),
				filepath.Join(execDir, "..", "lib", settings.AppName, name),
			}
		}

		for _, path := range candidates {
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return ""
}

func displayVersion() string {
	if version == "dev" {
		return "Development"
	}
	return version
}
