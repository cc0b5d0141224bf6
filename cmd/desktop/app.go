package main

import (
	"context"
	"os/exec"
	"runtime"
	"sync/atomic"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/lyallcooper/sieve/internal/fileops"
	"github.com/lyallcooper/sieve/internal/services"
	"github.com/lyallcooper/sieve/internal/settings"
)

// runtimeEmitter forwards events to the webview once the runtime context
// exists. Events emitted before startup are dropped.
type runtimeEmitter struct {
	ctx atomic.Pointer[context.Context]
}

func (e *runtimeEmitter) bind(ctx context.Context) {
	e.ctx.Store(&ctx)
}

func (e *runtimeEmitter) Emit(name string, payload any) {
	ctx := e.ctx.Load()
	if ctx == nil {
		return
	}
	wailsruntime.EventsEmit(*ctx, name, payload)
}

// App holds the Wails application context and exposes the scan commands
// to the frontend. Results arrive as runtime events.
type App struct {
	ctx     context.Context
	orch    *services.Orchestrator
	emitter *runtimeEmitter
}

// NewApp creates a new App instance.
func NewApp(emitter *runtimeEmitter) *App {
	return &App{emitter: emitter}
}

// startup is called when the app starts.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.emitter.bind(ctx)
}

// Scan starts the scan named by cmd, e.g. "scan_duplicate_files", and
// returns its job id.
func (a *App) Scan(cmd string, s settings.Settings) (string, error) {
	return a.orch.ScanCommand(cmd, s)
}

// StopScan stops one job, or every job when id is empty
func (a *App) StopScan(id string) int {
	return a.orch.StopScan(id)
}

// ActiveJobs returns the ids of the jobs still running
func (a *App) ActiveJobs() []string {
	return a.orch.ActiveJobs()
}

// MoveFiles moves or copies files in the background.
// The outcome arrives as a move-files-result event.
func (a *App) MoveFiles(opts fileops.MoveOptions) (string, error) {
	return a.orch.MoveFiles(opts)
}

// DeleteFiles deletes files, or moves them to the trash, in the background.
// The outcome arrives as a delete-files-result event.
func (a *App) DeleteFiles(opts fileops.DeleteOptions) (string, error) {
	return a.orch.DeleteFiles(opts)
}

// RenameExt gives files their proper extensions in the background.
// The outcome arrives as a rename-ext-result event.
func (a *App) RenameExt(opts fileops.RenameOptions) (string, error) {
	return a.orch.RenameExt(opts)
}

// SaveResult writes the last results of a tool to a directory.
// Completion arrives as a save-result-done event.
func (a *App) SaveResult(opts services.SaveOptions) (string, error) {
	return a.orch.SaveResult(opts)
}

// ListenScanProgress starts forwarding progress samples; later calls are no-ops
func (a *App) ListenScanProgress() bool {
	return a.orch.ListenScanProgress()
}

// SetupNumberOfThreads sets the worker count once and returns the count in use
func (a *App) SetupNumberOfThreads(n int) int {
	return a.orch.SetupNumberOfThreads(n)
}

// GetPlatformSettings returns the default directories, excludes and
// thread count for this platform.
func (a *App) GetPlatformSettings() settings.PlatformSettings {
	return a.orch.GetPlatformSettings()
}

// ReadImage returns the image at path base64 encoded for previews
func (a *App) ReadImage(path string) (services.ImageInfo, error) {
	return a.orch.ReadImage(path)
}

// SelectDirectory shows the native folder picker. An empty string means
// the dialog was cancelled.
func (a *App) SelectDirectory(title string) (string, error) {
	return wailsruntime.OpenDirectoryDialog(a.ctx, wailsruntime.OpenDialogOptions{
		Title:                title,
		CanCreateDirectories: true,
	})
}

// OpenInFileManager reveals path in the system file manager.
func (a *App) OpenInFileManager(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", "-R", path) // -R reveals in Finder
	case "windows":
		cmd = exec.Command("explorer", "/select,", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}

// OpenFolder opens a folder in the system file manager.
func (a *App) OpenFolder(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}
