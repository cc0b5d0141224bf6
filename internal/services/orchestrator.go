// Package services implements the commands the UI invokes: scans, bulk file
// operations, result saving and the progress listener. Every asynchronous
// command runs on the job dispatcher and always ends with its completion
// event, whether it succeeded, failed, was stopped or panicked.
package services

import (
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lyallcooper/sieve/internal/db"
	"github.com/lyallcooper/sieve/internal/engine"
	"github.com/lyallcooper/sieve/internal/events"
	"github.com/lyallcooper/sieve/internal/fclones"
	"github.com/lyallcooper/sieve/internal/fileops"
	"github.com/lyallcooper/sieve/internal/jobs"
	"github.com/lyallcooper/sieve/internal/metrics"
	"github.com/lyallcooper/sieve/internal/progress"
	"github.com/lyallcooper/sieve/internal/settings"
	"github.com/lyallcooper/sieve/internal/tool"
)

// Command kinds of the non-scan jobs. Scans use their tool's command name.
const (
	KindMoveFiles   = "move_files"
	KindDeleteFiles = "delete_files"
	KindRenameExt   = "rename_ext"
	KindSaveResult  = "save_result"
)

// ErrUnknownTool is returned for a tool name or command no tool answers to
var ErrUnknownTool = errors.New("unknown tool")

// History records job runs. *db.DB implements it.
type History interface {
	CreateJobRun(jobID, kind, tool string, scheduleID *int64) (*db.JobRun, error)
	CompleteJobRun(jobID string, status db.JobStatus, items, failures int64, message string) error
}

// Options configures an Orchestrator. Only Emitter is required.
type Options struct {
	Emitter  events.Emitter
	Log      *slog.Logger
	CacheDir string
	Fclones  fclones.ExecutorInterface
	Probe    engine.Prober
	History  History
	Metrics  metrics.JobMetrics
	MaxStack int
	// Platform overrides the platform defaults reported to the UI
	Platform func() settings.PlatformSettings
}

// Orchestrator is the command surface. It is created once and shared by
// every transport.
type Orchestrator struct {
	emit     events.Emitter
	log      *slog.Logger
	env      engine.Env
	history  History
	metrics  metrics.JobMetrics
	platform func() settings.PlatformSettings

	dispatcher *jobs.Dispatcher
	hub        *jobs.Hub
	results    *jobs.StateStore[tool.Tool, engine.Engine]

	threadsSetup jobs.OneShot
	threads      atomic.Int64
	listenerOnce jobs.OneShot
	listenerWG   sync.WaitGroup

	newEngine  func(tool.Tool, settings.Settings, engine.Env) (engine.Engine, error)
	newFileOps func(workers int) *fileops.Engine
}

// New creates an orchestrator
func New(opts Options) *Orchestrator {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	emit := opts.Emitter
	if emit == nil {
		emit = events.Discard
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	platform := opts.Platform
	if platform == nil {
		platform = settings.DefaultPlatformSettings
	}
	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = settings.CacheDir()
	}

	o := &Orchestrator{
		emit:     emit,
		log:      log.With("component", "orchestrator"),
		history:  opts.History,
		metrics:  m,
		platform: platform,
		env: engine.Env{
			CacheDir: cacheDir,
			Fclones:  opts.Fclones,
			Probe:    opts.Probe,
			Log:      log.With("component", "engine"),
		},
		dispatcher: jobs.NewDispatcher(log, opts.MaxStack),
		hub:        jobs.NewHub(),
		results:    jobs.NewStateStore[tool.Tool, engine.Engine](),
		newEngine:  engine.New,
		newFileOps: fileops.New,
	}
	o.dispatcher.OnPanic = func(kind string, _ any) {
		o.metrics.JobPanicked(kind)
	}
	return o
}

// jobResult is what a job reports back for history and metrics
type jobResult struct {
	status   db.JobStatus
	items    int
	failures int
	message  string
}

// launch acquires a handle for a new job and runs work on the dispatcher.
// If work panics, aborted is called on the way out so the command can still
// emit its completion event.
func (o *Orchestrator) launch(kind, toolName string, scheduleID *int64, work func(h *jobs.Handle) jobResult, aborted func()) (string, error) {
	h := o.hub.Acquire(kind)

	err := o.dispatcher.Run(kind, func() {
		o.started(h, toolName, scheduleID)

		finished := false
		defer func() {
			if finished {
				return
			}
			aborted()
			o.finished(h, jobResult{status: db.JobStatusFailed, message: "job panicked"})
		}()

		res := work(h)
		finished = true
		o.finished(h, res)
	})
	if err != nil {
		o.hub.Release(h.ID)
		o.log.Warn("job rejected", "kind", kind, "error", err)
		return "", err
	}
	return h.ID, nil
}

func (o *Orchestrator) started(h *jobs.Handle, toolName string, scheduleID *int64) {
	o.metrics.JobStarted(h.Kind)
	o.log.Info("job started", "job", h.ID, "kind", h.Kind)
	if o.history == nil {
		return
	}
	if _, err := o.history.CreateJobRun(h.ID, h.Kind, toolName, scheduleID); err != nil {
		o.log.Error("failed to record job start", "job", h.ID, "error", err)
	}
}

func (o *Orchestrator) finished(h *jobs.Handle, res jobResult) {
	o.hub.Release(h.ID)

	elapsed := time.Since(h.StartedAt)
	o.metrics.JobFinished(h.Kind, string(res.status), elapsed)
	o.log.Info("job finished", "job", h.ID, "kind", h.Kind, "status", res.status,
		"items", res.items, "failures", res.failures, "elapsed", elapsed)

	o.emit.Emit(events.JobFinished, JobFinished{
		ID:       h.ID,
		Kind:     h.Kind,
		Status:   string(res.status),
		Items:    res.items,
		Failures: res.failures,
	})

	if o.history == nil {
		return
	}
	err := o.history.CompleteJobRun(h.ID, res.status, int64(res.items), int64(res.failures), res.message)
	if err != nil {
		o.log.Error("failed to record job result", "job", h.ID, "error", err)
	}
}

// JobFinished is the payload of the job-finished event
type JobFinished struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	Items    int    `json:"items"`
	Failures int    `json:"failures"`
}

// StopScan cancels the job with the given id, or every running job when id
// is empty. It returns how many jobs were signalled.
func (o *Orchestrator) StopScan(id string) int {
	if id == "" {
		n := o.hub.StopAll()
		o.log.Info("stop requested", "jobs", n)
		return n
	}
	if o.hub.Stop(id) {
		o.log.Info("stop requested", "job", id)
		return 1
	}
	return 0
}

// ActiveJobs returns the ids of running jobs
func (o *Orchestrator) ActiveJobs() []string {
	return o.hub.Active()
}

// ListenScanProgress starts the progress listener. Only the first call has
// an effect; it reports whether this call started it.
func (o *Orchestrator) ListenScanProgress() bool {
	return o.listenerOnce.Do(func() {
		o.listenerWG.Add(1)
		go o.listen(o.hub.Progress())
	})
}

func (o *Orchestrator) listen(q *jobs.Queue[progress.Sample]) {
	defer o.listenerWG.Done()
	for {
		s, ok := q.Recv()
		if !ok {
			o.log.Debug("progress queue closed, listener exiting")
			return
		}
		o.metrics.ProgressSamples(1)
		o.emit.Emit(events.ScanProgress, progress.Normalize(s))
	}
}

// SetupNumberOfThreads sets the worker count for scans and file operations.
// Only the first call has an effect; n <= 0 means one per CPU. It returns
// the configured count.
func (o *Orchestrator) SetupNumberOfThreads(n int) int {
	o.threadsSetup.Do(func() {
		if n <= 0 {
			n = runtime.NumCPU()
		}
		o.threads.Store(int64(n))
		o.log.Info("worker threads configured", "threads", n)
	})
	return o.Threads()
}

// Threads returns the configured worker count
func (o *Orchestrator) Threads() int {
	if n := o.threads.Load(); n > 0 {
		return int(n)
	}
	return runtime.NumCPU()
}

// GetPlatformSettings returns the defaults the UI starts from
func (o *Orchestrator) GetPlatformSettings() settings.PlatformSettings {
	p := o.platform()
	p.CacheDirPath = o.env.CacheDir
	return p
}

// Close stops accepting jobs, cancels running ones, waits for them and
// stops the progress listener once the queue is drained.
func (o *Orchestrator) Close() {
	o.dispatcher.Close()
	o.hub.StopAll()
	o.dispatcher.Wait()
	o.hub.Close()
	o.listenerWG.Wait()
}

// Wait blocks until every running job has returned
func (o *Orchestrator) Wait() {
	o.dispatcher.Wait()
}
