package services

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyallcooper/sieve/internal/collate"
	"github.com/lyallcooper/sieve/internal/db"
	"github.com/lyallcooper/sieve/internal/engine"
	"github.com/lyallcooper/sieve/internal/events"
	"github.com/lyallcooper/sieve/internal/fileops"
	"github.com/lyallcooper/sieve/internal/jobs"
	"github.com/lyallcooper/sieve/internal/metrics"
	"github.com/lyallcooper/sieve/internal/progress"
	"github.com/lyallcooper/sieve/internal/settings"
	"github.com/lyallcooper/sieve/internal/tool"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestOrchestrator(t *testing.T, opts Options) (*Orchestrator, *events.Recorder) {
	t.Helper()
	rec := events.NewRecorder()
	opts.Emitter = rec
	if opts.Log == nil {
		opts.Log = quietLog
	}
	if opts.CacheDir == "" {
		opts.CacheDir = t.TempDir()
	}
	o := New(opts)
	t.Cleanup(o.Close)
	return o, rec
}

func waitEvents(t *testing.T, rec *events.Recorder, name string, n int) []events.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if evs := rec.Named(name); len(evs) >= n {
			return evs
		}
		select {
		case <-rec.Notify():
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %d %q events, have %d", n, name, len(rec.Named(name)))
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// fakeEngine lets tests control how a scan behaves
type fakeEngine struct {
	tool    tool.Tool
	find    func(job engine.Job) error
	saveErr error
	onSave  func()
	msgs    engine.Messages

	mu    sync.Mutex
	saved []string
}

func (f *fakeEngine) Tool() tool.Tool { return f.tool }
func (f *fakeEngine) Messages() *engine.Messages { return &f.msgs }

func (f *fakeEngine) Find(job engine.Job) error {
	if f.find == nil {
		return nil
	}
	return f.find(job)
}

func (f *fakeEngine) Save(dir, stem string) error {
	f.mu.Lock()
	f.saved = append(f.saved, filepath.Join(dir, stem))
	f.mu.Unlock()
	if f.onSave != nil {
		f.onSave()
	}
	return f.saveErr
}

// blockingFind waits for the job to be stopped, signalling started first
func blockingFind(started chan<- struct{}) func(engine.Job) error {
	return func(job engine.Job) error {
		started <- struct{}{}
		<-job.Token.Context().Done()
		return engine.ErrStopped
	}
}

func useFakes(o *Orchestrator, fakes ...*fakeEngine) {
	byTool := make(map[tool.Tool]*fakeEngine)
	for _, f := range fakes {
		byTool[f.tool] = f
	}
	o.newEngine = func(t tool.Tool, s settings.Settings, env engine.Env) (engine.Engine, error) {
		if f, ok := byTool[t]; ok {
			return f, nil
		}
		return engine.New(t, s, env)
	}
}

// fakeHistory records job runs in memory
type fakeHistory struct {
	mu   sync.Mutex
	runs map[string]*db.JobRun
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{runs: make(map[string]*db.JobRun)}
}

func (h *fakeHistory) CreateJobRun(jobID, kind, toolName string, scheduleID *int64) (*db.JobRun, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := &db.JobRun{JobID: jobID, Kind: kind, Tool: toolName, ScheduleID: scheduleID, Status: db.JobStatusRunning}
	h.runs[jobID] = r
	return r, nil
}

func (h *fakeHistory) CompleteJobRun(jobID string, status db.JobStatus, items, failures int64, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.runs[jobID]
	if !ok {
		return db.ErrNotFound
	}
	r.Status, r.Items, r.Failures, r.Message = status, items, failures, message
	return nil
}

func (h *fakeHistory) get(jobID string) db.JobRun {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.runs[jobID]; ok {
		return *r
	}
	return db.JobRun{}
}

func TestScanEmitsCollatedResult(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b", "empty.txt"), "")
	writeFile(t, filepath.Join(dir, "a.log"), "")
	writeFile(t, filepath.Join(dir, "full.txt"), "data")

	history := newFakeHistory()
	o, rec := newTestOrchestrator(t, Options{History: history})

	id, err := o.Scan(tool.EmptyFiles, settings.Settings{
		IncludedDirectories: []string{dir},
		RecursiveSearch:     true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	evs := waitEvents(t, rec, events.ScanResult, 1)
	env, ok := evs[0].Payload.(collate.Envelope)
	require.True(t, ok, "payload is %T", evs[0].Payload)

	assert.Equal(t, "scan_empty_files", env.Cmd)
	list, ok := env.List.([]engine.FileEntry)
	require.True(t, ok, "list is %T", env.List)
	require.Len(t, list, 2)
	assert.Equal(t, filepath.Join(dir, "a.log"), list[0].Path)
	assert.Equal(t, filepath.Join(dir, "b", "empty.txt"), list[1].Path)
	assert.Contains(t, env.Message, "Found 2 empty files\n")

	o.Wait()
	run := history.get(id)
	assert.Equal(t, db.JobStatusCompleted, run.Status)
	assert.Equal(t, "scan_empty_files", run.Kind)
	assert.Equal(t, "Empty Files", run.Tool)
	assert.EqualValues(t, 2, run.Items)
	assert.Equal(t, "Found 2 empty files", run.Message)

	last, ok := o.LastResult(tool.EmptyFiles)
	require.True(t, ok)
	assert.Equal(t, env.Cmd, last.Cmd)

	finished := waitEvents(t, rec, events.JobFinished, 1)
	assert.Equal(t, id, finished[0].Payload.(JobFinished).ID)
}

func TestScanUnknownTool(t *testing.T) {
	o, rec := newTestOrchestrator(t, Options{})

	_, err := o.Scan(tool.Tool(42), settings.Settings{})
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = o.ScanCommand("scan_everything", settings.Settings{})
	assert.ErrorIs(t, err, ErrUnknownTool)

	assert.Empty(t, rec.Events())
}

func TestScanCommand(t *testing.T) {
	o, rec := newTestOrchestrator(t, Options{})
	useFakes(o, &fakeEngine{tool: tool.BrokenFiles})

	_, err := o.ScanCommand("scan_broken_files", settings.Settings{})
	require.NoError(t, err)

	evs := waitEvents(t, rec, events.ScanResult, 1)
	assert.Equal(t, "scan_broken_files", evs[0].Payload.(collate.Envelope).Cmd)
}

func TestOneJobPerKind(t *testing.T) {
	started := make(chan struct{}, 1)
	history := newFakeHistory()
	o, rec := newTestOrchestrator(t, Options{History: history})
	useFakes(o, &fakeEngine{tool: tool.BigFiles, find: blockingFind(started)})

	id, err := o.Scan(tool.BigFiles, settings.Settings{})
	require.NoError(t, err)
	<-started

	_, err = o.Scan(tool.BigFiles, settings.Settings{})
	assert.ErrorIs(t, err, jobs.ErrJobActive)

	assert.Equal(t, 1, o.StopScan(id))
	waitEvents(t, rec, events.ScanResult, 1)
	o.Wait()

	assert.Equal(t, db.JobStatusCancelled, history.get(id).Status)
	assert.Empty(t, o.ActiveJobs())

	// A stopped job leaves nothing behind for the next one
	o.newEngine = func(t tool.Tool, s settings.Settings, env engine.Env) (engine.Engine, error) {
		return &fakeEngine{tool: t, find: func(job engine.Job) error {
			if job.Token.Cancelled() {
				return engine.ErrStopped
			}
			return nil
		}}, nil
	}
	id2, err := o.Scan(tool.BigFiles, settings.Settings{})
	require.NoError(t, err)
	waitEvents(t, rec, events.ScanResult, 2)
	o.Wait()
	assert.Equal(t, db.JobStatusCompleted, history.get(id2).Status)
}

func TestStopScanTargetsOneJob(t *testing.T) {
	startedA := make(chan struct{}, 1)
	startedB := make(chan struct{}, 1)
	o, rec := newTestOrchestrator(t, Options{})
	useFakes(o,
		&fakeEngine{tool: tool.EmptyFolders, find: blockingFind(startedA)},
		&fakeEngine{tool: tool.TemporaryFiles, find: blockingFind(startedB)},
	)

	idA, err := o.Scan(tool.EmptyFolders, settings.Settings{})
	require.NoError(t, err)
	_, err = o.Scan(tool.TemporaryFiles, settings.Settings{})
	require.NoError(t, err)
	<-startedA
	<-startedB

	assert.Equal(t, 0, o.StopScan("no-such-job"))
	assert.Equal(t, 1, o.StopScan(idA))

	evs := waitEvents(t, rec, events.ScanResult, 1)
	assert.Equal(t, "scan_empty_folders", evs[0].Payload.(collate.Envelope).Cmd)
	done := waitEvents(t, rec, events.JobFinished, 1)
	assert.Equal(t, idA, done[0].Payload.(JobFinished).ID)
	assert.Equal(t, "cancelled", done[0].Payload.(JobFinished).Status)
	assert.Len(t, o.ActiveJobs(), 1)

	assert.Equal(t, 1, o.StopScan(""))
	evs = waitEvents(t, rec, events.ScanResult, 2)
	assert.Equal(t, "scan_temporary_files", evs[1].Payload.(collate.Envelope).Cmd)
}

func TestScanPanicStillEmitsResult(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	history := newFakeHistory()
	o, rec := newTestOrchestrator(t, Options{Metrics: m, History: history})
	useFakes(o, &fakeEngine{tool: tool.SimilarImages, find: func(engine.Job) error {
		panic("decoder exploded")
	}})

	id, err := o.Scan(tool.SimilarImages, settings.Settings{})
	require.NoError(t, err)

	evs := waitEvents(t, rec, events.ScanResult, 1)
	env := evs[0].Payload.(collate.Envelope)
	assert.Equal(t, "scan_similar_images", env.Cmd)
	assert.Contains(t, env.Message, "internal error")

	o.Wait()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Panics.WithLabelValues("scan_similar_images")))
	assert.Equal(t, db.JobStatusFailed, history.get(id).Status)
	assert.Empty(t, o.ActiveJobs())

	_, ok := o.LastResult(tool.SimilarImages)
	assert.False(t, ok)
}

func TestScanEngineError(t *testing.T) {
	o, rec := newTestOrchestrator(t, Options{})
	useFakes(o, &fakeEngine{tool: tool.SimilarVideos, find: func(engine.Job) error {
		return errors.New("disk on fire")
	}})

	_, err := o.Scan(tool.SimilarVideos, settings.Settings{})
	require.NoError(t, err)

	evs := waitEvents(t, rec, events.ScanResult, 1)
	assert.Contains(t, evs[0].Payload.(collate.Envelope).Message, "Scan failed: disk on fire")

	o.Wait()
	_, ok := o.LastResult(tool.SimilarVideos)
	assert.False(t, ok, "failed scans are not kept for saving")
}

func TestDeleteFilesReportsEveryItem(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "a.txt")
	writeFile(t, keep, "x")
	missing := filepath.Join(dir, "missing.txt")

	m := metrics.New(prometheus.NewRegistry())
	o, rec := newTestOrchestrator(t, Options{Metrics: m})

	_, err := o.DeleteFiles(fileops.DeleteOptions{Paths: []string{keep, missing}})
	require.NoError(t, err)

	evs := waitEvents(t, rec, events.DeleteFilesResult, 1)
	out := evs[0].Payload.(fileops.Outcome)
	assert.Equal(t, []string{keep}, out.SuccessPaths)
	assert.Equal(t, []string{"`" + missing + "` not found"}, out.Errors)
	assert.NoFileExists(t, keep)

	o.Wait()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FileOpItemsVec.WithLabelValues(KindDeleteFiles, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FileOpItemsVec.WithLabelValues(KindDeleteFiles, "error")))
}

func TestMoveFilesAndRenameExt(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "photo.txt")
	writeFile(t, src, "png")
	dest := filepath.Join(dir, "dest")
	require.NoError(t, os.MkdirAll(dest, 0o755))

	o, rec := newTestOrchestrator(t, Options{})

	_, err := o.MoveFiles(fileops.MoveOptions{Paths: []string{src}, Destination: dest})
	require.NoError(t, err)
	evs := waitEvents(t, rec, events.MoveFilesResult, 1)
	assert.Equal(t, []string{src}, evs[0].Payload.(fileops.Outcome).SuccessPaths)
	moved := filepath.Join(dest, "photo.txt")
	assert.FileExists(t, moved)

	_, err = o.RenameExt(fileops.RenameOptions{Items: []fileops.RenameItem{{Path: moved, Ext: "png"}}})
	require.NoError(t, err)
	evs = waitEvents(t, rec, events.RenameExtResult, 1)
	out := evs[0].Payload.(fileops.Outcome)
	assert.Equal(t, []string{moved}, out.SuccessPaths)
	assert.Empty(t, out.Errors)
	assert.NotNil(t, out.Errors)
	assert.FileExists(t, filepath.Join(dest, "photo.png"))
}

func TestSaveResult(t *testing.T) {
	dest := t.TempDir()
	fake := &fakeEngine{tool: tool.BigFiles}
	o, rec := newTestOrchestrator(t, Options{})
	useFakes(o, fake)

	// Unknown tool names start nothing and emit nothing
	_, err := o.SaveResult(SaveOptions{CurrentTool: "Everything", Destination: dest})
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.Empty(t, rec.Named(events.SaveResultDone))

	// Nothing scanned yet
	_, err = o.SaveResult(SaveOptions{CurrentTool: "Big Files", Destination: dest})
	require.NoError(t, err)
	evs := waitEvents(t, rec, events.SaveResultDone, 1)
	assert.Equal(t, "Failed to Save `Big Files` results to `"+dest+"`", evs[0].Payload.(SaveResultDone).Message)
	o.Wait()

	_, err = o.Scan(tool.BigFiles, settings.Settings{})
	require.NoError(t, err)
	waitEvents(t, rec, events.ScanResult, 1)
	o.Wait()

	_, err = o.SaveResult(SaveOptions{CurrentTool: "Big Files", Destination: dest})
	require.NoError(t, err)
	evs = waitEvents(t, rec, events.SaveResultDone, 2)
	assert.Equal(t, "Successfully saved `Big Files` results to `"+dest+"`", evs[1].Payload.(SaveResultDone).Message)
	assert.Equal(t, []string{filepath.Join(dest, "results_big_files")}, fake.saved)
	o.Wait()

	// A failing save collapses into the same failure message
	fake.saveErr = errors.New("read-only")
	_, err = o.SaveResult(SaveOptions{CurrentTool: "Big Files", Destination: dest})
	require.NoError(t, err)
	evs = waitEvents(t, rec, events.SaveResultDone, 3)
	assert.Equal(t, "Failed to Save `Big Files` results to `"+dest+"`", evs[2].Payload.(SaveResultDone).Message)
}

func TestSlowSaveDoesNotBlockScans(t *testing.T) {
	saving := make(chan struct{})
	release := make(chan struct{})
	fake := &fakeEngine{tool: tool.BigFiles, onSave: func() {
		close(saving)
		<-release
	}}
	o, rec := newTestOrchestrator(t, Options{})
	useFakes(o, fake)
	defer close(release)

	_, err := o.Scan(tool.BigFiles, settings.Settings{})
	require.NoError(t, err)
	waitEvents(t, rec, events.ScanResult, 1)
	o.Wait()

	_, err = o.SaveResult(SaveOptions{CurrentTool: "Big Files", Destination: t.TempDir()})
	require.NoError(t, err)
	<-saving

	// While the save is stuck writing, other results still get stored
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "empty.txt"), "")
	_, err = o.Scan(tool.EmptyFiles, settings.Settings{
		IncludedDirectories: []string{dir},
		RecursiveSearch:     true,
	})
	require.NoError(t, err)
	waitEvents(t, rec, events.ScanResult, 2)

	_, ok := o.LastResult(tool.BigFiles)
	assert.True(t, ok)
	env, ok := o.LastResult(tool.EmptyFiles)
	require.True(t, ok)
	assert.Equal(t, "scan_empty_files", env.Cmd)
	assert.Empty(t, rec.Named(events.SaveResultDone))
}

func TestSaveResultWritesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "big.bin"), "0123456789")
	dest := filepath.Join(t.TempDir(), "out")

	o, rec := newTestOrchestrator(t, Options{})
	_, err := o.Scan(tool.BigFiles, settings.Settings{
		IncludedDirectories:          []string{dir},
		RecursiveSearch:              true,
		BiggestFilesSubNumberOfFiles: 10,
		SaveAlsoAsJSON:               true,
	})
	require.NoError(t, err)
	waitEvents(t, rec, events.ScanResult, 1)
	o.Wait()

	_, err = o.SaveResult(SaveOptions{CurrentTool: "Big Files", Destination: dest})
	require.NoError(t, err)
	evs := waitEvents(t, rec, events.SaveResultDone, 1)
	assert.Contains(t, evs[0].Payload.(SaveResultDone).Message, "Successfully saved")

	assert.FileExists(t, filepath.Join(dest, "results_big_files.txt"))
	assert.FileExists(t, filepath.Join(dest, "results_big_files.json"))
}

func TestListenScanProgress(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	o, rec := newTestOrchestrator(t, Options{Metrics: m})

	assert.True(t, o.ListenScanProgress())
	assert.False(t, o.ListenScanProgress())

	h := o.hub.Acquire("scan_big_files")
	h.Progress.Send(progress.Sample{Tool: tool.BigFiles, StageIdx: 0, MaxStageIdx: 0, EntriesChecked: 1, EntriesToCheck: 4})
	h.Progress.Send(progress.Sample{Tool: tool.BigFiles, StageIdx: 1, MaxStageIdx: 2})
	o.hub.Release(h.ID)

	evs := waitEvents(t, rec, events.ScanProgress, 2)
	first := evs[0].Payload.(progress.Normalized)
	assert.Equal(t, 25, first.CurrentProgress)
	assert.Equal(t, 25, first.AllProgress)

	second := evs[1].Payload.(progress.Normalized)
	assert.Equal(t, -1, second.CurrentProgress)
	assert.Equal(t, 33, second.AllProgress)

	// Close drains the queue and stops the listener
	o.Close()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Samples))
}

func TestSetupNumberOfThreads(t *testing.T) {
	o, _ := newTestOrchestrator(t, Options{})
	assert.Equal(t, runtime.NumCPU(), o.Threads())
	assert.Equal(t, 3, o.SetupNumberOfThreads(3))
	assert.Equal(t, 3, o.SetupNumberOfThreads(8))
	assert.Equal(t, 3, o.Threads())

	o2, _ := newTestOrchestrator(t, Options{})
	assert.Equal(t, runtime.NumCPU(), o2.SetupNumberOfThreads(0))
}

func TestGetPlatformSettings(t *testing.T) {
	cache := t.TempDir()
	o, _ := newTestOrchestrator(t, Options{
		CacheDir: cache,
		Platform: func() settings.PlatformSettings {
			return settings.PlatformSettings{
				IncludedDirectories:   []string{"/home/me"},
				AvailableThreadNumber: 4,
			}
		},
	})

	p := o.GetPlatformSettings()
	assert.Equal(t, []string{"/home/me"}, p.IncludedDirectories)
	assert.Equal(t, 4, p.AvailableThreadNumber)
	assert.Equal(t, cache, p.CacheDirPath)
}

func TestReadImage(t *testing.T) {
	dir := t.TempDir()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	pngPath := filepath.Join(dir, "pixel.png")
	require.NoError(t, os.WriteFile(pngPath, buf.Bytes(), 0o644))

	txtPath := filepath.Join(dir, "notes.png")
	writeFile(t, txtPath, "just some text")

	o, _ := newTestOrchestrator(t, Options{})

	info, err := o.ReadImage(pngPath)
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.MimeType)
	decoded, err := base64.StdEncoding.DecodeString(info.Base64)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), decoded)

	_, err = o.ReadImage(txtPath)
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = o.ReadImage(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHistoryInDatabase(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "sieve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "x.tmp"), "tmp")

	o, rec := newTestOrchestrator(t, Options{History: database})
	id, err := o.ScanScheduled(tool.TemporaryFiles, settings.Settings{
		IncludedDirectories: []string{dir},
		RecursiveSearch:     true,
	}, 7)
	require.NoError(t, err)
	waitEvents(t, rec, events.ScanResult, 1)
	o.Wait()

	run, err := database.GetJobRun(id)
	require.NoError(t, err)
	assert.Equal(t, db.JobStatusCompleted, run.Status)
	assert.Equal(t, "Temporary Files", run.Tool)
	require.NotNil(t, run.ScheduleID)
	assert.EqualValues(t, 7, *run.ScheduleID)
	assert.EqualValues(t, 1, run.Items)
	assert.NotNil(t, run.CompletedAt)
}

func TestClosedOrchestratorRejectsJobs(t *testing.T) {
	o, rec := newTestOrchestrator(t, Options{})
	o.Close()

	_, err := o.DeleteFiles(fileops.DeleteOptions{})
	assert.ErrorIs(t, err, jobs.ErrDispatcherClosed)
	assert.Empty(t, rec.Named(events.DeleteFilesResult))
	assert.Empty(t, o.ActiveJobs())
}
