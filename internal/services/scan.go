package services

import (
	"errors"
	"fmt"

	"github.com/lyallcooper/sieve/internal/collate"
	"github.com/lyallcooper/sieve/internal/db"
	"github.com/lyallcooper/sieve/internal/engine"
	"github.com/lyallcooper/sieve/internal/events"
	"github.com/lyallcooper/sieve/internal/jobs"
	"github.com/lyallcooper/sieve/internal/settings"
	"github.com/lyallcooper/sieve/internal/tool"
)

// Scan starts a scan with tool t and returns its job id. The result arrives
// as a scan-result event.
func (o *Orchestrator) Scan(t tool.Tool, s settings.Settings) (string, error) {
	return o.scan(t, s, nil)
}

// ScanCommand starts the scan a command name such as "scan_big_files" refers to
func (o *Orchestrator) ScanCommand(cmd string, s settings.Settings) (string, error) {
	t, ok := tool.FromCommand(cmd)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, cmd)
	}
	return o.scan(t, s, nil)
}

// ScanScheduled starts a scan on behalf of a scheduled scan
func (o *Orchestrator) ScanScheduled(t tool.Tool, s settings.Settings, scheduleID int64) (string, error) {
	return o.scan(t, s, &scheduleID)
}

func (o *Orchestrator) scan(t tool.Tool, s settings.Settings, scheduleID *int64) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("%w: %v", ErrUnknownTool, t)
	}
	cmd := t.Command()

	return o.launch(cmd, t.DisplayName(), scheduleID,
		func(h *jobs.Handle) jobResult {
			return o.runScan(h, t, s)
		},
		func() {
			o.emit.Emit(events.ScanResult, failedEnvelope(cmd, errors.New("scan aborted by an internal error")))
		},
	)
}

func (o *Orchestrator) runScan(h *jobs.Handle, t tool.Tool, s settings.Settings) jobResult {
	cmd := t.Command()
	log := o.log.With("job", h.ID, "tool", cmd)

	e, err := o.newEngine(t, s, o.env)
	if err != nil {
		log.Error("failed to create engine", "error", err)
		o.emit.Emit(events.ScanResult, failedEnvelope(cmd, err))
		return jobResult{status: db.JobStatusFailed, message: err.Error()}
	}

	err = e.Find(engine.Job{
		Token:    h.Token,
		Progress: h.Progress,
		Threads:  o.Threads(),
	})

	status := db.JobStatusCompleted
	switch {
	case errors.Is(err, engine.ErrStopped):
		status = db.JobStatusCancelled
		log.Info("scan stopped")
	case err != nil:
		status = db.JobStatusFailed
		log.Error("scan failed", "error", err)
	}

	envelope, count := collateResult(e)
	if status == db.JobStatusFailed {
		envelope.Message = fmt.Sprintf("Scan failed: %v\n%s", err, envelope.Message)
	}

	// The stored engine backs save_result, including after a stop, which
	// leaves partial results.
	if status != db.JobStatusFailed {
		o.results.Put(t, e)
	}

	o.emit.Emit(events.ScanResult, envelope)

	return jobResult{
		status:   status,
		items:    count,
		failures: len(e.Messages().Errors()),
		message:  firstLine(envelope.Message),
	}
}

// LastResult returns the scan-result payload of the last finished scan of t
func (o *Orchestrator) LastResult(t tool.Tool) (collate.Envelope, bool) {
	e, ok := o.results.Get(t)
	if !ok {
		return collate.Envelope{}, false
	}
	env, _ := collateResult(e)
	return env, true
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
