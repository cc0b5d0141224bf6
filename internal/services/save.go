package services

import (
	"fmt"

	"github.com/lyallcooper/sieve/internal/db"
	"github.com/lyallcooper/sieve/internal/events"
	"github.com/lyallcooper/sieve/internal/jobs"
	"github.com/lyallcooper/sieve/internal/tool"
)

// SaveOptions is the payload of save_result
type SaveOptions struct {
	CurrentTool string `json:"currentTool"`
	Destination string `json:"destination"`
}

// SaveResultDone is the payload of the save-result-done event
type SaveResultDone struct {
	Message string `json:"message"`
}

// SaveResult writes the last results of a tool, named by its display name,
// into the destination directory. An unknown tool name starts nothing and
// emits nothing.
func (o *Orchestrator) SaveResult(opts SaveOptions) (string, error) {
	t, ok := tool.FromDisplayName(opts.CurrentTool)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, opts.CurrentTool)
	}

	failed := fmt.Sprintf("Failed to Save `%s` results to `%s`", opts.CurrentTool, opts.Destination)

	return o.launch(KindSaveResult, t.DisplayName(), nil,
		func(h *jobs.Handle) jobResult {
			// Stored engines are read-only, so saving needs no lock
			var err error
			e, found := o.results.Get(t)
			if found {
				err = e.Save(opts.Destination, t.SaveStem())
			}

			switch {
			case !found:
				o.log.Info("nothing to save", "tool", t.Command())
			case err != nil:
				o.log.Error("failed to save results", "tool", t.Command(), "error", err)
			default:
				msg := fmt.Sprintf("Successfully saved `%s` results to `%s`", opts.CurrentTool, opts.Destination)
				o.emit.Emit(events.SaveResultDone, SaveResultDone{Message: msg})
				return jobResult{status: db.JobStatusCompleted, items: 1, message: msg}
			}

			o.emit.Emit(events.SaveResultDone, SaveResultDone{Message: failed})
			return jobResult{status: db.JobStatusFailed, failures: 1, message: failed}
		},
		func() {
			o.emit.Emit(events.SaveResultDone, SaveResultDone{Message: failed})
		},
	)
}
