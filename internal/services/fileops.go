package services

import (
	"github.com/lyallcooper/sieve/internal/db"
	"github.com/lyallcooper/sieve/internal/events"
	"github.com/lyallcooper/sieve/internal/fileops"
	"github.com/lyallcooper/sieve/internal/jobs"
)

// MoveFiles moves or copies paths into a destination. The outcome arrives
// as a move-files-result event.
func (o *Orchestrator) MoveFiles(opts fileops.MoveOptions) (string, error) {
	return o.fileOp(KindMoveFiles, events.MoveFilesResult, func(e *fileops.Engine) fileops.Outcome {
		return e.Move(opts)
	})
}

// DeleteFiles deletes paths, to the trash or permanently. The outcome
// arrives as a delete-files-result event.
func (o *Orchestrator) DeleteFiles(opts fileops.DeleteOptions) (string, error) {
	return o.fileOp(KindDeleteFiles, events.DeleteFilesResult, func(e *fileops.Engine) fileops.Outcome {
		return e.Delete(opts)
	})
}

// RenameExt changes file extensions. The outcome arrives as a
// rename-ext-result event.
func (o *Orchestrator) RenameExt(opts fileops.RenameOptions) (string, error) {
	return o.fileOp(KindRenameExt, events.RenameExtResult, func(e *fileops.Engine) fileops.Outcome {
		return e.RenameExt(opts)
	})
}

func (o *Orchestrator) fileOp(kind, event string, op func(*fileops.Engine) fileops.Outcome) (string, error) {
	return o.launch(kind, "", nil,
		func(h *jobs.Handle) jobResult {
			out := op(o.newFileOps(o.Threads())).Normalize()
			o.metrics.FileOpItems(kind, len(out.SuccessPaths), len(out.Errors))
			o.emit.Emit(event, out)

			status := db.JobStatusCompleted
			if len(out.Errors) > 0 && len(out.SuccessPaths) == 0 {
				status = db.JobStatusFailed
			}
			msg := ""
			if len(out.Errors) > 0 {
				msg = out.Errors[0]
			}
			return jobResult{
				status:   status,
				items:    len(out.SuccessPaths),
				failures: len(out.Errors),
				message:  msg,
			}
		},
		func() {
			o.emit.Emit(event, fileops.Outcome{
				Errors: []string{kind + " aborted by an internal error"},
			}.Normalize())
		},
	)
}
