package services

import (
	"fmt"

	"github.com/lyallcooper/sieve/internal/collate"
	"github.com/lyallcooper/sieve/internal/engine"
)

// collateResult turns a finished engine into the scan-result payload and
// returns the number of groups or entries it reports.
func collateResult(e engine.Engine) (collate.Envelope, int) {
	cmd := e.Tool().Command()
	text := e.Messages().Text()

	switch e := e.(type) {
	case *engine.Duplicates:
		return grouped(cmd, collate.Collate(e.Grouping()), "similar duplicates files", text)
	case *engine.SimilarImages:
		return grouped(cmd, collate.Collate(e.Grouping()), "similar image files", text)
	case *engine.SimilarVideos:
		return grouped(cmd, collate.Collate(e.Grouping()), "similar video files", text)
	case *engine.SameMusic:
		return grouped(cmd, collate.Collate(e.Grouping()), "similar music files", text)
	case *engine.EmptyFolders:
		return flat(cmd, collate.Flat(e.Folders()), "empty folders", text)
	case *engine.BigFiles:
		// already ordered by size
		list := e.Files()
		if list == nil {
			list = []engine.FileEntry{}
		}
		return flat(cmd, list, "files", text)
	case *engine.EmptyFiles:
		return flat(cmd, collate.Flat(e.Files()), "empty files", text)
	case *engine.Temporary:
		return flat(cmd, collate.Flat(e.Files()), "files", text)
	case *engine.InvalidSymlinks:
		return flat(cmd, collate.Flat(e.Links()), "invalid symlinks", text)
	case *engine.BrokenFiles:
		return flat(cmd, collate.Flat(e.Files()), "files", text)
	case *engine.BadExtensions:
		return flat(cmd, collate.Flat(e.Files()), "files with bad extensions", text)
	}

	return collate.Envelope{
		Cmd:     cmd,
		List:    []any{},
		Message: fmt.Sprintf("No collator for %s\n%s", e.Tool(), text),
	}, 0
}

func grouped[E any](cmd string, groups []collate.Group[E], noun, text string) (collate.Envelope, int) {
	if groups == nil {
		groups = []collate.Group[E]{}
	}
	return collate.Envelope{
		Cmd:     cmd,
		List:    groups,
		Message: collate.Summary(len(groups), noun, text),
	}, len(groups)
}

func flat[E any](cmd string, list []E, noun, text string) (collate.Envelope, int) {
	return collate.Envelope{
		Cmd:     cmd,
		List:    list,
		Message: collate.Summary(len(list), noun, text),
	}, len(list)
}

// failedEnvelope is the scan-result sent when no engine result exists
func failedEnvelope(cmd string, err error) collate.Envelope {
	return collate.Envelope{
		Cmd:     cmd,
		List:    []any{},
		Message: fmt.Sprintf("Found 0 files\nErrors - 1\n%v\n", err),
	}
}
