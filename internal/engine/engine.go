// Package engine holds the scan engines behind the scan commands. Each
// engine walks the configured directories, reports progress samples, and
// keeps its results for collation and saving.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/lyallcooper/sieve/internal/fclones"
	"github.com/lyallcooper/sieve/internal/ffprobe"
	"github.com/lyallcooper/sieve/internal/progress"
	"github.com/lyallcooper/sieve/internal/settings"
	"github.com/lyallcooper/sieve/internal/tool"
)

var (
	// ErrStopped is returned by Find when the job token was cancelled
	ErrStopped = errors.New("scan stopped")
	// ErrUnsupported is returned for a tool without an engine
	ErrUnsupported = errors.New("unsupported tool")
)

// Canceller is the part of a job token an engine polls
type Canceller interface {
	Cancelled() bool
	Context() context.Context
}

// Job is what a running scan hands to its engine
type Job struct {
	Token    Canceller
	Progress progress.Sink
	Threads  int
}

func (j Job) stopped() bool {
	return j.Token != nil && j.Token.Cancelled()
}

func (j Job) context() context.Context {
	if j.Token == nil {
		return context.Background()
	}
	return j.Token.Context()
}

func (j Job) threads() int {
	if j.Threads > 0 {
		return j.Threads
	}
	return runtime.NumCPU()
}

// Engine is one scan tool
type Engine interface {
	Tool() tool.Tool
	// Find runs the scan. Results stay on the engine.
	Find(job Job) error
	// Messages returns the diagnostics collected during Find
	Messages() *Messages
	// Save writes the results to dir/stem.txt, and dir/stem.json when the
	// settings ask for it.
	Save(dir, stem string) error
}

// Prober reads media metadata
type Prober interface {
	Probe(ctx context.Context, path string) (*ffprobe.Result, error)
}

// Env holds the collaborators shared by all engines
type Env struct {
	CacheDir string
	Fclones  fclones.ExecutorInterface // optional
	Probe    Prober                    // optional
	Log      *slog.Logger
}

// New creates the engine for t configured from s
func New(t tool.Tool, s settings.Settings, env Env) (Engine, error) {
	c := newCommon(t, s, env)
	switch t {
	case tool.DuplicateFiles:
		return newDuplicates(c, s, env.Fclones), nil
	case tool.EmptyFolders:
		return &EmptyFolders{Common: c}, nil
	case tool.BigFiles:
		return newBigFiles(c, s), nil
	case tool.EmptyFiles:
		return &EmptyFiles{Common: c}, nil
	case tool.TemporaryFiles:
		return &Temporary{Common: c}, nil
	case tool.SimilarImages:
		return newSimilarImages(c, s), nil
	case tool.SimilarVideos:
		return newSimilarVideos(c, s, env.Probe), nil
	case tool.MusicDuplicates:
		return newSameMusic(c, s, env.Probe), nil
	case tool.InvalidSymlinks:
		return &InvalidSymlinks{Common: c}, nil
	case tool.BrokenFiles:
		return newBrokenFiles(c, s, env.Probe), nil
	case tool.BadExtensions:
		return &BadExtensions{Common: c}, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupported, t)
}
