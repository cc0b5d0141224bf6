// Package progress describes the raw progress samples scan engines produce
// and turns them into the percentages and labels the UI shows.
package progress

import (
	"sync"
	"time"

	"github.com/lyallcooper/sieve/internal/tool"
)

// Stage tags the sub-stage a sample was taken in
type Stage int

const (
	StageUnknown Stage = iota

	// Collecting
	StageCollectingFiles
	StageDuplicateScanningName
	StageDuplicateScanningSize
	StageDuplicateScanningSizeName

	// Cache
	StageDuplicatePreHashCacheLoading
	StageDuplicatePreHashCacheSaving
	StageDuplicateCacheLoading
	StageDuplicateCacheSaving
	StageSameMusicCacheLoadingTags
	StageSameMusicCacheSavingTags
	StageSameMusicCacheLoadingFingerprints
	StageSameMusicCacheSavingFingerprints
	StageSimilarImagesCacheLoading
	StageSimilarImagesCacheSaving

	// Work
	StageDuplicatePreHashing
	StageDuplicateFullHashing
	StageSameMusicReadingTags
	StageSameMusicCalculatingFingerprints
	StageSameMusicComparingTags
	StageSameMusicComparingFingerprints
	StageSimilarImagesCalculatingHashes
	StageSimilarImagesComparingHashes
	StageSimilarVideosCalculatingHashes
	StageBrokenFilesChecking
	StageBadExtensionsChecking
)

// IsCollecting reports whether the stage enumerates entries before totals are known
func (s Stage) IsCollecting() bool {
	return s >= StageCollectingFiles && s <= StageDuplicateScanningSizeName
}

// IsCache reports whether the stage loads or saves a cache file
func (s Stage) IsCache() bool {
	return s >= StageDuplicatePreHashCacheLoading && s <= StageSimilarImagesCacheSaving
}

// Sample is one raw progress report from a running scan
type Sample struct {
	Tool           tool.Tool
	StageIdx       int
	MaxStageIdx    int
	Stage          Stage
	EntriesChecked int64
	EntriesToCheck int64
	BytesChecked   uint64
	BytesToCheck   uint64
}

// Sink receives samples. Implementations must not block for long.
type Sink interface {
	Send(Sample)
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(Sample)

// Send calls f(s)
func (f SinkFunc) Send(s Sample) { f(s) }

// Discard drops every sample
var Discard Sink = SinkFunc(func(Sample) {})

// Reporter throttles samples from a hot loop. Stage changes and Flush always
// pass through; updates within the interval are coalesced.
type Reporter struct {
	sink     Sink
	interval time.Duration

	mu   sync.Mutex
	cur  Sample
	last time.Time
}

// DefaultInterval is the minimum gap between two coalesced samples
const DefaultInterval = 100 * time.Millisecond

// NewReporter creates a reporter for the given tool
func NewReporter(sink Sink, t tool.Tool, maxStageIdx int) *Reporter {
	if sink == nil {
		sink = Discard
	}
	return &Reporter{
		sink:     sink,
		interval: DefaultInterval,
		cur:      Sample{Tool: t, MaxStageIdx: maxStageIdx},
	}
}

// Stage starts a new stage and sends its first sample immediately
func (r *Reporter) Stage(idx int, stage Stage, entriesToCheck int64, bytesToCheck uint64) {
	r.mu.Lock()
	r.cur.StageIdx = idx
	r.cur.Stage = stage
	r.cur.EntriesChecked = 0
	r.cur.EntriesToCheck = entriesToCheck
	r.cur.BytesChecked = 0
	r.cur.BytesToCheck = bytesToCheck
	s := r.cur
	r.last = time.Now()
	r.mu.Unlock()

	r.sink.Send(s)
}

// Add records progress within the current stage. Safe for concurrent use.
func (r *Reporter) Add(entries int64, bytes uint64) {
	r.mu.Lock()
	r.cur.EntriesChecked += entries
	r.cur.BytesChecked += bytes
	now := time.Now()
	if now.Sub(r.last) < r.interval {
		r.mu.Unlock()
		return
	}
	r.last = now
	s := r.cur
	r.mu.Unlock()

	r.sink.Send(s)
}

// Flush sends the current state regardless of throttling
func (r *Reporter) Flush() {
	r.mu.Lock()
	s := r.cur
	r.last = time.Now()
	r.mu.Unlock()

	r.sink.Send(s)
}

// Current returns a copy of the current sample
func (r *Reporter) Current() Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}
