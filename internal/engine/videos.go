package engine

import (
	"fmt"
	"io"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/lyallcooper/sieve/internal/collate"
	"github.com/lyallcooper/sieve/internal/progress"
	"github.com/lyallcooper/sieve/internal/settings"
	"github.com/lyallcooper/sieve/internal/tool"
)

var videoExtensions = []string{
	"mp4", "mkv", "webm", "avi", "mov", "wmv", "flv", "m4v", "mpg", "mpeg", "3gp", "ogv", "vob", "ts", "m2ts",
}

// SimilarVideos groups videos with the same resolution and nearly the same
// duration. Media metadata comes from ffprobe.
type SimilarVideos struct {
	*Common

	tolerance      int
	ignoreSameSize bool
	hideHardLinks  bool
	probe          Prober

	groups     [][]VideoEntry
	referenced []collate.Referenced[VideoEntry]
}

func newSimilarVideos(c *Common, s settings.Settings, p Prober) *SimilarVideos {
	return &SimilarVideos{
		Common:         c,
		tolerance:      int(max(s.SimilarVideosSubSimilarity, 0)),
		ignoreSameSize: s.SimilarVideosSubIgnoreSameSize,
		hideHardLinks:  s.SimilarVideosHideHardLinks,
		probe:          p,
	}
}

// Grouping returns the similar video groups
func (v *SimilarVideos) Grouping() collate.Grouping[int, VideoEntry] {
	return collate.Grouping[int, VideoEntry]{
		UseReference: v.UseReference(),
		Groups:       map[int][][]VideoEntry{0: v.groups},
		Referenced:   map[int][]collate.Referenced[VideoEntry]{0: v.referenced},
	}
}

// Find probes every video and groups the matches
func (v *SimilarVideos) Find(job Job) error {
	v.groups, v.referenced = nil, nil
	if v.probe == nil {
		v.msgs.fail("ffprobe is not available, similar videos cannot be searched")
		return nil
	}

	rep := progress.NewReporter(job.Progress, tool.SimilarVideos, 1)
	rep.Stage(0, progress.StageCollectingFiles, 0, 0)
	files, err := v.collect(job, rep, walkOptions{keep: hasExtension(videoExtensions)})
	if err != nil {
		return err
	}
	if v.hideHardLinks {
		files = uniqueInodes(files)
	}
	if v.ignoreSameSize {
		files = uniqueSizes(files)
	}

	rep.Stage(1, progress.StageSimilarVideosCalculatingHashes, int64(len(files)), 0)
	probed := make([]*VideoEntry, len(files))
	err = parallel(job, &v.msgs, files, func(i int, f File) {
		defer rep.Add(1, 0)
		r, err := v.probe.Probe(job.context(), f.Path)
		if err != nil {
			v.msgs.warn("Cannot probe %q: %v", f.Path, err)
			return
		}
		if r.Video == nil || r.Duration <= 0 {
			return
		}
		probed[i] = &VideoEntry{
			Path:         f.Path,
			Size:         uint64(max(f.Size, 0)),
			ModifiedDate: f.modifiedDate(),
			duration:     r.Duration,
			width:        r.Video.Width,
			height:       r.Video.Height,
		}
	})
	if err != nil {
		return err
	}

	var entries []VideoEntry
	for _, e := range probed {
		if e != nil {
			entries = append(entries, *e)
		}
	}
	groups := v.cluster(entries)
	if v.UseReference() {
		v.referenced = splitReferenced(v.Common, groups)
	} else {
		v.groups = groups
	}
	rep.Flush()
	return nil
}

func (v *SimilarVideos) cluster(entries []VideoEntry) [][]VideoEntry {
	collate.SortEntries(entries)
	taken := make([]bool, len(entries))

	var groups [][]VideoEntry
	for i := range entries {
		if taken[i] {
			continue
		}
		group := []VideoEntry{entries[i]}
		for j := i + 1; j < len(entries); j++ {
			if !taken[j] && SimilarDuration(entries[i], entries[j], v.tolerance) {
				taken[j] = true
				group = append(group, entries[j])
			}
		}
		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}

// SimilarDuration reports whether two videos share a resolution and their
// durations differ by at most tolerance per mille of the longer one.
func SimilarDuration(a, b VideoEntry, tolerance int) bool {
	if a.width != b.width || a.height != b.height {
		return false
	}
	longer := math.Max(a.duration, b.duration)
	return math.Abs(a.duration-b.duration) <= longer*float64(tolerance)/1000
}

func (v *SimilarVideos) writeText(w io.Writer) error {
	return writeGroups(w, "Similar videos", collate.Collate(v.Grouping()), func(e VideoEntry) string {
		return fmt.Sprintf("%q - %s", e.Path, humanize.Bytes(e.Size))
	})
}

// Save writes the results
func (v *SimilarVideos) Save(dir, stem string) error {
	return v.save(dir, stem, v.writeText, collate.Collate(v.Grouping()))
}
