package progress

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/lyallcooper/sieve/internal/tool"
)

// Normalized is what the UI receives on the scan-progress event
type Normalized struct {
	CurrentProgress int    `json:"currentProgress"`
	AllProgress     int    `json:"allProgress"`
	StepName        string `json:"stepName"`
}

// maxFraction keeps a running stage from ever reading as finished
const maxFraction = 0.99

// Normalize converts a raw sample into percentages and a label
func Normalize(s Sample) Normalized {
	current, all := percentages(s)
	return Normalized{
		CurrentProgress: current,
		AllProgress:     all,
		StepName:        Label(s),
	}
}

func percentages(s Sample) (current, all int) {
	stages := float64(s.MaxStageIdx + 1)
	if s.EntriesToCheck == 0 {
		return -1, int(100 * float64(s.StageIdx) / stages)
	}

	frac := min(float64(s.EntriesChecked)/float64(s.EntriesToCheck), maxFraction)
	overall := min((float64(s.StageIdx)+frac)/stages, maxFraction)
	return int(frac * 100), int(overall * 100)
}

// Label renders the human readable step name for a sample
func Label(s Sample) string {
	switch {
	case s.Stage.IsCollecting() || (s.Stage == StageUnknown && s.StageIdx == 0):
		return collectingLabel(s)
	case s.Stage.IsCache():
		return cacheLabels[s.Stage]
	}

	items := fmt.Sprintf("%d/%d", s.EntriesChecked, s.EntriesToCheck)
	size := humanize.Bytes(s.BytesChecked) + "/" + humanize.Bytes(s.BytesToCheck)

	switch s.Stage {
	case StageSameMusicReadingTags:
		return "Checked tags of " + items
	case StageSameMusicCalculatingFingerprints:
		return fmt.Sprintf("Checked content of %s (%s)", items, size)
	case StageSameMusicComparingTags:
		return "Compared tags of " + items
	case StageSameMusicComparingFingerprints:
		return "Compared content of " + items
	case StageSimilarImagesCalculatingHashes:
		return fmt.Sprintf("Hashed of %s image (%s)", items, size)
	case StageSimilarImagesComparingHashes:
		return fmt.Sprintf("Compared %s image hash", items)
	case StageSimilarVideosCalculatingHashes:
		return fmt.Sprintf("Hashed of %s video", items)
	case StageBrokenFilesChecking:
		return fmt.Sprintf("Checked %s file (%s)", items, size)
	case StageBadExtensionsChecking:
		return fmt.Sprintf("Checked %s file", items)
	case StageDuplicatePreHashing:
		return fmt.Sprintf("Analyzed partial hash of %s files (%s)", items, size)
	case StageDuplicateFullHashing:
		return fmt.Sprintf("Analyzed full hash of %s files (%s)", items, size)
	}
	if s.BytesToCheck > 0 {
		return "Processing " + size
	}
	return "Processing " + items
}

func collectingLabel(s Sample) string {
	switch s.Stage {
	case StageDuplicateScanningName:
		return fmt.Sprintf("Scanning name of %d file", s.EntriesChecked)
	case StageDuplicateScanningSizeName:
		return fmt.Sprintf("Scanning size and name of %d file", s.EntriesChecked)
	case StageDuplicateScanningSize:
		return fmt.Sprintf("Scanning size of %d file", s.EntriesChecked)
	}
	if s.Tool == tool.EmptyFolders {
		return fmt.Sprintf("Scanning %d folder", s.EntriesChecked)
	}
	return fmt.Sprintf("Scanning %d file", s.EntriesChecked)
}

var cacheLabels = map[Stage]string{
	StageSameMusicCacheLoadingTags:         "Loading tags cache",
	StageSameMusicCacheLoadingFingerprints: "Loading fingerprints cache",
	StageSameMusicCacheSavingTags:          "Saving tags cache",
	StageSameMusicCacheSavingFingerprints:  "Saving fingerprints cache",
	StageDuplicatePreHashCacheLoading:      "Loading prehash cache",
	StageDuplicatePreHashCacheSaving:       "Saving prehash cache",
	StageDuplicateCacheLoading:             "Loading hash cache",
	StageDuplicateCacheSaving:              "Saving hash cache",
	StageSimilarImagesCacheLoading:         "Loading image hash cache",
	StageSimilarImagesCacheSaving:          "Saving image hash cache",
}
