// Package settings defines the scan settings payload the UI sends with every
// scan command and parses its free-form strings into closed enums.
package settings

import (
	"path/filepath"
	"slices"
	"strings"
)

// Settings is the scan configuration sent with every scan command
type Settings struct {
	IncludedDirectories           []string `json:"includedDirectories"`
	IncludedDirectoriesReferenced []string `json:"includedDirectoriesReferenced"`
	ExcludedDirectories           []string `json:"excludedDirectories"`
	ExcludedItems                 string   `json:"excludedItems"`
	AllowedExtensions             string   `json:"allowedExtensions"`
	ExcludedExtensions            string   `json:"excludedExtensions"`
	MinimumFileSize               int32    `json:"minimumFileSize"`
	MaximumFileSize               int32    `json:"maximumFileSize"`
	RecursiveSearch               bool     `json:"recursiveSearch"`
	UseCache                      bool     `json:"useCache"`
	SaveAlsoAsJSON                bool     `json:"saveAlsoAsJson"`

	DuplicateHideHardLinks           bool   `json:"duplicateHideHardLinks"`
	DuplicateUsePrehash              bool   `json:"duplicateUsePrehash"`
	DuplicateMinimalHashCacheSize    int32  `json:"duplicateMinimalHashCacheSize"`
	DuplicateMinimalPrehashCacheSize int32  `json:"duplicateMinimalPrehashCacheSize"`
	DuplicateDeleteOutdatedEntries   bool   `json:"duplicateDeleteOutdatedEntries"`
	DuplicatesSubCheckMethod         string `json:"duplicatesSubCheckMethod"`
	DuplicatesSubAvailableHashType   string `json:"duplicatesSubAvailableHashType"`
	DuplicatesSubNameCaseSensitive   bool   `json:"duplicatesSubNameCaseSensitive"`

	SimilarImagesHideHardLinks         bool   `json:"similarImagesHideHardLinks"`
	SimilarImagesDeleteOutdatedEntries bool   `json:"similarImagesDeleteOutdatedEntries"`
	SimilarImagesSubHashSize           string `json:"similarImagesSubHashSize"`
	SimilarImagesSubHashAlg            string `json:"similarImagesSubHashAlg"`
	SimilarImagesSubResizeAlgorithm    string `json:"similarImagesSubResizeAlgorithm"`
	SimilarImagesSubIgnoreSameSize     bool   `json:"similarImagesSubIgnoreSameSize"`
	SimilarImagesSubSimilarity         int32  `json:"similarImagesSubSimilarity"`

	SimilarVideosDeleteOutdatedEntries bool  `json:"similarVideosDeleteOutdatedEntries"`
	SimilarVideosHideHardLinks         bool  `json:"similarVideosHideHardLinks"`
	SimilarVideosSubIgnoreSameSize     bool  `json:"similarVideosSubIgnoreSameSize"`
	SimilarVideosSubSimilarity         int32 `json:"similarVideosSubSimilarity"`

	SimilarMusicDeleteOutdatedEntries                    bool    `json:"similarMusicDeleteOutdatedEntries"`
	SimilarMusicSubAudioCheckType                        string  `json:"similarMusicSubAudioCheckType"`
	SimilarMusicSubApproximateComparison                 bool    `json:"similarMusicSubApproximateComparison"`
	SimilarMusicCompareFingerprintsOnlyWithSimilarTitles bool    `json:"similarMusicCompareFingerprintsOnlyWithSimilarTitles"`
	SimilarMusicSubTitle                                 bool    `json:"similarMusicSubTitle"`
	SimilarMusicSubArtist                                bool    `json:"similarMusicSubArtist"`
	SimilarMusicSubYear                                  bool    `json:"similarMusicSubYear"`
	SimilarMusicSubBitrate                               bool    `json:"similarMusicSubBitrate"`
	SimilarMusicSubGenre                                 bool    `json:"similarMusicSubGenre"`
	SimilarMusicSubLength                                bool    `json:"similarMusicSubLength"`
	SimilarMusicSubMaximumDifferenceValue                float32 `json:"similarMusicSubMaximumDifferenceValue"`
	SimilarMusicSubMinimalFragmentDurationValue          float32 `json:"similarMusicSubMinimalFragmentDurationValue"`

	BiggestFilesSubMethod        string `json:"biggestFilesSubMethod"`
	BiggestFilesSubNumberOfFiles int32  `json:"biggestFilesSubNumberOfFiles"`

	BrokenFilesSubAudio   bool `json:"brokenFilesSubAudio"`
	BrokenFilesSubPdf     bool `json:"brokenFilesSubPdf"`
	BrokenFilesSubArchive bool `json:"brokenFilesSubArchive"`
	BrokenFilesSubImage   bool `json:"brokenFilesSubImage"`
}

// ReferenceDirectories returns the reference directories, or nil when
// reference mode is off. Reference mode needs at least one reference
// directory and a reference set that is not simply every included directory.
func (s Settings) ReferenceDirectories() []string {
	if len(s.IncludedDirectoriesReferenced) == 0 {
		return nil
	}
	if sameSet(s.IncludedDirectories, s.IncludedDirectoriesReferenced) {
		return nil
	}
	return slices.Clone(s.IncludedDirectoriesReferenced)
}

// MinSizeBytes converts the minimum size (kB) to bytes
func (s Settings) MinSizeBytes() int64 {
	if s.MinimumFileSize <= 0 {
		return 0
	}
	return int64(s.MinimumFileSize) * 1000
}

// MaxSizeBytes converts the maximum size (kB) to bytes. Zero means no limit.
func (s Settings) MaxSizeBytes() int64 {
	if s.MaximumFileSize <= 0 {
		return 0
	}
	return int64(s.MaximumFileSize) * 1000
}

// ExcludedItemList splits the comma separated excluded items
func (s Settings) ExcludedItemList() []string {
	return SplitComma(s.ExcludedItems)
}

// SplitComma splits on commas, trims and drops empty entries
func SplitComma(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// sameSet compares two path lists as sets of cleaned paths
func sameSet(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[filepath.Clean(v)] = struct{}{}
	}
	other := make(map[string]struct{}, len(b))
	for _, v := range b {
		other[filepath.Clean(v)] = struct{}{}
	}
	if len(set) != len(other) {
		return false
	}
	for v := range other {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}
