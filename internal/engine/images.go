package engine

import (
	"fmt"
	"image"
	"io"
	"math/bits"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/dustin/go-humanize"
	"golang.org/x/image/draw"

	"github.com/lyallcooper/sieve/internal/collate"
	"github.com/lyallcooper/sieve/internal/progress"
	"github.com/lyallcooper/sieve/internal/settings"
	"github.com/lyallcooper/sieve/internal/tool"
)

var imageExtensions = []string{"jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff", "webp"}

// similarityThresholds holds, per hash size, the largest distance labelled
// Very High, High, Medium, Small, Very Small and Minimal.
var similarityThresholds = map[uint8][6]int{
	8:  {1, 2, 5, 7, 14, 20},
	16: {2, 5, 15, 30, 40, 40},
	32: {4, 10, 20, 40, 40, 40},
	64: {6, 20, 40, 40, 40, 40},
}

var similarityNames = [6]string{"Very High", "High", "Medium", "Small", "Very Small", "Minimal"}

// SimilarityLabel names a hash distance for the given hash size
func SimilarityLabel(distance int, hashSize uint8) string {
	if distance == 0 {
		return "Original"
	}
	thresholds, ok := similarityThresholds[hashSize]
	if !ok {
		thresholds = similarityThresholds[settings.DefaultHashSize]
	}
	for i, limit := range thresholds {
		if distance <= limit {
			return similarityNames[i]
		}
	}
	return similarityNames[len(similarityNames)-1]
}

// maxPerceptionSize bounds the DCT hash, which works on a size² square image
const maxPerceptionSize = 16

// SimilarImages groups images with close perceptual hashes
type SimilarImages struct {
	*Common

	hashSize       uint8
	alg            settings.ImageHashAlg
	resize         settings.ResizeAlgorithm
	similarity     int
	ignoreSameSize bool
	hideHardLinks  bool
	deleteOutdated bool

	groups     [][]ImageEntry
	referenced []collate.Referenced[ImageEntry]
}

func newSimilarImages(c *Common, s settings.Settings) *SimilarImages {
	hashSize := s.ImageHashSize()
	if _, ok := similarityThresholds[hashSize]; !ok {
		hashSize = settings.DefaultHashSize
	}
	return &SimilarImages{
		Common:         c,
		hashSize:       hashSize,
		alg:            s.ImageHashAlg(),
		resize:         s.ResizeAlgorithm(),
		similarity:     int(max(s.SimilarImagesSubSimilarity, 0)),
		ignoreSameSize: s.SimilarImagesSubIgnoreSameSize,
		hideHardLinks:  s.SimilarImagesHideHardLinks,
		deleteOutdated: s.SimilarImagesDeleteOutdatedEntries,
	}
}

// Grouping returns the similar image groups
func (s *SimilarImages) Grouping() collate.Grouping[int, ImageEntry] {
	return collate.Grouping[int, ImageEntry]{
		UseReference: s.UseReference(),
		Groups:       map[int][][]ImageEntry{0: s.groups},
		Referenced:   map[int][]collate.Referenced[ImageEntry]{0: s.referenced},
	}
}

type imageHash struct {
	Hash   []uint64 `json:"hash"`
	Width  uint32   `json:"width"`
	Height uint32   `json:"height"`
}

// Find hashes every image and clusters the hashes
func (s *SimilarImages) Find(job Job) error {
	s.groups, s.referenced = nil, nil
	rep := progress.NewReporter(job.Progress, tool.SimilarImages, 2)
	rep.Stage(0, progress.StageCollectingFiles, 0, 0)

	files, err := s.collect(job, rep, walkOptions{keep: hasExtension(imageExtensions)})
	if err != nil {
		return err
	}
	if s.hideHardLinks {
		files = uniqueInodes(files)
	}
	if s.ignoreSameSize {
		files = uniqueSizes(files)
	}

	var cache *fileCache[imageHash]
	if s.useCache {
		rep.Stage(1, progress.StageSimilarImagesCacheLoading, 0, 0)
		name := fmt.Sprintf("cache_similar_images_%d_%d_%d.json", s.hashSize, s.alg, s.resize)
		cache = openCache[imageHash](s.Common, name, s.deleteOutdated)
	}

	hashes := make([]imageHash, len(files))
	var todo []int
	var total uint64
	for i, f := range files {
		if cache != nil {
			if h, ok := cache.get(f); ok {
				hashes[i] = h
				continue
			}
		}
		todo = append(todo, i)
		total += uint64(max(f.Size, 0))
	}

	rep.Stage(1, progress.StageSimilarImagesCalculatingHashes, int64(len(files)), total)
	rep.Add(int64(len(files)-len(todo)), 0)
	err = parallel(job, &s.msgs, todo, func(_ int, i int) {
		defer rep.Add(1, uint64(max(files[i].Size, 0)))
		h, err := s.hashImage(files[i].Path)
		if err != nil {
			s.msgs.warn("Cannot hash image %q: %v", files[i].Path, err)
			return
		}
		hashes[i] = h
	})
	if err != nil {
		return err
	}

	if cache != nil {
		for _, i := range todo {
			if len(hashes[i].Hash) > 0 {
				cache.put(files[i], hashes[i])
			}
		}
		rep.Stage(1, progress.StageSimilarImagesCacheSaving, 0, 0)
		saveCache(s.Common, cache)
	}

	entries := make([]ImageEntry, 0, len(files))
	for i, f := range files {
		if len(hashes[i].Hash) == 0 {
			continue
		}
		entries = append(entries, ImageEntry{
			Path:         f.Path,
			Size:         uint64(max(f.Size, 0)),
			Width:        hashes[i].Width,
			Height:       hashes[i].Height,
			ModifiedDate: f.modifiedDate(),
			hash:         hashes[i].Hash,
		})
	}

	rep.Stage(2, progress.StageSimilarImagesComparingHashes, int64(len(entries)), 0)
	groups, err := s.cluster(job, rep, entries)
	if err != nil {
		return err
	}
	if s.UseReference() {
		s.referenced = splitReferenced(s.Common, groups)
	} else {
		s.groups = groups
	}
	rep.Flush()
	return nil
}

// cluster walks the images in path order. Each image not yet grouped
// becomes the original of a group holding every other free image within
// the similarity distance.
func (s *SimilarImages) cluster(job Job, rep *progress.Reporter, entries []ImageEntry) ([][]ImageEntry, error) {
	collate.SortEntries(entries)
	taken := make([]bool, len(entries))

	var groups [][]ImageEntry
	for i := range entries {
		if job.stopped() {
			return nil, ErrStopped
		}
		rep.Add(1, 0)
		if taken[i] {
			continue
		}

		base := entries[i]
		base.Similarity = SimilarityLabel(0, s.hashSize)
		group := []ImageEntry{base}
		for j := i + 1; j < len(entries); j++ {
			if taken[j] {
				continue
			}
			d := hammingDistance(entries[i].hash, entries[j].hash)
			if d > s.similarity {
				continue
			}
			taken[j] = true
			member := entries[j]
			member.Similarity = SimilarityLabel(d, s.hashSize)
			group = append(group, member)
		}
		if len(group) > 1 {
			taken[i] = true
			groups = append(groups, group)
		}
	}
	return groups, nil
}

func hammingDistance(a, b []uint64) int {
	if len(a) != len(b) {
		return 64 * max(len(a), len(b))
	}
	d := 0
	for i := range a {
		d += bits.OnesCount64(a[i] ^ b[i])
	}
	return d
}

func (s *SimilarImages) hashImage(path string) (imageHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return imageHash{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return imageHash{}, err
	}
	b := img.Bounds()

	h, err := computeHash(s.prepare(img), s.alg, int(s.hashSize))
	if err != nil {
		return imageHash{}, err
	}
	return imageHash{Hash: h.GetHash(), Width: uint32(b.Dx()), Height: uint32(b.Dy())}, nil
}

// prepare scales the image down with the configured filter so the hash
// sees the same input whatever the original resolution.
func (s *SimilarImages) prepare(img image.Image) image.Image {
	side := int(s.hashSize) * 4
	b := img.Bounds()
	if b.Dx() <= side && b.Dy() <= side {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	interpolator(s.resize).Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func interpolator(r settings.ResizeAlgorithm) draw.Interpolator {
	switch r {
	case settings.ResizeNearest:
		return draw.NearestNeighbor
	case settings.ResizeTriangle:
		return draw.ApproxBiLinear
	case settings.ResizeGaussian:
		return draw.BiLinear
	}
	return draw.CatmullRom
}

// computeHash maps the hash algorithm setting onto the hashes goimagehash
// provides.
func computeHash(img image.Image, alg settings.ImageHashAlg, size int) (*goimagehash.ExtImageHash, error) {
	switch alg {
	case settings.HashAlgGradient, settings.HashAlgVertGradient, settings.HashAlgDoubleGradient:
		return goimagehash.ExtDifferenceHash(img, size, size)
	case settings.HashAlgBlockHash, settings.HashAlgMedian:
		// The DCT hash needs a power of two and a bounded size; the
		// result is padded so distances stay comparable.
		p := min(size, maxPerceptionSize)
		h, err := goimagehash.ExtPerceptionHash(img, p, p)
		if err != nil || p == size {
			return h, err
		}
		padded := make([]uint64, size*size/64)
		copy(padded, h.GetHash())
		return goimagehash.NewExtImageHash(padded, goimagehash.PHash, size*size), nil
	}
	return goimagehash.ExtAverageHash(img, size, size)
}

func hasExtension(exts []string) func(string) bool {
	return func(path string) bool {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		return slices.Contains(exts, ext)
	}
}

// uniqueSizes keeps one file per distinct byte size
func uniqueSizes(files []File) []File {
	seen := make(map[int64]bool, len(files))
	out := files[:0:0]
	for _, f := range files {
		if seen[f.Size] {
			continue
		}
		seen[f.Size] = true
		out = append(out, f)
	}
	return out
}

func (s *SimilarImages) writeText(w io.Writer) error {
	return writeGroups(w, "Similar images", collate.Collate(s.Grouping()), func(e ImageEntry) string {
		return fmt.Sprintf("%q - %dx%d - %s - %s", e.Path, e.Width, e.Height, humanize.Bytes(e.Size), e.Similarity)
	})
}

// Save writes the results
func (s *SimilarImages) Save(dir, stem string) error {
	return s.save(dir, stem, s.writeText, collate.Collate(s.Grouping()))
}
