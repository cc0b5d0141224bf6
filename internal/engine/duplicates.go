package engine

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"
	"github.com/zeebo/xxh3"

	"github.com/lyallcooper/sieve/internal/collate"
	"github.com/lyallcooper/sieve/internal/fclones"
	"github.com/lyallcooper/sieve/internal/progress"
	"github.com/lyallcooper/sieve/internal/settings"
	"github.com/lyallcooper/sieve/internal/tool"
)

// prehashSize is how much of each file the partial hash reads
const prehashSize = 4 * 1024

// Duplicates finds files with the same name, size or content
type Duplicates struct {
	*Common

	method              settings.CheckMethod
	hashType            settings.HashType
	caseSensitive       bool
	hideHardLinks       bool
	usePrehashCache     bool
	minCacheSize        int64
	minPrehashCacheSize int64
	deleteOutdated      bool
	fclones             fclones.ExecutorInterface

	groups     map[string][][]DuplicateEntry
	referenced map[string][]collate.Referenced[DuplicateEntry]
}

func newDuplicates(c *Common, s settings.Settings, fc fclones.ExecutorInterface) *Duplicates {
	return &Duplicates{
		Common:              c,
		method:              s.CheckMethod(),
		hashType:            s.HashType(),
		caseSensitive:       s.DuplicatesSubNameCaseSensitive,
		hideHardLinks:       s.DuplicateHideHardLinks,
		usePrehashCache:     s.DuplicateUsePrehash,
		minCacheSize:        int64(max(s.DuplicateMinimalHashCacheSize, 0)),
		minPrehashCacheSize: int64(max(s.DuplicateMinimalPrehashCacheSize, 0)),
		deleteOutdated:      s.DuplicateDeleteOutdatedEntries,
		fclones:             fc,
	}
}

// Method returns the configured check method
func (d *Duplicates) Method() settings.CheckMethod {
	return d.method
}

// Grouping returns the result groups keyed by name, size or hash
func (d *Duplicates) Grouping() collate.Grouping[string, DuplicateEntry] {
	return collate.Grouping[string, DuplicateEntry]{
		UseReference: d.UseReference(),
		Groups:       d.groups,
		Referenced:   d.referenced,
	}
}

// Find groups duplicate files
func (d *Duplicates) Find(job Job) error {
	d.reset()

	if d.method == settings.CheckHash && d.fclones != nil && d.hashType != settings.HashCRC32 {
		err := d.findWithFclones(job)
		if err == nil || errors.Is(err, ErrStopped) {
			return err
		}
		d.msgs.warn("fclones failed, using the built-in hasher: %v", err)
		d.reset()
	}
	return d.findNative(job)
}

func (d *Duplicates) reset() {
	d.groups = make(map[string][][]DuplicateEntry)
	d.referenced = make(map[string][]collate.Referenced[DuplicateEntry])
}

func (d *Duplicates) findNative(job Job) error {
	maxStage := 0
	if d.method == settings.CheckHash {
		maxStage = 2
	}
	rep := progress.NewReporter(job.Progress, tool.DuplicateFiles, maxStage)
	rep.Stage(0, collectingStage(d.method), 0, 0)

	opts := walkOptions{}
	if d.method != settings.CheckName {
		// Empty files all match each other; they have their own tool
		opts.sizeFilter = func(size int64) bool { return size > 0 && d.sizeAllowed(size) }
	}
	files, err := d.collect(job, rep, opts)
	if err != nil {
		return err
	}

	var groups map[string][]File
	switch d.method {
	case settings.CheckName:
		groups = groupFiles(files, d.nameKey)
	case settings.CheckSize:
		groups = groupFiles(files, sizeKey)
	case settings.CheckSizeAndName:
		groups = groupFiles(files, func(f File) string { return sizeKey(f) + "\x00" + d.nameKey(f) })
	default:
		groups, err = d.hashGroups(job, rep, groupFiles(files, sizeKey))
		if err != nil {
			return err
		}
	}

	d.store(groups)
	return nil
}

func collectingStage(m settings.CheckMethod) progress.Stage {
	switch m {
	case settings.CheckName:
		return progress.StageDuplicateScanningName
	case settings.CheckSizeAndName:
		return progress.StageDuplicateScanningSizeName
	}
	return progress.StageDuplicateScanningSize
}

func (d *Duplicates) nameKey(f File) string {
	name := filepath.Base(f.Path)
	if !d.caseSensitive {
		name = strings.ToLower(name)
	}
	return name
}

func sizeKey(f File) string {
	return strconv.FormatInt(f.Size, 10)
}

// groupFiles buckets files by key and keeps buckets with at least two files
func groupFiles(files []File, key func(File) string) map[string][]File {
	all := make(map[string][]File)
	for _, f := range files {
		k := key(f)
		all[k] = append(all[k], f)
	}
	for k, g := range all {
		if len(g) < 2 {
			delete(all, k)
		}
	}
	return all
}

// hashGroups narrows size groups with a partial hash, then a full hash.
// Keys of the result are "size/hash".
func (d *Duplicates) hashGroups(job Job, rep *progress.Reporter, bySize map[string][]File) (map[string][]File, error) {
	var candidates []File
	for _, g := range bySize {
		if d.hideHardLinks {
			g = uniqueInodes(g)
		}
		if len(g) > 1 {
			candidates = append(candidates, g...)
		}
	}

	var preCache *fileCache[string]
	if d.usePrehashCache && d.useCache {
		rep.Stage(1, progress.StageDuplicatePreHashCacheLoading, 0, 0)
		preCache = openCache[string](d.Common, "cache_duplicates_prehash_"+d.hashType.String()+".json", d.deleteOutdated)
	}
	pre, err := d.hashAll(job, rep, 1, progress.StageDuplicatePreHashing, candidates, prehashSize, preCache, d.minPrehashCacheSize)
	if err != nil {
		return nil, err
	}
	if preCache != nil {
		rep.Stage(1, progress.StageDuplicatePreHashCacheSaving, 0, 0)
		saveCache(d.Common, preCache)
	}

	byPrehash := make(map[string][]File)
	for i, f := range candidates {
		if pre[i] == "" {
			continue
		}
		k := sizeKey(f) + "/" + pre[i]
		byPrehash[k] = append(byPrehash[k], f)
	}
	candidates = candidates[:0:0]
	for _, g := range byPrehash {
		if len(g) > 1 {
			candidates = append(candidates, g...)
		}
	}

	if d.useCache {
		rep.Stage(2, progress.StageDuplicateCacheLoading, 0, 0)
	}
	cache := openCache[string](d.Common, "cache_duplicates_"+d.hashType.String()+".json", d.deleteOutdated)
	full, err := d.hashAll(job, rep, 2, progress.StageDuplicateFullHashing, candidates, 0, cache, d.minCacheSize)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		rep.Stage(2, progress.StageDuplicateCacheSaving, 0, 0)
		saveCache(d.Common, cache)
	}

	result := make(map[string][]File)
	for i, f := range candidates {
		if full[i] == "" {
			continue
		}
		k := sizeKey(f) + "/" + full[i]
		result[k] = append(result[k], f)
	}
	return result, nil
}

// hashAll hashes the first limit bytes of every file (all of it when limit
// is 0). Unreadable files get an empty hash and a warning.
func (d *Duplicates) hashAll(job Job, rep *progress.Reporter, idx int, stage progress.Stage, files []File, limit int64, cache *fileCache[string], minCache int64) ([]string, error) {
	hashes := make([]string, len(files))
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
		total += hashedBytes(f.Size, limit)
	}

	rep.Stage(idx, stage, int64(len(files)), total)
	rep.Add(int64(len(files)-len(todo)), 0)

	errs := make([]error, len(files))
	err := parallel(job, &d.msgs, todo, func(_ int, i int) {
		hashes[i], errs[i] = hashFile(job, files[i].Path, limit, d.hashType)
		rep.Add(1, hashedBytes(files[i].Size, limit))
	})
	if err != nil {
		return nil, err
	}

	for _, i := range todo {
		if errs[i] != nil {
			d.msgs.warn("Cannot hash %q: %v", files[i].Path, errs[i])
			hashes[i] = ""
			continue
		}
		if cache != nil && files[i].Size >= minCache {
			cache.put(files[i], hashes[i])
		}
	}
	rep.Flush()
	return hashes, nil
}

func hashedBytes(size, limit int64) uint64 {
	if limit > 0 && size > limit {
		return uint64(limit)
	}
	return uint64(max(size, 0))
}

func newHasher(t settings.HashType) hash.Hash {
	switch t {
	case settings.HashCRC32:
		return crc32.NewIEEE()
	case settings.HashXXH3:
		return xxh3.New()
	}
	return blake3.New()
}

func hashFile(job Job, path string, limit int64, t settings.HashType) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var r io.Reader = stopReader{r: f, job: job}
	if limit > 0 {
		r = io.LimitReader(r, limit)
	}
	h := newHasher(t)
	if _, err := io.CopyBuffer(h, r, make([]byte, 64*1024)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// stopReader fails reads once the job is cancelled so large files do not
// hold up a stop request.
type stopReader struct {
	r   io.Reader
	job Job
}

func (s stopReader) Read(p []byte) (int, error) {
	if s.job.stopped() {
		return 0, ErrStopped
	}
	return s.r.Read(p)
}

// uniqueInodes keeps the first path of every set of hard links
func uniqueInodes(files []File) []File {
	out := make([]File, 0, len(files))
outer:
	for _, f := range files {
		if f.Info != nil {
			for _, kept := range out {
				if kept.Info != nil && os.SameFile(kept.Info, f.Info) {
					continue outer
				}
			}
		}
		out = append(out, f)
	}
	return out
}

func (d *Duplicates) store(groups map[string][]File) {
	plain := make(map[string][][]DuplicateEntry)
	for key, files := range groups {
		if d.hideHardLinks {
			files = uniqueInodes(files)
		}
		if len(files) < 2 {
			continue
		}

		var hashValue string
		if d.method == settings.CheckHash {
			_, hashValue, _ = strings.Cut(key, "/")
		}
		entries := make([]DuplicateEntry, len(files))
		for i, f := range files {
			entries[i] = DuplicateEntry{
				Path:         f.Path,
				Size:         uint64(max(f.Size, 0)),
				ModifiedDate: f.modifiedDate(),
				Hash:         hashValue,
			}
		}
		plain[key] = [][]DuplicateEntry{entries}
	}

	if !d.UseReference() {
		d.groups = plain
		return
	}
	for key, gs := range plain {
		if refs := splitReferenced(d.Common, gs); len(refs) > 0 {
			d.referenced[key] = refs
		}
	}
}

func (d *Duplicates) findWithFclones(job Job) error {
	opts := fclones.ScanOptions{
		Paths:           d.roots(),
		MinSize:         max(d.minSize, 1),
		MaxSize:         d.maxSize,
		ExcludePatterns: slices.Clone(d.itemPatterns),
		HashFunction:    "blake3",
		NonRecursive:    !d.recursive,
		HardLinks:       !d.hideHardLinks,
		UseCache:        d.useCache,
	}
	if d.hashType == settings.HashXXH3 {
		opts.HashFunction = "xxhash3"
	}
	for ext := range d.allowedExt {
		opts.NamePatterns = append(opts.NamePatterns, "*."+ext)
	}
	for ext := range d.excludedExt {
		opts.ExcludePatterns = append(opts.ExcludePatterns, "**/*."+ext)
	}
	for _, dir := range d.excludedDirs {
		opts.ExcludePatterns = append(opts.ExcludePatterns, filepath.ToSlash(dir)+"/**")
	}

	sink := job.Progress
	if sink == nil {
		sink = progress.Discard
	}
	out, err := d.fclones.Group(job.context(), opts, func(p fclones.Progress) {
		sink.Send(fclonesSample(p))
	})
	if job.stopped() {
		return ErrStopped
	}
	if err != nil {
		return err
	}

	groups := make(map[string][]File)
	for _, g := range out.Groups {
		key := fmt.Sprintf("%d/%s", g.FileLen, g.FileHash)
		for _, p := range g.Files {
			info, err := os.Lstat(p)
			if err != nil {
				d.msgs.warn("Cannot read metadata of %q: %v", p, err)
				continue
			}
			groups[key] = append(groups[key], File{Path: p, Size: g.FileLen, Modified: info.ModTime(), Info: info})
		}
	}
	d.msgs.info("fclones found %d groups", len(out.Groups))
	d.store(groups)
	return nil
}

// fclonesSample converts an fclones progress bar into a sample
func fclonesSample(p fclones.Progress) progress.Sample {
	s := progress.Sample{
		Tool:        tool.DuplicateFiles,
		StageIdx:    max(p.PhaseNum-1, 0),
		MaxStageIdx: max(p.PhaseTotal-1, 0),
	}
	if p.Phase == "scanning" {
		s.Stage = progress.StageDuplicateScanningSize
		s.EntriesChecked = p.Current
		return s
	}
	s.EntriesChecked = p.Current
	s.EntriesToCheck = p.Total
	if p.Bytes {
		s.BytesChecked = uint64(max(p.Current, 0))
		s.BytesToCheck = uint64(max(p.Total, 0))
	}
	return s
}

func (d *Duplicates) writeText(w io.Writer) error {
	groups := collate.Collate(d.Grouping())
	title := "Files with same names"
	switch d.method {
	case settings.CheckSize:
		title = "Files with same sizes"
	case settings.CheckSizeAndName:
		title = "Files with same sizes and names"
	case settings.CheckHash:
		title = "Files with same hashes"
	}
	return writeGroups(w, title, groups, func(e DuplicateEntry) string {
		return fmt.Sprintf("%q - %s", e.Path, humanize.Bytes(e.Size))
	})
}

// Save writes the results
func (d *Duplicates) Save(dir, stem string) error {
	return d.save(dir, stem, d.writeText, collate.Collate(d.Grouping()))
}
