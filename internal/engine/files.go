package engine

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/lyallcooper/sieve/internal/collate"
	"github.com/lyallcooper/sieve/internal/progress"
	"github.com/lyallcooper/sieve/internal/settings"
)

// defaultBigFilesCount is used when the requested count is not positive
const defaultBigFilesCount = 50

// BigFiles finds the biggest or the smallest files
type BigFiles struct {
	*Common

	mode  settings.SearchMode
	count int

	files []FileEntry
}

func newBigFiles(c *Common, s settings.Settings) *BigFiles {
	count := int(s.BiggestFilesSubNumberOfFiles)
	if count <= 0 {
		count = defaultBigFilesCount
	}
	return &BigFiles{Common: c, mode: s.SearchMode(), count: count}
}

// Mode returns whether the biggest or smallest files were searched
func (b *BigFiles) Mode() settings.SearchMode {
	return b.mode
}

// Files returns the results ordered by size, path breaking ties
func (b *BigFiles) Files() []FileEntry {
	return b.files
}

// Find keeps the count biggest (or smallest) files
func (b *BigFiles) Find(job Job) error {
	rep := progress.NewReporter(job.Progress, b.tool, 0)
	rep.Stage(0, progress.StageCollectingFiles, 0, 0)

	files, err := b.collect(job, rep, walkOptions{
		sizeFilter: func(size int64) bool { return size > 0 && b.sizeAllowed(size) },
	})
	if err != nil {
		return err
	}

	entries := make([]FileEntry, len(files))
	for i, f := range files {
		entries[i] = fileEntry(f)
	}
	SortBySize(entries, b.mode)
	if len(entries) > b.count {
		entries = entries[:b.count]
	}
	b.files = entries
	return nil
}

// SortBySize orders entries by size, descending for BiggestFiles and
// ascending for SmallestFiles, with path order breaking ties.
func SortBySize(entries []FileEntry, mode settings.SearchMode) {
	slices.SortStableFunc(entries, func(a, b FileEntry) int {
		c := cmp.Compare(a.Size, b.Size)
		if mode == settings.BiggestFiles {
			c = -c
		}
		if c != 0 {
			return c
		}
		return collate.ComparePaths(a.Path, b.Path)
	})
}

// Save writes the results
func (b *BigFiles) Save(dir, stem string) error {
	title := "The biggest files"
	if b.mode == settings.SmallestFiles {
		title = "The smallest files"
	}
	return b.save(dir, stem, func(w io.Writer) error {
		return writeList(w, title, b.files, func(e FileEntry) string {
			return fmt.Sprintf("%s (%d) - %q", humanize.Bytes(e.Size), e.Size, e.Path)
		})
	}, b.files)
}

// EmptyFiles finds files of zero length
type EmptyFiles struct {
	*Common

	files []FileEntry
}

// Files returns the empty files found
func (e *EmptyFiles) Files() []FileEntry {
	return e.files
}

// Find collects every zero-length file. The size limits do not apply.
func (e *EmptyFiles) Find(job Job) error {
	rep := progress.NewReporter(job.Progress, e.tool, 0)
	rep.Stage(0, progress.StageCollectingFiles, 0, 0)

	files, err := e.collect(job, rep, walkOptions{
		sizeFilter: func(size int64) bool { return size == 0 },
	})
	if err != nil {
		return err
	}
	e.files = make([]FileEntry, len(files))
	for i, f := range files {
		e.files[i] = fileEntry(f)
	}
	collate.SortEntries(e.files)
	return nil
}

// Save writes the results
func (e *EmptyFiles) Save(dir, stem string) error {
	return e.save(dir, stem, func(w io.Writer) error {
		return writeList(w, "Found empty files", e.files, func(f FileEntry) string {
			return fmt.Sprintf("%q", f.Path)
		})
	}, collate.Flat(e.files))
}

// temporaryPatterns are matched against lower-cased file names
var temporaryPatterns = struct {
	prefixes []string
	names    []string
	suffixes []string
}{
	prefixes: []string{"#"},
	names:    []string{"thumbs.db"},
	suffixes: []string{
		".bak", "~", ".tmp", ".temp", ".ds_store", ".crdownload", ".part",
		".cache", ".dmp", ".download", ".partial",
	},
}

// IsTemporary reports whether the file name looks like a temporary file
func IsTemporary(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, p := range temporaryPatterns.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	if slices.Contains(temporaryPatterns.names, name) {
		return true
	}
	for _, s := range temporaryPatterns.suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// Temporary finds leftover temporary files
type Temporary struct {
	*Common

	files []TemporaryEntry
}

// Files returns the temporary files found
func (t *Temporary) Files() []TemporaryEntry {
	return t.files
}

// Find collects files whose names match the temporary patterns
func (t *Temporary) Find(job Job) error {
	rep := progress.NewReporter(job.Progress, t.tool, 0)
	rep.Stage(0, progress.StageCollectingFiles, 0, 0)

	files, err := t.collect(job, rep, walkOptions{anySize: true, anyExt: true, keep: IsTemporary})
	if err != nil {
		return err
	}
	t.files = make([]TemporaryEntry, len(files))
	for i, f := range files {
		t.files[i] = TemporaryEntry{Path: f.Path, ModifiedDate: f.modifiedDate()}
	}
	collate.SortEntries(t.files)
	return nil
}

// Save writes the results
func (t *Temporary) Save(dir, stem string) error {
	return t.save(dir, stem, func(w io.Writer) error {
		return writeList(w, "Found temporary files", t.files, func(f TemporaryEntry) string {
			return fmt.Sprintf("%q", f.Path)
		})
	}, collate.Flat(t.files))
}

// maxSymlinkJumps bounds how far a chain of links is followed
const maxSymlinkJumps = 20

// InvalidSymlinks finds symlinks that point nowhere or into a loop
type InvalidSymlinks struct {
	*Common

	links []SymlinkEntry
}

// Links returns the invalid symlinks found
func (s *InvalidSymlinks) Links() []SymlinkEntry {
	return s.links
}

// Find checks every symlink
func (s *InvalidSymlinks) Find(job Job) error {
	rep := progress.NewReporter(job.Progress, s.tool, 0)
	rep.Stage(0, progress.StageCollectingFiles, 0, 0)

	files, err := s.collect(job, rep, walkOptions{symlinks: true, anySize: true, anyExt: true})
	if err != nil {
		return err
	}

	s.links = nil
	for _, f := range files {
		if job.stopped() {
			return ErrStopped
		}
		dest, problem, ok := checkSymlink(f.Path)
		if ok {
			continue
		}
		s.links = append(s.links, SymlinkEntry{
			Path:         f.Path,
			Size:         uint64(max(f.Size, 0)),
			ModifiedDate: f.modifiedDate(),
			SymlinkInfo:  SymlinkInfo{DestinationPath: dest, TypeOfError: problem},
		})
	}
	collate.SortEntries(s.links)
	return nil
}

// checkSymlink follows a chain of links. It returns the first target and,
// when the chain is broken, what is wrong with it.
func checkSymlink(path string) (dest string, problem SymlinkError, ok bool) {
	first, err := os.Readlink(path)
	if err != nil {
		return "", NonExistentFile, false
	}

	seen := map[string]bool{path: true}
	current := path
	for range maxSymlinkJumps {
		target, err := os.Readlink(current)
		if err != nil {
			// Not a link any more: the chain ends here
			if _, err := os.Stat(current); err != nil {
				return first, NonExistentFile, false
			}
			return first, "", true
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(current), target)
		}
		target = filepath.Clean(target)
		if seen[target] {
			return first, InfiniteRecursion, false
		}
		seen[target] = true

		if _, err := os.Lstat(target); err != nil {
			return first, NonExistentFile, false
		}
		current = target
	}
	return first, InfiniteRecursion, false
}

// Save writes the results
func (s *InvalidSymlinks) Save(dir, stem string) error {
	return s.save(dir, stem, func(w io.Writer) error {
		return writeList(w, "Found invalid symlinks", s.links, func(l SymlinkEntry) string {
			return fmt.Sprintf("%q\t\t%q\t\t%s", l.Path, l.SymlinkInfo.DestinationPath, l.SymlinkInfo.TypeOfError)
		})
	}, collate.Flat(s.links))
}
