package engine

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/lyallcooper/sieve/internal/collate"
	"github.com/lyallcooper/sieve/internal/progress"
	"github.com/lyallcooper/sieve/internal/tool"
)

// EmptyFolders finds folders holding nothing but other empty folders
type EmptyFolders struct {
	*Common

	folders []FolderEntry
}

// Folders returns the top-most empty folders
func (e *EmptyFolders) Folders() []FolderEntry {
	return e.folders
}

// Find walks every included directory. A folder is empty when no file,
// symlink or excluded entry exists anywhere below it. Only the top-most
// empty folder of each empty tree is reported.
func (e *EmptyFolders) Find(job Job) error {
	e.folders = nil
	rep := progress.NewReporter(job.Progress, tool.EmptyFolders, 0)
	rep.Stage(0, progress.StageCollectingFiles, 0, 0)

	type folder struct {
		parent   string
		modified uint64
	}
	folders := make(map[string]folder)
	filled := make(map[string]bool)
	var order []string

	markFilled := func(dir string) {
		for dir != "" && !filled[dir] {
			filled[dir] = true
			f, ok := folders[dir]
			if !ok {
				return
			}
			dir = f.parent
		}
	}

	for _, root := range e.roots() {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if job.stopped() {
				return ErrStopped
			}
			if err != nil {
				// Unreadable folders cannot be proven empty
				e.msgs.warn("Cannot read %q: %v", path, err)
				if path != root {
					markFilled(filepath.Dir(path))
				}
				if d != nil && d.IsDir() && path != root {
					return fs.SkipDir
				}
				return nil
			}

			if !d.IsDir() || (path != root && (e.excludedDir(path) || e.excludedItem(path))) {
				markFilled(filepath.Dir(path))
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			f := folder{}
			if path != root {
				f.parent = filepath.Dir(path)
			}
			if info, err := d.Info(); err == nil {
				f.modified = File{Modified: info.ModTime()}.modifiedDate()
			}
			if _, seen := folders[path]; !seen {
				order = append(order, path)
			}
			folders[path] = f
			rep.Add(1, 0)
			return nil
		})
		if errors.Is(err, ErrStopped) {
			return ErrStopped
		}
		if err != nil {
			e.msgs.warn("Cannot walk %q: %v", root, err)
		}
	}

	for _, path := range order {
		f := folders[path]
		if filled[path] || f.parent == "" {
			continue
		}
		if _, parentTracked := folders[f.parent]; parentTracked && !filled[f.parent] && folders[f.parent].parent != "" {
			// Reported through its parent
			continue
		}
		e.folders = append(e.folders, FolderEntry{Path: path, ModifiedDate: f.modified})
	}
	collate.SortEntries(e.folders)
	rep.Flush()
	return nil
}

// Save writes the results
func (e *EmptyFolders) Save(dir, stem string) error {
	return e.save(dir, stem, func(w io.Writer) error {
		return writeList(w, "Found empty folders", e.folders, func(f FolderEntry) string {
			return fmt.Sprintf("%q", f.Path)
		})
	}, collate.Flat(e.folders))
}
