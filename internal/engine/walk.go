package engine

import (
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/lyallcooper/sieve/internal/progress"
)

// File is one collected directory entry
type File struct {
	Path     string
	Size     int64
	Modified time.Time
	Info     fs.FileInfo
}

func (f File) modifiedDate() uint64 {
	if f.Modified.IsZero() || f.Modified.Unix() < 0 {
		return 0
	}
	return uint64(f.Modified.Unix())
}

type walkOptions struct {
	symlinks   bool // collect symlinks instead of skipping them
	anySize    bool // ignore the size limits
	anyExt     bool // ignore the extension lists
	keep       func(path string) bool
	sizeFilter func(size int64) bool
}

// collect walks every root and returns the files that pass the filters.
// It polls the job token once per entry.
func (c *Common) collect(job Job, rep *progress.Reporter, opts walkOptions) ([]File, error) {
	var files []File
	seen := make(map[string]struct{})

	for _, root := range c.roots() {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if job.stopped() {
				return ErrStopped
			}
			if err != nil {
				c.msgs.warn("Cannot read %q: %v", path, err)
				if d != nil && d.IsDir() && path != root {
					return fs.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				if path == root {
					return nil
				}
				if !c.recursive || c.excludedDir(path) || c.excludedItem(path) {
					return fs.SkipDir
				}
				return nil
			}

			if _, dup := seen[path]; dup {
				return nil
			}
			if c.excludedItem(path) {
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 {
				if !opts.symlinks {
					return nil
				}
			} else if !d.Type().IsRegular() || opts.symlinks {
				return nil
			}
			if !opts.anyExt && !c.extAllowed(path) {
				return nil
			}
			if opts.keep != nil && !opts.keep(path) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				c.msgs.warn("Cannot read metadata of %q: %v", path, err)
				return nil
			}
			size := info.Size()
			if opts.sizeFilter != nil {
				if !opts.sizeFilter(size) {
					return nil
				}
			} else if !opts.anySize && !c.sizeAllowed(size) {
				return nil
			}

			seen[path] = struct{}{}
			files = append(files, File{Path: path, Size: size, Modified: info.ModTime(), Info: info})
			rep.Add(1, 0)
			return nil
		})
		if errors.Is(err, ErrStopped) {
			return nil, ErrStopped
		}
		if err != nil {
			c.msgs.warn("Cannot walk %q: %v", root, err)
		}
	}

	rep.Flush()
	return files, nil
}
