package fileops

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Bios-Marcel/wastebasket/v2"
	"github.com/otiai10/copy"
)

// MoveOptions is the payload of move_files
type MoveOptions struct {
	Paths             []string `json:"paths"`
	Destination       string   `json:"destination"`
	CopyMode          bool     `json:"copyMode"`
	PreserveStructure bool     `json:"preserveStructure"`
	OverrideMode      bool     `json:"overrideMode"`
}

// DeleteOptions is the payload of delete_files
type DeleteOptions struct {
	Paths                   []string `json:"paths"`
	MoveDeletedFilesToTrash bool     `json:"moveDeletedFilesToTrash"`
	IsEmptyFoldersTool      bool     `json:"isEmptyFoldersTool"`
}

// RenameItem is one file whose extension should change
type RenameItem struct {
	Path string `json:"path"`
	Ext  string `json:"ext"`
}

// RenameOptions is the payload of rename_ext
type RenameOptions struct {
	Items []RenameItem `json:"items"`
}

// ErrNotOnlyEmptyFolders is reported when an empty-folder delete finds a file
var ErrNotOnlyEmptyFolders = errors.New("folder contains files")

// Engine performs bulk file operations. The filesystem primitives are fields
// so tests can force failures.
type Engine struct {
	Workers int

	rename func(oldpath, newpath string) error
	trash  func(paths ...string) error
}

// New creates an engine using workers goroutines, or one per CPU when
// workers is not positive.
func New(workers int) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Engine{
		Workers: workers,
		rename:  os.Rename,
		trash:   wastebasket.Trash,
	}
}

// Move moves or copies every path into the destination
func (e *Engine) Move(opts MoveOptions) Outcome {
	return Run(opts.Paths, e.Workers, func(src string, out *Outcome) {
		e.moveOne(src, opts, out)
	})
}

func (e *Engine) moveOne(src string, opts MoveOptions, out *Outcome) {
	info, err := os.Lstat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			out.fail("`%s` not found", src)
			return
		}
		out.failed(src, err)
		return
	}

	name := filepath.Base(src)
	if name == "." || name == string(filepath.Separator) {
		out.fail("Failed to get file name of `%s`", src)
		return
	}

	destDir := opts.Destination
	if opts.PreserveStructure {
		destDir = filepath.Join(destDir, relativeParent(src))
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		out.failed(src, err)
		return
	}

	dest := filepath.Join(destDir, name)
	if _, err := os.Lstat(dest); err == nil && !opts.OverrideMode {
		out.fail("`%s` already exists", dest)
		return
	}

	if opts.CopyMode {
		err = copyItem(src, dest, info)
	} else {
		err = e.moveItem(src, dest, info)
	}
	if err != nil {
		out.failed(src, err)
		return
	}
	out.succeed(src)
}

func (e *Engine) moveItem(src, dest string, info os.FileInfo) error {
	if err := e.rename(src, dest); err == nil {
		return nil
	}

	if err := copyItem(src, dest, info); err != nil {
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(src)
	}
	return os.Remove(src)
}

func copyItem(src, dest string, info os.FileInfo) error {
	if info.IsDir() {
		return copy.Copy(src, dest)
	}
	return copyFile(src, dest, info.Mode().Perm())
}

func copyFile(src, dest string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// relativeParent returns the parent of p with the volume, root and any
// . or .. components removed. A trailing separator does not count as a
// path element.
func relativeParent(p string) string {
	if trimmed := strings.TrimRight(p, "/"+string(filepath.Separator)); trimmed != "" {
		p = trimmed
	}
	parent := filepath.Dir(p)
	parent = strings.TrimPrefix(parent, filepath.VolumeName(parent))

	var parts []string
	for _, part := range strings.Split(filepath.ToSlash(parent), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		parts = append(parts, part)
	}
	return filepath.Join(parts...)
}

// Delete removes every path, to the trash if requested
func (e *Engine) Delete(opts DeleteOptions) Outcome {
	return Run(opts.Paths, e.Workers, func(path string, out *Outcome) {
		e.deleteOne(path, opts, out)
	})
}

func (e *Engine) deleteOne(path string, opts DeleteOptions, out *Outcome) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			out.fail("`%s` not found", path)
			return
		}
		out.failed(path, err)
		return
	}

	switch {
	case opts.IsEmptyFoldersTool:
		err = e.removeEmptyFolder(path, opts.MoveDeletedFilesToTrash)
	case opts.MoveDeletedFilesToTrash:
		err = e.trash(path)
	case info.IsDir():
		err = os.RemoveAll(path)
	default:
		err = os.Remove(path)
	}
	if err != nil {
		out.failed(path, err)
		return
	}
	out.succeed(path)
}

// removeEmptyFolder removes path only if the tree below it holds nothing
// but directories.
func (e *Engine) removeEmptyFolder(path string, toTrash bool) error {
	onlyDirs := true
	err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			onlyDirs = false
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !onlyDirs {
		return fmt.Errorf("%w: %s", ErrNotOnlyEmptyFolders, path)
	}

	if toTrash {
		return e.trash(path)
	}
	return os.RemoveAll(path)
}

// RenameExt changes the extension of every item
func (e *Engine) RenameExt(opts RenameOptions) Outcome {
	return Run(opts.Items, e.Workers, func(item RenameItem, out *Outcome) {
		newPath := ReplaceExt(item.Path, item.Ext)
		if newPath == item.Path {
			out.succeed(item.Path)
			return
		}
		if _, err := os.Lstat(item.Path); errors.Is(err, os.ErrNotExist) {
			out.fail("`%s` not found", item.Path)
			return
		}
		if err := e.rename(item.Path, newPath); err != nil {
			out.failed(item.Path, err)
			return
		}
		out.succeed(item.Path)
	})
}

// ReplaceExt swaps the extension of p for ext (given without a dot).
// An empty ext strips the extension. A leading dot in the file name is part
// of the name, not an extension.
func ReplaceExt(p, ext string) string {
	dir, base := filepath.Split(p)
	stem := base
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		stem = base[:i]
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return dir + stem
	}
	return dir + stem + "." + ext
}
