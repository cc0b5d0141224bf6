package engine

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/lyallcooper/sieve/internal/collate"
	"github.com/lyallcooper/sieve/internal/progress"
)

// extensionAliases lists the other extensions in use for a detected type
var extensionAliases = map[string][]string{
	"jpg":  {"jpeg", "jpe", "jfif", "jif"},
	"tiff": {"tif"},
	"html": {"htm", "xhtml"},
	"mp4":  {"m4v", "m4a", "m4b", "m4p", "f4v"},
	"mov":  {"qt"},
	"mpeg": {"mpg", "mpe"},
	"ogg":  {"oga", "ogv", "opus", "spx"},
	"mkv":  {"mka", "mks"},
	"webm": {"mkv"},
	"mp3":  {"mpga"},
	"txt":  {"text", "log", "md", "csv", "ini", "conf", "cfg"},
	"xml":  {"xsd", "xsl", "svg", "plist", "rss"},
	"zip":  {"jar", "apk", "xpi", "epub", "cbz", "whl", "nupkg", "ipa", "aar"},
	"gz":   {"tgz", "gzip"},
	"7z":   {"cb7"},
	"rar":  {"cbr"},
	"wav":  {"wave"},
	"heic": {"heif"},
	"ico":  {"cur"},
	"js":   {"mjs", "cjs"},
}

// ignoredTypes are too generic to prove an extension wrong
var ignoredTypes = []string{"application/octet-stream", "text/plain"}

// BadExtensions finds files whose extension does not match their content
type BadExtensions struct {
	*Common

	files []BadFileEntry
}

// Files returns the mismatched files found
func (b *BadExtensions) Files() []BadFileEntry {
	return b.files
}

// Find sniffs the content type of every collected file
func (b *BadExtensions) Find(job Job) error {
	rep := progress.NewReporter(job.Progress, b.tool, 1)
	rep.Stage(0, progress.StageCollectingFiles, 0, 0)

	files, err := b.collect(job, rep, walkOptions{
		keep: func(path string) bool { return filepath.Ext(path) != "" },
	})
	if err != nil {
		return err
	}

	rep.Stage(1, progress.StageBadExtensionsChecking, int64(len(files)), 0)
	found := make([]*BadFileEntry, len(files))
	err = parallel(job, &b.msgs, files, func(i int, f File) {
		defer rep.Add(1, 0)
		mt, err := mimetype.DetectFile(f.Path)
		if err != nil {
			b.msgs.warn("Cannot read %q: %v", f.Path, err)
			return
		}
		if entry, bad := checkExtension(f, mt); bad {
			found[i] = &entry
		}
	})
	if err != nil {
		return err
	}

	b.files = nil
	for _, e := range found {
		if e != nil {
			b.files = append(b.files, *e)
		}
	}
	collate.SortEntries(b.files)
	rep.Flush()
	return nil
}

// checkExtension compares the file extension with the sniffed type, its
// known aliases and its parent types.
func checkExtension(f File, mt *mimetype.MIME) (BadFileEntry, bool) {
	if slices.ContainsFunc(ignoredTypes, mt.Is) {
		return BadFileEntry{}, false
	}
	proper := strings.TrimPrefix(mt.Extension(), ".")
	if proper == "" {
		return BadFileEntry{}, false
	}

	current := strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Path), "."))
	group := properExtensions(mt)
	if slices.Contains(group, current) {
		return BadFileEntry{}, false
	}

	return BadFileEntry{
		Path:                  f.Path,
		ModifiedDate:          f.modifiedDate(),
		Size:                  uint64(max(f.Size, 0)),
		CurrentExtension:      current,
		ProperExtensionsGroup: strings.Join(group, ","),
		ProperExtension:       proper,
	}, true
}

func properExtensions(mt *mimetype.MIME) []string {
	var group []string
	add := func(ext string) {
		if ext != "" && !slices.Contains(group, ext) {
			group = append(group, ext)
		}
	}
	for m := mt; m != nil; m = m.Parent() {
		ext := strings.TrimPrefix(m.Extension(), ".")
		add(ext)
		for _, alias := range extensionAliases[ext] {
			add(alias)
		}
	}
	return group
}

// Save writes the results
func (b *BadExtensions) Save(dir, stem string) error {
	return b.save(dir, stem, func(w io.Writer) error {
		return writeList(w, "Found files with invalid extensions", b.files, func(e BadFileEntry) string {
			return fmt.Sprintf("%q ----- %s", e.Path, e.ProperExtensionsGroup)
		})
	}, collate.Flat(b.files))
}
