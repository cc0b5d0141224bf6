package engine

import (
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/lyallcooper/sieve/internal/collate"
	"github.com/lyallcooper/sieve/internal/settings"
	"github.com/lyallcooper/sieve/internal/tool"
)

// Common is the configuration and state every engine shares
type Common struct {
	tool tool.Tool
	log  *slog.Logger
	msgs Messages

	included      []string
	reference     []string
	excludedDirs  []string
	excludedItems []glob.Glob
	itemPatterns  []string
	allowedExt    map[string]struct{}
	excludedExt   map[string]struct{}
	recursive     bool
	minSize       int64
	maxSize       int64 // 0 = no limit
	useCache      bool
	saveJSON      bool
	cacheDir      string
}

func newCommon(t tool.Tool, s settings.Settings, env Env) *Common {
	log := env.Log
	if log == nil {
		log = slog.Default()
	}
	c := &Common{
		tool:         t,
		log:          log.With("component", "engine", "tool", t.String()),
		included:     cleanDirs(s.IncludedDirectories),
		reference:    cleanDirs(s.ReferenceDirectories()),
		excludedDirs: cleanDirs(s.ExcludedDirectories),
		allowedExt:   extensionSet(s.AllowedExtensions),
		excludedExt:  extensionSet(s.ExcludedExtensions),
		recursive:    s.RecursiveSearch,
		minSize:      s.MinSizeBytes(),
		maxSize:      s.MaxSizeBytes(),
		useCache:     s.UseCache,
		saveJSON:     s.SaveAlsoAsJSON,
		cacheDir:     env.CacheDir,
	}

	for _, pattern := range s.ExcludedItemList() {
		g, err := glob.Compile(filepath.ToSlash(pattern))
		if err != nil {
			c.msgs.warn("Invalid excluded item %q: %v", pattern, err)
			continue
		}
		c.excludedItems = append(c.excludedItems, g)
		c.itemPatterns = append(c.itemPatterns, pattern)
	}

	// Reference directories are scanned too
	for _, r := range c.reference {
		if !slices.Contains(c.included, r) {
			c.included = append(c.included, r)
		}
	}
	if len(c.included) == 0 {
		c.msgs.fail("No included directories were set")
	}
	return c
}

// Tool returns the tool this engine scans for
func (c *Common) Tool() tool.Tool {
	return c.tool
}

// Messages returns the collected diagnostics
func (c *Common) Messages() *Messages {
	return &c.msgs
}

// UseReference reports whether reference directories are configured
func (c *Common) UseReference() bool {
	return len(c.reference) > 0
}

// InReference reports whether path is inside a reference directory
func (c *Common) InReference(path string) bool {
	return underAny(path, c.reference)
}

func (c *Common) excludedDir(path string) bool {
	return underAny(path, c.excludedDirs)
}

func (c *Common) excludedItem(path string) bool {
	p := filepath.ToSlash(path)
	for _, g := range c.excludedItems {
		if g.Match(p) {
			return true
		}
	}
	return false
}

// extAllowed applies the allowed and excluded extension lists
func (c *Common) extAllowed(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if len(c.allowedExt) > 0 {
		if _, ok := c.allowedExt[ext]; !ok {
			return false
		}
	}
	_, excluded := c.excludedExt[ext]
	return !excluded
}

func (c *Common) sizeAllowed(size int64) bool {
	if size < c.minSize {
		return false
	}
	return c.maxSize == 0 || size <= c.maxSize
}

// roots returns the included directories with nested duplicates removed
func (c *Common) roots() []string {
	var out []string
	for _, d := range c.included {
		if c.excludedDir(d) {
			continue
		}
		out = append(out, d)
	}
	slices.SortFunc(out, collate.ComparePaths)
	out = slices.Compact(out)

	var roots []string
	for _, d := range out {
		if !c.recursive || !underAny(d, roots) {
			roots = append(roots, d)
		}
	}
	return roots
}

func cleanDirs(dirs []string) []string {
	var out []string
	for _, d := range dirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		out = append(out, filepath.Clean(d))
	}
	return out
}

// underAny reports whether path equals or lies below one of dirs
func underAny(path string, dirs []string) bool {
	for _, d := range dirs {
		if path == d {
			return true
		}
		prefix := d
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// extensionSet parses "jpg, .PNG,gif" into {jpg, png, gif}. A few group
// names expand to common extension lists.
func extensionSet(v string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, e := range settings.SplitComma(v) {
		if group, ok := extensionGroups[strings.ToUpper(e)]; ok {
			for _, g := range group {
				set[g] = struct{}{}
			}
			continue
		}
		set[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	return set
}

var extensionGroups = map[string][]string{
	"IMAGE": {"jpg", "kra", "gif", "png", "bmp", "tiff", "hdr", "svg"},
	"VIDEO": {"mp4", "flv", "mkv", "webm", "vob", "ogv", "gifv", "avi", "mov", "wmv", "mpg", "m4v", "m4p", "mpeg", "3gp"},
	"MUSIC": {"mp3", "flac", "ogg", "tta", "wma", "webm"},
	"TEXT":  {"txt", "doc", "docx", "odt", "rtf"},
}

// splitReferenced anchors each group on an item from a reference directory.
// Groups with no reference item, or with nothing outside the reference
// directories, are dropped.
func splitReferenced[E collate.Pather](c *Common, groups [][]E) []collate.Referenced[E] {
	var out []collate.Referenced[E]
	for _, g := range groups {
		var refs, others []E
		for _, e := range g {
			if c.InReference(e.GetPath()) {
				refs = append(refs, e)
			} else {
				others = append(others, e)
			}
		}
		if len(refs) == 0 || len(others) == 0 {
			continue
		}
		out = append(out, collate.Referenced[E]{Reference: refs[len(refs)-1], Others: others})
	}
	return out
}
