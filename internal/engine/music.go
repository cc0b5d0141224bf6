package engine

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/dhowden/tag"

	"github.com/lyallcooper/sieve/internal/collate"
	"github.com/lyallcooper/sieve/internal/progress"
	"github.com/lyallcooper/sieve/internal/settings"
	"github.com/lyallcooper/sieve/internal/tool"
)

var musicExtensions = []string{"mp3", "flac", "m4a", "m4b", "ogg", "oga", "opus", "wav", "aac", "wma", "aiff", "alac"}

// musicTags is what is read, and cached, per music file
type musicTags struct {
	Title   string  `json:"title"`
	Artist  string  `json:"artist"`
	Year    int     `json:"year"`
	Genre   string  `json:"genre"`
	Seconds float64 `json:"seconds"`
	Bitrate uint32  `json:"bitrate"` // kbps
}

// SameMusic groups music files whose selected tags match
type SameMusic struct {
	*Common

	similarity     settings.MusicSimilarity
	checkType      settings.AudioCheckType
	approximate    bool
	deleteOutdated bool
	probe          Prober

	groups     map[string][][]MusicEntry
	referenced map[string][]collate.Referenced[MusicEntry]
}

func newSameMusic(c *Common, s settings.Settings, p Prober) *SameMusic {
	return &SameMusic{
		Common:         c,
		similarity:     s.MusicSimilarity(),
		checkType:      s.AudioCheckType(),
		approximate:    s.SimilarMusicSubApproximateComparison,
		deleteOutdated: s.SimilarMusicDeleteOutdatedEntries,
		probe:          p,
	}
}

// Grouping returns the music groups keyed by the matched tag values
func (m *SameMusic) Grouping() collate.Grouping[string, MusicEntry] {
	return collate.Grouping[string, MusicEntry]{
		UseReference: m.UseReference(),
		Groups:       m.groups,
		Referenced:   m.referenced,
	}
}

// Find reads the tags of every music file and groups equal ones
func (m *SameMusic) Find(job Job) error {
	m.groups = make(map[string][][]MusicEntry)
	m.referenced = make(map[string][]collate.Referenced[MusicEntry])
	if m.checkType == settings.AudioContent {
		m.msgs.warn("Audio content comparison is not available, comparing tags instead")
	}

	rep := progress.NewReporter(job.Progress, tool.MusicDuplicates, 2)
	rep.Stage(0, progress.StageCollectingFiles, 0, 0)
	files, err := m.collect(job, rep, walkOptions{keep: hasExtension(musicExtensions)})
	if err != nil {
		return err
	}

	var cache *fileCache[musicTags]
	if m.useCache {
		rep.Stage(1, progress.StageSameMusicCacheLoadingTags, 0, 0)
		cache = openCache[musicTags](m.Common, "cache_same_music_tags.json", m.deleteOutdated)
	}

	tags := make([]*musicTags, len(files))
	var todo []int
	for i, f := range files {
		if cache != nil {
			if t, ok := cache.get(f); ok {
				tags[i] = &t
				continue
			}
		}
		todo = append(todo, i)
	}

	rep.Stage(1, progress.StageSameMusicReadingTags, int64(len(files)), 0)
	rep.Add(int64(len(files)-len(todo)), 0)
	err = parallel(job, &m.msgs, todo, func(_ int, i int) {
		defer rep.Add(1, 0)
		t, err := m.readTags(job, files[i].Path)
		if err != nil {
			m.msgs.warn("Cannot read tags of %q: %v", files[i].Path, err)
			return
		}
		tags[i] = t
	})
	if err != nil {
		return err
	}

	if cache != nil {
		for _, i := range todo {
			if tags[i] != nil {
				cache.put(files[i], *tags[i])
			}
		}
		rep.Stage(1, progress.StageSameMusicCacheSavingTags, 0, 0)
		saveCache(m.Common, cache)
	}

	rep.Stage(2, progress.StageSameMusicComparingTags, int64(len(files)), 0)
	byKey := make(map[string][]MusicEntry)
	for i, f := range files {
		if job.stopped() {
			return ErrStopped
		}
		rep.Add(1, 0)
		if tags[i] == nil {
			continue
		}
		key, ok := m.key(*tags[i])
		if !ok {
			continue
		}
		byKey[key] = append(byKey[key], musicEntry(f, *tags[i]))
	}

	for key, entries := range byKey {
		if len(entries) < 2 {
			continue
		}
		groups := [][]MusicEntry{entries}
		if !m.UseReference() {
			m.groups[key] = groups
			continue
		}
		if refs := splitReferenced(m.Common, groups); len(refs) > 0 {
			m.referenced[key] = refs
		}
	}
	rep.Flush()
	return nil
}

func (m *SameMusic) readTags(job Job, path string) (*musicTags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t := &musicTags{}
	md, err := tag.ReadFrom(f)
	switch {
	case err == nil:
		t.Title = strings.TrimSpace(md.Title())
		t.Artist = strings.TrimSpace(md.Artist())
		t.Year = md.Year()
		t.Genre = strings.TrimSpace(md.Genre())
	case !errors.Is(err, tag.ErrNoTagsFound):
		return nil, err
	}

	if m.probe != nil {
		if r, err := m.probe.Probe(job.context(), path); err == nil {
			t.Seconds = r.Duration
			bitRate := r.BitRate
			if r.Audio != nil && r.Audio.BitRate > 0 {
				bitRate = r.Audio.BitRate
			}
			t.Bitrate = uint32(max(bitRate/1000, 0))
		}
	}
	return t, nil
}

// key joins the selected tag values. Files missing a selected value are
// not compared.
func (m *SameMusic) key(t musicTags) (string, bool) {
	var parts []string
	add := func(flag settings.MusicSimilarity, value string) bool {
		if !m.similarity.Has(flag) {
			return true
		}
		if value == "" {
			return false
		}
		parts = append(parts, value)
		return true
	}

	ok := add(settings.MusicTitle, m.normalize(t.Title)) &&
		add(settings.MusicArtist, m.normalize(t.Artist)) &&
		add(settings.MusicYear, positive(t.Year)) &&
		add(settings.MusicGenre, strings.ToLower(t.Genre)) &&
		add(settings.MusicBitrate, positive(int(t.Bitrate))) &&
		add(settings.MusicLength, positive(int(math.Round(t.Seconds))))
	if !ok || len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\x00"), true
}

func positive(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// normalize lower-cases a tag value. Approximate comparison also drops
// bracketed parts like "(Remastered)" and everything but letters and digits.
func (m *SameMusic) normalize(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if !m.approximate {
		return v
	}
	return ApproximateTitle(v)
}

// ApproximateTitle strips bracketed text, punctuation and spaces
func ApproximateTitle(v string) string {
	var b strings.Builder
	depth := 0
	for _, r := range strings.ToLower(v) {
		switch r {
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			depth = max(depth-1, 0)
			continue
		}
		if depth == 0 && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func musicEntry(f File, t musicTags) MusicEntry {
	e := MusicEntry{
		Size:         uint64(max(f.Size, 0)),
		Path:         f.Path,
		ModifiedDate: f.modifiedDate(),
		TrackTitle:   t.Title,
		TrackArtist:  t.Artist,
		Year:         positive(t.Year),
		Genre:        t.Genre,
		Bitrate:      t.Bitrate,
	}
	if t.Seconds > 0 {
		secs := int(math.Round(t.Seconds))
		e.Length = fmt.Sprintf("%d:%02d", secs/60, secs%60)
	}
	return e
}

func (m *SameMusic) writeText(w io.Writer) error {
	return writeGroups(w, "Music files with the same tags", collate.Collate(m.Grouping()), func(e MusicEntry) string {
		return fmt.Sprintf("%q - Title: %s, Artist: %s, Year: %s, Length: %s, Genre: %s, Bitrate: %d",
			e.Path, e.TrackTitle, e.TrackArtist, e.Year, e.Length, e.Genre, e.Bitrate)
	})
}

// Save writes the results
func (m *SameMusic) Save(dir, stem string) error {
	return m.save(dir, stem, m.writeText, collate.Collate(m.Grouping()))
}
