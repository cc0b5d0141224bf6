package engine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyallcooper/sieve/internal/collate"
	"github.com/lyallcooper/sieve/internal/ffprobe"
	"github.com/lyallcooper/sieve/internal/settings"
	"github.com/lyallcooper/sieve/internal/tool"
)

// waves draws a 2D pattern with energy across many frequencies. A plain
// gradient puts everything in one DCT row, so its DCT hash carries almost
// no bits. The negative flips every comparison each hash is built from.
func waves(negative bool) image.Image {
	img := image.NewGray(image.Rect(0, 0, 128, 128))
	for y := range 128 {
		for x := range 128 {
			v := 128 + 100*math.Sin(float64(x)/9)*math.Cos(float64(y)/13) + 20*math.Sin(float64(x+y)/5)
			if negative {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return img
}

func TestSimilarImages(t *testing.T) {
	dir := t.TempDir()
	original := string(pngBytes(t, waves(false)))
	writeFile(t, filepath.Join(dir, "a.png"), original)
	writeFile(t, filepath.Join(dir, "b", "copy.png"), original)
	writeFile(t, filepath.Join(dir, "other.png"), string(pngBytes(t, waves(true))))
	writeFile(t, filepath.Join(dir, "broken.png"), "nope")

	for _, alg := range []string{"Mean", "Gradient", "BlockHash"} {
		t.Run(alg, func(t *testing.T) {
			s := baseSettings(dir)
			s.SimilarImagesSubHashAlg = alg
			s.SimilarImagesSubHashSize = "8"
			s.UseCache = true
			e := newEngine[*SimilarImages](t, tool.SimilarImages, s)
			require.NoError(t, e.Find(Job{}))

			groups := collate.Collate(e.Grouping())
			require.Len(t, groups, 1)
			items := groups[0].Items
			assert.Equal(t, []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b", "copy.png")}, paths(items))
			assert.Equal(t, "Original", items[0].Similarity)
			assert.Equal(t, uint32(128), items[0].Width)
			assert.Contains(t, e.Messages().Text(), "broken.png")
		})
	}
}

func TestComputeHashSeparatesNegative(t *testing.T) {
	a, b := waves(false), waves(true)
	for _, alg := range []settings.ImageHashAlg{settings.HashAlgMean, settings.HashAlgGradient, settings.HashAlgBlockHash} {
		ha, err := computeHash(a, alg, 8)
		require.NoError(t, err)
		hb, err := computeHash(b, alg, 8)
		require.NoError(t, err)
		assert.Greater(t, hammingDistance(ha.GetHash(), hb.GetHash()), 20, "alg %v", alg)
	}
}

func TestComputeHashSizes(t *testing.T) {
	img := waves(false)
	for _, size := range []int{8, 16, 32} {
		for _, alg := range []settings.ImageHashAlg{settings.HashAlgMean, settings.HashAlgGradient, settings.HashAlgMedian} {
			h, err := computeHash(img, alg, size)
			require.NoError(t, err)
			assert.Len(t, h.GetHash(), size*size/64, "size %d alg %v", size, alg)
		}
	}
}

func TestSimilarityLabel(t *testing.T) {
	tests := []struct {
		distance int
		size     uint8
		want     string
	}{
		{0, 16, "Original"},
		{1, 8, "Very High"},
		{2, 8, "High"},
		{5, 8, "Medium"},
		{20, 8, "Minimal"},
		{3, 16, "High"},
		{35, 16, "Very Small"},
		{99, 64, "Minimal"},
		{1, 12, "Very High"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SimilarityLabel(tt.distance, tt.size), "distance %d size %d", tt.distance, tt.size)
	}
}

func TestHammingDistance(t *testing.T) {
	assert.Equal(t, 0, hammingDistance([]uint64{7}, []uint64{7}))
	assert.Equal(t, 3, hammingDistance([]uint64{0b111, 0}, []uint64{0, 0}))
	assert.Equal(t, 128, hammingDistance([]uint64{1}, []uint64{1, 2}))
}

func TestSimilarDuration(t *testing.T) {
	a := VideoEntry{duration: 100, width: 1920, height: 1080}
	b := VideoEntry{duration: 104, width: 1920, height: 1080}

	assert.True(t, SimilarDuration(a, b, 50))
	assert.False(t, SimilarDuration(a, b, 10))

	b.width = 1280
	assert.False(t, SimilarDuration(a, b, 1000), "resolution must match")
}

type fakeProber map[string]*ffprobe.Result

func (f fakeProber) Probe(_ context.Context, path string) (*ffprobe.Result, error) {
	r, ok := f[filepath.Base(path)]
	if !ok {
		return nil, errors.New("invalid data found when processing input")
	}
	return r, nil
}

func TestSimilarVideos(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.mp4", "b.mkv", "c.mp4", "d.avi"} {
		writeFile(t, filepath.Join(dir, name), name)
	}
	hd := &ffprobe.Stream{Codec: "h264", Width: 1920, Height: 1080}
	probe := fakeProber{
		"a.mp4": {Duration: 600, Video: hd},
		"b.mkv": {Duration: 601, Video: hd},
		"c.mp4": {Duration: 300, Video: hd},
	}

	s := baseSettings(dir)
	s.SimilarVideosSubSimilarity = 10
	e, err := New(tool.SimilarVideos, s, Env{Probe: probe})
	require.NoError(t, err)
	v := e.(*SimilarVideos)
	require.NoError(t, v.Find(Job{}))

	groups := collate.Collate(v.Grouping())
	require.Len(t, groups, 1)
	assert.Equal(t, []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "b.mkv")}, paths(groups[0].Items))
	assert.Contains(t, v.Messages().Text(), "d.avi")
}

func TestSimilarVideosWithoutProbe(t *testing.T) {
	v := newEngine[*SimilarVideos](t, tool.SimilarVideos, baseSettings(t.TempDir()))
	require.NoError(t, v.Find(Job{}))
	assert.Empty(t, collate.Collate(v.Grouping()))
	assert.Len(t, v.Messages().Errors(), 1)
}

func TestApproximateTitle(t *testing.T) {
	assert.Equal(t, "heyjude", ApproximateTitle("Hey Jude (Remastered 2015)"))
	assert.Equal(t, "heyjude", ApproximateTitle("hey, jude!"))
	assert.Equal(t, "song", ApproximateTitle("Song [Live] {bonus}"))
}

func TestMusicKey(t *testing.T) {
	s := settings.Settings{SimilarMusicSubTitle: true, SimilarMusicSubYear: true}
	m := newSameMusic(newCommon(tool.MusicDuplicates, s, Env{}), s, nil)

	k1, ok := m.key(musicTags{Title: "Song", Year: 1999, Artist: "x"})
	require.True(t, ok)
	k2, ok := m.key(musicTags{Title: " SONG ", Year: 1999, Artist: "y"})
	require.True(t, ok)
	assert.Equal(t, k1, k2, "artist is not compared")

	_, ok = m.key(musicTags{Title: "Song"})
	assert.False(t, ok, "a missing year skips the file")

	s.SimilarMusicSubApproximateComparison = true
	m = newSameMusic(newCommon(tool.MusicDuplicates, s, Env{}), s, nil)
	k3, _ := m.key(musicTags{Title: "Song (Live)", Year: 1999})
	assert.Equal(t, k1, k3)
}

func TestSameMusicWithoutTags(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mp3"), "not really audio")
	writeFile(t, filepath.Join(dir, "b.mp3"), "not really audio")

	s := baseSettings(dir)
	s.SimilarMusicSubAudioCheckType = "Fingerprint"
	m := newEngine[*SameMusic](t, tool.MusicDuplicates, s)
	require.NoError(t, m.Find(Job{}))
	assert.Empty(t, collate.Collate(m.Grouping()), "files without a title are not compared")
	assert.Contains(t, m.Messages().Text(), "Audio content comparison")
}

func TestMusicEntryLength(t *testing.T) {
	e := musicEntry(File{Path: "/x.mp3", Size: 10}, musicTags{Title: "t", Seconds: 125.4, Year: 2001})
	assert.Equal(t, "2:05", e.Length)
	assert.Equal(t, "2001", e.Year)
}
