package engine

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"

	"github.com/lyallcooper/sieve/internal/collate"
	"github.com/lyallcooper/sieve/internal/progress"
	"github.com/lyallcooper/sieve/internal/settings"
)

var kindByExtension = map[string]FileKind{}

func init() {
	for kind, exts := range map[FileKind][]string{
		KindImage:   {"jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff", "webp"},
		KindArchive: {"zip", "jar", "docx", "xlsx", "pptx", "odt", "ods", "odp", "epub", "apk"},
		KindAudio:   {"mp3", "flac", "m4a", "ogg", "oga", "opus", "wav", "aac", "wma", "alac", "aiff"},
		KindPDF:     {"pdf"},
	} {
		for _, e := range exts {
			kindByExtension[e] = kind
		}
	}
}

// fileKind classifies a path by extension
func fileKind(path string) FileKind {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if k, ok := kindByExtension[ext]; ok {
		return k
	}
	return KindUnknown
}

// BrokenFiles finds images, archives, audio files and PDFs that fail to parse
type BrokenFiles struct {
	*Common

	checked settings.CheckedTypes
	probe   Prober

	files []BrokenEntry
}

func newBrokenFiles(c *Common, s settings.Settings, p Prober) *BrokenFiles {
	return &BrokenFiles{Common: c, checked: s.CheckedTypes(), probe: p}
}

// Files returns the broken files found
func (b *BrokenFiles) Files() []BrokenEntry {
	return b.files
}

func (b *BrokenFiles) wants(k FileKind) bool {
	switch k {
	case KindImage:
		return b.checked.Has(settings.CheckedImage)
	case KindArchive:
		return b.checked.Has(settings.CheckedArchive)
	case KindAudio:
		return b.checked.Has(settings.CheckedAudio)
	case KindPDF:
		return b.checked.Has(settings.CheckedPDF)
	}
	return false
}

// Find validates every file of a checked kind
func (b *BrokenFiles) Find(job Job) error {
	rep := progress.NewReporter(job.Progress, b.tool, 1)
	rep.Stage(0, progress.StageCollectingFiles, 0, 0)

	files, err := b.collect(job, rep, walkOptions{
		keep: func(path string) bool { return b.wants(fileKind(path)) },
	})
	if err != nil {
		return err
	}

	var total uint64
	for _, f := range files {
		total += uint64(max(f.Size, 0))
	}
	rep.Stage(1, progress.StageBrokenFilesChecking, int64(len(files)), total)

	found := make([]*BrokenEntry, len(files))
	err = parallel(job, &b.msgs, files, func(i int, f File) {
		defer rep.Add(1, uint64(max(f.Size, 0)))
		kind := fileKind(f.Path)
		if cerr := b.check(job, kind, f.Path); cerr != nil {
			found[i] = &BrokenEntry{
				Path:         f.Path,
				ModifiedDate: f.modifiedDate(),
				Size:         uint64(max(f.Size, 0)),
				TypeOfFile:   kind,
				ErrorString:  cerr.Error(),
			}
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

func (b *BrokenFiles) check(job Job, kind FileKind, path string) error {
	switch kind {
	case KindImage:
		return checkImage(path)
	case KindArchive:
		return checkZip(path)
	case KindPDF:
		return checkPDF(path)
	case KindAudio:
		if b.probe != nil {
			_, err := b.probe.Probe(job.context(), path)
			return err
		}
		return checkAudioTags(path)
	}
	return nil
}

func checkImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, _, err = image.Decode(f)
	return err
}

// checkZip reads every member to the end so the CRC of each is verified
func checkZip(path string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, member := range r.File {
		if member.FileInfo().IsDir() {
			continue
		}
		rc, err := member.Open()
		if err != nil {
			return fmt.Errorf("%s: %w", member.Name, err)
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", member.Name, err)
		}
	}
	return nil
}

var (
	errNoPDFHeader  = errors.New("missing %PDF- header")
	errNoPDFTrailer = errors.New("missing %%EOF trailer")
)

// pdfTrailerWindow is how far from the end the %%EOF marker may sit
const pdfTrailerWindow = 1024

func checkPDF(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, 1024)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	if !bytes.Contains(head[:n], []byte("%PDF-")) {
		return errNoPDFHeader
	}

	info, err := f.Stat()
	if err != nil {
		return err
	}
	offset := max(info.Size()-pdfTrailerWindow, 0)
	tail := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(tail, offset); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if !bytes.Contains(tail, []byte("%%EOF")) {
		return errNoPDFTrailer
	}
	return nil
}

func checkAudioTags(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = tag.ReadFrom(f)
	if errors.Is(err, tag.ErrNoTagsFound) {
		return nil
	}
	return err
}

// Save writes the results
func (b *BrokenFiles) Save(dir, stem string) error {
	return b.save(dir, stem, func(w io.Writer) error {
		return writeList(w, "Found broken files", b.files, func(e BrokenEntry) string {
			return fmt.Sprintf("%q - %s", e.Path, e.ErrorString)
		})
	}, collate.Flat(b.files))
}
