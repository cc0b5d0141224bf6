package engine

// FileEntry is a plain file result
type FileEntry struct {
	Path         string `json:"path"`
	Size         uint64 `json:"size"`
	ModifiedDate uint64 `json:"modified_date"`
}

func (e FileEntry) GetPath() string { return e.Path }

func fileEntry(f File) FileEntry {
	return FileEntry{Path: f.Path, Size: uint64(max(f.Size, 0)), ModifiedDate: f.modifiedDate()}
}

// DuplicateEntry is a member of a duplicate group
type DuplicateEntry struct {
	Path         string `json:"path"`
	Size         uint64 `json:"size"`
	ModifiedDate uint64 `json:"modified_date"`
	Hash         string `json:"hash"`
}

func (e DuplicateEntry) GetPath() string { return e.Path }

// FolderEntry is an empty folder
type FolderEntry struct {
	Path         string `json:"path"`
	ModifiedDate uint64 `json:"modified_date"`
}

func (e FolderEntry) GetPath() string { return e.Path }

// TemporaryEntry is a temporary file
type TemporaryEntry struct {
	Path         string `json:"path"`
	ModifiedDate uint64 `json:"modified_date"`
}

func (e TemporaryEntry) GetPath() string { return e.Path }

// ImageEntry is a member of a similar images group
type ImageEntry struct {
	Path         string `json:"path"`
	Size         uint64 `json:"size"`
	Width        uint32 `json:"width"`
	Height       uint32 `json:"height"`
	ModifiedDate uint64 `json:"modified_date"`
	Similarity   string `json:"similarity"`

	hash []uint64
}

func (e ImageEntry) GetPath() string { return e.Path }

// VideoEntry is a member of a similar videos group
type VideoEntry struct {
	Path         string `json:"path"`
	Size         uint64 `json:"size"`
	ModifiedDate uint64 `json:"modified_date"`

	duration float64
	width    int
	height   int
}

func (e VideoEntry) GetPath() string { return e.Path }

// MusicEntry is a member of a music duplicates group
type MusicEntry struct {
	Size         uint64 `json:"size"`
	Path         string `json:"path"`
	ModifiedDate uint64 `json:"modified_date"`
	TrackTitle   string `json:"track_title"`
	TrackArtist  string `json:"track_artist"`
	Year         string `json:"year"`
	Length       string `json:"length"`
	Genre        string `json:"genre"`
	Bitrate      uint32 `json:"bitrate"`
}

func (e MusicEntry) GetPath() string { return e.Path }

// SymlinkError says why a symlink is invalid
type SymlinkError string

const (
	InfiniteRecursion SymlinkError = "InfiniteRecursion"
	NonExistentFile   SymlinkError = "NonExistentFile"
)

// SymlinkInfo describes where an invalid symlink points
type SymlinkInfo struct {
	DestinationPath string       `json:"destination_path"`
	TypeOfError     SymlinkError `json:"type_of_error"`
}

// SymlinkEntry is an invalid symlink
type SymlinkEntry struct {
	Path         string      `json:"path"`
	Size         uint64      `json:"size"`
	ModifiedDate uint64      `json:"modified_date"`
	SymlinkInfo  SymlinkInfo `json:"symlink_info"`
}

func (e SymlinkEntry) GetPath() string { return e.Path }

// FileKind is the kind of file the broken files checker validated
type FileKind string

const (
	KindUnknown FileKind = "Unknown"
	KindImage   FileKind = "Image"
	KindArchive FileKind = "ArchiveZip"
	KindAudio   FileKind = "Audio"
	KindPDF     FileKind = "PDF"
)

// BrokenEntry is a file that failed validation
type BrokenEntry struct {
	Path         string   `json:"path"`
	ModifiedDate uint64   `json:"modified_date"`
	Size         uint64   `json:"size"`
	TypeOfFile   FileKind `json:"type_of_file"`
	ErrorString  string   `json:"error_string"`
}

func (e BrokenEntry) GetPath() string { return e.Path }

// BadFileEntry is a file whose extension does not match its content
type BadFileEntry struct {
	Path                  string `json:"path"`
	ModifiedDate          uint64 `json:"modified_date"`
	Size                  uint64 `json:"size"`
	CurrentExtension      string `json:"current_extension"`
	ProperExtensionsGroup string `json:"proper_extensions_group"`
	ProperExtension       string `json:"proper_extension"`
}

func (e BadFileEntry) GetPath() string { return e.Path }
