package fclones

// GroupOutput is the JSON document printed by fclones group
type GroupOutput struct {
	Header Header  `json:"header"`
	Groups []Group `json:"groups"`
}

// Header contains metadata about the run
type Header struct {
	Version   string   `json:"version"`
	Timestamp string   `json:"timestamp"`
	Command   []string `json:"command"`
	BaseDir   string   `json:"base_dir"`
	Stats     Stats    `json:"stats"`
}

// Group is one set of files with identical content
type Group struct {
	FileLen  int64    `json:"file_len"`
	FileHash string   `json:"file_hash"`
	Files    []string `json:"files"`
}

// Stats summarises the run
type Stats struct {
	GroupCount         int64 `json:"group_count"`
	TotalFileCount     int64 `json:"total_file_count"`
	TotalFileSize      int64 `json:"total_file_size"`
	RedundantFileCount int64 `json:"redundant_file_count"`
	RedundantFileSize  int64 `json:"redundant_file_size"`
	MissingFileCount   int64 `json:"missing_file_count"`
	MissingFileSize    int64 `json:"missing_file_size"`
}

// ScanOptions configures a group run
type ScanOptions struct {
	Paths           []string
	MinSize         int64  // bytes
	MaxSize         int64  // bytes, 0 = no limit
	NamePatterns    []string
	ExcludePatterns []string
	HashFunction    string // blake3, xxhash3, ...
	NonRecursive    bool
	HardLinks       bool // report hard links of one inode as duplicates
	UseCache        bool
}

// Progress is one parsed progress bar line.
// Lines look like "4/6: Grouping by prefix [####------] 12027 / 60000".
type Progress struct {
	Phase      string // scanning, grouping, hashing, initializing, processing
	PhaseNum   int
	PhaseTotal int
	PhaseName  string
	Current    int64
	Total      int64   // 0 when the phase has no known total
	Percent    float64 // -1 when indeterminate
	Bytes      bool    // Current and Total are byte counts
}
