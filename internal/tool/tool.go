// Package tool enumerates the scan tools the application offers and the
// fixed names each one is known by (command, display name, result file stem).
package tool

import "fmt"

// Tool identifies one scan tool
type Tool int

const (
	DuplicateFiles Tool = iota
	EmptyFolders
	BigFiles
	EmptyFiles
	TemporaryFiles
	SimilarImages
	SimilarVideos
	MusicDuplicates
	InvalidSymlinks
	BrokenFiles
	BadExtensions
)

type info struct {
	command  string
	display  string
	saveStem string
}

var infos = [...]info{
	DuplicateFiles:  {"scan_duplicate_files", "Duplicate Files", "results_duplicates"},
	EmptyFolders:    {"scan_empty_folders", "Empty Folders", "results_empty_directories"},
	BigFiles:        {"scan_big_files", "Big Files", "results_big_files"},
	EmptyFiles:      {"scan_empty_files", "Empty Files", "results_empty_files"},
	TemporaryFiles:  {"scan_temporary_files", "Temporary Files", "results_temporary_files"},
	SimilarImages:   {"scan_similar_images", "Similar Images", "results_similar_images"},
	SimilarVideos:   {"scan_similar_videos", "Similar Videos", "results_similar_videos"},
	MusicDuplicates: {"scan_music_duplicates", "Music Duplicates", "results_same_music"},
	InvalidSymlinks: {"scan_invalid_symlinks", "Invalid Symlinks", "results_invalid_symlinks"},
	BrokenFiles:     {"scan_broken_files", "Broken Files", "results_broken_files"},
	BadExtensions:   {"scan_bad_extensions", "Bad Extensions", "results_bad_extensions"},
}

// All lists every tool in declaration order
func All() []Tool {
	all := make([]Tool, len(infos))
	for i := range infos {
		all[i] = Tool(i)
	}
	return all
}

// Valid reports whether t is a known tool
func (t Tool) Valid() bool {
	return t >= 0 && int(t) < len(infos)
}

// Command is the command name a scan of this tool is invoked under
func (t Tool) Command() string {
	if !t.Valid() {
		return ""
	}
	return infos[t].command
}

// DisplayName is the human readable name the UI uses
func (t Tool) DisplayName() string {
	if !t.Valid() {
		return ""
	}
	return infos[t].display
}

// SaveStem is the file name stem results of this tool are saved under
func (t Tool) SaveStem() string {
	if !t.Valid() {
		return ""
	}
	return infos[t].saveStem
}

func (t Tool) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Tool(%d)", int(t))
	}
	return infos[t].display
}

// FromCommand resolves a command name such as "scan_big_files"
func FromCommand(cmd string) (Tool, bool) {
	for i, in := range infos {
		if in.command == cmd {
			return Tool(i), true
		}
	}
	return 0, false
}

// FromDisplayName resolves a display name such as "Big Files"
func FromDisplayName(name string) (Tool, bool) {
	for i, in := range infos {
		if in.display == name {
			return Tool(i), true
		}
	}
	return 0, false
}
