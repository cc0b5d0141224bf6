package settings

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
)

// AppName names the per-user cache and data directories
const AppName = "sieve"

// PlatformSettings are the defaults the UI starts from on this machine
type PlatformSettings struct {
	IncludedDirectories   []string `json:"includedDirectories"`
	ExcludedDirectories   []string `json:"excludedDirectories"`
	ExcludedItems         string   `json:"excludedItems"`
	AvailableThreadNumber int      `json:"availableThreadNumber"`
	CacheDirPath          string   `json:"cacheDirPath"`
}

const (
	unixExcludedItems    = "*/.git/*,*/node_modules/*,*/lost+found/*,*/Trash/*,*/.Trash-*/*,*/snap/*,/home/*/.cache/*"
	windowsExcludedItems = `*\.git\*,*\node_modules\*,*\lost+found\*,*:\windows\*,*:\$RECYCLE.BIN\*,*:\$SysReset\*,*:\System Volume Information\*,*:\OneDriveTemp\*,*:\hiberfil.sys,*:\pagefile.sys,*:\swapfile.sys`
)

var macHomeExclusions = []string{
	"Downloads",
	"Documents",
	"Desktop",
	"Pictures/Photos Library.photoslibrary",
	"Library/Photos/Libraries/Syndication.photoslibrary",
	"Library/Application Support/AddressBook",
	"Library/Calendars",
	"Library/Reminders",
}

// DefaultPlatformSettings computes the defaults for the running OS
func DefaultPlatformSettings() PlatformSettings {
	return PlatformSettings{
		IncludedDirectories:   DefaultIncludedDirectories(),
		ExcludedDirectories:   DefaultExcludedDirectories(runtime.GOOS),
		ExcludedItems:         DefaultExcludedItems(runtime.GOOS),
		AvailableThreadNumber: runtime.NumCPU(),
		CacheDirPath:          CacheDir(),
	}
}

// DefaultIncludedDirectories is the home directory, else the working
// directory, else the filesystem root.
func DefaultIncludedDirectories() []string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return []string{home}
	}
	if wd, err := os.Getwd(); err == nil {
		return []string{wd}
	}
	if runtime.GOOS == "windows" {
		return []string{`C:\`}
	}
	return []string{"/"}
}

// DefaultExcludedDirectories lists system directories never worth scanning,
// plus private library folders on macOS.
func DefaultExcludedDirectories(goos string) []string {
	var dirs []string
	if goos == "darwin" {
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			for _, item := range macHomeExclusions {
				dirs = append(dirs, filepath.Join(home, item))
			}
		}
	}
	if goos == "windows" {
		return append(dirs, `C:\Windows`)
	}
	return append(dirs, "/proc", "/dev", "/sys", "/run", "/snap")
}

// DefaultExcludedItems returns the comma separated glob list for the OS
func DefaultExcludedItems(goos string) string {
	if goos == "windows" {
		return windowsExcludedItems
	}
	return unixExcludedItems
}

// CacheDir is where scan caches are kept
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}
