package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("failed to get home dir: %v", err)
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"absolute path", "/usr/local/bin", "/usr/local/bin"},
		{"absolute with trailing slash", "/usr/local/bin/", "/usr/local/bin"},
		{"tilde only", "~", home},
		{"tilde with path", "~/pictures", filepath.Join(home, "pictures")},
		{"relative", "foo/bar", "foo/bar"},
		{"relative with dots", "./foo/../bar", "bar"},
		{"redundant slashes", "/usr//local///bin", "/usr/local/bin"},
		{"tilde user not expanded", "~other/x", "~other/x"},
		{"tilde in middle", "/home/~user", "/home/~user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandPath(tt.input); got != tt.want {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsPathAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		check   string
		want    bool
	}{
		{"no roots", nil, "/anything/goes", true},
		{"exact match", []string{"/home/user"}, "/home/user", true},
		{"root allows all", []string{"/"}, "/etc/hosts", true},
		{"subdirectory", []string{"/home/user"}, "/home/user/a/b", true},
		{"parent", []string{"/home/user/docs"}, "/home/user", false},
		{"sibling", []string{"/home/user"}, "/home/other", false},
		{"second root", []string{"/home/user", "/tmp"}, "/tmp/file", true},
		{"traversal", []string{"/home/user"}, "/home/user/../etc/passwd", false},
		{"traversal staying inside", []string{"/home/user"}, "/home/user/./a/../b", true},
		{"root with trailing slash", []string{"/home/user/"}, "/home/user/file", true},
		{"prefix attack", []string{"/home/user"}, "/home/username", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedPaths: tt.allowed}
			if got := cfg.IsPathAllowed(tt.check); got != tt.want {
				t.Errorf("IsPathAllowed(%q) with %v = %v, want %v", tt.check, tt.allowed, got, tt.want)
			}
		})
	}
}

func TestParsePaths(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		name string
		raw  any
		want []string
	}{
		{"nil", nil, nil},
		{"empty string", "", nil},
		{"single", "/home/user", []string{"/home/user"}},
		{"comma separated", "/home/user, /tmp , /var", []string{"/home/user", "/tmp", "/var"}},
		{"empty segments", "/a,,/b", []string{"/a", "/b"}},
		{"tilde", "~/music,/tmp", []string{filepath.Join(home, "music"), "/tmp"}},
		{"list from file", []any{"/a", "/b/"}, []string{"/a", "/b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parsePaths(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("parsePaths(%v) = %v, want %v", tt.raw, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parsePaths(%v)[%d] = %q, want %q", tt.raw, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", cfg.RetentionDays)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if filepath.Base(cfg.DBPath) != "sieve.db" {
		t.Errorf("DBPath = %q, want a sieve.db file", cfg.DBPath)
	}
	if cfg.ScanPaths != nil {
		t.Errorf("ScanPaths = %v, want nil", cfg.ScanPaths)
	}
	if cfg.Addr() != "127.0.0.1:8080" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SIEVE_PORT", "9191")
	t.Setenv("SIEVE_RETENTION_DAYS", "7")
	t.Setenv("SIEVE_LOG_LEVEL", "DEBUG")
	t.Setenv("SIEVE_SCAN_PATHS", "/srv/photos,/srv/music")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9191 {
		t.Errorf("Port = %d, want 9191", cfg.Port)
	}
	if cfg.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", cfg.RetentionDays)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if len(cfg.ScanPaths) != 2 || cfg.ScanPaths[1] != "/srv/music" {
		t.Errorf("ScanPaths = %v", cfg.ScanPaths)
	}
}

func TestLoadConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sieve.yaml")
	content := "port: 7000\nbind_address: 0.0.0.0\nallowed_paths:\n  - /data\n  - /media\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 8080, "")
	flags.String("unrelated", "", "")
	if err := flags.Parse([]string{"--port", "7100"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(file, flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7100 {
		t.Errorf("Port = %d, want flag value 7100", cfg.Port)
	}
	if cfg.BindAddress != "0.0.0.0" {
		t.Errorf("BindAddress = %q, want 0.0.0.0", cfg.BindAddress)
	}
	if len(cfg.AllowedPaths) != 2 || cfg.AllowedPaths[0] != "/data" {
		t.Errorf("AllowedPaths = %v", cfg.AllowedPaths)
	}
	if cfg.ConfigFile != file {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, file)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("expected error for an explicit missing config file")
	}

	t.Setenv("SIEVE_LOG_LEVEL", "loud")
	if _, err := Load("", nil); err == nil {
		t.Error("expected error for an invalid log level")
	}
}
