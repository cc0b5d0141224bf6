package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lyallcooper/sieve/internal/settings"
)

// EnvPrefix prefixes every environment variable, e.g. SIEVE_PORT
const EnvPrefix = "SIEVE"

// Config holds all application configuration
type Config struct {
	Port          int
	BindAddress   string
	DBPath        string
	RetentionDays int
	LogFile       string
	LogLevel      string
	CacheDir      string
	FclonesPath   string
	FfprobePath   string
	FrontendDir   string
	MinStackBytes int

	ScanPaths    []string // Default included directories (locked in UI)
	AllowedPaths []string // Roots the HTTP API may touch; empty means anywhere

	// ConfigFile is the file the values were read from, if any
	ConfigFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("bind_address", "127.0.0.1")
	v.SetDefault("db_path", filepath.Join(xdg.DataHome, settings.AppName, settings.AppName+".db"))
	v.SetDefault("retention_days", 30)
	v.SetDefault("log_file", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("cache_dir", settings.CacheDir())
	v.SetDefault("fclones_path", "")
	v.SetDefault("ffprobe_path", "ffprobe")
	v.SetDefault("frontend_dir", "")
	v.SetDefault("min_stack_bytes", 1<<30)
	v.SetDefault("scan_paths", "")
	v.SetDefault("allowed_paths", "")
}

// Load reads configuration from defaults, an optional config file,
// SIEVE_* environment variables and flags, in increasing priority.
// An empty cfgFile searches the working directory and the user config dir
// for sieve.{yaml,toml,json}; a missing file is not an error then.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(settings.AppName)
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, settings.AppName))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, ok := v.AllSettings()[key]; !ok || bindErr != nil {
				return
			}
			if err := v.BindPFlag(key, f); err != nil {
				bindErr = fmt.Errorf("failed to bind flag --%s: %w", f.Name, err)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	cfg := &Config{
		Port:          v.GetInt("port"),
		BindAddress:   v.GetString("bind_address"),
		DBPath:        ExpandPath(v.GetString("db_path")),
		RetentionDays: v.GetInt("retention_days"),
		LogFile:       ExpandPath(v.GetString("log_file")),
		LogLevel:      strings.ToLower(v.GetString("log_level")),
		CacheDir:      ExpandPath(v.GetString("cache_dir")),
		FclonesPath:   ExpandPath(v.GetString("fclones_path")),
		FfprobePath:   v.GetString("ffprobe_path"),
		FrontendDir:   ExpandPath(v.GetString("frontend_dir")),
		MinStackBytes: v.GetInt("min_stack_bytes"),
		ScanPaths:     parsePaths(v.Get("scan_paths")),
		AllowedPaths:  parsePaths(v.Get("allowed_paths")),
		ConfigFile:    v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail much later
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("invalid retention_days %d", c.RetentionDays)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	return nil
}

// Addr is the listen address of the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}

// parsePaths accepts a comma-separated string (environment variables) or a
// list (config files) and returns cleaned, tilde-expanded paths.
func parsePaths(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []any:
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
	}

	var paths []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			paths = append(paths, ExpandPath(p))
		}
	}
	return paths
}

// ExpandPath expands a leading ~ to the home directory and cleans the path.
// Relative paths stay relative.
func ExpandPath(p string) string {
	if p == "" {
		return ""
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return filepath.Clean(p)
}

// IsPathAllowed reports whether p lies inside one of the allowed roots.
// With no roots configured every path is allowed.
func (c *Config) IsPathAllowed(p string) bool {
	if len(c.AllowedPaths) == 0 {
		return true
	}
	p = filepath.Clean(p)
	for _, root := range c.AllowedPaths {
		root = filepath.Clean(root)
		if p == root {
			return true
		}
		prefix := root
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
