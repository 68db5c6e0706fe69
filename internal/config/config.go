package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
}

// Scan contains configuration for filesystem diffing and title matching.
type Scan struct {
	GameFileExtensions     []string `toml:"game_file_extensions"`
	ScanEmptyDirectories   bool     `toml:"scan_empty_directories"`
	ExtractTitleUsingRegex bool     `toml:"extract_title_using_regex"`
	TitleExtractionRegex   string   `toml:"title_extraction_regex"`
	// TitleMatchMinRatio is the 0..100 similarity a provider title must exceed
	// to be accepted alongside the best title for a file.
	TitleMatchMinRatio int  `toml:"title_match_min_ratio"`
	SearchResultLimit  int  `toml:"search_result_limit"`
	RetryUnmatched     bool `toml:"retry_unmatched"`
	UnitWorkers        int  `toml:"unit_workers"`
	TaskWorkers        int  `toml:"task_workers"`
}

// Watcher contains configuration for filesystem change notifications.
type Watcher struct {
	Enabled bool `toml:"enabled"`
	// PollInterval is the batching window in milliseconds.
	PollInterval int `toml:"poll_interval"`
	// StopTimeout is the maximum wait in seconds for the loop on shutdown.
	StopTimeout int `toml:"stop_timeout"`
}

// Schedule contains configuration for periodic full scans.
type Schedule struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval"`
	// ScanOnStart triggers a quick scan of every unit when the daemon starts.
	ScanOnStart bool `toml:"scan_on_start"`
}

// Events contains configuration for the in-process event buses.
type Events struct {
	CatalogBatchWindow  int    `toml:"catalog_batch_window"`
	ProgressBatchWindow int    `toml:"progress_batch_window"`
	ProgressRetention   string `toml:"progress_retention"`
	BufferSize          int    `toml:"buffer_size"`
}

// Steam contains configuration for the Steam Store metadata provider.
type Steam struct {
	Enabled        bool   `toml:"enabled"`
	Priority       int    `toml:"priority"`
	BaseURL        string `toml:"base_url"`
	Country        string `toml:"country"`
	Language       string `toml:"language"`
	MaxConcurrent  int    `toml:"max_concurrent"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Local contains configuration for the offline TOML metadata provider.
type Local struct {
	Enabled  bool   `toml:"enabled"`
	Priority int    `toml:"priority"`
	Path     string `toml:"path"`
}

// Providers groups metadata provider settings.
type Providers struct {
	Steam Steam `toml:"steam"`
	Local Local `toml:"local"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Directory maps a scan root to an optional display path.
type Directory struct {
	Internal string `toml:"internal"`
	External string `toml:"external"`
}

// Unit declares a catalog unit that the daemon creates on startup when no
// unit with the same name exists yet.
type Unit struct {
	Name        string      `toml:"name"`
	Directories []Directory `toml:"directories"`
}

// Config encapsulates all configuration values for gameshelf.
//
// Configuration sections by subsystem:
//   - Paths: database, logs, and control socket locations
//   - Scan: extensions, title extraction, match threshold, pool sizes
//   - Watcher: filesystem notifications
//   - Schedule: periodic full scans
//   - Events: bus batching and replay retention
//   - Providers: metadata sources and their priorities
//   - Logging: log format, level, and retention
//   - Units: declarative catalog units
type Config struct {
	Paths     Paths     `toml:"paths"`
	Scan      Scan      `toml:"scan"`
	Watcher   Watcher   `toml:"watcher"`
	Schedule  Schedule  `toml:"schedule"`
	Events    Events    `toml:"events"`
	Providers Providers `toml:"providers"`
	Logging   Logging   `toml:"logging"`
	Units     []Unit    `toml:"units"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/gameshelf/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("gameshelf.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.SocketPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create socket directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the catalog database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "catalog.db")
}

// LockPath returns the daemon single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "gameshelfd.lock")
}

// PIDPath returns where the running daemon records its process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "gameshelfd.pid")
}

// ScheduleInterval returns the parsed periodic scan interval.
func (c *Config) ScheduleInterval() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.Schedule.Interval))
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultScheduleInterval)
	}
	return d
}

// ProgressRetention returns how long finished scan progress stays replayable.
func (c *Config) ProgressRetention() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.Events.ProgressRetention))
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultProgressRetention)
	}
	return d
}

// WatcherPollInterval returns the watcher batching window.
func (c *Config) WatcherPollInterval() time.Duration {
	return time.Duration(c.Watcher.PollInterval) * time.Millisecond
}

// WatcherStopTimeout returns the maximum shutdown wait for the watcher loop.
func (c *Config) WatcherStopTimeout() time.Duration {
	return time.Duration(c.Watcher.StopTimeout) * time.Second
}

// HasExtension reports whether name carries one of the configured game file
// extensions. Matching is case-insensitive.
func (c *Config) HasExtension(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return false
	}
	for _, candidate := range c.Scan.GameFileExtensions {
		if candidate == ext {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
