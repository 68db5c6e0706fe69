package testsupport

import (
	"path/filepath"
	"testing"

	"gameshelf/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Network providers are disabled so tests never leave the process.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SocketPath = filepath.Join(base, "gameshelf.sock")
	cfgVal.Providers.Steam.Enabled = false
	cfgVal.Providers.Local.Path = filepath.Join(base, "games.toml")
	cfgVal.Events.CatalogBatchWindow = 0
	cfgVal.Events.ProgressBatchWindow = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithUnit appends a declarative unit whose directories are created beneath
// the config's base directory. It returns the absolute directory paths via dirs.
func WithUnit(name string, dirs ...string) ConfigOption {
	return func(b *configBuilder) {
		unit := config.Unit{Name: name}
		for _, dir := range dirs {
			abs := filepath.Join(b.baseDir, dir)
			MkdirAll(b.t, abs)
			unit.Directories = append(unit.Directories, config.Directory{Internal: abs})
		}
		b.cfg.Units = append(b.cfg.Units, unit)
	}
}

// WithWatcher enables the filesystem watcher with a short poll interval.
func WithWatcher() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Watcher.Enabled = true
		b.cfg.Watcher.PollInterval = 20
		b.cfg.Watcher.StopTimeout = 1
	}
}

// WithExtensions overrides the recognised game file extensions.
func WithExtensions(exts ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scan.GameFileExtensions = exts
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
