package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeScan()
	c.normalizeWatcher()
	c.normalizeSchedule()
	c.normalizeEvents()
	if err := c.normalizeProviders(); err != nil {
		return err
	}
	c.normalizeLogging()
	return c.normalizeUnits()
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.DataDir, defaultSocketName)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeScan() {
	seen := make(map[string]struct{}, len(c.Scan.GameFileExtensions))
	extensions := make([]string, 0, len(c.Scan.GameFileExtensions))
	for _, ext := range c.Scan.GameFileExtensions {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		extensions = append(extensions, ext)
	}
	sort.Strings(extensions)
	c.Scan.GameFileExtensions = extensions
	c.Scan.TitleExtractionRegex = strings.TrimSpace(c.Scan.TitleExtractionRegex)
	if c.Scan.SearchResultLimit <= 0 {
		c.Scan.SearchResultLimit = defaultSearchResultLimit
	}
	if c.Scan.UnitWorkers <= 0 {
		c.Scan.UnitWorkers = defaultUnitWorkers
	}
	if c.Scan.TaskWorkers <= 0 {
		c.Scan.TaskWorkers = defaultTaskWorkers
	}
}

func (c *Config) normalizeWatcher() {
	if c.Watcher.PollInterval <= 0 {
		c.Watcher.PollInterval = defaultWatcherPollInterval
	}
	if c.Watcher.StopTimeout <= 0 {
		c.Watcher.StopTimeout = defaultWatcherStopTimeout
	}
}

func (c *Config) normalizeSchedule() {
	c.Schedule.Interval = strings.TrimSpace(c.Schedule.Interval)
	if c.Schedule.Interval == "" {
		c.Schedule.Interval = defaultScheduleInterval
	}
}

func (c *Config) normalizeEvents() {
	if c.Events.CatalogBatchWindow <= 0 {
		c.Events.CatalogBatchWindow = defaultCatalogBatchWindow
	}
	if c.Events.ProgressBatchWindow <= 0 {
		c.Events.ProgressBatchWindow = defaultProgressBatchWindow
	}
	c.Events.ProgressRetention = strings.TrimSpace(c.Events.ProgressRetention)
	if c.Events.ProgressRetention == "" {
		c.Events.ProgressRetention = defaultProgressRetention
	}
	if c.Events.BufferSize <= 0 {
		c.Events.BufferSize = defaultEventBufferSize
	}
}

func (c *Config) normalizeProviders() error {
	steam := &c.Providers.Steam
	steam.BaseURL = strings.TrimRight(strings.TrimSpace(steam.BaseURL), "/")
	if steam.BaseURL == "" {
		steam.BaseURL = defaultSteamBaseURL
	}
	if value, ok := os.LookupEnv("GAMESHELF_STEAM_COUNTRY"); ok && strings.TrimSpace(value) != "" {
		steam.Country = value
	}
	steam.Country = strings.ToLower(strings.TrimSpace(steam.Country))
	if steam.Country == "" {
		steam.Country = defaultSteamCountry
	}
	steam.Language = strings.ToLower(strings.TrimSpace(steam.Language))
	if steam.Language == "" {
		steam.Language = defaultSteamLanguage
	}
	if steam.MaxConcurrent <= 0 {
		steam.MaxConcurrent = defaultSteamMaxConcurrent
	}
	if steam.TimeoutSeconds <= 0 {
		steam.TimeoutSeconds = defaultSteamTimeout
	}

	local := &c.Providers.Local
	if strings.TrimSpace(local.Path) == "" {
		local.Path = defaultLocalPath
	}
	var err error
	if local.Path, err = expandPath(local.Path); err != nil {
		return fmt.Errorf("providers.local.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeUnits() error {
	for i := range c.Units {
		unit := &c.Units[i]
		unit.Name = strings.TrimSpace(unit.Name)
		for j := range unit.Directories {
			dir := &unit.Directories[j]
			expanded, err := expandPath(strings.TrimSpace(dir.Internal))
			if err != nil {
				return fmt.Errorf("units[%d].directories[%d].internal: %w", i, j, err)
			}
			dir.Internal = expanded
			dir.External = strings.TrimSpace(dir.External)
		}
	}
	return nil
}

// TitleRegex compiles the configured title extraction pattern. It returns nil
// when extraction is disabled or the pattern is empty.
func (c *Config) TitleRegex() (*regexp.Regexp, error) {
	if !c.Scan.ExtractTitleUsingRegex || c.Scan.TitleExtractionRegex == "" {
		return nil, nil
	}
	return regexp.Compile(c.Scan.TitleExtractionRegex)
}
