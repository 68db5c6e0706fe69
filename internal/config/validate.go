package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateUnits()
}

func (c *Config) validateScan() error {
	if len(c.Scan.GameFileExtensions) == 0 {
		return errors.New("scan.game_file_extensions must list at least one extension")
	}
	if c.Scan.TitleMatchMinRatio < 0 || c.Scan.TitleMatchMinRatio > 100 {
		return errors.New("scan.title_match_min_ratio must be between 0 and 100")
	}
	if _, err := c.TitleRegex(); err != nil {
		return fmt.Errorf("scan.title_extraction_regex: %w", err)
	}
	return nil
}

func (c *Config) validateSchedule() error {
	d, err := time.ParseDuration(c.Schedule.Interval)
	if err != nil {
		return fmt.Errorf("schedule.interval: %w", err)
	}
	if d < time.Minute {
		return errors.New("schedule.interval must be at least 1m")
	}
	return nil
}

func (c *Config) validateEvents() error {
	d, err := time.ParseDuration(c.Events.ProgressRetention)
	if err != nil {
		return fmt.Errorf("events.progress_retention: %w", err)
	}
	if d <= 0 {
		return errors.New("events.progress_retention must be positive")
	}
	return nil
}

func (c *Config) validateProviders() error {
	if c.Providers.Local.Enabled && c.Providers.Local.Path == "" {
		return errors.New("providers.local.path must be set when providers.local.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateUnits() error {
	names := make(map[string]struct{}, len(c.Units))
	owners := make(map[string]string)
	for i, unit := range c.Units {
		if unit.Name == "" {
			return fmt.Errorf("units[%d].name must be set", i)
		}
		if _, ok := names[unit.Name]; ok {
			return fmt.Errorf("units[%d].name %q is declared twice", i, unit.Name)
		}
		names[unit.Name] = struct{}{}
		if len(unit.Directories) == 0 {
			return fmt.Errorf("units[%d] (%s) must list at least one directory", i, unit.Name)
		}
		for j, dir := range unit.Directories {
			if dir.Internal == "" {
				return fmt.Errorf("units[%d].directories[%d].internal must be set", i, j)
			}
			if other, ok := owners[dir.Internal]; ok {
				return fmt.Errorf("units[%d]: directory %q is already mapped by unit %q", i, dir.Internal, other)
			}
			owners[dir.Internal] = unit.Name
		}
	}
	return nil
}
