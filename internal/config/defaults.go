package config

const (
	defaultDataDir             = "~/.local/share/gameshelf"
	defaultLogDir              = "~/.local/share/gameshelf/logs"
	defaultSocketName          = "gameshelf.sock"
	defaultTitleMatchMinRatio  = 90
	defaultSearchResultLimit   = 10
	defaultUnitWorkers         = 4
	defaultTaskWorkers         = 16
	defaultWatcherPollInterval = 1000
	defaultWatcherStopTimeout  = 5
	defaultScheduleInterval    = "24h"
	defaultCatalogBatchWindow  = 100
	defaultProgressBatchWindow = 1000
	defaultProgressRetention   = "24h"
	defaultEventBufferSize     = 1024
	defaultSteamBaseURL        = "https://store.steampowered.com"
	defaultSteamCountry        = "us"
	defaultSteamLanguage       = "english"
	defaultSteamPriority       = 3
	defaultSteamMaxConcurrent  = 8
	defaultSteamTimeout        = 15
	defaultLocalPriority       = 10
	defaultLocalPath           = "~/.config/gameshelf/games.toml"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
)

var defaultGameFileExtensions = []string{"zip", "rar", "7z", "iso", "tar", "gz", "exe"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Scan: Scan{
			GameFileExtensions: append([]string(nil), defaultGameFileExtensions...),
			TitleMatchMinRatio: defaultTitleMatchMinRatio,
			SearchResultLimit:  defaultSearchResultLimit,
			RetryUnmatched:     true,
			UnitWorkers:        defaultUnitWorkers,
			TaskWorkers:        defaultTaskWorkers,
		},
		Watcher: Watcher{
			Enabled:      false,
			PollInterval: defaultWatcherPollInterval,
			StopTimeout:  defaultWatcherStopTimeout,
		},
		Schedule: Schedule{
			Enabled:  false,
			Interval: defaultScheduleInterval,
		},
		Events: Events{
			CatalogBatchWindow:  defaultCatalogBatchWindow,
			ProgressBatchWindow: defaultProgressBatchWindow,
			ProgressRetention:   defaultProgressRetention,
			BufferSize:          defaultEventBufferSize,
		},
		Providers: Providers{
			Steam: Steam{
				Enabled:        true,
				Priority:       defaultSteamPriority,
				BaseURL:        defaultSteamBaseURL,
				Country:        defaultSteamCountry,
				Language:       defaultSteamLanguage,
				MaxConcurrent:  defaultSteamMaxConcurrent,
				TimeoutSeconds: defaultSteamTimeout,
			},
			Local: Local{
				Enabled:  false,
				Priority: defaultLocalPriority,
				Path:     defaultLocalPath,
			},
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
