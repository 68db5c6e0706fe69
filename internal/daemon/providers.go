package daemon

import (
	"log/slog"
	"time"

	"gameshelf/internal/config"
	"gameshelf/internal/logging"
	"gameshelf/internal/matching"
	"gameshelf/internal/providers/localdb"
	"gameshelf/internal/providers/steam"
)

// BuildProviders registers every enabled metadata provider with its
// configured priority.
func BuildProviders(cfg *config.Config, logger *slog.Logger) []matching.Registered {
	var regs []matching.Registered
	if cfg.Providers.Local.Enabled {
		regs = append(regs, matching.Registered{
			Provider: localdb.NewCatalog(cfg.Providers.Local.Path, logger),
			Priority: cfg.Providers.Local.Priority,
		})
	}
	if s := cfg.Providers.Steam; s.Enabled {
		client, err := steam.New(s.BaseURL, s.Country, s.Language,
			time.Duration(s.TimeoutSeconds)*time.Second,
			steam.WithLogger(logger),
			steam.WithMaxConcurrent(s.MaxConcurrent),
		)
		if err != nil {
			logging.WarnWithContext(logger, "steam provider disabled", "provider_init_failed",
				logging.String(logging.FieldProvider, steam.ProviderID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check providers.steam.base_url"),
			)
		} else {
			regs = append(regs, matching.Registered{Provider: client, Priority: s.Priority})
		}
	}
	return regs
}
