package preflight

import (
	"context"
	"strings"

	"gameshelf/internal/config"
)

// CheckSteamFromConfig evaluates Steam status from config and connectivity.
func CheckSteamFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Steam Store"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	steam := cfg.Providers.Steam
	if !steam.Enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	if strings.TrimSpace(steam.BaseURL) == "" {
		return Result{Name: name, Detail: "Missing base URL"}
	}
	return CheckSteam(ctx, steam.BaseURL, steam.Country, steam.Language)
}

// CheckLocalFromConfig evaluates the local catalog provider from config.
func CheckLocalFromConfig(cfg *config.Config) Result {
	const name = "Local catalog"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.Providers.Local.Enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return CheckLocalCatalog(cfg.Providers.Local.Path)
}
