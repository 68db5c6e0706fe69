package preflight

import (
	"context"
	"fmt"

	"gameshelf/internal/catalog"
	"gameshelf/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
// Provider checks only run when the provider is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	for _, unit := range cfg.Units {
		for _, dir := range unit.Directories {
			results = append(results, CheckDirectoryReadable(fmt.Sprintf("Unit %q", unit.Name), dir.Internal))
		}
	}

	if cfg.Providers.Steam.Enabled {
		steam := cfg.Providers.Steam
		results = append(results, CheckSteam(ctx, steam.BaseURL, steam.Country, steam.Language))
	}
	if cfg.Providers.Local.Enabled {
		results = append(results, CheckLocalCatalog(cfg.Providers.Local.Path))
	}
	return results
}

// CheckUnits checks the scan roots of stored units.
func CheckUnits(units []*catalog.Unit) []Result {
	var results []Result
	for _, unit := range units {
		for _, dir := range unit.Directories {
			results = append(results, CheckDirectoryReadable(fmt.Sprintf("Unit %q", unit.Name), dir.Internal))
		}
	}
	return results
}

// Failed filters results down to failed checks.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
