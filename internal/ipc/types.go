package ipc

import (
	"gameshelf/internal/catalog"
	"gameshelf/internal/daemon"
	"gameshelf/internal/matching"
	"gameshelf/internal/scan"
)

// ServiceName is the RPC receiver name; methods are called as "Gameshelf.<Method>".
const ServiceName = "Gameshelf"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse wraps the daemon status snapshot.
type StatusResponse struct {
	Status daemon.Status `json:"status"`
}

// TriggerScanRequest starts scans. Empty UnitIDs scans every unit.
type TriggerScanRequest struct {
	Kind    string  `json:"kind"`
	UnitIDs []int64 `json:"unit_ids"`
}

// TriggerScanResponse lists started and skipped units.
type TriggerScanResponse struct {
	Started []scan.Started `json:"started"`
	Skipped []int64        `json:"skipped"`
}

// ScanProgressRequest fetches the latest progress, optionally for one unit.
type ScanProgressRequest struct {
	UnitID int64 `json:"unit_id"`
}

// ScanProgressResponse holds one snapshot per scanned unit.
type ScanProgressResponse struct {
	Progress []scan.Progress `json:"progress"`
}

// ListUnitsRequest lists every unit.
type ListUnitsRequest struct{}

// ListUnitsResponse contains units.
type ListUnitsResponse struct {
	Units []catalog.Unit `json:"units"`
}

// CreateUnitRequest creates a unit.
type CreateUnitRequest struct {
	Name        string                     `json:"name"`
	Directories []catalog.DirectoryMapping `json:"directories"`
}

// CreateUnitResponse returns the stored unit.
type CreateUnitResponse struct {
	Unit catalog.Unit `json:"unit"`
}

// DeleteUnitRequest deletes a unit by id.
type DeleteUnitRequest struct {
	ID int64 `json:"id"`
}

// DeleteUnitResponse confirms the deletion.
type DeleteUnitResponse struct {
	Deleted bool `json:"deleted"`
}

// ListEntriesRequest lists or searches entries.
type ListEntriesRequest struct {
	UnitID int64  `json:"unit_id"`
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
}

// ListEntriesResponse contains entries.
type ListEntriesResponse struct {
	Entries []catalog.Entry `json:"entries"`
}

// SearchRequest queries metadata providers.
type SearchRequest struct {
	Term  string `json:"term"`
	Limit int    `json:"limit"`
}

// SearchResponse contains merged, ranked candidates.
type SearchResponse struct {
	Candidates []matching.Candidate `json:"candidates"`
}

// MatchRequest applies a manual match.
type MatchRequest struct {
	EntryID     int64             `json:"entry_id"`
	UnitID      int64             `json:"unit_id"`
	Path        string            `json:"path"`
	ExternalIDs map[string]string `json:"external_ids"`
}

// MatchResponse returns the stored entry.
type MatchResponse struct {
	Entry catalog.Entry `json:"entry"`
}

// RemoveEntryRequest removes an entry by id.
type RemoveEntryRequest struct {
	ID int64 `json:"id"`
}

// RemoveEntryResponse returns the owning unit after removal.
type RemoveEntryResponse struct {
	Unit catalog.Unit `json:"unit"`
}

// SetWatcherRequest toggles the filesystem watcher.
type SetWatcherRequest struct {
	Enabled bool `json:"enabled"`
}

// SetWatcherResponse reports the resulting watcher state.
type SetWatcherResponse struct {
	Enabled bool `json:"enabled"`
}
