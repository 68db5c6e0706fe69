package daemonctl

import (
	"context"
	"errors"
	"time"

	"gameshelf/internal/config"
	"gameshelf/internal/daemon"
	"gameshelf/internal/ipc"
	"gameshelf/internal/preflight"
	"gameshelf/internal/store"
)

// BuildStatusSnapshot returns the live daemon status when the socket answers.
// Otherwise it reads catalog counts straight from the database and runs the
// preflight checks locally so the CLI can still report something useful.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (daemon.Status, error) {
	if cfg == nil {
		return daemon.Status{}, errors.New("configuration not available")
	}

	if client, err := ipc.Dial(socketPath); err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil {
			return resp.Status, nil
		}
	}

	status := daemon.Status{
		DatabasePath: cfg.DatabasePath(),
		LockPath:     cfg.LockPath(),
	}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if st, err := store.Open(cfg); err == nil {
		if stats, statsErr := st.Stats(queryCtx); statsErr == nil {
			status.Stats = stats
		}
		_ = st.Close()
	}
	status.Checks = preflight.RunAll(queryCtx, cfg)
	return status, nil
}
