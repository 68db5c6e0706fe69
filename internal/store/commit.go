package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gameshelf/internal/catalog"
)

// Commit applies a reconciliation changeset to the committed unit in one
// transaction and returns the reloaded unit. The unit's UpdatedAt always
// moves forward.
func (s *Store) Commit(ctx context.Context, cs catalog.Changeset) (*catalog.Unit, error) {
	var out *catalog.Unit
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var updatedRaw string
		err := tx.QueryRowContext(ctx, `SELECT updated_at FROM units WHERE id = ?`, cs.UnitID).Scan(&updatedRaw)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("unit", cs.UnitID)
		}
		if err != nil {
			return fmt.Errorf("load unit: %w", err)
		}
		now := s.now().UTC()

		for _, id := range cs.RemovedEntryIDs {
			if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ? AND unit_id = ?`, id, cs.UnitID); err != nil {
				return fmt.Errorf("delete entry %d: %w", id, err)
			}
		}
		for _, path := range cs.RemovedEntryPaths {
			if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE unit_id = ? AND path = ?`, cs.UnitID, path); err != nil {
				return fmt.Errorf("delete entry %s: %w", path, err)
			}
		}
		for _, path := range cs.RemovedUnmatched {
			if _, err := tx.ExecContext(ctx, `DELETE FROM unmatched_paths WHERE unit_id = ? AND path = ?`, cs.UnitID, path); err != nil {
				return fmt.Errorf("delete unmatched %s: %w", path, err)
			}
		}
		for _, id := range cs.RemovedIgnored {
			if _, err := tx.ExecContext(ctx, `DELETE FROM ignored_paths WHERE id = ? AND unit_id = ?`, id, cs.UnitID); err != nil {
				return fmt.Errorf("delete ignored %d: %w", id, err)
			}
		}

		for _, entry := range cs.NewEntries {
			var existing int64
			err := tx.QueryRowContext(ctx, `SELECT id FROM entries WHERE unit_id = ? AND path = ?`, cs.UnitID, entry.Metadata.Path).Scan(&existing)
			switch {
			case err == nil:
				continue
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("check entry %s: %w", entry.Metadata.Path, err)
			}
			entry.UnitID = cs.UnitID
			if entry.CreatedAt.IsZero() {
				entry.CreatedAt = now
			}
			if entry.UpdatedAt.IsZero() {
				entry.UpdatedAt = now
			}
			id, err := insertEntry(ctx, tx, entry)
			if err != nil {
				return err
			}
			entry.ID = id
			if _, err := tx.ExecContext(ctx, `DELETE FROM unmatched_paths WHERE unit_id = ? AND path = ?`, cs.UnitID, entry.Metadata.Path); err != nil {
				return fmt.Errorf("clear unmatched %s: %w", entry.Metadata.Path, err)
			}
		}

		for _, refresh := range cs.Refreshes {
			refresh.Updated = nil
			row := tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ? AND unit_id = ?`, refresh.EntryID, cs.UnitID)
			entry, err := scanEntry(row)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("reload entry %d: %w", refresh.EntryID, err)
			}
			if !refresh.Apply(entry) {
				continue
			}
			entry.UpdatedAt = now
			if _, err := updateEntry(ctx, tx, entry); err != nil {
				return err
			}
			refresh.Updated = entry
		}

		for _, path := range cs.NewUnmatched {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO unmatched_paths (unit_id, path)
                SELECT ?, ?
                WHERE NOT EXISTS (SELECT 1 FROM entries WHERE unit_id = ? AND path = ?)
                  AND NOT EXISTS (SELECT 1 FROM ignored_paths WHERE unit_id = ? AND path = ?)`,
				cs.UnitID, path, cs.UnitID, path, cs.UnitID, path); err != nil {
				return fmt.Errorf("insert unmatched %s: %w", path, err)
			}
		}

		if prev := parseTime(updatedRaw); !now.After(prev) {
			now = prev.Add(time.Nanosecond)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE units SET updated_at = ? WHERE id = ?`, formatTime(now), cs.UnitID); err != nil {
			return fmt.Errorf("touch unit: %w", err)
		}

		out, err = loadUnit(ctx, tx, cs.UnitID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
