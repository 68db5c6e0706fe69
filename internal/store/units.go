package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"gameshelf/internal/catalog"
)

// ListUnits returns every unit ordered by id.
func (s *Store) ListUnits(ctx context.Context) ([]*catalog.Unit, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM units ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan unit id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}

	units := make([]*catalog.Unit, 0, len(ids))
	for _, id := range ids {
		unit, err := loadUnit(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, nil
}

// LoadUnit reads the committed state of a unit.
func (s *Store) LoadUnit(ctx context.Context, id int64) (*catalog.Unit, error) {
	return loadUnit(ctx, s.db, id)
}

// SaveUnit inserts a unit when its ID is zero, otherwise overwrites its name,
// directories, unmatched paths, ignored paths, and timestamps. Entry ownership
// is not touched; the unit's EntryIDs are refreshed from the database.
func (s *Store) SaveUnit(ctx context.Context, unit *catalog.Unit) error {
	if unit == nil {
		return errors.New("unit is nil")
	}
	dirs, err := json.Marshal(unit.Directories)
	if err != nil {
		return fmt.Errorf("encode directories: %w", err)
	}
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = s.now().UTC()
	}
	if unit.UpdatedAt.IsZero() {
		unit.UpdatedAt = unit.CreatedAt
	}

	var saved *catalog.Unit
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		id := unit.ID
		if id == 0 {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO units (name, directories_json, created_at, updated_at) VALUES (?, ?, ?, ?)`,
				unit.Name, string(dirs), formatTime(unit.CreatedAt), formatTime(unit.UpdatedAt))
			if err != nil {
				return fmt.Errorf("insert unit: %w", err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
		} else {
			res, err := tx.ExecContext(ctx,
				`UPDATE units SET name = ?, directories_json = ?, updated_at = ? WHERE id = ?`,
				unit.Name, string(dirs), formatTime(unit.UpdatedAt), id)
			if err != nil {
				return fmt.Errorf("update unit: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return notFound("unit", id)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM unmatched_paths WHERE unit_id = ?`, id); err != nil {
			return fmt.Errorf("clear unmatched: %w", err)
		}
		for _, path := range unit.Unmatched {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO unmatched_paths (unit_id, path) VALUES (?, ?)`, id, path); err != nil {
				return fmt.Errorf("insert unmatched: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM ignored_paths WHERE unit_id = ?`, id); err != nil {
			return fmt.Errorf("clear ignored: %w", err)
		}
		for _, ig := range unit.Ignored {
			var igID any
			if ig.ID != 0 {
				igID = ig.ID
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO ignored_paths (id, unit_id, path, source, source_id) VALUES (?, ?, ?, ?, ?)`,
				igID, id, ig.Path, string(ig.Source), nullableString(ig.SourceID)); err != nil {
				return fmt.Errorf("insert ignored: %w", err)
			}
		}

		saved, err = loadUnit(ctx, tx, id)
		return err
	})
	if err != nil {
		return err
	}
	*unit = *saved
	return nil
}

// DeleteUnit removes a unit; its entries and path records cascade.
func (s *Store) DeleteUnit(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM units WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete unit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("unit", id)
	}
	return nil
}

func loadUnit(ctx context.Context, q querier, id int64) (*catalog.Unit, error) {
	var (
		unit       catalog.Unit
		dirsRaw    string
		createdRaw string
		updatedRaw string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, name, directories_json, created_at, updated_at FROM units WHERE id = ?`, id,
	).Scan(&unit.ID, &unit.Name, &dirsRaw, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("unit", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load unit: %w", err)
	}
	if err := json.Unmarshal([]byte(dirsRaw), &unit.Directories); err != nil {
		return nil, fmt.Errorf("decode unit %d directories: %w", id, err)
	}
	unit.CreatedAt = parseTime(createdRaw)
	unit.UpdatedAt = parseTime(updatedRaw)

	if unit.EntryIDs, err = queryInt64s(ctx, q, `SELECT id FROM entries WHERE unit_id = ? ORDER BY id`, id); err != nil {
		return nil, fmt.Errorf("load unit entries: %w", err)
	}
	if unit.Unmatched, err = queryStrings(ctx, q, `SELECT path FROM unmatched_paths WHERE unit_id = ? ORDER BY path`, id); err != nil {
		return nil, fmt.Errorf("load unmatched: %w", err)
	}

	rows, err := q.QueryContext(ctx, `SELECT id, path, source, source_id FROM ignored_paths WHERE unit_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("load ignored: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ig       catalog.IgnoredPath
			source   string
			sourceID sql.NullString
		)
		if err := rows.Scan(&ig.ID, &ig.Path, &source, &sourceID); err != nil {
			return nil, fmt.Errorf("scan ignored: %w", err)
		}
		ig.Source = catalog.IgnoreSource(source)
		ig.SourceID = sourceID.String
		unit.Ignored = append(unit.Ignored, ig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ignored: %w", err)
	}
	return &unit, nil
}

func queryInt64s(ctx context.Context, q querier, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func queryStrings(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
