package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gameshelf/internal/catalog"
	"gameshelf/internal/services"
)

// LoadEntry reads an entry by id.
func (s *Store) LoadEntry(ctx context.Context, id int64) (*catalog.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("entry", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load entry: %w", err)
	}
	return entry, nil
}

// ListEntries returns the entries of a unit ordered by id. A zero unitID lists
// every entry.
func (s *Store) ListEntries(ctx context.Context, unitID int64) ([]*catalog.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries`
	var args []any
	if unitID != 0 {
		query += ` WHERE unit_id = ?`
		args = append(args, unitID)
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []*catalog.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// SearchEntries lists entries whose title contains term, case-insensitively.
func (s *Store) SearchEntries(ctx context.Context, term string, limit int) ([]*catalog.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE title LIKE ? COLLATE NOCASE ORDER BY title COLLATE NOCASE, id LIMIT ?`,
		"%"+term+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}
	defer rows.Close()

	var entries []*catalog.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// FindEntryByPath returns the entry of unitID backed by path.
func (s *Store) FindEntryByPath(ctx context.Context, unitID int64, path string) (*catalog.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE unit_id = ? AND path = ?`, unitID, path)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "find entry", fmt.Sprintf("no entry for %s in unit %d", path, unitID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("find entry: %w", err)
	}
	return entry, nil
}

// SaveEntry overwrites an existing entry. The owning unit cannot change here;
// use Commit to move entries between sets.
func (s *Store) SaveEntry(ctx context.Context, entry *catalog.Entry) error {
	if entry == nil || entry.ID == 0 {
		return errors.New("entry has no id")
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = s.now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := updateEntry(ctx, tx, entry)
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound("entry", entry.ID)
		}
		return nil
	})
}

// UpdateEntry loads entry id, lets mutate change it and writes it back in one
// transaction. Nothing is written when mutate reports no change.
func (s *Store) UpdateEntry(ctx context.Context, id int64, mutate func(*catalog.Entry) (bool, error)) (*catalog.Entry, bool, error) {
	var (
		out     *catalog.Entry
		changed bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		entry, err := scanEntry(tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("entry", id)
		}
		if err != nil {
			return fmt.Errorf("load entry: %w", err)
		}
		changed, err = mutate(entry)
		if err != nil {
			return err
		}
		out = entry
		if !changed {
			return nil
		}
		_, err = updateEntry(ctx, tx, entry)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

func insertEntry(ctx context.Context, q querier, entry *catalog.Entry) (int64, error) {
	values, err := entryArgs(entry)
	if err != nil {
		return 0, err
	}
	args := append([]any{entry.UnitID}, values...)
	res, err := q.ExecContext(ctx, `INSERT INTO entries (
        unit_id, path, title, release_date, summary, cover, header, user_rating, critic_rating,
        file_size, download_count, match_confirmed, lists_json, images_json, provenance_json,
        external_ids_json, created_at, updated_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	return res.LastInsertId()
}

func updateEntry(ctx context.Context, q querier, entry *catalog.Entry) (int64, error) {
	values, err := entryArgs(entry)
	if err != nil {
		return 0, err
	}
	// created_at is immutable; drop it from the value list.
	values = append(values[:len(values)-2], values[len(values)-1])
	args := append(values, entry.ID, entry.UnitID)
	res, err := q.ExecContext(ctx, `UPDATE entries SET
        path = ?, title = ?, release_date = ?, summary = ?, cover = ?, header = ?,
        user_rating = ?, critic_rating = ?, file_size = ?, download_count = ?,
        match_confirmed = ?, lists_json = ?, images_json = ?, provenance_json = ?,
        external_ids_json = ?, updated_at = ?
    WHERE id = ? AND unit_id = ?`, args...)
	if err != nil {
		return 0, fmt.Errorf("update entry: %w", err)
	}
	return res.RowsAffected()
}
