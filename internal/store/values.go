package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Record is one stored value.
type Record struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Version   int64  `json:"version"`
	UpdatedAt string `json:"updated_at"`
}

// Put inserts or replaces the value at key and returns the new version.
// The first Put of a key returns version 1.
func (s *Store) Put(ctx context.Context, key, value string) (int64, error) {
	if key == "" {
		return 0, errors.New("put: empty key")
	}

	var version int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO kv_values (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			version    = kv_values.version + 1,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		RETURNING version
	`, key, value).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("put %q: %w", key, err)
	}
	return version, nil
}

// Get returns the record stored at key. found is false when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (Record, bool, error) {
	var r Record
	err := s.db.QueryRowContext(ctx, `
		SELECT key, value, version, updated_at
		FROM kv_values
		WHERE key = ?
	`, key).Scan(&r.Key, &r.Value, &r.Version, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get %q: %w", key, err)
	}
	return r, true, nil
}

// Delete removes key. Returns false when nothing was stored there.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_values WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	return n > 0, nil
}

// List returns every record whose key starts with prefix, ordered by key.
// An empty prefix lists everything.
func (s *Store) List(ctx context.Context, prefix string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, version, updated_at
		FROM kv_values
		WHERE substr(key, 1, length(?)) = ?
		ORDER BY key ASC COLLATE BINARY
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Key, &r.Value, &r.Version, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list %q: scan: %w", prefix, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	return records, nil
}
