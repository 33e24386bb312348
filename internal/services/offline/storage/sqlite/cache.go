package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wholesale-storefront/storefront/internal/services/offline/storage"
)

// GetCacheEntry returns one cached response by key.
func (s *Store) GetCacheEntry(ctx context.Context, key string) (storage.CacheEntry, bool, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CacheEntry{}, false, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return storage.CacheEntry{}, false, fmt.Errorf("cache key is required")
	}

	var (
		entry    storage.CacheEntry
		storedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT cache_key, value_blob, stored_at, schema_version
FROM cache_entries
WHERE cache_key = ?
`, key).Scan(&entry.Key, &entry.Value, &storedAt, &entry.SchemaVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.CacheEntry{}, false, nil
	}
	if err != nil {
		return storage.CacheEntry{}, false, fmt.Errorf("get cache entry: %w", err)
	}
	entry.StoredAt = unixMillisToTime(storedAt)
	return entry, true, nil
}

// PutCacheEntry upserts one cached response.
func (s *Store) PutCacheEntry(ctx context.Context, entry storage.CacheEntry) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	entry.Key = strings.TrimSpace(entry.Key)
	if entry.Key == "" {
		return fmt.Errorf("cache key is required")
	}
	if entry.Value == nil {
		entry.Value = []byte{}
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO cache_entries (cache_key, value_blob, stored_at, schema_version)
VALUES (?, ?, ?, ?)
ON CONFLICT(cache_key) DO UPDATE SET
	value_blob = excluded.value_blob,
	stored_at = excluded.stored_at,
	schema_version = excluded.schema_version
`, entry.Key, entry.Value, timeToUnixMillis(entry.StoredAt), entry.SchemaVersion)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

func (s *Store) DeleteCacheEntry(ctx context.Context, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// DeleteCacheEntriesWithPrefix removes every entry whose key starts with
// prefix and reports how many were removed. The comparison is literal so
// keys containing % or _ are matched exactly.
func (s *Store) DeleteCacheEntriesWithPrefix(ctx context.Context, prefix string) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if prefix == "" {
		return 0, fmt.Errorf("cache key prefix is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM cache_entries
WHERE substr(cache_key, 1, length(?)) = ?
`, prefix, prefix)
	if err != nil {
		return 0, fmt.Errorf("delete cache entries with prefix: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read deleted cache entries: %w", err)
	}
	return int(removed), nil
}

// ListCacheEntries returns every cache entry ordered by key.
func (s *Store) ListCacheEntries(ctx context.Context) ([]storage.CacheEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT cache_key, value_blob, stored_at, schema_version
FROM cache_entries
ORDER BY cache_key ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []storage.CacheEntry
	for rows.Next() {
		var (
			entry    storage.CacheEntry
			storedAt int64
		)
		if err := rows.Scan(&entry.Key, &entry.Value, &storedAt, &entry.SchemaVersion); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		entry.StoredAt = unixMillisToTime(storedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache entries: %w", err)
	}
	return entries, nil
}
