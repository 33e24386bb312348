// Package redis implements the sync agent's cache store on Redis.
//
// Only cached responses live here; the pending-operation queue always stays
// in the local SQLite file so a Redis outage never loses mutations.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/wholesale-storefront/storefront/internal/services/offline/storage"
)

const (
	defaultNamespace = "storefront:cache"
	defaultMaxAge    = 48 * time.Hour
	scanBatch        = 200
)

// Options configures the Redis cache store.
type Options struct {
	// Namespace prefixes every key written by this store.
	Namespace string
	// MaxAge is the Redis EXPIRE applied to each entry. Freshness is still
	// decided by the cache manager; this only bounds memory.
	MaxAge time.Duration
}

// CacheStore is a storage.CacheStore backed by Redis strings.
type CacheStore struct {
	client    *goredis.Client
	namespace string
	maxAge    time.Duration
}

type record struct {
	Value         []byte `json:"value"`
	StoredAt      int64  `json:"stored_at"`
	SchemaVersion string `json:"schema_version"`
}

// Open connects to redisURL and verifies the connection.
func Open(ctx context.Context, redisURL string, opts Options) (*CacheStore, error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	clientOpts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(clientOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewCacheStore(client, opts), nil
}

// NewCacheStore wraps an existing client.
func NewCacheStore(client *goredis.Client, opts Options) *CacheStore {
	namespace := strings.TrimSuffix(strings.TrimSpace(opts.Namespace), ":")
	if namespace == "" {
		namespace = defaultNamespace
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &CacheStore{client: client, namespace: namespace, maxAge: maxAge}
}

// Close releases the Redis connection pool.
func (s *CacheStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *CacheStore) ready() error {
	if s == nil || s.client == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func (s *CacheStore) redisKey(key string) string {
	return s.namespace + ":" + key
}

// GetCacheEntry returns one cached response by key.
func (s *CacheStore) GetCacheEntry(ctx context.Context, key string) (storage.CacheEntry, bool, error) {
	if err := s.ready(); err != nil {
		return storage.CacheEntry{}, false, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return storage.CacheEntry{}, false, fmt.Errorf("cache key is required")
	}

	raw, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return storage.CacheEntry{}, false, nil
	}
	if err != nil {
		return storage.CacheEntry{}, false, fmt.Errorf("get cache entry: %w", err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return storage.CacheEntry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return rec.entry(key), true, nil
}

// PutCacheEntry overwrites one cached response.
func (s *CacheStore) PutCacheEntry(ctx context.Context, entry storage.CacheEntry) error {
	if err := s.ready(); err != nil {
		return err
	}
	entry.Key = strings.TrimSpace(entry.Key)
	if entry.Key == "" {
		return fmt.Errorf("cache key is required")
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(record{
		Value:         entry.Value,
		StoredAt:      entry.StoredAt.UTC().UnixMilli(),
		SchemaVersion: entry.SchemaVersion,
	})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := s.client.Set(ctx, s.redisKey(entry.Key), payload, s.maxAge).Err(); err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

func (s *CacheStore) DeleteCacheEntry(ctx context.Context, key string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.redisKey(strings.TrimSpace(key))).Err(); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// DeleteCacheEntriesWithPrefix removes every entry whose key starts with prefix.
func (s *CacheStore) DeleteCacheEntriesWithPrefix(ctx context.Context, prefix string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if prefix == "" {
		return 0, fmt.Errorf("cache key prefix is required")
	}
	keys, err := s.scanKeys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete cache entries with prefix: %w", err)
	}
	return int(removed), nil
}

// ListCacheEntries returns every entry in the namespace. Entries that expire
// between SCAN and GET are skipped.
func (s *CacheStore) ListCacheEntries(ctx context.Context) ([]storage.CacheEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	keys, err := s.scanKeys(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}

	entries := make([]storage.CacheEntry, 0, len(keys))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode cache entry %s: %w", keys[i], err)
		}
		entries = append(entries, rec.entry(strings.TrimPrefix(keys[i], s.namespace+":")))
	}
	return entries, nil
}

func (s *CacheStore) scanKeys(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(s.namespace+":"+prefix) + "*"
	var keys []string
	iter := s.client.Scan(ctx, 0, match, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan cache keys: %w", err)
	}
	return keys, nil
}

func (r record) entry(key string) storage.CacheEntry {
	entry := storage.CacheEntry{
		Key:           key,
		Value:         r.Value,
		SchemaVersion: r.SchemaVersion,
	}
	if r.StoredAt != 0 {
		entry.StoredAt = time.UnixMilli(r.StoredAt).UTC()
	}
	return entry
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ storage.CacheStore = (*CacheStore)(nil)
