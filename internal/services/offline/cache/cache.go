// Package cache keeps time-boxed copies of storefront API responses in the
// agent's local store.
//
// Freshness is purely time based: each key prefix has a TTL, entries written
// under a different schema version are treated as expired, and a periodic
// sweep deletes stale entries and refreshes the ones about to expire. There
// is no size bound.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	apperrors "github.com/wholesale-storefront/storefront/internal/platform/errors"
	"github.com/wholesale-storefront/storefront/internal/services/offline/storage"
)

const (
	// DefaultSweepInterval is how often Run sweeps when no interval is given.
	DefaultSweepInterval = 5 * time.Minute
	// DefaultRefreshFraction is the share of a TTL, counted back from expiry,
	// during which a sweep refreshes an entry.
	DefaultRefreshFraction = 0.2
)

// Loader fetches a fresh value for key.
type Loader func(ctx context.Context, key string) ([]byte, error)

// Options configures a Manager.
type Options struct {
	Policy          PolicyTable
	SchemaVersion   string
	RefreshFraction float64
	Now             func() time.Time
	Logf            func(string, ...any)
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned       int `json:"scanned"`
	Expired       int `json:"expired"`
	Refreshed     int `json:"refreshed"`
	RefreshFailed int `json:"refresh_failed"`
}

// Manager applies the TTL policy over a CacheStore.
type Manager struct {
	store storage.CacheStore
	opts  Options

	mu      sync.RWMutex
	loaders map[string]Loader
}

// NewManager builds a cache manager over store.
func NewManager(store storage.CacheStore, opts Options) *Manager {
	if opts.Policy.ttls == nil {
		opts.Policy = DefaultPolicy()
	}
	if opts.RefreshFraction <= 0 || opts.RefreshFraction >= 1 {
		opts.RefreshFraction = DefaultRefreshFraction
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	opts.SchemaVersion = strings.TrimSpace(opts.SchemaVersion)
	return &Manager{store: store, opts: opts, loaders: map[string]Loader{}}
}

// Policy returns the TTL table in use.
func (m *Manager) Policy() PolicyTable {
	return m.opts.Policy
}

// RegisterLoader installs the refresh loader for every key under prefix.
func (m *Manager) RegisterLoader(prefix string, loader Loader) {
	if m == nil || loader == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaders[strings.TrimSpace(prefix)] = loader
}

func (m *Manager) loaderFor(key string) Loader {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaders[KeyPrefix(key)]
}

// Set stores value under key stamped with the current time and schema version.
func (m *Manager) Set(ctx context.Context, key string, value []byte) error {
	if err := m.ready(); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return apperrors.New(apperrors.CodeCacheKeyEmpty, "cache key is required")
	}
	return m.store.PutCacheEntry(ctx, storage.CacheEntry{
		Key:           key,
		Value:         value,
		StoredAt:      m.opts.Now().UTC(),
		SchemaVersion: m.opts.SchemaVersion,
	})
}

// Get returns the cached value while it is younger than its TTL and was
// written by the running schema version. A stale entry is deleted and
// reported as missing.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := m.ready(); err != nil {
		return nil, false, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, apperrors.New(apperrors.CodeCacheKeyEmpty, "cache key is required")
	}
	entry, ok, err := m.store.GetCacheEntry(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if !m.fresh(entry, m.opts.Now()) {
		if err := m.store.DeleteCacheEntry(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// GetOrLoad returns the cached value or calls load and caches its result.
// The bool reports whether the value came from the cache.
func (m *Manager) GetOrLoad(ctx context.Context, key string, load Loader) ([]byte, bool, error) {
	value, ok, err := m.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return value, true, nil
	}
	if load == nil {
		load = m.loaderFor(key)
	}
	if load == nil {
		return nil, false, fmt.Errorf("no loader for cache key %q", key)
	}
	value, err = load(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if err := m.Set(ctx, key, value); err != nil {
		m.opts.Logf("cache set failed key=%s err=%v", key, err)
	}
	return value, false, nil
}

// Invalidate deletes the given keys.
func (m *Manager) Invalidate(ctx context.Context, keys ...string) error {
	if err := m.ready(); err != nil {
		return err
	}
	var errs []error
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if err := m.store.DeleteCacheEntry(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InvalidatePrefix deletes every entry under the bare prefix, so "products"
// clears "products:..." but leaves "productsx:...".
func (m *Manager) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		return 0, apperrors.New(apperrors.CodeCacheKeyEmpty, "cache key prefix is required")
	}
	removed, err := m.store.DeleteCacheEntriesWithPrefix(ctx, prefix+":")
	if err != nil {
		return 0, err
	}
	if err := m.store.DeleteCacheEntry(ctx, prefix); err != nil {
		return removed, err
	}
	return removed, nil
}

// Sweep deletes expired or version-mismatched entries and refreshes entries
// inside their refresh window through the loader registered for their
// prefix. A failed refresh leaves the entry in place until it expires.
func (m *Manager) Sweep(ctx context.Context) (SweepResult, error) {
	if err := m.ready(); err != nil {
		return SweepResult{}, err
	}
	entries, err := m.store.ListCacheEntries(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list cache entries: %w", err)
	}

	var result SweepResult
	now := m.opts.Now()
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Scanned++
		if !m.fresh(entry, now) {
			if err := m.store.DeleteCacheEntry(ctx, entry.Key); err != nil {
				return result, fmt.Errorf("delete expired cache entry %s: %w", entry.Key, err)
			}
			result.Expired++
			continue
		}
		if !m.nearExpiry(entry, now) {
			continue
		}
		loader := m.loaderFor(entry.Key)
		if loader == nil {
			continue
		}
		value, err := loader(ctx, entry.Key)
		if err != nil {
			result.RefreshFailed++
			m.opts.Logf("cache refresh failed key=%s err=%v", entry.Key, err)
			continue
		}
		if err := m.Set(ctx, entry.Key, value); err != nil {
			result.RefreshFailed++
			m.opts.Logf("cache refresh store failed key=%s err=%v", entry.Key, err)
			continue
		}
		result.Refreshed++
	}
	return result, nil
}

// Run sweeps every interval until ctx ends.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if err := m.ready(); err != nil {
		return err
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			result, err := m.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.opts.Logf("cache sweep failed: %v", err)
				continue
			}
			if result.Expired > 0 || result.Refreshed > 0 || result.RefreshFailed > 0 {
				m.opts.Logf("cache sweep scanned=%d expired=%d refreshed=%d refresh_failed=%d",
					result.Scanned, result.Expired, result.Refreshed, result.RefreshFailed)
			}
		}
	}
}

func (m *Manager) fresh(entry storage.CacheEntry, now time.Time) bool {
	if entry.SchemaVersion != m.opts.SchemaVersion {
		return false
	}
	return now.Sub(entry.StoredAt) < m.opts.Policy.TTL(entry.Key)
}

func (m *Manager) nearExpiry(entry storage.CacheEntry, now time.Time) bool {
	ttl := m.opts.Policy.TTL(entry.Key)
	remaining := ttl - now.Sub(entry.StoredAt)
	window := time.Duration(float64(ttl) * m.opts.RefreshFraction)
	return remaining < window
}

func (m *Manager) ready() error {
	if m == nil || m.store == nil {
		return errors.New("cache is not configured")
	}
	return nil
}

// GetJSON decodes a cached JSON value into T.
func GetJSON[T any](ctx context.Context, m *Manager, key string) (T, bool, error) {
	var zero T
	raw, ok, err := m.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return zero, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return value, true, nil
}

// SetJSON encodes value as JSON and caches it.
func SetJSON[T any](ctx context.Context, m *Manager, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}
	return m.Set(ctx, key, raw)
}
