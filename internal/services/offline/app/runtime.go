// Package app wires the sync agent: local store, pending queue, connectivity
// watcher, cache manager, local HTTP API and gRPC health endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	platformgrpc "github.com/wholesale-storefront/storefront/internal/platform/grpc"
	"github.com/wholesale-storefront/storefront/internal/platform/httpx"
	"github.com/wholesale-storefront/storefront/internal/platform/timeouts"
	"github.com/wholesale-storefront/storefront/internal/services/offline/cache"
	"github.com/wholesale-storefront/storefront/internal/services/offline/connectivity"
	"github.com/wholesale-storefront/storefront/internal/services/offline/domain"
	"github.com/wholesale-storefront/storefront/internal/services/offline/queue"
	"github.com/wholesale-storefront/storefront/internal/services/offline/remote"
	"github.com/wholesale-storefront/storefront/internal/services/offline/storage"
	offlineredis "github.com/wholesale-storefront/storefront/internal/services/offline/storage/redis"
	offlinesqlite "github.com/wholesale-storefront/storefront/internal/services/offline/storage/sqlite"
	"golang.org/x/sync/errgroup"
)

const (
	// CacheBackendSQLite keeps cached responses in the agent database.
	CacheBackendSQLite = "sqlite"
	// CacheBackendRedis keeps cached responses in Redis.
	CacheBackendRedis = "redis"

	defaultSyncDB       = "data/syncd.db"
	defaultHTTPAddr     = "127.0.0.1:8095"
	defaultHealthAddr   = ":8096"
	defaultDrainTick    = time.Minute
	defaultMaxLocalConn = 64

	healthServiceQueue  = "syncd.queue"
	healthServiceRemote = "syncd.remote"
)

// RuntimeConfig controls sync agent startup and loop behavior.
type RuntimeConfig struct {
	HTTPAddr        string
	HealthAddr      string
	APIBaseURL      string
	DBPath          string
	ProbeInterval   time.Duration
	DrainInterval   time.Duration
	SweepInterval   time.Duration
	RefreshFraction float64
	CacheBackend    string
	RedisURL        string
	CachePolicyPath string
	SchemaVersion   string
	RequestTimeout  time.Duration
	MaxLocalConns   int
	Logf            func(string, ...any)
}

func (c RuntimeConfig) normalized() RuntimeConfig {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		c.HTTPAddr = defaultHTTPAddr
	}
	if strings.TrimSpace(c.HealthAddr) == "" {
		c.HealthAddr = defaultHealthAddr
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = defaultSyncDB
	}
	if c.DrainInterval < 0 {
		c.DrainInterval = 0
	} else if c.DrainInterval == 0 {
		c.DrainInterval = defaultDrainTick
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = cache.DefaultSweepInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = timeouts.RemoteRequest
	}
	if c.MaxLocalConns <= 0 {
		c.MaxLocalConns = defaultMaxLocalConn
	}
	c.CacheBackend = strings.ToLower(strings.TrimSpace(c.CacheBackend))
	if c.CacheBackend == "" {
		c.CacheBackend = CacheBackendSQLite
	}
	if c.Logf == nil {
		c.Logf = log.Printf
	}
	return c
}

// Runtime holds the assembled sync agent.
type Runtime struct {
	cfg      RuntimeConfig
	store    *offlinesqlite.Store
	redis    *offlineredis.CacheStore
	remote   *remote.Client
	queue    *queue.Queue
	watcher  *connectivity.Watcher
	cache    *cache.Manager
	local    *LocalAPI
	tokens   *TokenTracker
	health   *platformgrpc.HealthServer

	mu       sync.Mutex
	listener net.Listener
}

// Run builds the agent and runs it until ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return rt.Serve(ctx)
}

// NewRuntime opens storage and builds every component without starting
// any loop.
func NewRuntime(ctx context.Context, cfg RuntimeConfig) (*Runtime, error) {
	cfg = cfg.normalized()
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, errors.New("api base url is required")
	}

	rt := &Runtime{cfg: cfg, tokens: &TokenTracker{}}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sync storage dir: %w", err)
		}
	}
	store, err := offlinesqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sync sqlite store: %w", err)
	}
	rt.store = store

	var cacheStore storage.CacheStore = store
	switch cfg.CacheBackend {
	case CacheBackendSQLite:
	case CacheBackendRedis:
		redisStore, err := offlineredis.Open(ctx, cfg.RedisURL, offlineredis.Options{})
		if err != nil {
			return nil, fmt.Errorf("open redis cache store: %w", err)
		}
		rt.redis = redisStore
		cacheStore = redisStore
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}

	policy := cache.DefaultPolicy()
	if path := strings.TrimSpace(cfg.CachePolicyPath); path != "" {
		policy, err = cache.LoadPolicyFile(path)
		if err != nil {
			return nil, err
		}
	}

	client, err := remote.NewClient(cfg.APIBaseURL, &http.Client{Timeout: cfg.RequestTimeout})
	if err != nil {
		return nil, err
	}
	rt.remote = client

	rt.cache = cache.NewManager(cacheStore, cache.Options{
		Policy:          policy,
		SchemaVersion:   cfg.SchemaVersion,
		RefreshFraction: cfg.RefreshFraction,
		Logf:            cfg.Logf,
	})
	for _, prefix := range policy.Prefixes() {
		rt.cache.RegisterLoader(prefix, rt.refreshEntry)
	}

	rt.queue = queue.New(store, client, queue.Options{
		Online:        func() bool { return rt.watcher.Online() },
		OnReplayed:    rt.onReplayed,
		DrainInterval: cfg.DrainInterval,
		Logf:          cfg.Logf,
	})
	rt.watcher = connectivity.NewWatcher(client, connectivity.Options{
		Interval:  cfg.ProbeInterval,
		OnOnline:  rt.onOnline,
		OnOffline: rt.onOffline,
		Logf:      cfg.Logf,
	})

	rt.local, err = NewLocalAPI(LocalAPIConfig{
		Store:   store,
		Queue:   rt.queue,
		Watcher: rt.watcher,
		Cache:   rt.cache,
		Fetcher: client,
		Tokens:  rt.tokens,
		Logf:    cfg.Logf,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return rt, nil
}

// Handler exposes the local API handler.
func (rt *Runtime) Handler() http.Handler {
	return rt.local.Handler()
}

// Serve starts the watcher, queue loop, cache sweeper, local HTTP API and
// health endpoint, and blocks until ctx ends or one of them fails.
func (rt *Runtime) Serve(ctx context.Context) error {
	if rt == nil || rt.local == nil {
		return errors.New("sync runtime is not configured")
	}
	listener, err := httpx.Listen(rt.cfg.HTTPAddr, rt.cfg.MaxLocalConns)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	rt.listener = listener
	rt.mu.Unlock()
	health, err := platformgrpc.NewHealthServer(rt.cfg.HealthAddr, healthServiceQueue)
	if err != nil {
		_ = listener.Close()
		return err
	}
	rt.health = health
	health.SetServing(healthServiceRemote, false)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.watcher.Run(gctx) })
	g.Go(func() error { return rt.queue.Run(gctx) })
	g.Go(func() error { return rt.cache.Run(gctx, rt.cfg.SweepInterval) })
	g.Go(func() error { return health.Serve(gctx) })
	g.Go(func() error {
		return httpx.Serve(gctx, httpx.NewServer(rt.local.Handler()), listener)
	})

	rt.cfg.Logf("sync agent listening http=%s health=%s api=%s", listener.Addr(), health.Addr(), rt.cfg.APIBaseURL)
	return g.Wait()
}

// LocalAddr reports the bound local API address once Serve has started.
func (rt *Runtime) LocalAddr() net.Addr {
	if rt == nil {
		return nil
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.listener == nil {
		return nil
	}
	return rt.listener.Addr()
}

// Close releases storage handles.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.cfg.Logf("close redis cache store: %v", err)
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.cfg.Logf("close sync sqlite store: %v", err)
		}
	}
}

func (rt *Runtime) onOnline(ctx context.Context) {
	rt.health.SetServing(healthServiceRemote, true)
	result, err := rt.queue.Drain(ctx)
	if err != nil {
		rt.cfg.Logf("drain on reconnect failed: %v", err)
		return
	}
	if result.Skipped {
		rt.cfg.Logf("drain on reconnect skipped: drain already running")
	}
}

func (rt *Runtime) onOffline(context.Context) {
	rt.health.SetServing(healthServiceRemote, false)
}

// onReplayed drops local records that no longer wait on the server and
// clears cache entries the server-side change made stale.
func (rt *Runtime) onReplayed(ctx context.Context, op domain.Operation) {
	invalidatePrefixes(ctx, rt.cache, op, rt.cfg.Logf)

	if op.Resource != domain.ResourceOrder && op.Resource != domain.ResourceInventory {
		return
	}
	pending, err := rt.queue.Pending(ctx)
	if err != nil {
		rt.cfg.Logf("list pending after replay id=%d err=%v", op.ID, err)
		return
	}
	for _, other := range pending {
		if other.Resource == op.Resource && other.EntityID == op.EntityID {
			// A later edit of the same entity is still queued.
			return
		}
	}
	switch op.Resource {
	case domain.ResourceOrder:
		err = rt.store.DeletePendingOrder(ctx, op.EntityID)
	case domain.ResourceInventory:
		err = rt.store.DeleteInventoryEdit(ctx, op.EntityID)
	}
	if err != nil {
		rt.cfg.Logf("clear local %s %s after replay: %v", op.Resource, op.EntityID, err)
	}
}

// refreshEntry reloads a cached resource. Per-buyer keys use that buyer's
// last token; shared keys use whichever token was seen last.
func (rt *Runtime) refreshEntry(ctx context.Context, key string) ([]byte, error) {
	if !rt.watcher.Online() {
		return nil, errors.New("offline")
	}
	path, subject, ok := remotePathForKey(key)
	if !ok {
		return nil, fmt.Errorf("cache key %q has no remote path", key)
	}
	token := rt.tokens.Last()
	if subject != "" {
		token = rt.tokens.For(subject)
		if token == "" {
			return nil, fmt.Errorf("no token seen for %s", subject)
		}
	}
	return rt.remote.Fetch(ctx, path, token)
}
