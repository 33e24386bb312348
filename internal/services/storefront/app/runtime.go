// Package app wires the storefront API process.
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

	"github.com/wholesale-storefront/storefront/internal/platform/bearer"
	"github.com/wholesale-storefront/storefront/internal/platform/httpx"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/api"
	storesqlite "github.com/wholesale-storefront/storefront/internal/services/storefront/storage/sqlite"
	"golang.org/x/sync/errgroup"
)

const (
	defaultStoreDB  = "data/storefront.db"
	defaultHTTPAddr = ":8090"
	defaultMaxConns = 256
)

// RuntimeConfig controls storefront startup.
type RuntimeConfig struct {
	HTTPAddr          string
	DBPath            string
	TaxRateBps        int64
	LowStockThreshold int
	SeedDemo          bool
	MaxConns          int
	Tokens            bearer.Config
	Logf              func(string, ...any)
}

func (c RuntimeConfig) normalized() RuntimeConfig {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		c.HTTPAddr = defaultHTTPAddr
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = defaultStoreDB
	}
	if c.MaxConns <= 0 {
		c.MaxConns = defaultMaxConns
	}
	if c.Logf == nil {
		c.Logf = log.Printf
	}
	return c
}

// Runtime holds the assembled storefront.
type Runtime struct {
	cfg      RuntimeConfig
	store    *storesqlite.Store
	server   *api.Server

	mu       sync.Mutex
	listener net.Listener
}

// Run builds the storefront and serves until ctx ends.
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

// NewRuntime opens storage, optionally seeds the demo catalog and builds the
// API server.
func NewRuntime(ctx context.Context, cfg RuntimeConfig) (*Runtime, error) {
	cfg = cfg.normalized()
	rt := &Runtime{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storefront storage dir: %w", err)
		}
	}
	store, err := storesqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storefront sqlite store: %w", err)
	}
	rt.store = store

	if cfg.SeedDemo {
		if err := SeedDemo(ctx, store); err != nil {
			return nil, err
		}
		cfg.Logf("demo catalog seeded db=%s", cfg.DBPath)
	}

	rt.server, err = api.NewServer(api.Config{
		Store:             store,
		Tokens:            cfg.Tokens,
		TaxRateBps:        cfg.TaxRateBps,
		LowStockThreshold: cfg.LowStockThreshold,
		Logf:              cfg.Logf,
	})
	if err != nil {
		return nil, err
	}
	ok = true
	return rt, nil
}

// Handler exposes the API handler.
func (rt *Runtime) Handler() http.Handler {
	return rt.server.Handler()
}

// Serve listens on the configured address until ctx ends.
func (rt *Runtime) Serve(ctx context.Context) error {
	if rt == nil || rt.server == nil {
		return errors.New("storefront runtime is not configured")
	}
	listener, err := httpx.Listen(rt.cfg.HTTPAddr, rt.cfg.MaxConns)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	rt.listener = listener
	rt.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpx.Serve(gctx, httpx.NewServer(rt.server.Handler()), listener)
	})
	rt.cfg.Logf("storefront listening http=%s db=%s tax_bps=%d", listener.Addr(), rt.cfg.DBPath, rt.cfg.TaxRateBps)
	return g.Wait()
}

// Addr reports the bound address once Serve has started.
func (rt *Runtime) Addr() net.Addr {
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
	if rt == nil || rt.store == nil {
		return
	}
	if err := rt.store.Close(); err != nil {
		rt.cfg.Logf("close storefront sqlite store: %v", err)
	}
}
