// Package connectivity tracks whether the storefront API is reachable and
// announces offline to online transitions.
package connectivity

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/wholesale-storefront/storefront/internal/platform/timeouts"
)

const defaultProbeInterval = 15 * time.Second

// Prober checks remote reachability.
type Prober interface {
	Ping(ctx context.Context) error
}

// Options configures a Watcher.
type Options struct {
	// Interval between probes. Defaults to 15s.
	Interval time.Duration
	// ProbeTimeout bounds one probe. Defaults to timeouts.Probe.
	ProbeTimeout time.Duration
	// OnOnline runs once per offline to online transition.
	OnOnline func(ctx context.Context)
	// OnOffline runs once per online to offline transition.
	OnOffline func(ctx context.Context)
	Logf      func(string, ...any)
}

// Watcher holds the current connectivity state. It starts offline.
type Watcher struct {
	prober Prober
	opts   Options
	online atomic.Bool
}

// NewWatcher builds a watcher; prober may be nil when only manual Set
// events drive it.
func NewWatcher(prober Prober, opts Options) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = defaultProbeInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = timeouts.Probe
	}
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	return &Watcher{prober: prober, opts: opts}
}

// Online reports the last observed state.
func (w *Watcher) Online() bool {
	if w == nil {
		return false
	}
	return w.online.Load()
}

// Set records a connectivity event and reports whether it changed state.
// Hooks run synchronously on the caller's goroutine.
func (w *Watcher) Set(ctx context.Context, online bool) bool {
	if w == nil {
		return false
	}
	if !w.online.CompareAndSwap(!online, online) {
		return false
	}
	if online {
		w.opts.Logf("connectivity online")
		if w.opts.OnOnline != nil {
			w.opts.OnOnline(ctx)
		}
		return true
	}
	w.opts.Logf("connectivity offline")
	if w.opts.OnOffline != nil {
		w.opts.OnOffline(ctx)
	}
	return true
}

// Run probes immediately and then every interval until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	if w == nil || w.prober == nil {
		return errors.New("connectivity prober is not configured")
	}
	w.probe(ctx)

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.probe(ctx)
		}
	}
}

func (w *Watcher) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, w.opts.ProbeTimeout)
	err := w.prober.Ping(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return
	}
	if err != nil && w.Online() {
		w.opts.Logf("connectivity probe failed: %v", err)
	}
	w.Set(ctx, err == nil)
}
