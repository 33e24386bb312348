// Package queue holds pending offline mutations and drains them against the
// storefront API once the agent is online.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	platformotel "github.com/wholesale-storefront/storefront/internal/platform/otel"
	"github.com/wholesale-storefront/storefront/internal/services/offline/domain"
	"github.com/wholesale-storefront/storefront/internal/services/offline/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Replayer sends one queued operation to the remote API.
type Replayer interface {
	Replay(ctx context.Context, op domain.Operation) error
}

// Options tunes queue behavior. Zero values are usable.
type Options struct {
	// Online reports connectivity. Nil means always online.
	Online func() bool
	// OnReplayed runs after an operation was replayed and removed.
	OnReplayed func(ctx context.Context, op domain.Operation)
	// DrainInterval adds a periodic drain while online. Zero disables it.
	DrainInterval time.Duration
	Logf          func(string, ...any)
	Now           func() time.Time
	NewKey        func() string
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Attempted int  `json:"attempted"`
	Replayed  int  `json:"replayed"`
	Failed    int  `json:"failed"`
	Skipped   bool `json:"skipped"`
}

// Stats is a snapshot of the queue counters since start.
type Stats struct {
	Enqueued      int64 `json:"enqueued"`
	Replayed      int64 `json:"replayed"`
	Failed        int64 `json:"failed"`
	Drains        int64 `json:"drains"`
	SkippedDrains int64 `json:"skipped_drains"`
	Draining      bool  `json:"draining"`
}

// Queue is the pending-operation queue plus its drainer.
type Queue struct {
	store    storage.OperationStore
	replayer Replayer
	opts     Options
	kick     chan struct{}

	draining      atomic.Bool
	enqueued      atomic.Int64
	replayed      atomic.Int64
	failed        atomic.Int64
	drains        atomic.Int64
	skippedDrains atomic.Int64
}

// New builds a queue over store that replays through replayer.
func New(store storage.OperationStore, replayer Replayer, opts Options) *Queue {
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewKey == nil {
		opts.NewKey = uuid.NewString
	}
	return &Queue{
		store:    store,
		replayer: replayer,
		opts:     opts,
		kick:     make(chan struct{}, 1),
	}
}

// Enqueue persists op and wakes the run loop. It never calls the remote API;
// the run loop replays on its own goroutine when online.
func (q *Queue) Enqueue(ctx context.Context, op domain.Operation) (domain.Operation, error) {
	if q == nil || q.store == nil {
		return domain.Operation{}, errors.New("queue is not configured")
	}
	if err := op.Validate(); err != nil {
		return domain.Operation{}, err
	}
	op.ID = 0
	op.EnqueuedAt = q.opts.Now().UTC()
	op.IdempotencyKey = strings.TrimSpace(op.IdempotencyKey)
	if op.IdempotencyKey == "" {
		op.IdempotencyKey = q.opts.NewKey()
	}

	id, err := q.store.AppendOperation(ctx, op)
	if err != nil {
		return domain.Operation{}, fmt.Errorf("enqueue operation: %w", err)
	}
	op.ID = id
	q.enqueued.Add(1)

	select {
	case q.kick <- struct{}{}:
	default:
	}
	return op, nil
}

// Pending lists queued operations oldest-first.
func (q *Queue) Pending(ctx context.Context) ([]domain.Operation, error) {
	if q == nil || q.store == nil {
		return nil, errors.New("queue is not configured")
	}
	return q.store.ListOperations(ctx, 0)
}

// Len reports how many operations are waiting.
func (q *Queue) Len(ctx context.Context) (int, error) {
	if q == nil || q.store == nil {
		return 0, errors.New("queue is not configured")
	}
	return q.store.CountOperations(ctx)
}

// Drain replays every queued operation in insertion order.
//
// Successful entries are deleted; failed ones stay queued untouched and the
// pass continues with the next entry. When another drain is in flight this
// call returns at once with Skipped set. Cancellation stops the pass between
// entries.
func (q *Queue) Drain(ctx context.Context) (DrainResult, error) {
	if q == nil || q.store == nil || q.replayer == nil {
		return DrainResult{}, errors.New("queue is not configured")
	}
	if !q.draining.CompareAndSwap(false, true) {
		q.skippedDrains.Add(1)
		return DrainResult{Skipped: true}, nil
	}
	defer q.draining.Store(false)
	q.drains.Add(1)

	ctx, span := platformotel.Tracer("internal/services/offline/queue").Start(ctx, "queue.drain")
	defer span.End()

	var result DrainResult
	ops, err := q.store.ListOperations(ctx, 0)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list operations")
		return result, fmt.Errorf("list pending operations: %w", err)
	}

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			q.annotate(span, result)
			return result, err
		}
		result.Attempted++
		if err := q.replayer.Replay(ctx, op); err != nil {
			result.Failed++
			q.failed.Add(1)
			q.opts.Logf("replay failed id=%d resource=%s kind=%s entity=%s err=%v", op.ID, op.Resource, op.Kind, op.EntityID, err)
			continue
		}
		if err := q.store.DeleteOperation(ctx, op.ID); err != nil {
			// The remote accepted it; the idempotency key covers the re-send.
			result.Failed++
			q.failed.Add(1)
			q.opts.Logf("delete replayed operation id=%d err=%v", op.ID, err)
			continue
		}
		result.Replayed++
		q.replayed.Add(1)
		if q.opts.OnReplayed != nil {
			q.opts.OnReplayed(ctx, op)
		}
	}

	q.annotate(span, result)
	if result.Attempted > 0 {
		q.opts.Logf("drain finished attempted=%d replayed=%d failed=%d", result.Attempted, result.Replayed, result.Failed)
	}
	return result, nil
}

func (q *Queue) annotate(span trace.Span, result DrainResult) {
	span.SetAttributes(
		attribute.Int("queue.attempted", result.Attempted),
		attribute.Int("queue.replayed", result.Replayed),
		attribute.Int("queue.failed", result.Failed),
	)
}

// Run drains whenever Enqueue signals new work or the drain interval ticks,
// as long as the agent is online. It returns when ctx ends.
func (q *Queue) Run(ctx context.Context) error {
	if q == nil {
		return errors.New("queue is not configured")
	}
	var tick <-chan time.Time
	if q.opts.DrainInterval > 0 {
		ticker := time.NewTicker(q.opts.DrainInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.kick:
		case <-tick:
		}
		if !q.online() {
			continue
		}
		if _, err := q.Drain(ctx); err != nil && ctx.Err() == nil {
			q.opts.Logf("drain failed: %v", err)
		}
	}
}

// Stats returns the counters accumulated since the queue was built.
func (q *Queue) Stats() Stats {
	if q == nil {
		return Stats{}
	}
	return Stats{
		Enqueued:      q.enqueued.Load(),
		Replayed:      q.replayed.Load(),
		Failed:        q.failed.Load(),
		Drains:        q.drains.Load(),
		SkippedDrains: q.skippedDrains.Load(),
		Draining:      q.draining.Load(),
	}
}

func (q *Queue) online() bool {
	if q.opts.Online == nil {
		return true
	}
	return q.opts.Online()
}
