package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wholesale-storefront/storefront/internal/services/offline/domain"
)

// AppendOperation persists one pending operation at the tail of the queue.
func (s *Store) AppendOperation(ctx context.Context, op domain.Operation) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if err := op.Validate(); err != nil {
		return 0, err
	}
	op.IdempotencyKey = strings.TrimSpace(op.IdempotencyKey)
	if op.IdempotencyKey == "" {
		return 0, fmt.Errorf("idempotency key is required")
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now().UTC()
	}
	var payload []byte
	if len(op.Payload) > 0 {
		payload = []byte(op.Payload)
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO pending_operations (
	kind,
	resource,
	entity_id,
	payload_json,
	bearer_token,
	user_id,
	idempotency_key,
	enqueued_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		string(op.Kind),
		string(op.Resource),
		strings.TrimSpace(op.EntityID),
		payload,
		op.Credentials.BearerToken,
		strings.TrimSpace(op.Credentials.UserID),
		op.IdempotencyKey,
		timeToUnixMillis(op.EnqueuedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("append operation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read operation id: %w", err)
	}
	return id, nil
}

// ListOperations lists queued operations oldest-first.
func (s *Store) ListOperations(ctx context.Context, limit int) ([]domain.Operation, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	kind,
	resource,
	entity_id,
	payload_json,
	bearer_token,
	user_id,
	idempotency_key,
	enqueued_at
FROM pending_operations
ORDER BY id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var ops []domain.Operation
	for rows.Next() {
		var (
			op         domain.Operation
			kind       string
			resource   string
			payload    []byte
			enqueuedAt int64
		)
		if err := rows.Scan(
			&op.ID,
			&kind,
			&resource,
			&op.EntityID,
			&payload,
			&op.Credentials.BearerToken,
			&op.Credentials.UserID,
			&op.IdempotencyKey,
			&enqueuedAt,
		); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		op.Kind = domain.Kind(kind)
		op.Resource = domain.Resource(resource)
		if len(payload) > 0 {
			op.Payload = json.RawMessage(payload)
		}
		op.EnqueuedAt = unixMillisToTime(enqueuedAt)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return ops, nil
}

// DeleteOperation removes a replayed operation. Deleting a missing id is a no-op.
func (s *Store) DeleteOperation(ctx context.Context, id int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if id <= 0 {
		return fmt.Errorf("operation id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM pending_operations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete operation: %w", err)
	}
	return nil
}

// CountOperations reports how many operations are still queued.
func (s *Store) CountOperations(ctx context.Context) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_operations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count operations: %w", err)
	}
	return count, nil
}
