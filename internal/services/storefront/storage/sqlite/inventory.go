package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wholesale-storefront/storefront/internal/services/storefront/storage"
)

// SetStock overwrites the on-hand quantity of a SKU. Last write wins.
func (s *Store) SetStock(ctx context.Context, level storage.StockLevel) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	level.SKU = strings.TrimSpace(level.SKU)
	if level.SKU == "" {
		return fmt.Errorf("sku is required")
	}
	if level.Quantity < 0 {
		return fmt.Errorf("stock quantity must not be negative")
	}
	updatedAt := s.nowMillis()
	if !level.UpdatedAt.IsZero() {
		updatedAt = level.UpdatedAt.UTC().UnixMilli()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO inventory (sku, quantity, note, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(sku) DO UPDATE SET
	quantity = excluded.quantity,
	note = excluded.note,
	updated_at = excluded.updated_at
`, level.SKU, level.Quantity, strings.TrimSpace(level.Note), updatedAt)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	return nil
}

// GetStock returns storage.ErrNotFound for untracked SKUs.
func (s *Store) GetStock(ctx context.Context, sku string) (storage.StockLevel, error) {
	if err := s.ready(ctx); err != nil {
		return storage.StockLevel{}, err
	}
	var (
		level     storage.StockLevel
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT sku, quantity, note, updated_at FROM inventory WHERE sku = ?
`, strings.TrimSpace(sku)).Scan(&level.SKU, &level.Quantity, &level.Note, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.StockLevel{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.StockLevel{}, fmt.Errorf("get stock: %w", err)
	}
	level.UpdatedAt = unixMillisToTime(updatedAt)
	return level, nil
}
