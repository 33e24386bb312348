package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wholesale-storefront/storefront/internal/services/offline/storage"
)

// PutCartItem upserts a cart line keyed by product id.
func (s *Store) PutCartItem(ctx context.Context, item storage.CartItem) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	item.ProductID = strings.TrimSpace(item.ProductID)
	if item.ProductID == "" {
		return fmt.Errorf("product id is required")
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO cart_items (product_id, quantity, unit_price_cents, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(product_id) DO UPDATE SET
	quantity = excluded.quantity,
	unit_price_cents = excluded.unit_price_cents,
	updated_at = excluded.updated_at
`, item.ProductID, item.Quantity, item.UnitPriceCents, timeToUnixMillis(item.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put cart item: %w", err)
	}
	return nil
}

func (s *Store) DeleteCartItem(ctx context.Context, productID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM cart_items WHERE product_id = ?`, strings.TrimSpace(productID)); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

func (s *Store) ClearCart(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM cart_items`); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// ListCartItems returns the local cart ordered by product id.
func (s *Store) ListCartItems(ctx context.Context) ([]storage.CartItem, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT product_id, quantity, unit_price_cents, updated_at
FROM cart_items
ORDER BY product_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	items := []storage.CartItem{}
	for rows.Next() {
		var (
			item      storage.CartItem
			updatedAt int64
		)
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPriceCents, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		item.UpdatedAt = unixMillisToTime(updatedAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return items, nil
}

// PutPendingOrder stores an order captured locally.
func (s *Store) PutPendingOrder(ctx context.Context, order storage.PendingOrder) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	order.ClientOrderID = strings.TrimSpace(order.ClientOrderID)
	if order.ClientOrderID == "" {
		return fmt.Errorf("client order id is required")
	}
	if len(order.Payload) == 0 {
		order.Payload = json.RawMessage(`{}`)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO pending_orders (client_order_id, payload_json, created_at)
VALUES (?, ?, ?)
ON CONFLICT(client_order_id) DO UPDATE SET
	payload_json = excluded.payload_json,
	created_at = excluded.created_at
`, order.ClientOrderID, []byte(order.Payload), timeToUnixMillis(order.CreatedAt))
	if err != nil {
		return fmt.Errorf("put pending order: %w", err)
	}
	return nil
}

func (s *Store) DeletePendingOrder(ctx context.Context, clientOrderID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM pending_orders WHERE client_order_id = ?`, strings.TrimSpace(clientOrderID)); err != nil {
		return fmt.Errorf("delete pending order: %w", err)
	}
	return nil
}

// ListPendingOrders returns locally captured orders oldest-first.
func (s *Store) ListPendingOrders(ctx context.Context) ([]storage.PendingOrder, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT client_order_id, payload_json, created_at
FROM pending_orders
ORDER BY created_at ASC, client_order_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	defer rows.Close()

	orders := []storage.PendingOrder{}
	for rows.Next() {
		var (
			order     storage.PendingOrder
			payload   []byte
			createdAt int64
		)
		if err := rows.Scan(&order.ClientOrderID, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending order: %w", err)
		}
		order.Payload = json.RawMessage(payload)
		order.CreatedAt = unixMillisToTime(createdAt)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending orders: %w", err)
	}
	return orders, nil
}

// PutInventoryEdit upserts a stock adjustment keyed by SKU.
func (s *Store) PutInventoryEdit(ctx context.Context, edit storage.InventoryEdit) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	edit.SKU = strings.TrimSpace(edit.SKU)
	if edit.SKU == "" {
		return fmt.Errorf("sku is required")
	}
	if edit.UpdatedAt.IsZero() {
		edit.UpdatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO inventory_edits (sku, quantity, note, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(sku) DO UPDATE SET
	quantity = excluded.quantity,
	note = excluded.note,
	updated_at = excluded.updated_at
`, edit.SKU, edit.Quantity, strings.TrimSpace(edit.Note), timeToUnixMillis(edit.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put inventory edit: %w", err)
	}
	return nil
}

func (s *Store) DeleteInventoryEdit(ctx context.Context, sku string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM inventory_edits WHERE sku = ?`, strings.TrimSpace(sku)); err != nil {
		return fmt.Errorf("delete inventory edit: %w", err)
	}
	return nil
}

func (s *Store) ListInventoryEdits(ctx context.Context) ([]storage.InventoryEdit, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT sku, quantity, note, updated_at
FROM inventory_edits
ORDER BY sku ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list inventory edits: %w", err)
	}
	defer rows.Close()

	edits := []storage.InventoryEdit{}
	for rows.Next() {
		var (
			edit      storage.InventoryEdit
			updatedAt int64
		)
		if err := rows.Scan(&edit.SKU, &edit.Quantity, &edit.Note, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory edit: %w", err)
		}
		edit.UpdatedAt = unixMillisToTime(updatedAt)
		edits = append(edits, edit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory edits: %w", err)
	}
	return edits, nil
}
