package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/wholesale-storefront/storefront/internal/services/storefront/storage"
)

// PutCartItem sets the quantity of one product in a user's cart.
func (s *Store) PutCartItem(ctx context.Context, userID string, item storage.CartItem) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	item.ProductID = strings.TrimSpace(item.ProductID)
	if userID == "" || item.ProductID == "" {
		return fmt.Errorf("user id and product id are required")
	}
	if item.Quantity <= 0 {
		return fmt.Errorf("cart quantity must be positive")
	}
	updatedAt := s.nowMillis()
	if !item.UpdatedAt.IsZero() {
		updatedAt = item.UpdatedAt.UTC().UnixMilli()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO cart_items (user_id, product_id, quantity, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(user_id, product_id) DO UPDATE SET
	quantity = excluded.quantity,
	updated_at = excluded.updated_at
`, userID, item.ProductID, item.Quantity, updatedAt)
	if err != nil {
		return fmt.Errorf("put cart item: %w", err)
	}
	return nil
}

func (s *Store) DeleteCartItem(ctx context.Context, userID, productID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ? AND product_id = ?`,
		strings.TrimSpace(userID), strings.TrimSpace(productID)); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

func (s *Store) ClearCart(ctx context.Context, userID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, strings.TrimSpace(userID)); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// ListCartItems returns a user's cart ordered by product id.
func (s *Store) ListCartItems(ctx context.Context, userID string) ([]storage.CartItem, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT product_id, quantity, updated_at
FROM cart_items
WHERE user_id = ?
ORDER BY product_id ASC
`, strings.TrimSpace(userID))
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
		if err := rows.Scan(&item.ProductID, &item.Quantity, &updatedAt); err != nil {
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
