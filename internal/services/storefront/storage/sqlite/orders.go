package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/wholesale-storefront/storefront/internal/platform/errors"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/domain"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/storage"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateOrder stores order, decrements tracked stock and credits loyalty
// points atomically. skus maps each product id in the order to its SKU.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order, skus map[string]string) (domain.Order, bool, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Order{}, false, err
	}
	order.UserID = strings.TrimSpace(order.UserID)
	order.ID = strings.TrimSpace(order.ID)
	order.IdempotencyKey = strings.TrimSpace(order.IdempotencyKey)
	if order.UserID == "" || order.ID == "" {
		return domain.Order{}, false, fmt.Errorf("order id and user id are required")
	}
	if len(order.Lines) == 0 {
		return domain.Order{}, false, apperrors.New(apperrors.CodeOrderEmpty, "order needs at least one line")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now().UTC()
	}

	stored, created, err := s.createOrderTx(ctx, order, skus)
	if err != nil && order.IdempotencyKey != "" && isUniqueViolation(err) {
		// A concurrent request with the same key won the insert.
		existing, found, lookupErr := s.existingOrder(ctx, s.sqlDB, order)
		if lookupErr != nil {
			return domain.Order{}, false, lookupErr
		}
		if found {
			return existing, false, nil
		}
	}
	return stored, created, err
}

// FindOrderByKey looks up the order userID placed under key.
func (s *Store) FindOrderByKey(ctx context.Context, userID, key, requestHash string) (domain.Order, bool, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Order{}, false, err
	}
	userID = strings.TrimSpace(userID)
	key = strings.TrimSpace(key)
	if userID == "" || key == "" {
		return domain.Order{}, false, nil
	}
	return s.existingOrder(ctx, s.sqlDB, domain.Order{UserID: userID, IdempotencyKey: key, RequestHash: requestHash})
}

func (s *Store) createOrderTx(ctx context.Context, order domain.Order, skus map[string]string) (domain.Order, bool, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("begin create order: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if order.IdempotencyKey != "" {
		existing, found, err := s.existingOrder(ctx, tx, order)
		if err != nil {
			return domain.Order{}, false, err
		}
		if found {
			return existing, false, nil
		}
	}

	demand := map[string]int{}
	for _, line := range order.Lines {
		sku := skus[line.ProductID]
		if sku == "" {
			sku = line.ProductID
		}
		demand[sku] += line.Quantity
	}
	for sku, qty := range demand {
		var onHand int
		err := tx.QueryRowContext(ctx, `SELECT quantity FROM inventory WHERE sku = ?`, sku).Scan(&onHand)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return domain.Order{}, false, fmt.Errorf("read stock %s: %w", sku, err)
		}
		if onHand < qty {
			return domain.Order{}, false, apperrors.WithMetadata(apperrors.CodeInsufficientStock, "insufficient stock", map[string]string{
				"sku":       sku,
				"on_hand":   strconv.Itoa(onHand),
				"requested": strconv.Itoa(qty),
			})
		}
		if _, err := tx.ExecContext(ctx, `UPDATE inventory SET quantity = quantity - ?, updated_at = ? WHERE sku = ?`,
			qty, s.nowMillis(), sku); err != nil {
			return domain.Order{}, false, fmt.Errorf("decrement stock %s: %w", sku, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO orders (
	id, user_id, client_order_id, idempotency_key, request_hash, note,
	subtotal_cents, tax_cents, total_cents, loyalty_points, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		order.ID, order.UserID, strings.TrimSpace(order.ClientOrderID), order.IdempotencyKey, order.RequestHash,
		strings.TrimSpace(order.Note), order.SubtotalCents, order.TaxCents, order.TotalCents, order.LoyaltyPoints,
		order.CreatedAt.UTC().UnixMilli(),
	); err != nil {
		return domain.Order{}, false, fmt.Errorf("insert order: %w", err)
	}
	for i, line := range order.Lines {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO order_lines (order_id, line_no, product_id, name, quantity, unit_price_cents, line_total_cents)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, order.ID, i+1, line.ProductID, line.Name, line.Quantity, line.UnitPriceCents, line.LineTotalCents); err != nil {
			return domain.Order{}, false, fmt.Errorf("insert order line: %w", err)
		}
	}
	if order.LoyaltyPoints > 0 {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO loyalty_accounts (user_id, points) VALUES (?, ?)
ON CONFLICT(user_id) DO UPDATE SET points = points + excluded.points
`, order.UserID, order.LoyaltyPoints); err != nil {
			return domain.Order{}, false, fmt.Errorf("credit loyalty points: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, false, fmt.Errorf("commit create order: %w", err)
	}

	order.CreatedAt = unixMillisToTime(order.CreatedAt.UTC().UnixMilli())
	return order, true, nil
}

// existingOrder looks up a prior order under the same idempotency key. A
// prior order for a different request body is a conflict.
func (s *Store) existingOrder(ctx context.Context, q queryer, order domain.Order) (domain.Order, bool, error) {
	var (
		id   string
		hash string
	)
	err := q.QueryRowContext(ctx, `
SELECT id, request_hash FROM orders WHERE user_id = ? AND idempotency_key = ?
`, order.UserID, order.IdempotencyKey).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("lookup idempotent order: %w", err)
	}
	if hash != order.RequestHash {
		return domain.Order{}, false, apperrors.WithMetadata(apperrors.CodeIdempotencyKeyReused,
			"idempotency key was already used for a different order", map[string]string{"order_id": id})
	}
	existing, err := s.loadOrder(ctx, q, order.UserID, id)
	if err != nil {
		return domain.Order{}, false, err
	}
	return existing, true, nil
}

// GetOrder returns one of a user's orders.
func (s *Store) GetOrder(ctx context.Context, userID, orderID string) (domain.Order, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Order{}, err
	}
	return s.loadOrder(ctx, s.sqlDB, strings.TrimSpace(userID), strings.TrimSpace(orderID))
}

// ListOrders returns a user's orders newest first.
func (s *Store) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC
`, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	rows.Close()

	orders := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		order, err := s.loadOrder(ctx, s.sqlDB, userID, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (s *Store) loadOrder(ctx context.Context, q queryer, userID, orderID string) (domain.Order, error) {
	var (
		order     domain.Order
		createdAt int64
	)
	err := q.QueryRowContext(ctx, `
SELECT id, user_id, client_order_id, idempotency_key, request_hash, note,
	subtotal_cents, tax_cents, total_cents, loyalty_points, created_at
FROM orders
WHERE user_id = ? AND id = ?
`, userID, orderID).Scan(
		&order.ID, &order.UserID, &order.ClientOrderID, &order.IdempotencyKey, &order.RequestHash, &order.Note,
		&order.SubtotalCents, &order.TaxCents, &order.TotalCents, &order.LoyaltyPoints, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	order.CreatedAt = unixMillisToTime(createdAt)

	rows, err := q.QueryContext(ctx, `
SELECT product_id, name, quantity, unit_price_cents, line_total_cents
FROM order_lines
WHERE order_id = ?
ORDER BY line_no ASC
`, order.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("list order lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Quantity, &line.UnitPriceCents, &line.LineTotalCents); err != nil {
			return domain.Order{}, fmt.Errorf("scan order line: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("iterate order lines: %w", err)
	}
	return order, nil
}

// LoyaltyBalance returns the user's accrued points.
func (s *Store) LoyaltyBalance(ctx context.Context, userID string) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var points int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT points FROM loyalty_accounts WHERE user_id = ?`, strings.TrimSpace(userID)).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get loyalty balance: %w", err)
	}
	return points, nil
}

// Stats summarizes catalog, orders and stock.
func (s *Store) Stats(ctx context.Context, lowStockThreshold int) (storage.Stats, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Stats{}, err
	}
	var stats storage.Stats
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE active = 1`).Scan(&stats.Products); err != nil {
		return storage.Stats{}, fmt.Errorf("count products: %w", err)
	}
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(total_cents), 0), COALESCE(SUM(loyalty_points), 0), COUNT(DISTINCT user_id)
FROM orders
`).Scan(&stats.Orders, &stats.RevenueCents, &stats.PointsIssued, &stats.DistinctUsers); err != nil {
		return storage.Stats{}, fmt.Errorf("summarize orders: %w", err)
	}
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM inventory WHERE quantity <= ?`, lowStockThreshold).Scan(&stats.LowStockSKUs); err != nil {
		return storage.Stats{}, fmt.Errorf("count low stock: %w", err)
	}
	return stats, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
