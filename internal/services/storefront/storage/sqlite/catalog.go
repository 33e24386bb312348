package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wholesale-storefront/storefront/internal/services/storefront/domain"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/storage"
)

// PutCategory upserts a category.
func (s *Store) PutCategory(ctx context.Context, category domain.Category) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	category.ID = strings.TrimSpace(category.ID)
	if category.ID == "" {
		return fmt.Errorf("category id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO categories (id, name) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name
`, category.ID, strings.TrimSpace(category.Name))
	if err != nil {
		return fmt.Errorf("put category: %w", err)
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []domain.Category{}
	for rows.Next() {
		var category domain.Category
		if err := rows.Scan(&category.ID, &category.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// PutProduct upserts a product and replaces its price tiers.
func (s *Store) PutProduct(ctx context.Context, product domain.Product) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	product = product.Normalize()
	if err := product.Validate(); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put product: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO products (id, sku, name, category_id, price_cents, active, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	sku = excluded.sku,
	name = excluded.name,
	category_id = excluded.category_id,
	price_cents = excluded.price_cents,
	active = excluded.active,
	updated_at = excluded.updated_at
`, product.ID, product.SKU, product.Name, product.CategoryID, product.PriceCents, boolToInt(product.Active), s.nowMillis()); err != nil {
		return fmt.Errorf("put product: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM price_tiers WHERE product_id = ?`, product.ID); err != nil {
		return fmt.Errorf("clear price tiers: %w", err)
	}
	for _, tier := range product.Tiers {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO price_tiers (product_id, min_qty, unit_price_cents) VALUES (?, ?, ?)
`, product.ID, tier.MinQty, tier.UnitPriceCents); err != nil {
			return fmt.Errorf("put price tier: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put product: %w", err)
	}
	return nil
}

// GetProduct returns one product, active or not.
func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Product{}, err
	}
	var (
		product domain.Product
		active  int
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, sku, name, category_id, price_cents, active
FROM products
WHERE id = ?
`, strings.TrimSpace(id)).Scan(&product.ID, &product.SKU, &product.Name, &product.CategoryID, &product.PriceCents, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	product.Active = active == 1

	tiers, err := s.loadTiers(ctx, []string{product.ID})
	if err != nil {
		return domain.Product{}, err
	}
	product.Tiers = tiers[product.ID]
	return product, nil
}

// ListProducts lists active products by name.
func (s *Store) ListProducts(ctx context.Context, categoryID string) ([]domain.Product, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	categoryID = strings.TrimSpace(categoryID)
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, sku, name, category_id, price_cents
FROM products
WHERE active = 1 AND (? = '' OR category_id = ?)
ORDER BY name ASC, id ASC
`, categoryID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	var ids []string
	for rows.Next() {
		product := domain.Product{Active: true}
		if err := rows.Scan(&product.ID, &product.SKU, &product.Name, &product.CategoryID, &product.PriceCents); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
		ids = append(ids, product.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	tiers, err := s.loadTiers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Tiers = tiers[products[i].ID]
	}
	return products, nil
}

func (s *Store) loadTiers(ctx context.Context, productIDs []string) (map[string][]domain.PriceTier, error) {
	tiers := map[string][]domain.PriceTier{}
	if len(productIDs) == 0 {
		return tiers, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(productIDs)), ",")
	args := make([]any, 0, len(productIDs))
	for _, id := range productIDs {
		args = append(args, id)
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT product_id, min_qty, unit_price_cents
FROM price_tiers
WHERE product_id IN (`+placeholders+`)
ORDER BY product_id ASC, min_qty ASC
`, args...)
	if err != nil {
		return nil, fmt.Errorf("list price tiers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			productID string
			tier      domain.PriceTier
		)
		if err := rows.Scan(&productID, &tier.MinQty, &tier.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("scan price tier: %w", err)
		}
		tiers[productID] = append(tiers[productID], tier)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price tiers: %w", err)
	}
	return tiers, nil
}
