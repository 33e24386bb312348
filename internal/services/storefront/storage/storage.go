// Package storage defines the storefront persistence contracts.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/wholesale-storefront/storefront/internal/services/storefront/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// CatalogStore persists categories and products.
type CatalogStore interface {
	PutCategory(ctx context.Context, category domain.Category) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
	PutProduct(ctx context.Context, product domain.Product) error
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	// ListProducts returns active products, optionally limited to one category.
	ListProducts(ctx context.Context, categoryID string) ([]domain.Product, error)
}

// CartItem is one stored cart line before pricing.
type CartItem struct {
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CartStore persists per-user carts.
type CartStore interface {
	PutCartItem(ctx context.Context, userID string, item CartItem) error
	DeleteCartItem(ctx context.Context, userID, productID string) error
	ClearCart(ctx context.Context, userID string) error
	ListCartItems(ctx context.Context, userID string) ([]CartItem, error)
}

// StockLevel is the on-hand quantity of one SKU.
type StockLevel struct {
	SKU       string    `json:"sku"`
	Quantity  int       `json:"quantity"`
	Note      string    `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InventoryStore persists stock levels. SKUs without a row are untracked.
type InventoryStore interface {
	SetStock(ctx context.Context, level StockLevel) error
	GetStock(ctx context.Context, sku string) (StockLevel, error)
}

// OrderStore persists orders.
type OrderStore interface {
	// CreateOrder stores order and decrements tracked stock in one
	// transaction. When the user already placed an order with the same
	// idempotency key, the existing order is returned with created=false.
	CreateOrder(ctx context.Context, order domain.Order, skus map[string]string) (stored domain.Order, created bool, err error)
	// FindOrderByKey returns the order the user placed under key. A stored
	// order whose request hash differs is an IDEMPOTENCY_KEY_REUSED error.
	FindOrderByKey(ctx context.Context, userID, key, requestHash string) (domain.Order, bool, error)
	GetOrder(ctx context.Context, userID, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)
}

// LoyaltyStore reads accrued loyalty balances.
type LoyaltyStore interface {
	LoyaltyBalance(ctx context.Context, userID string) (int64, error)
}

// Stats summarizes the store for admins.
type Stats struct {
	Products      int   `json:"products"`
	Orders        int   `json:"orders"`
	RevenueCents  int64 `json:"revenue_cents"`
	LowStockSKUs  int   `json:"low_stock_skus"`
	PointsIssued  int64 `json:"points_issued"`
	DistinctUsers int   `json:"distinct_buyers"`
}

// StatsStore computes admin statistics.
type StatsStore interface {
	Stats(ctx context.Context, lowStockThreshold int) (Stats, error)
}

// Store is the full storefront persistence surface.
type Store interface {
	CatalogStore
	CartStore
	InventoryStore
	OrderStore
	LoyaltyStore
	StatsStore
}
