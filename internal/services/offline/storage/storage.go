// Package storage defines the sync agent's local persistence contracts.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wholesale-storefront/storefront/internal/services/offline/domain"
)

// OperationStore persists the pending-operation queue.
type OperationStore interface {
	// AppendOperation stores op and returns its auto-increment id.
	AppendOperation(ctx context.Context, op domain.Operation) (int64, error)
	// ListOperations returns queued operations in insertion order.
	// A non-positive limit returns every entry.
	ListOperations(ctx context.Context, limit int) ([]domain.Operation, error)
	DeleteOperation(ctx context.Context, id int64) error
	CountOperations(ctx context.Context) (int, error)
}

// CartItem is one line of the locally mirrored cart.
type CartItem struct {
	ProductID      string    `json:"product_id"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PendingOrder is an order captured while it has not reached the server.
type PendingOrder struct {
	ClientOrderID string          `json:"client_order_id"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

// InventoryEdit is an in-store stock adjustment awaiting sync.
type InventoryEdit struct {
	SKU       string    `json:"sku"`
	Quantity  int       `json:"quantity"`
	Note      string    `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LocalStore holds the per-entity object stores keyed by natural id.
type LocalStore interface {
	PutCartItem(ctx context.Context, item CartItem) error
	DeleteCartItem(ctx context.Context, productID string) error
	ClearCart(ctx context.Context) error
	ListCartItems(ctx context.Context) ([]CartItem, error)

	PutPendingOrder(ctx context.Context, order PendingOrder) error
	DeletePendingOrder(ctx context.Context, clientOrderID string) error
	ListPendingOrders(ctx context.Context) ([]PendingOrder, error)

	PutInventoryEdit(ctx context.Context, edit InventoryEdit) error
	DeleteInventoryEdit(ctx context.Context, sku string) error
	ListInventoryEdits(ctx context.Context) ([]InventoryEdit, error)
}

// CacheEntry stores one cached API response with freshness metadata.
//
// Cache data is always derived and can be discarded and refetched.
type CacheEntry struct {
	Key           string
	Value         []byte
	StoredAt      time.Time
	SchemaVersion string
}

// CacheStore persists cache entries.
type CacheStore interface {
	GetCacheEntry(ctx context.Context, key string) (CacheEntry, bool, error)
	PutCacheEntry(ctx context.Context, entry CacheEntry) error
	DeleteCacheEntry(ctx context.Context, key string) error
	DeleteCacheEntriesWithPrefix(ctx context.Context, prefix string) (int, error)
	ListCacheEntries(ctx context.Context) ([]CacheEntry, error)
}
