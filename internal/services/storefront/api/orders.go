package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	apperrors "github.com/wholesale-storefront/storefront/internal/platform/errors"
	"github.com/wholesale-storefront/storefront/internal/platform/httpx"
	"github.com/wholesale-storefront/storefront/internal/platform/requestctx"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/domain"
)

// IdempotencyKeyHeader carries the client's deduplication key.
const IdempotencyKeyHeader = "Idempotency-Key"

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type orderRequest struct {
	ClientOrderID string             `json:"client_order_id"`
	Items         []orderItemRequest `json:"items"`
	Note          string             `json:"note"`
}

type orderResponse struct {
	domain.Order
	TotalDisplay string `json:"total_display"`
	Replayed     bool   `json:"replayed"`
}

func newOrderID() string {
	return uuid.NewString()
}

// handleCreateOrder places an order. An empty item list checks out the
// caller's cart. A retried request with the same idempotency key answers
// 200 with the original order instead of placing a second one.
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	principal, _ := requestctx.PrincipalFromContext(r.Context())
	req.ClientOrderID = strings.TrimSpace(req.ClientOrderID)
	req.Note = strings.TrimSpace(req.Note)
	for i := range req.Items {
		req.Items[i].ProductID = strings.TrimSpace(req.Items[i].ProductID)
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" {
		key = req.ClientOrderID
	}
	// Fingerprint the body as sent: a cart checkout retried after the cart
	// was cleared still matches its first attempt.
	hash := requestHash(req)
	if key != "" {
		stored, found, err := s.store.FindOrderByKey(r.Context(), principal.UserID, key, hash)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		if found {
			writeOrder(w, http.StatusOK, stored, true)
			return
		}
	}

	fromCart := len(req.Items) == 0
	if fromCart {
		cartItems, err := s.store.ListCartItems(r.Context(), principal.UserID)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		for _, item := range cartItems {
			req.Items = append(req.Items, orderItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
		}
	}
	items, err := mergeItems(req.Items)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	lines := make([]domain.OrderLine, 0, len(items))
	skus := make(map[string]string, len(items))
	for _, item := range items {
		product, err := s.activeProduct(r, item.ProductID)
		if err != nil {
			writeStoreError(w, err, "product "+item.ProductID)
			return
		}
		line, err := domain.PriceLine(product, item.Quantity)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		lines = append(lines, line)
		skus[product.ID] = product.SKU
	}

	order := domain.Order{
		ID:             s.newID(),
		UserID:         principal.UserID,
		ClientOrderID:  req.ClientOrderID,
		IdempotencyKey: key,
		RequestHash:    hash,
		Note:           req.Note,
		Lines:          lines,
		Totals:         domain.ComputeTotals(lines, s.taxRateBps, principal.TaxExempt),
		CreatedAt:      s.now().UTC(),
	}
	stored, created, err := s.store.CreateOrder(r.Context(), order, skus)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.logf("order placed id=%s user=%s total=%d key=%s", stored.ID, stored.UserID, stored.TotalCents, key)
		if fromCart {
			if err := s.store.ClearCart(r.Context(), principal.UserID); err != nil {
				s.logf("clear cart after checkout failed user=%s err=%v", principal.UserID, err)
			}
		}
	}
	writeOrder(w, status, stored, !created)
}

func writeOrder(w http.ResponseWriter, status int, order domain.Order, replayed bool) {
	_ = httpx.WriteJSON(w, status, orderResponse{
		Order:        order,
		TotalDisplay: domain.FormatCents(order.TotalCents),
		Replayed:     replayed,
	})
}

// mergeItems validates items and folds repeated products into one line so
// tier pricing sees the combined quantity. First-seen order is kept.
func mergeItems(items []orderItemRequest) ([]orderItemRequest, error) {
	if len(items) == 0 {
		return nil, apperrors.New(apperrors.CodeOrderEmpty, "order needs at least one item")
	}
	merged := make([]orderItemRequest, 0, len(items))
	index := map[string]int{}
	for _, item := range items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" {
			return nil, apperrors.New(apperrors.CodeProductIDEmpty, "product id is required")
		}
		if item.Quantity <= 0 {
			return nil, apperrors.WithMetadata(apperrors.CodeCartQuantityInvalid, "quantity must be positive", map[string]string{"product_id": item.ProductID})
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// requestHash fingerprints the order body so a reused idempotency key with
// a different order can be told apart from a retry.
func requestHash(req orderRequest) string {
	if len(req.Items) == 0 {
		req.Items = nil
	}
	body, _ := json.Marshal(req)
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.ListOrders(r.Context(), requestctx.UserIDFromContext(r.Context()))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.store.GetOrder(r.Context(), requestctx.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "order")
		return
	}
	writeOrder(w, http.StatusOK, order, false)
}
