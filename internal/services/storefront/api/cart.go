package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	apperrors "github.com/wholesale-storefront/storefront/internal/platform/errors"
	"github.com/wholesale-storefront/storefront/internal/platform/httpx"
	"github.com/wholesale-storefront/storefront/internal/platform/requestctx"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/domain"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/storage"
)

type cartResponse struct {
	Lines []domain.OrderLine `json:"lines"`
	domain.Totals
	TotalDisplay string `json:"total_display"`
}

type cartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	s.writeCart(w, r)
}

func (s *Server) handlePutCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if req.Quantity <= 0 {
		httpx.WriteError(w, apperrors.New(apperrors.CodeCartQuantityInvalid, "quantity must be positive"))
		return
	}
	product, err := s.activeProduct(r, chi.URLParam(r, "productID"))
	if err != nil {
		writeStoreError(w, err, "product")
		return
	}
	userID := requestctx.UserIDFromContext(r.Context())
	if err := s.store.PutCartItem(r.Context(), userID, storage.CartItem{
		ProductID: product.ID,
		Quantity:  req.Quantity,
		UpdatedAt: s.now().UTC(),
	}); err != nil {
		httpx.WriteError(w, err)
		return
	}
	s.writeCart(w, r)
}

func (s *Server) handleDeleteCartItem(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(w, apperrors.New(apperrors.CodeProductIDEmpty, "product id is required"))
		return
	}
	if err := s.store.DeleteCartItem(r.Context(), requestctx.UserIDFromContext(r.Context()), productID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	s.writeCart(w, r)
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearCart(r.Context(), requestctx.UserIDFromContext(r.Context())); err != nil {
		httpx.WriteError(w, err)
		return
	}
	s.writeCart(w, r)
}

func (s *Server) writeCart(w http.ResponseWriter, r *http.Request) {
	principal, _ := requestctx.PrincipalFromContext(r.Context())
	lines, err := s.pricedCart(r, principal.UserID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	totals := domain.ComputeTotals(lines, s.taxRateBps, principal.TaxExempt)
	_ = httpx.WriteJSON(w, http.StatusOK, cartResponse{
		Lines:        lines,
		Totals:       totals,
		TotalDisplay: domain.FormatCents(totals.TotalCents),
	})
}

// pricedCart prices the stored cart. Lines whose product was removed or
// deactivated are skipped.
func (s *Server) pricedCart(r *http.Request, userID string) ([]domain.OrderLine, error) {
	items, err := s.store.ListCartItems(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	lines := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		product, err := s.activeProduct(r, item.ProductID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		line, err := domain.PriceLine(product, item.Quantity)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}
