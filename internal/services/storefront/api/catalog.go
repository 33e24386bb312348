package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	apperrors "github.com/wholesale-storefront/storefront/internal/platform/errors"
	"github.com/wholesale-storefront/storefront/internal/platform/httpx"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/domain"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/storage"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.ListCategories(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.ListProducts(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.activeProduct(r, chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err, "product")
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, product)
}

// activeProduct loads a product that may be sold. Inactive products read as
// missing.
func (s *Server) activeProduct(r *http.Request, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, apperrors.New(apperrors.CodeProductIDEmpty, "product id is required")
	}
	product, err := s.store.GetProduct(r.Context(), id)
	if err != nil {
		return domain.Product{}, err
	}
	if !product.Active {
		return domain.Product{}, storage.ErrNotFound
	}
	return product, nil
}

type productRequest struct {
	SKU        string             `json:"sku"`
	Name       string             `json:"name"`
	CategoryID string             `json:"category_id"`
	PriceCents int64              `json:"price_cents"`
	Tiers      []domain.PriceTier `json:"tiers"`
	Active     *bool              `json:"active"`
}

func (s *Server) handlePutProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	product := domain.Product{
		ID:         chi.URLParam(r, "id"),
		SKU:        req.SKU,
		Name:       req.Name,
		CategoryID: req.CategoryID,
		PriceCents: req.PriceCents,
		Tiers:      req.Tiers,
		Active:     req.Active == nil || *req.Active,
	}.Normalize()
	if err := product.Validate(); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := s.store.PutProduct(r.Context(), product); err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, product)
}
