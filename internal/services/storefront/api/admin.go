package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	apperrors "github.com/wholesale-storefront/storefront/internal/platform/errors"
	"github.com/wholesale-storefront/storefront/internal/platform/httpx"
	"github.com/wholesale-storefront/storefront/internal/platform/requestctx"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/domain"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/storage"
)

type inventoryRequest struct {
	Quantity int    `json:"quantity"`
	Note     string `json:"note"`
}

// handlePutInventory overwrites a SKU's stock. The quantity is absolute so
// a replayed edit lands on the same value.
func (s *Server) handlePutInventory(w http.ResponseWriter, r *http.Request) {
	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	if sku == "" {
		httpx.WriteError(w, apperrors.New(apperrors.CodeProductIDEmpty, "sku is required"))
		return
	}
	var req inventoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if req.Quantity < 0 {
		httpx.WriteError(w, apperrors.New(apperrors.CodeInventoryQtyInvalid, "inventory quantity must not be negative"))
		return
	}
	level := storage.StockLevel{
		SKU:       sku,
		Quantity:  req.Quantity,
		Note:      strings.TrimSpace(req.Note),
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.SetStock(r.Context(), level); err != nil {
		httpx.WriteError(w, err)
		return
	}
	s.logf("stock set sku=%s quantity=%d by=%s", sku, req.Quantity, requestctx.UserIDFromContext(r.Context()))
	_ = httpx.WriteJSON(w, http.StatusOK, level)
}

func (s *Server) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	level, err := s.store.GetStock(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		writeStoreError(w, err, "stock level")
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, level)
}

type statsResponse struct {
	storage.Stats
	RevenueDisplay    string `json:"revenue_display"`
	LowStockThreshold int    `json:"low_stock_threshold"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context(), s.lowStockThreshold)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, statsResponse{
		Stats:             stats,
		RevenueDisplay:    domain.FormatCents(stats.RevenueCents),
		LowStockThreshold: s.lowStockThreshold,
	})
}
