// Package api serves the storefront REST surface that the sync agent
// replays offline mutations against.
package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wholesale-storefront/storefront/internal/platform/bearer"
	apperrors "github.com/wholesale-storefront/storefront/internal/platform/errors"
	"github.com/wholesale-storefront/storefront/internal/platform/httpx"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/storage"
)

// DefaultLowStockThreshold is the on-hand quantity at or below which a SKU
// counts as low stock in admin stats.
const DefaultLowStockThreshold = 5

// Config wires a Server.
type Config struct {
	Store             storage.Store
	Tokens            bearer.Config
	TaxRateBps        int64
	LowStockThreshold int
	NewID             func() string
	Now               func() time.Time
	Logf              func(string, ...any)
}

// Server handles storefront API requests.
type Server struct {
	store             storage.Store
	tokens            bearer.Config
	taxRateBps        int64
	lowStockThreshold int
	newID             func() string
	now               func() time.Time
	logf              func(string, ...any)
}

// NewServer validates cfg and builds a Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("storefront store is required")
	}
	if len(cfg.Tokens.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.TaxRateBps < 0 {
		return nil, errors.New("tax rate must not be negative")
	}
	if cfg.LowStockThreshold <= 0 {
		cfg.LowStockThreshold = DefaultLowStockThreshold
	}
	if cfg.NewID == nil {
		cfg.NewID = newOrderID
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Server{
		store:             cfg.Store,
		tokens:            cfg.Tokens,
		taxRateBps:        cfg.TaxRateBps,
		lowStockThreshold: cfg.LowStockThreshold,
		newID:             cfg.NewID,
		now:               cfg.Now,
		logf:              cfg.Logf,
	}, nil
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httpx.RecoverPanic())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			_ = httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/me", s.handleMe)

			r.Get("/categories", s.handleListCategories)
			r.Get("/products", s.handleListProducts)
			r.Get("/products/{id}", s.handleGetProduct)

			r.Get("/cart", s.handleGetCart)
			r.Put("/cart/items/{productID}", s.handlePutCartItem)
			r.Delete("/cart/items/{productID}", s.handleDeleteCartItem)
			r.Delete("/cart", s.handleClearCart)

			r.Post("/orders", s.handleCreateOrder)
			r.Get("/orders", s.handleListOrders)
			r.Get("/orders/{id}", s.handleGetOrder)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Put("/inventory/{sku}", s.handlePutInventory)
				r.Get("/inventory/{sku}", s.handleGetInventory)
				r.Put("/products/{id}", s.handlePutProduct)
				r.Get("/stats", s.handleStats)
			})
		})
	})
	return r
}

// writeStoreError maps storage.ErrNotFound to a 404 before the generic
// error writer sees it.
func writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, apperrors.Wrap(apperrors.CodeNotFound, what+" not found", err))
		return
	}
	httpx.WriteError(w, err)
}
