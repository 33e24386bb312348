package api

import (
	"net/http"

	"github.com/wholesale-storefront/storefront/internal/platform/bearer"
	apperrors "github.com/wholesale-storefront/storefront/internal/platform/errors"
	"github.com/wholesale-storefront/storefront/internal/platform/httpx"
	"github.com/wholesale-storefront/storefront/internal/platform/requestctx"
)

// requireAuth verifies the bearer token and stores the principal in the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := httpx.BearerToken(r)
		principal, err := bearer.Verify(s.tokens, token)
		if err != nil {
			s.logf("auth rejected path=%s err=%v", r.URL.Path, err)
			httpx.WriteError(w, err)
			return
		}
		ctx := requestctx.WithPrincipal(r.Context(), principal)
		ctx = requestctx.WithBearerToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requestctx.PrincipalFromContext(r.Context())
		if !ok || !principal.IsAdmin() {
			httpx.WriteError(w, apperrors.New(apperrors.CodeForbidden, "admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type meResponse struct {
	UserID        string `json:"user_id"`
	Role          string `json:"role,omitempty"`
	TaxExempt     bool   `json:"tax_exempt"`
	LoyaltyPoints int64  `json:"loyalty_points"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := requestctx.PrincipalFromContext(r.Context())
	points, err := s.store.LoyaltyBalance(r.Context(), principal.UserID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, meResponse{
		UserID:        principal.UserID,
		Role:          principal.Role,
		TaxExempt:     principal.TaxExempt,
		LoyaltyPoints: points,
	})
}
