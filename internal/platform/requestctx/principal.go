// Package requestctx carries per-request identity through context.
package requestctx

import "context"

// Principal is the authenticated caller of a storefront request.
type Principal struct {
	UserID    string
	Role      string
	TaxExempt bool
}

// IsAdmin reports whether the principal may use admin endpoints.
func (p Principal) IsAdmin() bool {
	return p.Role == "admin"
}

type principalContextKey struct{}

type bearerTokenContextKey struct{}

// WithPrincipal stores the authenticated principal in context.
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext returns the principal stored in context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	principal, ok := ctx.Value(principalContextKey{}).(Principal)
	return principal, ok
}

// UserIDFromContext returns the authenticated user identifier, if any.
func UserIDFromContext(ctx context.Context) string {
	principal, _ := PrincipalFromContext(ctx)
	return principal.UserID
}

// WithBearerToken stores the raw bearer token presented by the caller.
func WithBearerToken(ctx context.Context, token string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bearerTokenContextKey{}, token)
}

// BearerTokenFromContext returns the raw bearer token stored in context.
func BearerTokenFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(bearerTokenContextKey{}).(string)
	return value
}
