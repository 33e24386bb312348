package domain

import (
	"net/http"
	"net/url"
)

// Route is the remote REST call that replays an operation.
type Route struct {
	Method   string
	Path     string
	SendBody bool
}

// RouteFor maps an operation to the storefront endpoint implied by its kind.
func RouteFor(op Operation) (Route, error) {
	if err := op.Validate(); err != nil {
		return Route{}, err
	}
	entity := url.PathEscape(op.EntityID)
	switch op.Resource {
	case ResourceCart:
		switch op.Kind {
		case KindUpdate:
			return Route{Method: http.MethodPut, Path: "/api/cart/items/" + entity, SendBody: true}, nil
		case KindRemove:
			return Route{Method: http.MethodDelete, Path: "/api/cart/items/" + entity}, nil
		case KindClear:
			return Route{Method: http.MethodDelete, Path: "/api/cart"}, nil
		}
	case ResourceOrder:
		return Route{Method: http.MethodPost, Path: "/api/orders", SendBody: true}, nil
	case ResourceInventory:
		return Route{Method: http.MethodPut, Path: "/api/admin/inventory/" + entity, SendBody: true}, nil
	}
	// Validate already rejected every other combination.
	return Route{}, nil
}
