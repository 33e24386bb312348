// Package errors provides structured domain errors shared by the storefront
// API and the offline sync agent.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeInvalidJSON     Code = "INVALID_JSON"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"

	// Offline operation errors
	CodeOperationKindInvalid     Code = "OPERATION_KIND_INVALID"
	CodeOperationResourceInvalid Code = "OPERATION_RESOURCE_INVALID"
	CodeOperationUnsupported     Code = "OPERATION_UNSUPPORTED"
	CodeOperationEntityMissing   Code = "OPERATION_ENTITY_MISSING"
	CodeOperationPayloadInvalid  Code = "OPERATION_PAYLOAD_INVALID"

	// Cache errors
	CodeCacheKeyEmpty Code = "CACHE_KEY_EMPTY"

	// Catalog and cart errors
	CodeProductIDEmpty       Code = "PRODUCT_ID_EMPTY"
	CodeProductNameEmpty     Code = "PRODUCT_NAME_EMPTY"
	CodeProductPriceInvalid  Code = "PRODUCT_PRICE_INVALID"
	CodeCartQuantityInvalid  Code = "CART_QUANTITY_INVALID"
	CodeInventoryQtyInvalid  Code = "INVENTORY_QUANTITY_INVALID"
	CodeOrderEmpty           Code = "ORDER_EMPTY"
	CodeInsufficientStock    Code = "INSUFFICIENT_STOCK"
	CodeIdempotencyKeyReused Code = "IDEMPOTENCY_KEY_REUSED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidJSON,
		CodeOperationKindInvalid,
		CodeOperationResourceInvalid,
		CodeOperationUnsupported,
		CodeOperationEntityMissing,
		CodeOperationPayloadInvalid,
		CodeCacheKeyEmpty,
		CodeProductIDEmpty,
		CodeProductNameEmpty,
		CodeProductPriceInvalid,
		CodeCartQuantityInvalid,
		CodeInventoryQtyInvalid,
		CodeOrderEmpty:
		return http.StatusBadRequest

	case CodeUnauthenticated:
		return http.StatusUnauthorized

	case CodeForbidden:
		return http.StatusForbidden

	case CodeNotFound:
		return http.StatusNotFound

	case CodeInsufficientStock,
		CodeIdempotencyKeyReused:
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}
