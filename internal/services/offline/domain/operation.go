// Package domain defines the offline mutation model replayed by the sync agent.
package domain

import (
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/wholesale-storefront/storefront/internal/platform/errors"
)

// Kind is the mutation verb of a pending operation.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindRemove Kind = "remove"
	KindClear  Kind = "clear"
)

// Resource names the local object store an operation mutates.
type Resource string

const (
	ResourceCart      Resource = "cart"
	ResourceOrder     Resource = "order"
	ResourceInventory Resource = "inventory"
)

// allowedKinds lists the kinds each resource accepts.
var allowedKinds = map[Resource]map[Kind]bool{
	ResourceCart:      {KindUpdate: true, KindRemove: true, KindClear: true},
	ResourceOrder:     {KindCreate: true},
	ResourceInventory: {KindUpdate: true},
}

// Credentials is the caller identity captured when the operation was queued.
// Replays always use the snapshot, never the identity current at drain time.
type Credentials struct {
	BearerToken string
	UserID      string
}

// Redacted returns a copy safe to expose through status endpoints.
func (c Credentials) Redacted() Credentials {
	if c.BearerToken == "" {
		return c
	}
	return Credentials{BearerToken: "[redacted]", UserID: c.UserID}
}

// Operation is one queued, not-yet-synced mutation.
//
// Operations are append-only: once persisted they are either deleted after a
// successful replay or left untouched for the next drain.
type Operation struct {
	ID             int64
	Kind           Kind
	Resource       Resource
	EntityID       string
	Payload        json.RawMessage
	Credentials    Credentials
	IdempotencyKey string
	EnqueuedAt     time.Time
}

// ParseKind validates a raw kind string.
func ParseKind(raw string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case KindCreate, KindUpdate, KindRemove, KindClear:
		return kind, nil
	default:
		return "", apperrors.WithMetadata(apperrors.CodeOperationKindInvalid, "operation kind is invalid", map[string]string{"kind": raw})
	}
}

// ParseResource validates a raw resource string.
func ParseResource(raw string) (Resource, error) {
	resource := Resource(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := allowedKinds[resource]; !ok {
		return "", apperrors.WithMetadata(apperrors.CodeOperationResourceInvalid, "operation resource is invalid", map[string]string{"resource": raw})
	}
	return resource, nil
}

// Validate checks that the operation can be routed and replayed.
func (o Operation) Validate() error {
	if _, err := ParseKind(string(o.Kind)); err != nil {
		return err
	}
	kinds, ok := allowedKinds[o.Resource]
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeOperationResourceInvalid, "operation resource is invalid", map[string]string{"resource": string(o.Resource)})
	}
	if !kinds[o.Kind] {
		return apperrors.WithMetadata(apperrors.CodeOperationUnsupported, "operation kind is not supported for resource", map[string]string{
			"kind":     string(o.Kind),
			"resource": string(o.Resource),
		})
	}
	if o.needsEntity() && strings.TrimSpace(o.EntityID) == "" {
		return apperrors.New(apperrors.CodeOperationEntityMissing, "operation entity id is required")
	}
	if len(o.Payload) > 0 && !json.Valid(o.Payload) {
		return apperrors.New(apperrors.CodeOperationPayloadInvalid, "operation payload must be valid json")
	}
	return nil
}

func (o Operation) needsEntity() bool {
	return !(o.Resource == ResourceCart && o.Kind == KindClear)
}

// InvalidatedCachePrefixes lists the cache key prefixes a mutation makes stale.
func InvalidatedCachePrefixes(op Operation) []string {
	switch op.Resource {
	case ResourceCart:
		return []string{"cart", "stats"}
	case ResourceOrder:
		return []string{"orders", "cart", "inventory", "stats"}
	case ResourceInventory:
		return []string{"inventory", "products", "stats"}
	default:
		return nil
	}
}
