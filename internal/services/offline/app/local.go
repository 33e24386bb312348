package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/wholesale-storefront/storefront/internal/platform/bearer"
	apperrors "github.com/wholesale-storefront/storefront/internal/platform/errors"
	"github.com/wholesale-storefront/storefront/internal/platform/httpx"
	"github.com/wholesale-storefront/storefront/internal/services/offline/cache"
	"github.com/wholesale-storefront/storefront/internal/services/offline/connectivity"
	"github.com/wholesale-storefront/storefront/internal/services/offline/domain"
	"github.com/wholesale-storefront/storefront/internal/services/offline/queue"
	"github.com/wholesale-storefront/storefront/internal/services/offline/storage"
)

// Fetcher reads a storefront resource with the caller's token.
type Fetcher interface {
	Fetch(ctx context.Context, path, token string) ([]byte, error)
}

// LocalAPI is the HTTP surface a POS terminal or storefront UI calls. Every
// mutation lands in the local store and the pending queue before the caller
// gets a response; nothing here waits on the storefront API except cache
// misses.
type LocalAPI struct {
	store   storage.LocalStore
	queue   *queue.Queue
	watcher *connectivity.Watcher
	cache   *cache.Manager
	fetcher Fetcher
	tokens  *TokenTracker
	now     func() time.Time
	logf    func(string, ...any)
}

// LocalAPIConfig wires a LocalAPI.
type LocalAPIConfig struct {
	Store   storage.LocalStore
	Queue   *queue.Queue
	Watcher *connectivity.Watcher
	Cache   *cache.Manager
	Fetcher Fetcher
	Tokens  *TokenTracker
	Now     func() time.Time
	Logf    func(string, ...any)
}

// NewLocalAPI validates dependencies and builds the local API.
func NewLocalAPI(cfg LocalAPIConfig) (*LocalAPI, error) {
	if cfg.Store == nil {
		return nil, errors.New("local store is required")
	}
	if cfg.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if cfg.Watcher == nil {
		return nil, errors.New("connectivity watcher is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("cache manager is required")
	}
	if cfg.Tokens == nil {
		cfg.Tokens = &TokenTracker{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &LocalAPI{
		store:   cfg.Store,
		queue:   cfg.Queue,
		watcher: cfg.Watcher,
		cache:   cfg.Cache,
		fetcher: cfg.Fetcher,
		tokens:  cfg.Tokens,
		now:     cfg.Now,
		logf:    cfg.Logf,
	}, nil
}

// Handler returns the routed local API.
func (a *LocalAPI) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httpx.RecoverPanic())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/local", func(r chi.Router) {
		r.Get("/status", a.handleStatus)
		r.Get("/pending", a.handlePending)
		r.Post("/sync", a.handleSync)
		r.Post("/connectivity", a.handleConnectivity)

		r.Get("/cart", a.handleGetCart)
		r.Put("/cart/items/{productID}", a.handlePutCartItem)
		r.Delete("/cart/items/{productID}", a.handleDeleteCartItem)
		r.Delete("/cart", a.handleClearCart)

		r.Post("/orders", a.handleCreateOrder)
		r.Get("/orders/pending", a.handlePendingOrders)

		r.Put("/inventory/{sku}", a.handlePutInventory)

		r.Get("/api/*", a.handleCachedRead)
	})
	return r
}

type statusResponse struct {
	Online  bool        `json:"online"`
	Pending int         `json:"pending"`
	Queue   queue.Stats `json:"queue"`
}

func (a *LocalAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := a.queue.Len(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, statusResponse{
		Online:  a.watcher.Online(),
		Pending: pending,
		Queue:   a.queue.Stats(),
	})
}

type operationView struct {
	ID             int64           `json:"id"`
	Kind           domain.Kind     `json:"kind"`
	Resource       domain.Resource `json:"resource"`
	EntityID       string          `json:"entity_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	BearerToken    string          `json:"bearer_token,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
}

func newOperationView(op domain.Operation) operationView {
	creds := op.Credentials.Redacted()
	return operationView{
		ID:             op.ID,
		Kind:           op.Kind,
		Resource:       op.Resource,
		EntityID:       op.EntityID,
		Payload:        op.Payload,
		UserID:         creds.UserID,
		BearerToken:    creds.BearerToken,
		IdempotencyKey: op.IdempotencyKey,
		EnqueuedAt:     op.EnqueuedAt,
	}
}

func (a *LocalAPI) handlePending(w http.ResponseWriter, r *http.Request) {
	ops, err := a.queue.Pending(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	views := make([]operationView, 0, len(ops))
	for _, op := range ops {
		views = append(views, newOperationView(op))
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"operations": views})
}

func (a *LocalAPI) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := a.queue.Drain(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, result)
}

type connectivityRequest struct {
	Online *bool `json:"online"`
}

func (a *LocalAPI) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	var req connectivityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if req.Online == nil {
		httpx.WriteError(w, apperrors.New(apperrors.CodeInvalidJSON, "online is required"))
		return
	}
	// Transition hooks may drain; detach from the request so a client
	// disconnect does not abort the replay.
	changed := a.watcher.Set(context.WithoutCancel(r.Context()), *req.Online)
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]bool{
		"online":  a.watcher.Online(),
		"changed": changed,
	})
}

func (a *LocalAPI) handleGetCart(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.ListCartItems(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var total int64
	for _, item := range items {
		total += item.UnitPriceCents * int64(item.Quantity)
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"items":          items,
		"subtotal_cents": total,
	})
}

type cartItemRequest struct {
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`
}

func (a *LocalAPI) handlePutCartItem(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(w, apperrors.New(apperrors.CodeProductIDEmpty, "product id is required"))
		return
	}
	var req cartItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if req.Quantity <= 0 {
		httpx.WriteError(w, apperrors.New(apperrors.CodeCartQuantityInvalid, "quantity must be positive"))
		return
	}
	if req.UnitPriceCents < 0 {
		httpx.WriteError(w, apperrors.New(apperrors.CodeProductPriceInvalid, "unit price must not be negative"))
		return
	}

	if err := a.store.PutCartItem(r.Context(), storage.CartItem{
		ProductID:      productID,
		Quantity:       req.Quantity,
		UnitPriceCents: req.UnitPriceCents,
		UpdatedAt:      a.now().UTC(),
	}); err != nil {
		httpx.WriteError(w, err)
		return
	}
	payload, _ := json.Marshal(map[string]int{"quantity": req.Quantity})
	a.enqueue(w, r, domain.Operation{
		Kind:     domain.KindUpdate,
		Resource: domain.ResourceCart,
		EntityID: productID,
		Payload:  payload,
	})
}

func (a *LocalAPI) handleDeleteCartItem(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(w, apperrors.New(apperrors.CodeProductIDEmpty, "product id is required"))
		return
	}
	if err := a.store.DeleteCartItem(r.Context(), productID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	a.enqueue(w, r, domain.Operation{
		Kind:     domain.KindRemove,
		Resource: domain.ResourceCart,
		EntityID: productID,
	})
}

func (a *LocalAPI) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := a.store.ClearCart(r.Context()); err != nil {
		httpx.WriteError(w, err)
		return
	}
	a.enqueue(w, r, domain.Operation{
		Kind:     domain.KindClear,
		Resource: domain.ResourceCart,
	})
}

type orderLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type orderRequest struct {
	ClientOrderID string             `json:"client_order_id"`
	Items         []orderLineRequest `json:"items"`
	Note          string             `json:"note,omitempty"`
}

func (a *LocalAPI) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if len(req.Items) == 0 {
		httpx.WriteError(w, apperrors.New(apperrors.CodeOrderEmpty, "order needs at least one item"))
		return
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			httpx.WriteError(w, apperrors.New(apperrors.CodeProductIDEmpty, "product id is required"))
			return
		}
		if item.Quantity <= 0 {
			httpx.WriteError(w, apperrors.New(apperrors.CodeCartQuantityInvalid, "quantity must be positive"))
			return
		}
	}
	req.ClientOrderID = strings.TrimSpace(req.ClientOrderID)
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}
	req.Note = strings.TrimSpace(req.Note)
	payload, err := json.Marshal(req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	if err := a.store.PutPendingOrder(r.Context(), storage.PendingOrder{
		ClientOrderID: req.ClientOrderID,
		Payload:       payload,
		CreatedAt:     a.now().UTC(),
	}); err != nil {
		httpx.WriteError(w, err)
		return
	}
	// The client order id doubles as the idempotency key so a retried
	// submission of the same order is deduplicated server side.
	a.enqueue(w, r, domain.Operation{
		Kind:           domain.KindCreate,
		Resource:       domain.ResourceOrder,
		EntityID:       req.ClientOrderID,
		Payload:        payload,
		IdempotencyKey: req.ClientOrderID,
	})
}

func (a *LocalAPI) handlePendingOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.store.ListPendingOrders(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

type inventoryRequest struct {
	Quantity int    `json:"quantity"`
	Note     string `json:"note,omitempty"`
}

func (a *LocalAPI) handlePutInventory(w http.ResponseWriter, r *http.Request) {
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
	req.Note = strings.TrimSpace(req.Note)

	if err := a.store.PutInventoryEdit(r.Context(), storage.InventoryEdit{
		SKU:       sku,
		Quantity:  req.Quantity,
		Note:      req.Note,
		UpdatedAt: a.now().UTC(),
	}); err != nil {
		httpx.WriteError(w, err)
		return
	}
	payload, _ := json.Marshal(req)
	a.enqueue(w, r, domain.Operation{
		Kind:     domain.KindUpdate,
		Resource: domain.ResourceInventory,
		EntityID: sku,
		Payload:  payload,
	})
}

// enqueue snapshots the caller's credentials onto op, queues it, drops the
// cache entries it makes stale and answers 202.
func (a *LocalAPI) enqueue(w http.ResponseWriter, r *http.Request, op domain.Operation) {
	token := httpx.BearerToken(r)
	a.tokens.Observe(token)
	op.Credentials = domain.Credentials{
		BearerToken: token,
		UserID:      bearer.SubjectUnverified(token),
	}

	queued, err := a.queue.Enqueue(r.Context(), op)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	invalidatePrefixes(r.Context(), a.cache, queued, a.logf)
	_ = httpx.WriteJSON(w, http.StatusAccepted, newOperationView(queued))
}

func invalidatePrefixes(ctx context.Context, manager *cache.Manager, op domain.Operation, logf func(string, ...any)) {
	for _, prefix := range domain.InvalidatedCachePrefixes(op) {
		if _, err := manager.InvalidatePrefix(ctx, prefix); err != nil {
			logf("cache invalidate failed prefix=%s err=%v", prefix, err)
		}
	}
}

// handleCachedRead serves GET /local/api/<resource>/... from the cache,
// falling through to the storefront API on a miss while online.
func (a *LocalAPI) handleCachedRead(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(chi.URLParam(r, "*"), "/")
	if rest == "" {
		httpx.WriteError(w, apperrors.New(apperrors.CodeCacheKeyEmpty, "resource path is required"))
		return
	}
	remotePath := "/api/" + rest
	if r.URL.RawQuery != "" {
		remotePath += "?" + r.URL.RawQuery
	}
	token := httpx.BearerToken(r)
	a.tokens.Observe(token)
	subject := bearer.SubjectUnverified(token)
	if userScopedPrefixes[cachePrefixForPath(remotePath)] && subject == "" {
		httpx.WriteError(w, apperrors.New(apperrors.CodeUnauthenticated, "bearer token is required"))
		return
	}
	key := cacheKeyForPath(remotePath, subject)

	value, ok, err := a.cache.Get(r.Context(), key)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if ok {
		writeCached(w, "HIT", value)
		return
	}
	if !a.watcher.Online() || a.fetcher == nil {
		_ = httpx.WriteJSONError(w, http.StatusServiceUnavailable, "offline and not cached")
		return
	}
	value, err = a.fetcher.Fetch(r.Context(), remotePath, token)
	if err != nil {
		a.logf("cache fill failed key=%s err=%v", key, err)
		_ = httpx.WriteJSONError(w, http.StatusBadGateway, "storefront request failed")
		return
	}
	if err := a.cache.Set(r.Context(), key, value); err != nil {
		a.logf("cache set failed key=%s err=%v", key, err)
	}
	writeCached(w, "MISS", value)
}

// segmentPrefixes renames API path segments whose cache prefix differs.
var segmentPrefixes = map[string]string{
	"me": "user",
}

// userScopedPrefixes hold one buyer's view of a resource. Their keys carry
// the token subject so buyers sharing a terminal never see each other's data.
var userScopedPrefixes = map[string]bool{
	"cart":   true,
	"orders": true,
	"user":   true,
}

// cachePrefixForPath returns the cache prefix for /api/<segment>/...
// Admin reads use the segment after /api/admin.
func cachePrefixForPath(remotePath string) string {
	segment := strings.TrimPrefix(remotePath, "/api/")
	segment = strings.TrimPrefix(segment, "admin/")
	if idx := strings.IndexAny(segment, "/?"); idx >= 0 {
		segment = segment[:idx]
	}
	if prefix, ok := segmentPrefixes[segment]; ok {
		return prefix
	}
	return segment
}

// cacheKeyForPath returns "<prefix>:<path>", or "<prefix>:<subject>:<path>"
// for user-scoped prefixes.
func cacheKeyForPath(remotePath, subject string) string {
	prefix := cachePrefixForPath(remotePath)
	if userScopedPrefixes[prefix] {
		return prefix + ":" + subject + ":" + remotePath
	}
	return prefix + ":" + remotePath
}

// remotePathForKey inverts cacheKeyForPath. subject is empty for shared
// prefixes.
func remotePathForKey(key string) (path, subject string, ok bool) {
	prefix, rest, found := strings.Cut(key, ":")
	if !found {
		return "", "", false
	}
	if userScopedPrefixes[prefix] {
		idx := strings.Index(rest, ":/api/")
		if idx <= 0 {
			return "", "", false
		}
		subject, rest = rest[:idx], rest[idx+1:]
	}
	if !strings.HasPrefix(rest, "/api/") {
		return "", "", false
	}
	return rest, subject, true
}

func writeCached(w http.ResponseWriter, state string, value []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Cache", state)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(value)
}

// TokenTracker remembers the bearer tokens seen by the local API so
// background cache refreshes can authenticate as the buyer a key belongs to.
type TokenTracker struct {
	mu        sync.Mutex
	last      string
	bySubject map[string]string
}

func (t *TokenTracker) Observe(token string) {
	if t == nil {
		return
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	subject := bearer.SubjectUnverified(token)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = token
	if subject != "" {
		if t.bySubject == nil {
			t.bySubject = map[string]string{}
		}
		t.bySubject[subject] = token
	}
}

// Last returns the most recent token from any caller.
func (t *TokenTracker) Last() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// For returns the most recent token whose subject is subject.
func (t *TokenTracker) For(subject string) string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bySubject[subject]
}
