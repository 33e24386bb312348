package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/wholesale-storefront/storefront/internal/platform/bearer"
	"github.com/wholesale-storefront/storefront/internal/platform/requestctx"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/domain"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/storage"
	storesqlite "github.com/wholesale-storefront/storefront/internal/services/storefront/storage/sqlite"
)

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	server *httptest.Server
	store  *storesqlite.Store
	tokens bearer.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storesqlite.Open(filepath.Join(t.TempDir(), "storefront.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	env := &testEnv{
		store: store,
		tokens: bearer.Config{
			Secret: []byte("0123456789abcdef0123456789abcdef"),
			Issuer: "storefront-test",
			TTL:    time.Hour,
			Now:    func() time.Time { return testNow },
		},
	}
	var seq atomic.Int64
	srv, err := NewServer(Config{
		Store:      store,
		Tokens:     env.tokens,
		TaxRateBps: 1000,
		NewID: func() string {
			return fmt.Sprintf("order-%d", seq.Add(1))
		},
		Now:  func() time.Time { return testNow },
		Logf: func(string, ...any) {},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	env.server = httptest.NewServer(srv.Handler())
	t.Cleanup(env.server.Close)

	ctx := t.Context()
	if err := store.PutCategory(ctx, domain.Category{ID: "paper", Name: "Paper"}); err != nil {
		t.Fatalf("seed category: %v", err)
	}
	products := []domain.Product{
		{ID: "widget", SKU: "W-1", Name: "Widget", CategoryID: "paper", PriceCents: 500,
			Tiers: []domain.PriceTier{{MinQty: 10, UnitPriceCents: 450}}, Active: true},
		{ID: "gadget", Name: "Gadget", PriceCents: 1200, Active: true},
		{ID: "retired", Name: "Retired", PriceCents: 100},
	}
	for _, product := range products {
		if err := store.PutProduct(ctx, product); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}
	return env
}

func (e *testEnv) token(t *testing.T, principal requestctx.Principal) string {
	t.Helper()
	token, err := bearer.Issue(e.tokens, principal)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var value T
	if err := json.NewDecoder(resp.Body).Decode(&value); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return value
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/health", "", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.token(t, requestctx.Principal{UserID: "buyer-1"})

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{name: "missing token", method: http.MethodGet, path: "/api/products", want: http.StatusUnauthorized},
		{name: "garbage token", method: http.MethodGet, path: "/api/products", token: "nope", want: http.StatusUnauthorized},
		{name: "buyer reads catalog", method: http.MethodGet, path: "/api/products", token: buyer, want: http.StatusOK},
		{name: "buyer denied stats", method: http.MethodGet, path: "/api/admin/stats", token: buyer, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, tt.method, tt.path, tt.token, nil, nil)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestCatalogHidesInactiveProducts(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, requestctx.Principal{UserID: "buyer-1"})

	resp := env.do(t, http.MethodGet, "/api/products?category=paper", token, nil, nil)
	listed := decode[struct {
		Products []domain.Product `json:"products"`
	}](t, resp)
	if len(listed.Products) != 1 || listed.Products[0].ID != "widget" {
		t.Fatalf("products = %+v, want widget only", listed.Products)
	}

	resp = env.do(t, http.MethodGet, "/api/products/retired", token, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("inactive product status = %d, want 404", resp.StatusCode)
	}
}

func TestCartPricesWithTiersAndTax(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, requestctx.Principal{UserID: "buyer-1"})

	resp := env.do(t, http.MethodPut, "/api/cart/items/widget", token, map[string]int{"quantity": 10}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put cart item status = %d", resp.StatusCode)
	}
	cart := decode[cartResponse](t, resp)
	want := cartResponse{
		Lines: []domain.OrderLine{{ProductID: "widget", Name: "Widget", Quantity: 10, UnitPriceCents: 450, LineTotalCents: 4500}},
		Totals: domain.Totals{
			SubtotalCents: 4500,
			TaxCents:      450,
			TotalCents:    4950,
			LoyaltyPoints: 45,
		},
		TotalDisplay: "$49.50",
	}
	if diff := cmp.Diff(want, cart); diff != "" {
		t.Fatalf("cart mismatch (-want +got):\n%s", diff)
	}

	resp = env.do(t, http.MethodPut, "/api/cart/items/retired", token, map[string]int{"quantity": 1}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("inactive cart item status = %d, want 404", resp.StatusCode)
	}
	resp = env.do(t, http.MethodPut, "/api/cart/items/widget", token, map[string]int{"quantity": 0}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("zero quantity status = %d, want 400", resp.StatusCode)
	}

	resp = env.do(t, http.MethodDelete, "/api/cart", token, nil, nil)
	cart = decode[cartResponse](t, resp)
	if len(cart.Lines) != 0 || cart.TotalCents != 0 {
		t.Fatalf("cleared cart = %+v", cart)
	}
}

func TestTaxExemptBuyerPaysNoTax(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, requestctx.Principal{UserID: "buyer-1", TaxExempt: true})

	resp := env.do(t, http.MethodPost, "/api/orders", token, orderRequest{
		Items: []orderItemRequest{{ProductID: "gadget", Quantity: 1}},
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	order := decode[orderResponse](t, resp)
	if order.TaxCents != 0 || order.TotalCents != 1200 {
		t.Fatalf("order totals = %+v, want untaxed 1200", order.Totals)
	}
}

func TestCreateOrderIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, requestctx.Principal{UserID: "buyer-1"})
	if err := env.store.SetStock(t.Context(), storage.StockLevel{SKU: "W-1", Quantity: 20}); err != nil {
		t.Fatalf("set stock: %v", err)
	}

	body := orderRequest{
		ClientOrderID: "pos-7",
		Items:         []orderItemRequest{{ProductID: "widget", Quantity: 4}, {ProductID: "widget", Quantity: 6}},
	}
	headers := map[string]string{IdempotencyKeyHeader: "pos-7"}

	resp := env.do(t, http.MethodPost, "/api/orders", token, body, headers)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first status = %d, want 201", resp.StatusCode)
	}
	first := decode[orderResponse](t, resp)
	if len(first.Lines) != 1 || first.Lines[0].Quantity != 10 || first.Lines[0].UnitPriceCents != 450 {
		t.Fatalf("lines = %+v, want merged tier-priced line", first.Lines)
	}

	resp = env.do(t, http.MethodPost, "/api/orders", token, body, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", resp.StatusCode)
	}
	again := decode[orderResponse](t, resp)
	if again.ID != first.ID || !again.Replayed {
		t.Fatalf("replayed order = %+v, want %s", again, first.ID)
	}

	level, err := env.store.GetStock(t.Context(), "W-1")
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if level.Quantity != 10 {
		t.Fatalf("stock = %d, want 10", level.Quantity)
	}

	body.Items[0].Quantity = 1
	resp = env.do(t, http.MethodPost, "/api/orders", token, body, headers)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("reused key status = %d, want 409", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/me", token, nil, nil)
	me := decode[meResponse](t, resp)
	if me.LoyaltyPoints != first.LoyaltyPoints {
		t.Fatalf("points = %d, want %d", me.LoyaltyPoints, first.LoyaltyPoints)
	}
}

func TestCreateOrderFromCart(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, requestctx.Principal{UserID: "buyer-1"})

	env.do(t, http.MethodPut, "/api/cart/items/gadget", token, map[string]int{"quantity": 2}, nil)
	resp := env.do(t, http.MethodPost, "/api/orders", token, orderRequest{}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout status = %d, want 201", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/api/cart", token, nil, nil)
	cart := decode[cartResponse](t, resp)
	if len(cart.Lines) != 0 {
		t.Fatalf("cart after checkout = %+v, want empty", cart.Lines)
	}

	resp = env.do(t, http.MethodPost, "/api/orders", token, orderRequest{}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty checkout status = %d, want 400", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/orders", token, nil, nil)
	listed := decode[struct {
		Orders []domain.Order `json:"orders"`
	}](t, resp)
	if len(listed.Orders) != 1 {
		t.Fatalf("orders = %+v, want one", listed.Orders)
	}
	resp = env.do(t, http.MethodGet, "/api/orders/"+listed.Orders[0].ID, token, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get order status = %d", resp.StatusCode)
	}
}

func TestRetriedOrderSkipsCartAndCatalog(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, requestctx.Principal{UserID: "buyer-1"})

	env.do(t, http.MethodPut, "/api/cart/items/widget", token, map[string]int{"quantity": 2}, nil)
	checkout := map[string]string{IdempotencyKeyHeader: "k-1"}
	resp := env.do(t, http.MethodPost, "/api/orders", token, orderRequest{Items: []orderItemRequest{}}, checkout)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout status = %d, want 201", resp.StatusCode)
	}
	first := decode[orderResponse](t, resp)

	// The cart is empty now; the retry must still find the stored order.
	resp = env.do(t, http.MethodPost, "/api/orders", token, orderRequest{Items: []orderItemRequest{}}, checkout)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("checkout retry status = %d, want 200", resp.StatusCode)
	}
	again := decode[orderResponse](t, resp)
	if again.ID != first.ID || !again.Replayed || again.TotalCents != first.TotalCents {
		t.Fatalf("checkout retry = %+v, want replay of %s", again, first.ID)
	}

	direct := orderRequest{Items: []orderItemRequest{{ProductID: "gadget", Quantity: 1}}}
	headers := map[string]string{IdempotencyKeyHeader: "k-2"}
	resp = env.do(t, http.MethodPost, "/api/orders", token, direct, headers)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("order status = %d, want 201", resp.StatusCode)
	}
	placed := decode[orderResponse](t, resp)
	if err := env.store.PutProduct(t.Context(), domain.Product{ID: "gadget", Name: "Gadget", PriceCents: 1200}); err != nil {
		t.Fatalf("deactivate gadget: %v", err)
	}
	resp = env.do(t, http.MethodPost, "/api/orders", token, direct, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retry after deactivation status = %d, want 200", resp.StatusCode)
	}
	if got := decode[orderResponse](t, resp); got.ID != placed.ID {
		t.Fatalf("retry order id = %s, want %s", got.ID, placed.ID)
	}

	resp = env.do(t, http.MethodPost, "/api/orders", token, orderRequest{
		Items: []orderItemRequest{{ProductID: "widget", Quantity: 1}},
	}, checkout)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("reused checkout key status = %d, want 409", resp.StatusCode)
	}
}

func TestInsufficientStockConflicts(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, requestctx.Principal{UserID: "buyer-1"})
	if err := env.store.SetStock(t.Context(), storage.StockLevel{SKU: "W-1", Quantity: 1}); err != nil {
		t.Fatalf("set stock: %v", err)
	}
	resp := env.do(t, http.MethodPost, "/api/orders", token, orderRequest{
		Items: []orderItemRequest{{ProductID: "widget", Quantity: 2}},
	}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestAdminInventoryAndStats(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, requestctx.Principal{UserID: "admin-1", Role: "admin"})
	buyer := env.token(t, requestctx.Principal{UserID: "buyer-1"})

	resp := env.do(t, http.MethodPut, "/api/admin/inventory/W-1", buyer, inventoryRequest{Quantity: 3}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("buyer inventory status = %d, want 403", resp.StatusCode)
	}
	resp = env.do(t, http.MethodPut, "/api/admin/inventory/W-1", admin, inventoryRequest{Quantity: -1}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative inventory status = %d, want 400", resp.StatusCode)
	}
	resp = env.do(t, http.MethodPut, "/api/admin/inventory/W-1", admin, inventoryRequest{Quantity: 3, Note: "recount"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("inventory status = %d, want 200", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/api/admin/inventory/W-1", admin, nil, nil)
	level := decode[storage.StockLevel](t, resp)
	if level.Quantity != 3 || level.Note != "recount" {
		t.Fatalf("level = %+v", level)
	}

	resp = env.do(t, http.MethodPut, "/api/admin/products/bolt", admin, productRequest{Name: "Bolt", PriceCents: 25}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put product status = %d, want 200", resp.StatusCode)
	}

	env.do(t, http.MethodPost, "/api/orders", buyer, orderRequest{Items: []orderItemRequest{{ProductID: "gadget", Quantity: 1}}}, nil)

	resp = env.do(t, http.MethodGet, "/api/admin/stats", admin, nil, nil)
	stats := decode[statsResponse](t, resp)
	want := statsResponse{
		Stats: storage.Stats{
			Products:      3,
			Orders:        1,
			RevenueCents:  1320,
			LowStockSKUs:  1,
			PointsIssued:  12,
			DistinctUsers: 1,
		},
		RevenueDisplay:    "$13.20",
		LowStockThreshold: DefaultLowStockThreshold,
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestNewServerValidation(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatal("expected error without store")
	}
}
