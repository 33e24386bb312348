package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wholesale-storefront/storefront/internal/services/offline/domain"
)

type capturedRequest struct {
	Method         string
	Path           string
	EscapedPath    string
	Authorization  string
	IdempotencyKey string
	ContentType    string
	Body           string
}

func newCapturingServer(t *testing.T, status int) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured = append(captured, capturedRequest{
			Method:         r.Method,
			Path:           r.URL.Path,
			EscapedPath:    r.URL.EscapedPath(),
			Authorization:  r.Header.Get("Authorization"),
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
			ContentType:    r.Header.Get("Content-Type"),
			Body:           string(body),
		})
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	t.Cleanup(server.Close)
	return server, &captured
}

func TestReplaySendsRouteHeadersAndBody(t *testing.T) {
	tests := []struct {
		name     string
		op       domain.Operation
		wantPath string
		method   string
		wantBody string
	}{
		{
			name: "cart update",
			op: domain.Operation{
				Kind: domain.KindUpdate, Resource: domain.ResourceCart, EntityID: "sku-1",
				Payload: json.RawMessage(`{"quantity":3}`),
			},
			method:   http.MethodPut,
			wantPath: "/api/cart/items/sku-1",
			wantBody: `{"quantity":3}`,
		},
		{
			name:     "cart remove",
			op:       domain.Operation{Kind: domain.KindRemove, Resource: domain.ResourceCart, EntityID: "sku-1"},
			method:   http.MethodDelete,
			wantPath: "/api/cart/items/sku-1",
		},
		{
			name:     "cart clear",
			op:       domain.Operation{Kind: domain.KindClear, Resource: domain.ResourceCart},
			method:   http.MethodDelete,
			wantPath: "/api/cart",
		},
		{
			name: "order create",
			op: domain.Operation{
				Kind: domain.KindCreate, Resource: domain.ResourceOrder, EntityID: "c-1",
				Payload: json.RawMessage(`{"items":[]}`),
			},
			method:   http.MethodPost,
			wantPath: "/api/orders",
			wantBody: `{"items":[]}`,
		},
		{
			name: "inventory update",
			op: domain.Operation{
				Kind: domain.KindUpdate, Resource: domain.ResourceInventory, EntityID: "SKU 9",
				Payload: json.RawMessage(`{"quantity":4}`),
			},
			method:   http.MethodPut,
			wantPath: "/api/admin/inventory/SKU 9",
			wantBody: `{"quantity":4}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, captured := newCapturingServer(t, http.StatusOK)
			client, err := NewClient(server.URL, server.Client())
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			op := tc.op
			op.Credentials = domain.Credentials{BearerToken: "snap-token", UserID: "u-1"}
			op.IdempotencyKey = "idem-1"

			if err := client.Replay(context.Background(), op); err != nil {
				t.Fatalf("replay: %v", err)
			}
			if len(*captured) != 1 {
				t.Fatalf("requests = %d, want 1", len(*captured))
			}
			got := (*captured)[0]
			if got.Method != tc.method || got.Path != tc.wantPath {
				t.Fatalf("request = %s %s, want %s %s", got.Method, got.Path, tc.method, tc.wantPath)
			}
			if got.Authorization != "Bearer snap-token" {
				t.Fatalf("authorization = %q", got.Authorization)
			}
			if got.IdempotencyKey != "idem-1" {
				t.Fatalf("idempotency key = %q", got.IdempotencyKey)
			}
			if got.Body != tc.wantBody {
				t.Fatalf("body = %q, want %q", got.Body, tc.wantBody)
			}
			if tc.wantBody != "" && got.ContentType != "application/json" {
				t.Fatalf("content type = %q", got.ContentType)
			}
		})
	}
}

func TestReplayEscapesEntityIDs(t *testing.T) {
	server, captured := newCapturingServer(t, http.StatusNoContent)
	client, err := NewClient(server.URL+"/", server.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	op := domain.Operation{Kind: domain.KindRemove, Resource: domain.ResourceCart, EntityID: "a/b"}
	if err := client.Replay(context.Background(), op); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := (*captured)[0].EscapedPath; got != "/api/cart/items/a%2Fb" {
		t.Fatalf("escaped path = %q, want %q", got, "/api/cart/items/a%2Fb")
	}
}

func TestReplayNon2xxIsStatusError(t *testing.T) {
	server, _ := newCapturingServer(t, http.StatusConflict)
	client, err := NewClient(server.URL, server.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	err = client.Replay(context.Background(), domain.Operation{Kind: domain.KindClear, Resource: domain.ResourceCart})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", statusErr.StatusCode, http.StatusConflict)
	}
	if statusErr.Body != `{"error":"nope"}` {
		t.Fatalf("body = %q", statusErr.Body)
	}
}

func TestReplayRejectsInvalidOperationWithoutRequest(t *testing.T) {
	server, captured := newCapturingServer(t, http.StatusOK)
	client, err := NewClient(server.URL, server.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Replay(context.Background(), domain.Operation{Kind: domain.KindCreate, Resource: domain.ResourceInventory, EntityID: "x"}); err == nil {
		t.Fatal("expected validation error")
	}
	if len(*captured) != 0 {
		t.Fatalf("requests = %d, want 0", len(*captured))
	}
}

func TestFetchAndPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			w.WriteHeader(http.StatusOK)
		case "/api/products":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`[{"id":"p-1","category":"` + r.URL.Query().Get("category") + `"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, server.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	body, err := client.Fetch(context.Background(), "/api/products?category=tools", "tok")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != `[{"id":"p-1","category":"tools"}]` {
		t.Fatalf("body = %s", body)
	}
	if _, err := client.Fetch(context.Background(), "/api/products", ""); err == nil {
		t.Fatal("expected unauthorized fetch to fail")
	}
}

func TestPingUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewClient(url, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail against closed server")
	}
}

func TestNewClientValidation(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "http://"} {
		if _, err := NewClient(raw, nil); err == nil {
			t.Fatalf("NewClient(%q) expected error", raw)
		}
	}
}
