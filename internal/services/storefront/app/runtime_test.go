package app

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/wholesale-storefront/storefront/internal/platform/bearer"
	"github.com/wholesale-storefront/storefront/internal/platform/requestctx"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/storage"
	storesqlite "github.com/wholesale-storefront/storefront/internal/services/storefront/storage/sqlite"
)

func testTokens() bearer.Config {
	return bearer.Config{Secret: []byte("0123456789abcdef0123456789abcdef"), Issuer: "storefront-test", TTL: time.Hour}
}

func TestSeedDemoKeepsExistingStock(t *testing.T) {
	ctx := context.Background()
	store, err := storesqlite.Open(filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if err := SeedDemo(ctx, store); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.SetStock(ctx, storage.StockLevel{SKU: "PKG-TAPE", Quantity: 7}); err != nil {
		t.Fatalf("set stock: %v", err)
	}
	if err := SeedDemo(ctx, store); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	level, err := store.GetStock(ctx, "PKG-TAPE")
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if level.Quantity != 7 {
		t.Fatalf("stock = %d, want 7 kept across reseed", level.Quantity)
	}
	products, err := store.ListProducts(ctx, "")
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(products) != len(demoProducts) {
		t.Fatalf("products = %d, want %d", len(products), len(demoProducts))
	}
	if _, err := store.GetStock(ctx, "OFF-PAPER"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("copy paper stock err = %v, want untracked", err)
	}
}

func TestNewRuntimeRequiresTokenSecret(t *testing.T) {
	_, err := NewRuntime(context.Background(), RuntimeConfig{
		DBPath: filepath.Join(t.TempDir(), "nested", "storefront.db"),
		Logf:   func(string, ...any) {},
	})
	if err == nil {
		t.Fatal("expected error without token secret")
	}
}

func TestServeAnswersUntilCancelled(t *testing.T) {
	tokens := testTokens()
	rt, err := NewRuntime(context.Background(), RuntimeConfig{
		HTTPAddr: "127.0.0.1:0",
		DBPath:   filepath.Join(t.TempDir(), "storefront.db"),
		SeedDemo: true,
		Tokens:   tokens,
		Logf:     func(string, ...any) {},
	})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Serve(ctx) }()

	var addr string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if a := rt.Addr(); a != nil {
			addr = a.String()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		cancel()
		t.Fatal("runtime did not start listening")
	}

	token, err := bearer.Issue(tokens, requestctx.Principal{UserID: "buyer-1"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req, err := http.NewRequest(http.MethodGet, "http://"+addr+"/api/products", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get products: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
