package bearer

import (
	"testing"
	"time"

	apperrors "github.com/wholesale-storefront/storefront/internal/platform/errors"
	"github.com/wholesale-storefront/storefront/internal/platform/requestctx"
)

func testConfig(now time.Time) Config {
	return Config{
		Secret: []byte("0123456789abcdef0123"),
		Issuer: "storefront-test",
		TTL:    time.Hour,
		Now:    func() time.Time { return now },
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cfg := testConfig(now)

	token, err := Issue(cfg, requestctx.Principal{UserID: "buyer-7", Role: "admin", TaxExempt: true})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	principal, err := Verify(cfg, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if principal.UserID != "buyer-7" || principal.Role != "admin" || !principal.TaxExempt {
		t.Fatalf("principal = %+v", principal)
	}
}

func TestVerifyRejections(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cfg := testConfig(now)
	token, err := Issue(cfg, requestctx.Principal{UserID: "buyer-7"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	expired := testConfig(now.Add(2 * time.Hour))
	otherSecret := testConfig(now)
	otherSecret.Secret = []byte("ffffffffffffffffffff")
	otherIssuer := testConfig(now)
	otherIssuer.Issuer = "someone-else"

	tests := []struct {
		name  string
		cfg   Config
		token string
	}{
		{name: "empty", cfg: cfg, token: " "},
		{name: "garbage", cfg: cfg, token: "not-a-jwt"},
		{name: "expired", cfg: expired, token: token},
		{name: "wrong secret", cfg: otherSecret, token: token},
		{name: "wrong issuer", cfg: otherIssuer, token: token},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Verify(tc.cfg, tc.token)
			if apperrors.CodeOf(err) != apperrors.CodeUnauthenticated {
				t.Fatalf("Verify() error = %v, want unauthenticated", err)
			}
		})
	}
}

func TestIssueRequiresSubjectAndSecret(t *testing.T) {
	cfg := testConfig(time.Now())
	if _, err := Issue(cfg, requestctx.Principal{}); err == nil {
		t.Fatal("expected missing subject error")
	}
	cfg.Secret = []byte("short")
	if _, err := Issue(cfg, requestctx.Principal{UserID: "u"}); err == nil {
		t.Fatal("expected short secret error")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("STOREFRONT_TOKEN_SECRET", "0123456789abcdef")
	t.Setenv("STOREFRONT_TOKEN_ISSUER", "storefront-east")
	t.Setenv("STOREFRONT_TOKEN_TTL", "30m")

	cfg, err := LoadConfigFromEnv(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.TTL != 30*time.Minute || cfg.Issuer != "storefront-east" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Now == nil {
		t.Fatal("expected default clock")
	}
}

func TestLoadConfigFromEnvRejectsShortSecret(t *testing.T) {
	t.Setenv("STOREFRONT_TOKEN_SECRET", "short")

	if _, err := LoadConfigFromEnv(nil); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}

func TestSubjectUnverified(t *testing.T) {
	issuedAt := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	token, err := Issue(testConfig(issuedAt), requestctx.Principal{UserID: "buyer-9"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	// Expired tokens still name their subject.
	if got := SubjectUnverified(token); got != "buyer-9" {
		t.Fatalf("subject = %q, want %q", got, "buyer-9")
	}
	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		if got := SubjectUnverified(raw); got != "" {
			t.Fatalf("SubjectUnverified(%q) = %q, want empty", raw, got)
		}
	}
}
