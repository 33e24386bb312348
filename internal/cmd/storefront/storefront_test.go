package storefront

import (
	"context"
	"flag"
	"testing"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("storefront", flag.ContinueOnError)
	t.Setenv("STOREFRONT_API_TAX_RATE_BPS", "825")

	cfg, err := ParseConfig(fs, []string{"-seed-demo", "-http-addr", "127.0.0.1:9090"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.TaxRateBps != 825 {
		t.Fatalf("tax rate = %d, want 825", cfg.TaxRateBps)
	}
	if !cfg.SeedDemo {
		t.Fatal("expected seed demo flag")
	}
	if cfg.HTTPAddr != "127.0.0.1:9090" {
		t.Fatalf("http addr = %q", cfg.HTTPAddr)
	}
	if cfg.DBPath != "data/storefront.db" || cfg.LowStockThreshold != 5 {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestParseConfig_RejectsTaxRateOutOfRange(t *testing.T) {
	fs := flag.NewFlagSet("storefront", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-tax-rate-bps", "20000"}); err == nil {
		t.Fatal("expected error for tax rate above 100%")
	}
}

func TestRunRequiresTokenSecret(t *testing.T) {
	t.Setenv("STOREFRONT_TOKEN_SECRET", "")
	if err := Run(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without token secret")
	}
}
