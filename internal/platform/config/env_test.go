package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port int `env:"STOREFRONT_TEST_PORT" envDefault:"123"`
}

type prefixedTestConfig struct {
	Secret string        `env:"SECRET"`
	TTL    time.Duration `env:"TTL" envDefault:"1h"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("STOREFRONT_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestParseEnvWithPrefixReadsNamespacedValues(t *testing.T) {
	t.Setenv("STOREFRONT_TOKEN_SECRET", "s3cret")
	t.Setenv("STOREFRONT_TOKEN_TTL", "15m")

	var cfg prefixedTestConfig
	if err := ParseEnvWithPrefix(&cfg, "STOREFRONT_TOKEN"); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Secret != "s3cret" {
		t.Fatalf("Secret = %q, want %q", cfg.Secret, "s3cret")
	}
	if cfg.TTL != 15*time.Minute {
		t.Fatalf("TTL = %v, want %v", cfg.TTL, 15*time.Minute)
	}
}

func TestParseEnvWithPrefixErrorNamesPrefix(t *testing.T) {
	t.Setenv("STOREFRONT_BAD_TTL", "soon")

	var cfg prefixedTestConfig
	err := ParseEnvWithPrefix(&cfg, "STOREFRONT_BAD_")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env STOREFRONT_BAD:") {
		t.Fatalf("expected prefixed error, got %v", err)
	}
}
