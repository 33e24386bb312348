// Package storefront parses storefront API flags and launches its runtime.
package storefront

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/wholesale-storefront/storefront/internal/platform/bearer"
	entrypoint "github.com/wholesale-storefront/storefront/internal/platform/cmd"
	storefrontapp "github.com/wholesale-storefront/storefront/internal/services/storefront/app"
)

// Config holds storefront command configuration.
type Config struct {
	HTTPAddr          string `env:"STOREFRONT_API_HTTP_ADDR" envDefault:":8090"`
	DBPath            string `env:"STOREFRONT_API_DB_PATH" envDefault:"data/storefront.db"`
	TaxRateBps        int64  `env:"STOREFRONT_API_TAX_RATE_BPS" envDefault:"0"`
	LowStockThreshold int    `env:"STOREFRONT_API_LOW_STOCK_THRESHOLD" envDefault:"5"`
	SeedDemo          bool   `env:"STOREFRONT_API_SEED_DEMO" envDefault:"false"`
	MaxConns          int    `env:"STOREFRONT_API_MAX_CONNS" envDefault:"256"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The storefront SQLite database path")
	fs.Int64Var(&cfg.TaxRateBps, "tax-rate-bps", cfg.TaxRateBps, "Sales tax in basis points")
	fs.IntVar(&cfg.LowStockThreshold, "low-stock-threshold", cfg.LowStockThreshold, "Stock level reported as low in admin stats")
	fs.BoolVar(&cfg.SeedDemo, "seed-demo", cfg.SeedDemo, "Seed a demo catalog at startup")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "Maximum concurrent HTTP connections")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.TaxRateBps < 0 || cfg.TaxRateBps > 10000 {
		return Config{}, fmt.Errorf("tax rate must be between 0 and 10000 basis points")
	}
	return cfg, nil
}

// Run loads token settings and starts the storefront runtime.
func Run(ctx context.Context, cfg Config) error {
	tokens, err := bearer.LoadConfigFromEnv(time.Now)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceStorefront, func(context.Context) error {
		return storefrontapp.Run(ctx, storefrontapp.RuntimeConfig{
			HTTPAddr:          cfg.HTTPAddr,
			DBPath:            cfg.DBPath,
			TaxRateBps:        cfg.TaxRateBps,
			LowStockThreshold: cfg.LowStockThreshold,
			SeedDemo:          cfg.SeedDemo,
			MaxConns:          cfg.MaxConns,
			Tokens:            tokens,
		})
	})
}
