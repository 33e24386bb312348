// Package syncd parses sync agent flags and launches the agent runtime.
package syncd

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/wholesale-storefront/storefront/internal/platform/cmd"
	"github.com/wholesale-storefront/storefront/internal/platform/discovery"
	syncapp "github.com/wholesale-storefront/storefront/internal/services/offline/app"
)

// Config holds sync agent command configuration.
type Config struct {
	HTTPAddr        string        `env:"STOREFRONT_SYNC_HTTP_ADDR" envDefault:"127.0.0.1:8095"`
	Port            int           `env:"STOREFRONT_SYNC_PORT"`
	APIBaseURL      string        `env:"STOREFRONT_SYNC_API_BASE_URL"`
	DBPath          string        `env:"STOREFRONT_SYNC_DB_PATH" envDefault:"data/syncd.db"`
	ProbeInterval   time.Duration `env:"STOREFRONT_SYNC_PROBE_INTERVAL" envDefault:"15s"`
	DrainInterval   time.Duration `env:"STOREFRONT_SYNC_DRAIN_INTERVAL" envDefault:"1m"`
	SweepInterval   time.Duration `env:"STOREFRONT_SYNC_SWEEP_INTERVAL" envDefault:"5m"`
	RefreshWindow   float64       `env:"STOREFRONT_SYNC_REFRESH_WINDOW" envDefault:"0.2"`
	CacheBackend    string        `env:"STOREFRONT_SYNC_CACHE_BACKEND" envDefault:"sqlite"`
	RedisURL        string        `env:"STOREFRONT_SYNC_REDIS_URL"`
	CachePolicyPath string        `env:"STOREFRONT_SYNC_CACHE_POLICY_PATH"`
	SchemaVersion   string        `env:"STOREFRONT_SYNC_SCHEMA_VERSION" envDefault:"1"`
	RequestTimeout  time.Duration `env:"STOREFRONT_SYNC_REQUEST_TIMEOUT" envDefault:"10s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	cfg.APIBaseURL = discovery.OrDefaultHTTPBaseURL(cfg.APIBaseURL, discovery.ServiceStorefront)
	if cfg.Port == 0 {
		cfg.Port = discovery.DefaultGRPCPort(discovery.ServiceSync)
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "Local API listen address")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The sync agent health gRPC server port")
	fs.StringVar(&cfg.APIBaseURL, "api-base-url", cfg.APIBaseURL, "Storefront API base URL")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The sync agent SQLite database path")
	fs.DurationVar(&cfg.ProbeInterval, "probe-interval", cfg.ProbeInterval, "Connectivity probe interval")
	fs.DurationVar(&cfg.DrainInterval, "drain-interval", cfg.DrainInterval, "Periodic drain interval while online (negative disables)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Cache sweep interval")
	fs.Float64Var(&cfg.RefreshWindow, "refresh-window", cfg.RefreshWindow, "Fraction of a TTL before expiry in which entries are refreshed")
	fs.StringVar(&cfg.CacheBackend, "cache-backend", cfg.CacheBackend, "Cache backend: sqlite or redis")
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL for the redis cache backend")
	fs.StringVar(&cfg.CachePolicyPath, "cache-policy", cfg.CachePolicyPath, "YAML file overriding cache TTLs")
	fs.StringVar(&cfg.SchemaVersion, "schema-version", cfg.SchemaVersion, "Cache schema version; a change expires every entry")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Storefront request timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.Port <= 0 {
		return Config{}, fmt.Errorf("port must be positive")
	}
	if cfg.RefreshWindow < 0 || cfg.RefreshWindow >= 1 {
		return Config{}, fmt.Errorf("refresh window must be in [0, 1)")
	}
	return cfg, nil
}

// Run starts the sync agent runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSync, func(context.Context) error {
		return syncapp.Run(ctx, runtimeConfig(cfg))
	})
}

func runtimeConfig(cfg Config) syncapp.RuntimeConfig {
	return syncapp.RuntimeConfig{
		HTTPAddr:        cfg.HTTPAddr,
		HealthAddr:      fmt.Sprintf(":%d", cfg.Port),
		APIBaseURL:      cfg.APIBaseURL,
		DBPath:          cfg.DBPath,
		ProbeInterval:   cfg.ProbeInterval,
		DrainInterval:   cfg.DrainInterval,
		SweepInterval:   cfg.SweepInterval,
		RefreshFraction: cfg.RefreshWindow,
		CacheBackend:    cfg.CacheBackend,
		RedisURL:        cfg.RedisURL,
		CachePolicyPath: cfg.CachePolicyPath,
		SchemaVersion:   cfg.SchemaVersion,
		RequestTimeout:  cfg.RequestTimeout,
	}
}
