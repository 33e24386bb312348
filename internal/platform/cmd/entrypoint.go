// Package cmd holds the startup plumbing shared by the storefront API, the
// sync daemon and the token tool.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/wholesale-storefront/storefront/internal/platform/config"
	"github.com/wholesale-storefront/storefront/internal/platform/otel"
)

// Service names double as the OpenTelemetry service.name attribute.
const (
	ServiceStorefront = "storefront"
	ServiceSync       = "syncd"
	ServiceToken      = "storefront-token"
)

// telemetryFlushTimeout bounds how long a stopping command waits for spans to
// leave the exporter.
var telemetryFlushTimeout = 5 * time.Second

// ParseConfig fills cfg from STOREFRONT_* environment variables. Flags parsed
// afterwards with ParseArgs override what the environment set.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses args into fs. A nil args slice parses as empty so a
// command never falls back to os.Args by accident.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// RunWithTelemetry installs the tracer provider for service, runs the
// command body and flushes telemetry once the body returns.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	switch {
	case service == "":
		return errors.New("service name is required")
	case run == nil:
		return errors.New("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return fmt.Errorf("%s: telemetry setup: %w", service, err)
	}
	defer flushTelemetry(service, shutdown)
	return run(ctx)
}

func flushTelemetry(service string, shutdown func(context.Context) error) {
	// The run context is usually cancelled by now.
	ctx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Printf("%s: telemetry shutdown: %v", service, err)
	}
}
