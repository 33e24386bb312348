// Package otel wires OpenTelemetry tracing for storefront processes.
package otel

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	envEndpoint    = "STOREFRONT_OTEL_ENDPOINT"
	envEnabled     = "STOREFRONT_OTEL_ENABLED"
	envSampleRatio = "STOREFRONT_OTEL_SAMPLE_RATIO"

	instrumentationPrefix = "github.com/wholesale-storefront/storefront/"
)

// exportSettings is the tracing configuration read from the environment.
type exportSettings struct {
	endpoint    string
	sampleRatio float64
}

// settingsFromEnv reports ok=false when tracing is off: no endpoint, or
// STOREFRONT_OTEL_ENABLED=false.
func settingsFromEnv() (exportSettings, bool, error) {
	if strings.EqualFold(strings.TrimSpace(os.Getenv(envEnabled)), "false") {
		return exportSettings{}, false, nil
	}
	s := exportSettings{
		endpoint:    strings.TrimSpace(os.Getenv(envEndpoint)),
		sampleRatio: 1,
	}
	if s.endpoint == "" {
		return exportSettings{}, false, nil
	}
	if raw := strings.TrimSpace(os.Getenv(envSampleRatio)); raw != "" {
		ratio, err := strconv.ParseFloat(raw, 64)
		if err != nil || ratio < 0 || ratio > 1 {
			return exportSettings{}, false, fmt.Errorf("%s must be within [0,1], got %q", envSampleRatio, raw)
		}
		s.sampleRatio = ratio
	}
	return s, true, nil
}

// Setup installs a global tracer provider exporting to the OTLP/HTTP
// endpoint in STOREFRONT_OTEL_ENDPOINT. With tracing off it leaves the otel
// no-op provider in place and returns a no-op shutdown.
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	settings, ok, err := settingsFromEnv()
	if err != nil || !ok {
		return noop, err
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(settings.endpoint))
	if err != nil {
		return noop, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return noop, fmt.Errorf("otel resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(settings.sampleRatio))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return provider.Shutdown, nil
}

// Tracer returns a tracer named after pkg, a module-relative package path.
func Tracer(pkg string) trace.Tracer {
	return otel.Tracer(instrumentationPrefix + strings.TrimPrefix(strings.TrimSpace(pkg), "/"))
}
