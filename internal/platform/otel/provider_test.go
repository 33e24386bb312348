package otel_test

import (
	"context"
	"testing"

	"github.com/wholesale-storefront/storefront/internal/platform/otel"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		enabled  string
		ratio    string
		wantErr  bool
	}{
		{name: "no endpoint"},
		{name: "explicitly disabled", endpoint: "http://localhost:4318", enabled: "FALSE"},
		// Non-routable address so nothing is exported.
		{name: "exporter configured", endpoint: "http://192.0.2.1:4318"},
		{name: "sample ratio", endpoint: "http://192.0.2.1:4318", ratio: "0.25"},
		{name: "disabled ignores bad ratio", endpoint: "http://192.0.2.1:4318", enabled: "false", ratio: "2"},
		{name: "ratio out of range", endpoint: "http://192.0.2.1:4318", ratio: "1.5", wantErr: true},
		{name: "ratio not a number", endpoint: "http://192.0.2.1:4318", ratio: "half", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STOREFRONT_OTEL_ENDPOINT", tt.endpoint)
			t.Setenv("STOREFRONT_OTEL_ENABLED", tt.enabled)
			t.Setenv("STOREFRONT_OTEL_SAMPLE_RATIO", tt.ratio)

			shutdown, err := otel.Setup(context.Background(), "syncd-test")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected setup error")
				}
				return
			}
			if err != nil {
				t.Fatalf("setup: %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Fatalf("shutdown: %v", err)
			}
		})
	}
}

func TestTracerStartsSpans(t *testing.T) {
	tracer := otel.Tracer("internal/services/offline/queue")
	if tracer == nil {
		t.Fatal("expected tracer")
	}
	_, span := tracer.Start(context.Background(), "drain")
	span.End()
}
