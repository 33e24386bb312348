// Package grpc hosts the gRPC health endpoint that process supervisors probe.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer reports SERVING for the process and its named components.
type HealthServer struct {
	server   *gogrpc.Server
	health   *health.Server
	listener net.Listener
}

// NewHealthServer listens on addr and registers the health service with
// every name in services marked SERVING.
func NewHealthServer(addr string, services ...string) (*HealthServer, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("health address is required")
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on health address %s: %w", addr, err)
	}

	server := gogrpc.NewServer(gogrpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	for _, service := range services {
		service = strings.TrimSpace(service)
		if service == "" {
			continue
		}
		healthServer.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	return &HealthServer{server: server, health: healthServer, listener: listener}, nil
}

// Addr returns the bound listener address.
func (s *HealthServer) Addr() net.Addr {
	if s == nil || s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// SetServing flips the status of one component.
func (s *HealthServer) SetServing(service string, serving bool) {
	if s == nil || s.health == nil {
		return
	}
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(strings.TrimSpace(service), status)
}

// Serve runs until ctx ends, then marks everything NOT_SERVING and stops gracefully.
func (s *HealthServer) Serve(ctx context.Context) error {
	if s == nil || s.server == nil {
		return errors.New("health server is not configured")
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.server.GracefulStop()
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, gogrpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve grpc health: %w", err)
	}
}
