package httpx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/wholesale-storefront/storefront/internal/platform/timeouts"
	"golang.org/x/net/netutil"
)

// Listen binds addr. When maxConns is positive the listener accepts at most
// that many simultaneous connections.
func Listen(addr string, maxConns int) (net.Listener, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("http address is required")
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if maxConns > 0 {
		listener = netutil.LimitListener(listener, maxConns)
	}
	return listener, nil
}

// NewServer wraps handler with the shared server timeouts.
func NewServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
}

// Serve runs srv on listener until ctx ends, then drains in-flight requests.
func Serve(ctx context.Context, srv *http.Server, listener net.Listener) error {
	if srv == nil || listener == nil {
		return errors.New("http server is not configured")
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := srv.Shutdown(shutdownCtx)
		cancel()
		<-serveErr
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
