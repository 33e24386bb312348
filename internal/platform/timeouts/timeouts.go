// Package timeouts defines shared timeout constants used across services.
// Centralizing these values keeps the sync agent and the storefront API in
// agreement about how long a single remote call may take.
package timeouts

import "time"

// RemoteRequest caps a single sync-agent call to the storefront API.
const RemoteRequest = 10 * time.Second

// Probe caps one connectivity health probe.
const Probe = 3 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
