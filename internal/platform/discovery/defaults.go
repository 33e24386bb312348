// Package discovery centralizes in-network service address conventions.
package discovery

import (
	"strconv"
	"strings"
)

const (
	// ServiceStorefront is the storefront HTTP API identity.
	ServiceStorefront = "storefront"
	// ServiceSync is the offline sync agent identity.
	ServiceSync = "syncd"
)

var grpcPorts = map[string]int{
	ServiceSync: 8096,
}

var httpPorts = map[string]int{
	ServiceStorefront: 8090,
	ServiceSync:       8095,
}

// DefaultGRPCAddr returns the canonical in-network gRPC address for a service.
func DefaultGRPCAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), grpcPorts)
}

// DefaultHTTPAddr returns the canonical in-network HTTP address for a service.
func DefaultHTTPAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), httpPorts)
}

// DefaultGRPCPort returns the conventional gRPC port for a service, or 0.
func DefaultGRPCPort(service string) int {
	return grpcPorts[strings.TrimSpace(service)]
}

// OrDefaultHTTPBaseURL returns value when set, otherwise http://<service-host:port>.
func OrDefaultHTTPBaseURL(value, service string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return strings.TrimRight(value, "/")
	}
	addr := DefaultHTTPAddr(service)
	if addr == "" {
		return ""
	}
	return "http://" + addr
}

func defaultAddr(service string, ports map[string]int) string {
	port, ok := ports[service]
	if !ok || port <= 0 {
		return ""
	}
	return service + ":" + strconv.Itoa(port)
}
