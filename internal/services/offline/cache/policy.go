package cache

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTTL applies to keys whose prefix has no explicit entry.
const DefaultTTL = 5 * time.Minute

var defaultTTLs = map[string]time.Duration{
	"cart":       5 * time.Minute,
	"products":   30 * time.Minute,
	"orders":     10 * time.Minute,
	"user":       time.Hour,
	"categories": 24 * time.Hour,
	"stats":      2 * time.Minute,
}

// PolicyTable maps a key prefix to the lifetime of entries under it.
type PolicyTable struct {
	ttls     map[string]time.Duration
	fallback time.Duration
}

// DefaultPolicy returns the built-in TTL table.
func DefaultPolicy() PolicyTable {
	ttls := make(map[string]time.Duration, len(defaultTTLs))
	for prefix, ttl := range defaultTTLs {
		ttls[prefix] = ttl
	}
	return PolicyTable{ttls: ttls, fallback: DefaultTTL}
}

// KeyPrefix returns the text before the first ':' of key, or key itself.
func KeyPrefix(key string) string {
	if idx := strings.IndexByte(key, ':'); idx >= 0 {
		return key[:idx]
	}
	return key
}

// TTL returns the lifetime for key.
func (p PolicyTable) TTL(key string) time.Duration {
	if ttl, ok := p.ttls[KeyPrefix(key)]; ok {
		return ttl
	}
	if p.fallback > 0 {
		return p.fallback
	}
	return DefaultTTL
}

// Prefixes lists the configured prefixes in sorted order.
func (p PolicyTable) Prefixes() []string {
	prefixes := make([]string, 0, len(p.ttls))
	for prefix := range p.ttls {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}

type policyFile struct {
	Fallback string            `yaml:"fallback"`
	TTLs     map[string]string `yaml:"ttls"`
}

// LoadPolicyFile overlays the TTLs declared in a YAML file on the defaults:
//
//	fallback: 5m
//	ttls:
//	  products: 1h
//	  stats: 30s
func LoadPolicyFile(path string) (PolicyTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicyTable{}, fmt.Errorf("read cache policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy overlays YAML policy data on the defaults.
func ParsePolicy(data []byte) (PolicyTable, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return PolicyTable{}, fmt.Errorf("decode cache policy: %w", err)
	}

	policy := DefaultPolicy()
	if strings.TrimSpace(file.Fallback) != "" {
		fallback, err := parseTTL(file.Fallback)
		if err != nil {
			return PolicyTable{}, fmt.Errorf("cache policy fallback: %w", err)
		}
		policy.fallback = fallback
	}
	for prefix, raw := range file.TTLs {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" || strings.Contains(prefix, ":") {
			return PolicyTable{}, fmt.Errorf("cache policy prefix %q is invalid", prefix)
		}
		ttl, err := parseTTL(raw)
		if err != nil {
			return PolicyTable{}, fmt.Errorf("cache policy %s: %w", prefix, err)
		}
		policy.ttls[prefix] = ttl
	}
	return policy, nil
}

func parseTTL(raw string) (time.Duration, error) {
	ttl, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("ttl must be positive, got %s", raw)
	}
	return ttl, nil
}
