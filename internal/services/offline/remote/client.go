// Package remote talks to the storefront REST API on behalf of the sync agent.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/wholesale-storefront/storefront/internal/platform/timeouts"
	"github.com/wholesale-storefront/storefront/internal/services/offline/domain"
)

const (
	healthPath           = "/api/health"
	idempotencyKeyHeader = "Idempotency-Key"
	maxResponseBytes     = 4 << 20
	maxErrorSnippet      = 512
)

// StatusError reports a non-2xx response from the storefront API.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s returned %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client replays operations and fetches cacheable resources.
type Client struct {
	baseURL *url.URL
	client  *http.Client
}

// NewClient creates a client rooted at baseURL.
func NewClient(baseURL string, client *http.Client) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("api base url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("api base url must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("api base url host is required")
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	if client == nil {
		client = &http.Client{Timeout: timeouts.RemoteRequest}
	}
	return &Client{baseURL: parsed, client: client}, nil
}

// Replay issues the REST call implied by op using its captured credentials.
// Any 2xx status counts as success.
func (c *Client) Replay(ctx context.Context, op domain.Operation) error {
	if c == nil {
		return errors.New("remote client is not configured")
	}
	route, err := domain.RouteFor(op)
	if err != nil {
		return err
	}
	var body io.Reader
	if route.SendBody {
		payload := op.Payload
		if len(payload) == 0 {
			payload = []byte(`{}`)
		}
		body = bytes.NewReader(payload)
	}

	req, err := c.newRequest(ctx, route.Method, route.Path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if op.Credentials.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+op.Credentials.BearerToken)
	}
	if op.IdempotencyKey != "" {
		req.Header.Set(idempotencyKeyHeader, op.IdempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("replay %s %s: %w", route.Method, route.Path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, route.Method, route.Path); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Fetch performs an authenticated GET and returns the response body.
// path may carry a query string.
func (c *Client) Fetch(ctx context.Context, path, token string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("remote client is not configured")
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.MethodGet, path); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Ping checks the storefront health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errors.New("remote client is not configured")
	}
	req, err := c.newRequest(ctx, http.MethodGet, healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping storefront: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return checkStatus(resp, http.MethodGet, healthPath)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse request path %q: %w", path, err)
	}
	target := *c.baseURL
	target.RawPath = ""
	target.Path = c.baseURL.Path + "/" + strings.TrimPrefix(ref.Path, "/")
	if ref.RawPath != "" {
		target.RawPath = c.baseURL.EscapedPath() + "/" + strings.TrimPrefix(ref.RawPath, "/")
	}
	target.RawQuery = ref.RawQuery

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	return req, nil
}

func checkStatus(resp *http.Response, method, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorSnippet))
	return &StatusError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	}
}
