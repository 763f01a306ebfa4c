package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"scalebridge/internal/config"
	"scalebridge/internal/models"
)

const (
	CapturePath    = "/weights/capture"
	HealthPath     = "/health"
	APIKeyHeader   = "X-API-Key"
	DefaultTimeout = 5 * time.Second
	PingTimeout    = 2 * time.Second
)

// HTTPClient posts captures to the collector's REST endpoint.
type HTTPClient struct {
	mu     sync.RWMutex
	target target
	client *http.Client
}

type target struct {
	baseURL string
	apiKey  string
	timeout time.Duration
}

func (t target) configured() bool {
	return t.baseURL != "" && t.apiKey != ""
}

func NewHTTPClient(cfg config.BackendConfig) *HTTPClient {
	c := &HTTPClient{client: &http.Client{}}
	c.SetConfig(cfg)
	return c
}

// SetConfig applies to the next push.
func (c *HTTPClient) SetConfig(cfg config.BackendConfig) {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.mu.Lock()
	c.target = target{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
	}
	c.mu.Unlock()
}

func (c *HTTPClient) current() target {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.target
}

// Configured reports whether both URL and key are present.
func (c *HTTPClient) Configured() bool {
	return c.current().configured()
}

// Push is a no-op when the client is not configured.
func (c *HTTPClient) Push(ctx context.Context, res models.CaptureResult) error {
	t := c.current()
	if !t.configured() {
		return nil
	}
	body, err := json.Marshal(NewPayload(res, t.apiKey))
	if err != nil {
		return fmt.Errorf("encode relay payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+CapturePath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, t.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", CapturePath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: status %d: %s", CapturePath, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Ping checks that the collector answers on its health endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	t := c.current()
	if t.baseURL == "" {
		return fmt.Errorf("backend url not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+HealthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health: status %d", resp.StatusCode)
	}
	return nil
}
