// Package ollama is a small HTTP client for a local Ollama-compatible model daemon.
// It only knows how to reach the daemon and classify failures; payloads are relayed
// without interpretation wherever possible.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is where a locally installed daemon listens.
const DefaultBaseURL = "http://localhost:11434"

// maxErrorBody bounds how much of a failed upstream response is kept for diagnostics.
const maxErrorBody = 4096

// Options configures a Client. Zero durations disable the corresponding bound.
type Options struct {
	BaseURL string
	// ConnectTimeout bounds TCP connection establishment.
	ConnectTimeout time.Duration
	// ResponseTimeout bounds the wait for response headers after the request is written.
	ResponseTimeout time.Duration
	// RequestTimeout bounds whole synchronous calls (Tags, Delete). Streaming
	// generation is never bounded by it.
	RequestTimeout time.Duration
}

// GenerateRequest is the payload of POST /api/generate.
type GenerateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

// Client talks to the upstream daemon. It is safe for concurrent use.
type Client struct {
	baseURL        string
	requestTimeout time.Duration
	httpClient     *http.Client
}

// NewClient builds a Client with a dedicated transport.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		// Keep the generation stream byte-identical to what the daemon sent.
		DisableCompression:    true,
		ResponseHeaderTimeout: opts.ResponseTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout stays 0: a streaming body may legitimately run for minutes.
	return &Client{
		baseURL:        base,
		requestTimeout: opts.RequestTimeout,
		httpClient:     &http.Client{Transport: tr, Timeout: 0},
	}
}

// BaseURL returns the normalized upstream address.
func (c *Client) BaseURL() string { return c.baseURL }

// Tags returns the raw JSON body of GET /api/tags.
func (c *Client) Tags(ctx context.Context) (json.RawMessage, error) {
	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()
	resp, err := c.do(ctx, "tags", http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode upstream tags: %w", err)
	}
	return raw, nil
}

// Delete removes a model from the daemon.
func (c *Client) Delete(ctx context.Context, name string) error {
	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()
	resp, err := c.do(ctx, "delete", http.MethodDelete, "/api/delete", map[string]string{"name": name})
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return resp.Body.Close()
}

// Generate opens a generation request and returns the still-open response body once
// the daemon has answered with a 2xx status. The caller owns the body and must close
// it. Canceling ctx aborts the stream and releases the connection.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (io.ReadCloser, error) {
	resp, err := c.do(ctx, "generate", http.MethodPost, "/api/generate", req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// do sends one request and classifies the outcome. On success the response body is
// left open for the caller.
func (c *Client) do(ctx context.Context, op, method, path string, payload any) (*http.Response, error) {
	url := c.baseURL + path
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	upstreamLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		upstreamRequests.WithLabelValues(op, resultUnavailable).Inc()
		return nil, &UnavailableError{Op: op, URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		upstreamRequests.WithLabelValues(op, resultStatus).Inc()
		return nil, &StatusError{Op: op, URL: url, StatusCode: resp.StatusCode, Status: resp.Status, Body: b}
	}
	upstreamRequests.WithLabelValues(op, resultOK).Inc()
	return resp, nil
}

func (c *Client) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}
