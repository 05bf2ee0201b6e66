package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"relayd/internal/httpapi"
	"relayd/internal/ollama"
	"relayd/internal/relay"
)

// stubDaemon is an in-process stand-in for the model daemon. Handlers may be
// swapped per test; every hit is recorded.
type stubDaemon struct {
	mu       sync.Mutex
	calls    []string
	bodies   [][]byte
	tags     http.HandlerFunc
	del      http.HandlerFunc
	generate http.HandlerFunc
	srv      *httptest.Server
}

func newStubDaemon(t *testing.T) *stubDaemon {
	t.Helper()
	d := &stubDaemon{}
	d.tags = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest"}]}`))
	}
	d.del = func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	d.generate = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte("{\"response\":\"He\"}\n{\"response\":\"llo\"}\n"))
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", d.record(func() http.HandlerFunc { return d.tags }))
	mux.HandleFunc("/api/delete", d.record(func() http.HandlerFunc { return d.del }))
	mux.HandleFunc("/api/generate", d.record(func() http.HandlerFunc { return d.generate }))
	d.srv = httptest.NewServer(mux)
	t.Cleanup(d.srv.Close)
	return d
}

func (d *stubDaemon) record(h func() http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		d.mu.Lock()
		d.calls = append(d.calls, r.Method+" "+r.URL.Path)
		d.bodies = append(d.bodies, body)
		fn := h()
		d.mu.Unlock()
		fn(w, r)
	}
}

func (d *stubDaemon) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// lastBody decodes the most recent request body into a generic map.
func (d *stubDaemon) lastBody(t *testing.T) map[string]any {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.bodies) == 0 {
		t.Fatalf("daemon received no requests")
	}
	var m map[string]any
	if err := json.Unmarshal(d.bodies[len(d.bodies)-1], &m); err != nil {
		t.Fatalf("decode daemon body: %v", err)
	}
	return m
}

// newRelayServer wires the real client, relay and router in front of upstreamURL.
func newRelayServer(t *testing.T, upstreamURL string) *httptest.Server {
	t.Helper()
	client := ollama.NewClient(ollama.Options{
		BaseURL:         upstreamURL,
		ConnectTimeout:  2 * time.Second,
		ResponseTimeout: 5 * time.Second,
		RequestTimeout:  5 * time.Second,
	})
	svc := relay.New(client, relay.Options{}, zerolog.Nop())
	srv := httptest.NewServer(httpapi.NewMux(svc))
	t.Cleanup(srv.Close)
	return srv
}

// closedURL returns an http URL on which nothing listens.
func closedURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return "http://" + addr
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil { t.Fatalf("new req: %v", err) }
	resp, err := http.DefaultClient.Do(req)
	if err != nil { t.Fatalf("GET %s: %v", url, err) }
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func httpPostJSON(t *testing.T, url string, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil { t.Fatalf("new req: %v", err) }
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil { t.Fatalf("POST %s: %v", url, err) }
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func errorField(t *testing.T, b []byte) string {
	t.Helper()
	var v struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &v); err != nil { t.Fatalf("decode error body %q: %v", b, err) }
	return v.Error
}
