package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/roach88/pnmtrack/internal/metrics"
)

// Proxy relays requests to the upstream script URL so clients never need to
// know it. POST bodies are forwarded as JSON; GET query parameters are
// appended to the upstream URL. Upstream status and JSON body are relayed.
type Proxy struct {
	scriptURL string
	http      *http.Client
	logger    *slog.Logger
}

// NewProxy creates a Proxy for scriptURL. An empty scriptURL is allowed; every
// request is then answered with a configuration error.
func NewProxy(scriptURL string, hc *http.Client, logger *slog.Logger) *Proxy {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{scriptURL: scriptURL, http: hc, logger: logger}
}

// Routes returns the proxy's HTTP routes:
//
//	POST /api/proxy  forward JSON body
//	GET  /api/proxy  forward query parameters
//	GET  /metrics    Prometheus metrics
//	GET  /healthz    liveness
func (p *Proxy) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/proxy", p.handlePost)
	mux.HandleFunc("GET /api/proxy", p.handleGet)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	return mux
}

func (p *Proxy) handlePost(w http.ResponseWriter, r *http.Request) {
	if p.scriptURL == "" {
		p.fail(w, r, "Google Script URL not configured", nil)
		return
	}

	var body any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxResponseBytes)).Decode(&body); err != nil {
		p.fail(w, r, "Failed to proxy request", fmt.Errorf("decode request: %w", err))
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		p.fail(w, r, "Failed to proxy request", err)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, p.scriptURL, bytes.NewReader(data))
	if err != nil {
		p.fail(w, r, "Failed to proxy request", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	p.relay(w, r, req)
}

func (p *Proxy) handleGet(w http.ResponseWriter, r *http.Request) {
	if p.scriptURL == "" {
		p.fail(w, r, "Google Script URL not configured", nil)
		return
	}

	target, err := url.Parse(p.scriptURL)
	if err != nil {
		p.fail(w, r, "Failed to proxy request", err)
		return
	}
	q := target.Query()
	for key, values := range r.URL.Query() {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		p.fail(w, r, "Failed to proxy request", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	p.relay(w, r, req)
}

func (p *Proxy) relay(w http.ResponseWriter, r *http.Request, req *http.Request) {
	resp, err := p.http.Do(req)
	if err != nil {
		p.fail(w, r, "Failed to proxy request", err)
		return
	}
	defer resp.Body.Close()

	var data any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&data); err != nil {
		p.fail(w, r, "Failed to proxy request", fmt.Errorf("decode upstream response: %w", err))
		return
	}

	metrics.RecordProxyRequest(r.Method, strconv.Itoa(resp.StatusCode))
	writeJSON(w, resp.StatusCode, data)
}

func (p *Proxy) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	p.logger.Error("proxy error", "method", r.Method, "message", message, "error", err)
	metrics.RecordProxyRequest(r.Method, strconv.Itoa(http.StatusInternalServerError))
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
