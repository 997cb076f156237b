// Package gateway forwards flow submissions to the remote record store and
// normalizes its responses.
//
// The remote store speaks one operation: POST a JSON object carrying an
// "action" field plus action-specific fields, and receive a JSON object with an
// "ok" flag and either result fields or an "error" string. The gateway does not
// interpret the response beyond ok, name and error.
//
// Submissions are never retried here. A failed submission is reported to the
// caller, which surfaces it to the operator.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/pnmtrack/internal/metrics"
)

// Actions understood by the remote store.
const (
	ActionCheckIn       = "check-in"
	ActionIngest        = "ingest"
	ActionCheckPassword = "checkPassword"
)

// DefaultTimeout bounds one submission round trip.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes limits how much of a response body is read.
const maxResponseBytes = 10 << 20

// ErrNotConfigured is returned when no gateway URL is set.
var ErrNotConfigured = errors.New("gateway URL not configured")

// Result is the normalized outcome of a submission.
type Result struct {
	// OK is true only for a 2xx response whose body has "ok": true.
	OK bool

	// Name is the optional display name returned by check-in.
	Name string

	// Error is the remote error message, if any.
	Error string

	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Data holds the full decoded response body.
	Data map[string]any
}

// Message returns the remote error, or fallback when the remote gave none.
func (r Result) Message(fallback string) string {
	if r.Error != "" {
		return r.Error
	}
	return fallback
}

// Submitter is the single chokepoint every flow submits through.
type Submitter interface {
	Submit(ctx context.Context, action string, payload map[string]any) (Result, error)
}

// Client submits to the remote store over HTTP.
type Client struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the round-trip timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client posting to url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit posts {"action": action, ...payload} and normalizes the response.
//
// A non-nil error means the round trip itself failed (network, timeout,
// undecodable body). A remote rejection is returned as a Result with OK=false
// and a nil error.
func (c *Client) Submit(ctx context.Context, action string, payload map[string]any) (Result, error) {
	if c.url == "" {
		return Result{}, ErrNotConfigured
	}

	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["action"] = action

	data, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("gateway: encode %s: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("gateway: build request: %w", err)
	}
	requestID := newRequestID()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	logger := c.logger.With("action", action, "request_id", requestID)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordSubmission(action, "error", time.Since(start))
		logger.Error("submission failed", "error", err)
		return Result{}, fmt.Errorf("gateway: %s: %w", action, err)
	}
	defer resp.Body.Close()

	result, err := decodeResult(resp)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordSubmission(action, "error", elapsed)
		logger.Error("undecodable response", "status", resp.StatusCode, "error", err)
		return Result{StatusCode: resp.StatusCode}, fmt.Errorf("gateway: %s: %w", action, err)
	}

	if result.OK {
		metrics.RecordSubmission(action, "ok", elapsed)
		logger.Debug("submission accepted", "status", result.StatusCode, "elapsed", elapsed)
	} else {
		metrics.RecordSubmission(action, "rejected", elapsed)
		logger.Warn("submission rejected", "status", result.StatusCode, "remote_error", result.Error)
	}
	return result, nil
}

func decodeResult(resp *http.Response) (Result, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}

	result := Result{
		StatusCode: resp.StatusCode,
		Data:       data,
	}
	ok, _ := data["ok"].(bool)
	result.OK = ok && resp.StatusCode >= 200 && resp.StatusCode < 300
	result.Name, _ = data["name"].(string)
	result.Error, _ = data["error"].(string)
	return result, nil
}

// newRequestID prefers a time-ordered UUID. When the random source fails it
// falls back to a timestamp so a submission never panics for want of an ID.
func newRequestID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return "req-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}
