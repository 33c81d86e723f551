// Package remote provides the HTTP client for the storefront REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// DefaultTimeout is used when no HTTP client is supplied.
const DefaultTimeout = 10 * time.Second

const maxErrorBody = 1 << 16

var (
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_api_requests_total",
			Help: "Total number of requests made to the storefront API",
		},
		[]string{"endpoint", "status"},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_api_request_duration_seconds",
			Help:    "Storefront API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

// RemoteError is a failed call to the storefront API. Message carries the
// server supplied message when there is one.
type RemoteError struct {
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("remote api: %s (status %d)", e.Message, e.Status)
	case e.Message != "":
		return "remote api: " + e.Message
	case e.Err != nil:
		return "remote api: " + e.Err.Error()
	default:
		return fmt.Sprintf("remote api: status %d", e.Status)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Client talks to the storefront REST API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL string, logger *zap.Logger, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("remote: base URL must not be empty")
	}

	c := &Client{
		baseURL: trimmed,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// envelope holds the fields every API response may carry.
type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// do performs a JSON request and decodes a 2xx response body into out.
// Non-2xx responses become a *RemoteError carrying the body's message.
func (c *Client) do(ctx context.Context, endpoint, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	remoteRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		remoteRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return &RemoteError{Err: fmt.Errorf("%s: %w", endpoint, err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	remoteRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(raw, &env)
		return &RemoteError{Status: resp.StatusCode, Message: env.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RemoteError{Status: resp.StatusCode, Err: fmt.Errorf("%s: decoding response: %w", endpoint, err)}
	}
	return nil
}
