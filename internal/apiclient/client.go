package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sessionkit/internal/logger"
	"github.com/wolfeidau/sessionkit/internal/session"
	"github.com/wolfeidau/sessionkit/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LoginPath is where the client sends the user after an unauthorized response.
const LoginPath = "/login"

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 64 << 10

// ErrMalformedResponse is returned when a 2xx body cannot be decoded.
var ErrMalformedResponse = errors.New("malformed response")

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
}

// IsUnauthorized reports whether err is an HTTPError with status 401.
func IsUnauthorized(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized
}

// Config holds common client configuration
type Config struct {
	BaseURL string
	// Timeout of zero leaves requests bounded only by the transport defaults.
	Timeout time.Duration
	// Debug adds request and response headers to the request log.
	Debug bool
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
	}
}

// Client sends API requests with the session's bearer token and enforces the
// logout and redirect rule on 401 responses.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	session    *session.Store
	location   Location
	metrics    *telemetry.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithTransport sets the base transport beneath the auth and logging layers.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// WithMetrics overrides the global metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a client for the API at cfg.BaseURL.
func New(cfg Config, sess *session.Store, loc Location, opts ...Option) (*Client, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", cfg.BaseURL)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		session:    sess,
		location:   loc,
		metrics:    telemetry.GetMetrics(),
	}

	for _, opt := range opts {
		opt(c)
	}

	var logOpts []logger.HTTPRequestsOption
	if cfg.Debug {
		logOpts = append(logOpts, logger.WithHeaders())
	}

	c.httpClient.Transport = &authTransport{
		session: sess,
		next:    logger.NewHTTPRequests(log.Logger, c.httpClient.Transport, logOpts...),
	}

	return c, nil
}

// Get issues a GET and decodes a JSON body into out when out is non-nil.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.Do(req, out)
}

// PostForm issues a form encoded POST and decodes a JSON body into out.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := c.NewRequest(ctx, http.MethodPost, path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.Do(req, out)
}

// PostJSON issues a POST with in encoded as the JSON body and decodes a JSON
// body into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := c.NewRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req, out)
}

// NewRequest builds a request for path relative to the base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.ResolveReference(ref).String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return req, nil
}

// Do sends req. Transport errors are returned unchanged, non-2xx responses
// become *HTTPError, and a 401 additionally forces logout and a redirect to
// the login page before the error is returned.
func (c *Client) Do(req *http.Request, out any) error {
	ctx := req.Context()
	started := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(ctx, req.Method, "error", started)
		return err
	}
	defer resp.Body.Close()

	c.record(ctx, req.Method, strconv.Itoa(resp.StatusCode/100)+"xx", started)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		httpErr := &HTTPError{
			Method:     req.Method,
			URL:        req.URL.Redacted(),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       body,
		}

		if resp.StatusCode == http.StatusUnauthorized {
			c.handleUnauthorized(ctx, req)
		}

		return httpErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return nil
}

func (c *Client) handleUnauthorized(ctx context.Context, req *http.Request) {
	log.Warn().Str("path", req.URL.Path).Msg("401 unauthorized, logging out")

	c.metrics.UnauthorizedLogoutsTotal.Add(ctx, 1)

	c.session.Logout()
	if c.location != nil {
		c.location.Assign(LoginPath)
	}
}

func (c *Client) record(ctx context.Context, method, class string, started time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status_class", class),
	)
	c.metrics.APIRequestsTotal.Add(ctx, 1, attrs)
	c.metrics.APIRequestDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)
}
