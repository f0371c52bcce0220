// Package platform is the REST client for the device-linking API server.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/qrlink/internal/errors"
	"github.com/felixgeelhaar/qrlink/internal/log"
	"github.com/felixgeelhaar/qrlink/internal/metrics"
	"github.com/felixgeelhaar/qrlink/internal/telemetry"
)

// HeaderRequestID carries a per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// Outcome labels for request metrics.
const (
	outcomeOK                 = "ok"
	outcomeRequestFailed      = "request_failed"
	outcomeNetworkUnavailable = "network_unavailable"
	outcomeCanceled           = "canceled"
)

// Client is the device-linking API client.
// It performs no retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
	metrics    *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a new API client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("platform")
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestOptions describes one call.
type RequestOptions struct {
	// Method defaults to GET.
	Method string
	// Body is JSON-encoded when non-nil.
	Body any
	// AuthToken becomes "Authorization: Bearer <token>" when non-empty.
	AuthToken string
	// Headers are merged last, so an explicit Authorization here wins.
	Headers map[string]string
	// Route is the metrics label; defaults to the path. Set it for paths
	// that embed identifiers.
	Route string
}

// Response is a successful reply. JSON bodies are decoded into Value;
// anything else is kept in Text.
type Response struct {
	Status    int
	Header    http.Header
	RequestID string
	Value     any
	Text      string
	body      []byte
	isJSON    bool
}

// IsJSON reports whether the server declared a JSON body.
func (r *Response) IsJSON() bool {
	return r.isJSON
}

// Decode unmarshals the body into out.
func (r *Response) Decode(out any) error {
	if len(bytes.TrimSpace(r.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Request performs one HTTP call against path.
//
// Non-2xx replies become RequestFailed carrying the server's "detail" or
// "message" text verbatim. Connectivity failures become NetworkUnavailable.
func (c *Client) Request(ctx context.Context, path string, opts RequestOptions) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	route := opts.Route
	if route == "" {
		route = path
	}

	ctx, span := telemetry.StartRequestSpan(ctx, method, route)
	resp, err := c.request(ctx, method, path, route, opts)
	if resp != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	}
	if e, ok := errors.As(err); ok {
		span.SetAttributes(attribute.String("error.code", string(e.Code)))
	}
	telemetry.End(span, err)
	return resp, err
}

func (c *Client) request(ctx context.Context, method, path, route string, opts RequestOptions) (*Response, error) {
	var reqBody io.Reader
	if opts.Body != nil {
		raw, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if opts.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+opts.AuthToken)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	logger := c.logger.WithContext(ctx).With("method", method, "route", route, "request_id", req.Header.Get(HeaderRequestID))
	start := time.Now()

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.metrics.RecordHTTP(method, route, outcomeCanceled, time.Since(start))
			return nil, ctxErr
		}
		c.metrics.RecordHTTP(method, route, outcomeNetworkUnavailable, time.Since(start))
		c.metrics.RecordError(string(errors.ErrCodeNetworkUnavailable))
		logger.Warn("request failed to reach server", "error", err)
		return nil, errors.NetworkUnavailable(err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.metrics.RecordHTTP(method, route, outcomeNetworkUnavailable, time.Since(start))
		return nil, errors.NetworkUnavailable(fmt.Errorf("read response body: %w", err))
	}
	elapsed := time.Since(start)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		c.metrics.RecordHTTP(method, route, outcomeRequestFailed, elapsed)
		c.metrics.RecordError(string(errors.ErrCodeRequestFailed))
		msg := errorMessage(httpResp.StatusCode, body)
		logger.Debug("request rejected", "status", httpResp.StatusCode, "duration", elapsed, "message", msg)
		return nil, errors.RequestFailed(httpResp.StatusCode, msg)
	}

	c.metrics.RecordHTTP(method, route, outcomeOK, elapsed)
	logger.Debug("request completed", "status", httpResp.StatusCode, "duration", elapsed)

	resp := &Response{
		Status:    httpResp.StatusCode,
		Header:    httpResp.Header,
		RequestID: requestID,
		body:      body,
		isJSON:    isJSONContentType(httpResp.Header.Get("Content-Type")),
	}
	if resp.isJSON && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp.Value); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	} else {
		resp.Text = string(body)
	}
	return resp, nil
}

// Do is Request followed by decoding the JSON body into out.
func (c *Client) Do(ctx context.Context, path string, opts RequestOptions, out any) error {
	resp, err := c.Request(ctx, path, opts)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// errorMessage picks "detail", then "message", then the status text.
func errorMessage(status int, body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"detail", "message"} {
			if s, ok := payload[key].(string); ok && s != "" {
				return s
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}

func isJSONContentType(header string) bool {
	if header == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// Ping reports whether the server answers HTTP at all. Any status counts.
func (c *Client) Ping(ctx context.Context) (int, error) {
	resp, err := c.Request(ctx, "/", RequestOptions{Route: "/"})
	if err == nil {
		return resp.Status, nil
	}
	var e *errors.Error
	if stderrors.As(err, &e) && e.Code == errors.ErrCodeRequestFailed {
		return e.Status, nil
	}
	return 0, err
}
