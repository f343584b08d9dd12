// Package httpclient provides an instrumented JSON HTTP client with OTEL tracing and metrics.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

const (
	defaultDialKeepAlive         = 10 * time.Second
	defaultRequestTimeout        = 10 * time.Second
	defaultMaxConnsPerHost       = 5
	defaultIdleConnTimeout       = 2 * time.Minute
	defaultExpectContinueTimeout = 100 * time.Millisecond

	metricRequestCounter = "http_client_requests_total"
)

// Client issues JSON requests against a single upstream.
type Client struct {
	client         *http.Client
	requestCounter metric.Int64Counter
	tracer         trace.Tracer
	providerName   string
	baseURL        string
	headers        map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithProviderName labels metrics and spans with the upstream name.
func WithProviderName(name string) Option {
	return func(c *Client) { c.providerName = name }
}

// WithBaseURL resolves relative request paths against base.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(base, "/") }
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// WithTimeout bounds each request including body read.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithTransport replaces the underlying transport. Used by tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.client.Transport = rt }
}

// New creates an instrumented client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		client: &http.Client{
			Timeout: defaultRequestTimeout,
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{KeepAlive: defaultDialKeepAlive}).DialContext,
				MaxConnsPerHost:       defaultMaxConnsPerHost,
				IdleConnTimeout:       defaultIdleConnTimeout,
				ExpectContinueTimeout: defaultExpectContinueTimeout,
			},
		},
		providerName: "default",
		headers:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.client.Transport = otelhttp.NewTransport(
		c.client.Transport,
		otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
			return otelhttptrace.NewClientTrace(ctx)
		}),
	)

	meter := otel.GetMeterProvider().Meter(
		"instrumented_http_client",
		metric.WithInstrumentationAttributes(attribute.String("provider", c.providerName)),
	)
	counter, err := meter.Int64Counter(
		metricRequestCounter,
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}
	c.requestCounter = counter
	c.tracer = otel.Tracer("instrumented_http_client")

	return c, nil
}

// GetJSON issues a GET and decodes a 2xx JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON encodes in as the JSON body and decodes a 2xx response into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	ctx, span := c.tracer.Start(ctx, "http.request",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
			attribute.String("provider", c.providerName),
		),
	)
	defer span.End()

	fullURL := path
	if c.baseURL != "" && !strings.HasPrefix(path, "http") {
		fullURL = c.baseURL + "/" + strings.TrimPrefix(path, "/")
	}
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to marshal body")
			return fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create request")
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.recordError(ctx, span, err)
		return classify(err, c.providerName)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordError(ctx, span, err)
		return classify(err, c.providerName)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, resp.Status)
		c.recordMetrics(ctx, false)
		return statusError(resp.StatusCode, raw, c.providerName)
	}
	c.recordMetrics(ctx, true)

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		span.RecordError(err)
		return apperror.New(apperror.CodeExternalServiceError,
			apperror.WithCause(err),
			apperror.WithContext(c.providerName+": decode response"))
	}
	return nil
}

func (c *Client) recordError(ctx context.Context, span trace.Span, err error) {
	span.RecordError(err)

	var netErr net.Error
	if errors.Is(err, context.Canceled) {
		span.SetAttributes(attribute.Bool("context.cancelled", true))
	}
	if errors.As(err, &netErr) && netErr.Timeout() {
		span.SetAttributes(attribute.Bool("request.timeout", true))
	}

	span.SetStatus(codes.Error, err.Error())
	c.recordMetrics(ctx, false)
}

func (c *Client) recordMetrics(ctx context.Context, success bool) {
	c.requestCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", c.providerName),
		attribute.Bool("success", success),
	))
}

func classify(err error, provider string) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperror.New(apperror.CodeServiceTimeout,
			apperror.WithCause(err),
			apperror.WithContext(provider))
	}
	return apperror.New(apperror.CodeExternalServiceError,
		apperror.WithCause(err),
		apperror.WithContext(provider))
}

func statusError(status int, body []byte, provider string) error {
	code := apperror.CodeExternalServiceError
	switch {
	case status == http.StatusTooManyRequests:
		code = apperror.CodeRateLimitExceeded
	case status == http.StatusServiceUnavailable:
		code = apperror.CodeServiceUnavailable
	case status == http.StatusGatewayTimeout:
		code = apperror.CodeServiceTimeout
	}

	snippet := string(body)
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}
	return apperror.New(code,
		apperror.WithContext(fmt.Sprintf("%s: status %d: %s", provider, status, snippet)))
}
