// Package client sends resolved query plans to module backends.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/felman/modulos_backend/internal/queryplan"
)

// MaxErrorBody caps how much of a failed response body is kept.
const MaxErrorBody = 64 << 10

// TransportError covers failures before any HTTP status was received.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response. Body is read best-effort.
type HTTPError struct {
	URL    string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s responded %d", e.URL, e.Status)
	}
	return fmt.Sprintf("%s responded %d: %s", e.URL, e.Status, e.Body)
}

type Response struct {
	Status   int
	Body     []byte
	Duration time.Duration
}

type Client struct {
	httpClient *http.Client
	headers    map[string]string
	log        *zap.Logger
}

type Option func(c *Client)

// WithHTTPClient replaces the default http.Client, which has no timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithHeaders adds headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		headers:    map[string]string{},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute POSTs the plan body to the plan URL and returns the raw 2xx body.
func (c *Client) Execute(ctx context.Context, plan queryplan.Plan) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, plan.URL, bytes.NewReader(plan.Body))
	if err != nil {
		return nil, &TransportError{URL: plan.URL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("module request failed", zap.String("url", plan.URL), zap.String("kind", string(plan.Kind)), zap.Error(err))
		return nil, &TransportError{URL: plan.URL, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, MaxErrorBody))
		return nil, &HTTPError{URL: plan.URL, Status: res.StatusCode, Body: string(bytes.TrimSpace(b))}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &TransportError{URL: plan.URL, Err: errors.Wrap(err, "read body")}
	}
	elapsed := time.Since(start)
	c.log.Debug("module request done",
		zap.String("url", plan.URL),
		zap.String("kind", string(plan.Kind)),
		zap.Int("status", res.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("took", elapsed),
	)
	return &Response{Status: res.StatusCode, Body: body, Duration: elapsed}, nil
}
