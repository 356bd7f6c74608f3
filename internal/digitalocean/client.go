// Package digitalocean is the console's adapter for the DigitalOcean v2 REST
// API: a retrying, error-classifying client plus typed operations on top.
package digitalocean

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"droplet_console/internal/apperr"
)

const (
	DefaultBaseURL    = "https://api.digitalocean.com/v2"
	DefaultMaxRetries = 3

	baseDelay = time.Second
	maxDelay  = 10 * time.Second
)

// TokenSource yields the active API credential. It returns an error coded
// apperr.CodeCredentialMissing when none is configured.
type TokenSource interface {
	ActiveToken(ctx context.Context) (string, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	maxRetries int
	limiter    *rate.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
	log        *zap.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithDefaultMaxRetries sets the attempt budget for calls that do not pass
// WithMaxRetries.
func WithDefaultMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithRateLimit throttles outgoing attempts to rps with an equal burst.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithSleep replaces the backoff wait. Tests use it to record delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

func NewClient(tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		tokens:     tokens,
		maxRetries: DefaultMaxRetries,
		sleep:      sleepContext,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type callOptions struct {
	maxRetries int
	token      string
}

type CallOption func(*callOptions)

// WithMaxRetries bounds the number of attempts for one call.
func WithMaxRetries(n int) CallOption {
	return func(o *callOptions) { o.maxRetries = n }
}

// WithToken authenticates with tok instead of the stored credential.
func WithToken(tok string) CallOption {
	return func(o *callOptions) { o.token = tok }
}

// Backoff returns the wait before retrying after the given zero-based attempt.
func Backoff(attempt int) time.Duration {
	if attempt >= 4 {
		return maxDelay
	}
	d := baseDelay << attempt
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// Call performs one logical API request. Rate limiting, server errors and
// network failures are retried with exponential backoff up to the attempt
// budget; every other failure is returned immediately. On success the raw
// response body is returned (nil for empty bodies).
func (c *Client) Call(ctx context.Context, method, endpoint string, body any, opts ...CallOption) (json.RawMessage, error) {
	o := callOptions{maxRetries: c.maxRetries}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxRetries < 1 {
		o.maxRetries = 1
	}

	token := o.token
	if token == "" {
		var err error
		if token, err = c.tokens.ActiveToken(ctx); err != nil {
			return nil, err
		}
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to encode DigitalOcean request")
		}
	}

	var lastErr error
	for attempt := 0; attempt < o.maxRetries; attempt++ {
		if attempt > 0 {
			delay := Backoff(attempt - 1)
			retriesTotal.WithLabelValues(method).Inc()
			c.log.Info("retrying DigitalOcean API call",
				zap.String("method", method),
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		raw, err := c.do(ctx, method, endpoint, token, payload)
		if err == nil {
			attemptsTotal.WithLabelValues(method, "ok").Inc()
			return raw, nil
		}
		attemptsTotal.WithLabelValues(method, string(apperr.GetCode(err))).Inc()

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !apperr.GetCode(err).Retryable() {
			return nil, err
		}
		lastErr = err
	}

	c.log.Warn("DigitalOcean API call failed after retries",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Int("attempts", o.maxRetries),
		zap.Error(lastErr))
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, endpoint, token string, payload []byte) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to build DigitalOcean request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// No response at all: connection refused, DNS, reset.
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classify(resp.StatusCode, data)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return json.RawMessage(data), nil
}

// get calls endpoint and unmarshals the value under key into out.
func (c *Client) get(ctx context.Context, endpoint, key string, out any, opts ...CallOption) error {
	return c.callInto(ctx, http.MethodGet, endpoint, nil, key, out, opts...)
}

func (c *Client) callInto(ctx context.Context, method, endpoint string, body any, key string, out any, opts ...CallOption) error {
	raw, err := c.Call(ctx, method, endpoint, body, opts...)
	if err != nil {
		return err
	}
	return unwrap(endpoint, raw, key, out)
}

// unwrap extracts envelope[key] into out.
func unwrap(endpoint string, raw json.RawMessage, key string, out any) error {
	if raw == nil {
		return decodeError(endpoint, errors.New("empty body"))
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return decodeError(endpoint, err)
	}
	field, ok := envelope[key]
	if !ok {
		return decodeError(endpoint, fmt.Errorf("missing %q in response", key))
	}
	if err := json.Unmarshal(field, out); err != nil {
		return decodeError(endpoint, err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
