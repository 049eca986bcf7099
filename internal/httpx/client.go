// Package httpx provides the shared rate-limited HTTP client used by all
// broker adapters.
package httpx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/openalgo/gateway/errs"
)

const maxErrorBodyBytes = 4 << 10

// Config sizes a broker client against the vendor-documented limits.
type Config struct {
	Broker      string
	BaseURL     string
	Timeout     time.Duration
	RateLimit   float64
	Burst       int
	MaxAttempts int
	// OnRetry fires once per retried attempt, before the backoff wait.
	OnRetry func()
}

// Client wraps net/http with per-broker rate limiting, retry of idempotent
// requests, and normalization of non-2xx responses into errs envelopes.
type Client struct {
	broker      string
	base        string
	http        *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	onRetry     func()
}

// New constructs a broker HTTP client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Client{
		broker:      strings.TrimSpace(cfg.Broker),
		base:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:        &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(limit, burst),
		maxAttempts: attempts,
		onRetry:     cfg.OnRetry,
	}
}

// Request describes one broker REST call.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    []byte
	// ContentType defaults to application/json when Body is set.
	ContentType string
	// Idempotent opts the request into retry on 429/5xx/transport errors.
	// GET requests are retried regardless.
	Idempotent bool
}

// Do executes the request and returns the raw response body.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	retryable := req.Idempotent || strings.EqualFold(req.Method, http.MethodGet)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if !retryable {
				break
			}
			if c.onRetry != nil {
				c.onRetry()
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("retry wait: %w", ctx.Err())
			case <-time.After(bo.NextBackOff()):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		body, err := c.doOnce(ctx, req)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// GetJSON issues a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, headers map[string]string, out any) error {
	body, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query, Headers: headers})
	if err != nil {
		return err
	}
	return c.decode(path, body, out)
}

// PostJSON issues a POST with a JSON body and decodes the JSON response.
func (c *Client) PostJSON(ctx context.Context, path string, headers map[string]string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	body, err := c.Do(ctx, Request{Method: http.MethodPost, Path: path, Headers: headers, Body: payload})
	if err != nil {
		return err
	}
	return c.decode(path, body, out)
}

// PostForm issues a POST with a form-encoded body and decodes the JSON response.
// Several Indian brokers (Flattrade, Shoonya derivatives) take jData/jKey forms.
func (c *Client) PostForm(ctx context.Context, path string, headers map[string]string, form url.Values, out any) error {
	body, err := c.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        path,
		Headers:     headers,
		Body:        []byte(form.Encode()),
		ContentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return err
	}
	return c.decode(path, body, out)
}

func (c *Client) doOnce(ctx context.Context, req Request) ([]byte, error) {
	endpoint := c.base + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if len(req.Body) > 0 {
		reader = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", req.Path, err)
	}
	if len(req.Body) > 0 {
		contentType := req.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errs.New(c.broker, errs.CodeNetwork,
			errs.WithMessage("request failed"),
			errs.WithVenueField("endpoint", req.Path),
			errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, c.statusError(req.Path, resp.StatusCode, raw)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(c.broker, errs.CodeNetwork,
			errs.WithMessage("read response body"),
			errs.WithVenueField("endpoint", req.Path),
			errs.WithCause(err))
	}
	return body, nil
}

func (c *Client) decode(path string, body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.New(c.broker, errs.CodeBroker,
			errs.WithMessage("decode response"),
			errs.WithVenueField("endpoint", path),
			errs.WithCause(err))
	}
	return nil
}

func (c *Client) statusError(path string, status int, raw []byte) *errs.E {
	code := errs.CodeBroker
	canonical := errs.CanonicalUnknown
	switch {
	case status == http.StatusTooManyRequests:
		code = errs.CodeRateLimited
		canonical = errs.CanonicalRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = errs.CodeAuth
		canonical = errs.CanonicalSessionExpired
	case status == http.StatusNotFound:
		code = errs.CodeNotFound
	case status >= 500:
		code = errs.CodeUnavailable
	case status >= 400:
		code = errs.CodeInvalid
	}
	return errs.New(c.broker, code,
		errs.WithHTTP(status),
		errs.WithCanonicalCode(canonical),
		errs.WithRawMessage(strings.TrimSpace(string(raw))),
		errs.WithVenueField("endpoint", path))
}

func isRetryable(err error) bool {
	var envelope *errs.E
	if !errors.As(err, &envelope) {
		return false
	}
	switch envelope.Code {
	case errs.CodeNetwork, errs.CodeRateLimited, errs.CodeUnavailable:
		return true
	default:
		return false
	}
}
