package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Common errors.
var (
	ErrNotFound     = errors.New("http: resource not found")
	ErrForbidden    = errors.New("http: access forbidden")
	ErrUnauthorized = errors.New("http: unauthorized")
	ErrServerError  = errors.New("http: server error")
	ErrRejected     = errors.New("http: request rejected")
)

// maxErrorBody bounds how much of a streamed error body is kept for diagnostics.
const maxErrorBody = 64 * 1024

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 100
	MaxIdleConnsPerHost int

	// Timeout for individual requests, including reading a streamed body.
	// Default: 5m
	Timeout time.Duration

	// RetryBackoff is the delay after the first consecutive 429.
	// Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff caps the computed 429 backoff.
	// Default: 16s
	RetryMaxBackoff time.Duration

	// RetryAfterUnit is the duration of one unit of a Retry-After header.
	// Default: 1s
	RetryAfterUnit time.Duration

	// RequestsPerSecond paces outgoing requests across all workers.
	// Zero disables pacing.
	RequestsPerSecond float64

	// Sleep replaces the backoff timer. Used by tests.
	Sleep SleepFunc
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 100,
		Timeout:             5 * time.Minute,
		RetryBackoff:        time.Second,
		RetryMaxBackoff:     16 * time.Second,
		RetryAfterUnit:      time.Second,
	}
}

// Request describes one logical request. Body is replayed on every retry.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Stream leaves the response body open for the caller to read.
	Stream bool

	// OnThrottle is called before each rate-limit sleep with the number of
	// consecutive 429s so far and the delay about to be applied.
	OnThrottle func(throttles int, delay time.Duration)
}

// Response is a non-429 response. Close must be called on streamed responses;
// it is a no-op for buffered ones.
type Response struct {
	StatusCode int
	Header     http.Header

	// Data holds the full body of a buffered response.
	Data []byte

	body io.ReadCloser
	once sync.Once
}

// RequestID returns the service correlation id of the response.
func (r *Response) RequestID() string {
	return r.Header.Get("RequestId")
}

// Body returns the response body.
func (r *Response) Body() io.Reader {
	if r.body != nil {
		return r.body
	}
	return bytes.NewReader(r.Data)
}

// Close releases the underlying connection. At most maxErrorBody unread bytes
// are drained so the connection can be reused; a larger remainder drops it.
// Safe to call more than once.
func (r *Response) Close() error {
	var err error
	r.once.Do(func() {
		if r.body == nil {
			return
		}
		_, _ = io.CopyN(io.Discard, r.body, maxErrorBody)
		err = r.body.Close()
	})
	return err
}

// Expect returns a *StatusError unless the status code is one of codes.
func (r *Response) Expect(codes ...int) error {
	for _, c := range codes {
		if r.StatusCode == c {
			return nil
		}
	}
	body := r.Data
	if r.body != nil {
		body, _ = io.ReadAll(io.LimitReader(r.body, maxErrorBody))
	}
	return &StatusError{StatusCode: r.StatusCode, Body: string(body)}
}

// StatusError is a well-formed response with an unexpected status code.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Unwrap maps the status code onto the package's sentinel errors.
func (e *StatusError) Unwrap() error {
	return classify(e.StatusCode)
}

// TransportError means no response was received.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RetryState tracks backoff for one logical request.
type RetryState struct {
	Delay     time.Duration
	Max       time.Duration
	Throttles int
}

// next records a 429 and returns how long to wait before the next attempt.
// A Retry-After hint, when present, overrides the computed delay.
func (s *RetryState) next(hint time.Duration, hinted bool) time.Duration {
	s.Throttles++
	d := s.Delay
	if s.Delay < s.Max {
		s.Delay *= 2
		if s.Delay > s.Max {
			s.Delay = s.Max
		}
	}
	if hinted {
		return hint
	}
	return d
}

// Client is the shared, concurrency-safe HTTP client.
type Client struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
	closer  sync.Once
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	def := DefaultOptions()
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	if opts.RetryMaxBackoff < opts.RetryBackoff {
		opts.RetryMaxBackoff = 16 * opts.RetryBackoff
	}
	if opts.RetryAfterUnit <= 0 {
		opts.RetryAfterUnit = def.RetryAfterUnit
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// Do performs req, absorbing 429 responses. Any other response is returned
// as is; the caller interprets the status code.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	state := &RetryState{Delay: c.opts.RetryBackoff, Max: c.opts.RetryMaxBackoff}

	for {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
			}
		}

		resp, throttled, err := c.attempt(ctx, req)
		if err != nil {
			return nil, err
		}
		if !throttled {
			return resp, nil
		}

		hint, hinted := ParseRetryAfter(resp.Header.Get("Retry-After"), c.opts.RetryAfterUnit)
		delay := state.next(hint, hinted)
		if req.OnThrottle != nil {
			req.OnThrottle(state.Throttles, delay)
		}
		if err := c.opts.Sleep(ctx, delay); err != nil {
			return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
		}
	}
}

// attempt issues req once. Throttled responses and buffered responses have
// their connection released before returning.
func (c *Client) attempt(ctx context.Context, req Request) (resp *Response, throttled bool, err error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	r, err := c.client.Do(httpReq)
	if err != nil {
		return nil, false, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}

	resp = &Response{StatusCode: r.StatusCode, Header: r.Header}
	throttled = r.StatusCode == http.StatusTooManyRequests
	if req.Stream && !throttled {
		resp.body = r.Body
		return resp, false, nil
	}

	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, false, &TransportError{Method: req.Method, URL: req.URL, Err: fmt.Errorf("read body: %w", err)}
	}
	resp.Data = data
	return resp, throttled, nil
}

// Close releases all pooled connections. Only the first call has an effect.
func (c *Client) Close() {
	c.closer.Do(c.client.CloseIdleConnections)
}

// ParseRetryAfter parses an integer Retry-After header into a duration of
// unit-sized steps. It reports false when the header is absent, invalid or
// too large to represent.
func ParseRetryAfter(v string, unit time.Duration) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" || unit <= 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 || n > math.MaxInt64/int64(unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// classify returns the sentinel error for a non-success status code.
func classify(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code >= 500:
		return ErrServerError
	default:
		return ErrRejected
	}
}
