// Package httpkit builds the outbound HTTP clients used by the hub's
// AI providers and any plugin that wants one: consistent dial/TLS
// timeouts, bounded connection pools, an injected User-Agent, and
// optional retry on transient connection errors.
package httpkit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/nugget/msghub/internal/buildinfo"
)

// Shared transport defaults.
const (
	defaultDialTimeout         = 10 * time.Second
	defaultKeepAlive           = 30 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultResponseHeader      = 15 * time.Second
	defaultIdleConnTimeout     = 90 * time.Second
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 5
)

type options struct {
	timeout        time.Duration
	responseHeader time.Duration
	userAgent      string
	retryCount     int
	retryDelay     time.Duration
	logger         *slog.Logger
}

// Option configures a client built by NewClient.
type Option func(*options)

// WithTimeout sets the overall request timeout. Zero disables it; rely
// on context deadlines instead for long-lived requests.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithResponseHeaderTimeout raises the time allowed between writing the
// request and receiving response headers, for servers that think before
// they answer.
func WithResponseHeaderTimeout(d time.Duration) Option {
	return func(o *options) { o.responseHeader = d }
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithRetry retries transient connection errors (host unreachable,
// connection refused/reset) up to count times, delay apart. Requests
// with a body are only retried when GetBody can rewind it.
func WithRetry(count int, delay time.Duration) Option {
	return func(o *options) {
		o.retryCount = count
		o.retryDelay = delay
	}
}

// WithLogger sets a logger for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewClient builds an *http.Client with its own transport and the
// configured behavior.
func NewClient(opts ...Option) *http.Client {
	o := options{
		timeout:        30 * time.Second,
		responseHeader: defaultResponseHeader,
		userAgent:      buildinfo.UserAgent(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	t := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: defaultKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: o.responseHeader,
		IdleConnTimeout:       defaultIdleConnTimeout,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		ForceAttemptHTTP2:     true,
	}

	var rt http.RoundTripper = &userAgentTransport{base: t, ua: o.userAgent}
	if o.retryCount > 0 {
		rt = &retryTransport{base: rt, count: o.retryCount, delay: o.retryDelay, logger: o.logger}
	}

	return &http.Client{Timeout: o.timeout, Transport: rt}
}

// userAgentTransport sets the User-Agent header unless the request
// already carries one.
type userAgentTransport struct {
	base http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		// Clone rather than mutate, per the RoundTripper contract.
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.ua)
	}
	return t.base.RoundTrip(req)
}

// retryTransport retries transient connection-level failures.
type retryTransport struct {
	base   http.RoundTripper
	count  int
	delay  time.Duration
	logger *slog.Logger
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil || !isRetryable(err) {
		return resp, err
	}
	if req.Body != nil && req.GetBody == nil {
		// Body already consumed and not rewindable.
		return resp, err
	}

	for attempt := 1; attempt <= t.count; attempt++ {
		if t.logger != nil {
			t.logger.Warn("retrying request after transient error",
				"method", req.Method, "url", req.URL.String(),
				"attempt", attempt, "maxRetries", t.count, "error", err)
		}

		timer := time.NewTimer(t.delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}

		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, fmt.Errorf("retry: rewind body: %w", bodyErr)
			}
			req.Body = body
		}

		resp, err = t.base.RoundTrip(req)
		if err == nil || !isRetryable(err) {
			return resp, err
		}
	}
	return resp, err
}

// isRetryable reports whether err is a connection-level failure likely
// to clear on its own. errors.As walks wrapped chains, including
// net.OpError, so one errno check covers all the usual wrappings.
func isRetryable(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.EHOSTUNREACH, syscall.ENETUNREACH,
		syscall.ECONNREFUSED, syscall.ECONNRESET:
		return true
	}
	return false
}

// DrainAndClose reads up to limit bytes from rc and closes it, so the
// underlying connection returns to the pool.
func DrainAndClose(rc io.ReadCloser, limit int64) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, limit))
	rc.Close()
}

// ReadErrorBody reads up to limit bytes of rc for an error message,
// then drains and closes the remainder.
func ReadErrorBody(rc io.ReadCloser, limit int64) string {
	if rc == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(rc, limit))
	DrainAndClose(rc, 1024)
	if err != nil {
		return fmt.Sprintf("(failed to read error body: %v)", err)
	}
	return string(body)
}
