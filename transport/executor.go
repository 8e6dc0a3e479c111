// Package transport executes authenticated JSON requests against the backend
// and normalizes every failure into an apierror kind. It never retries.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/goliatone/go-resource-cache/apierror"
	"github.com/goliatone/go-resource-cache/internal/logging"
	"github.com/goliatone/go-resource-cache/metrics"
	"github.com/goliatone/go-resource-cache/session"
)

// Request is one call to the backend.
type Request struct {
	Method  string
	URL     string
	Session session.Session
	Query   url.Values
	// Body is JSON encoded when non-nil.
	Body    any
	Headers map[string]string
	// Resource labels logs and metrics.
	Resource string
}

// Response is a successful (status < 400) backend response.
type Response struct {
	Method     string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	RequestID  string
}

// Executor issues requests with the standard headers.
type Executor struct {
	httpClient *http.Client
	cfg        Config
	limiter    *rate.Limiter
	logger     *zap.Logger
	recorder   metrics.Recorder
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		e.logger = logging.OrNop(l)
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Executor) {
		e.recorder = metrics.OrNop(r)
	}
}

// New creates an executor. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) (*Executor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("transport config: %w", err)
	}

	e := &Executor{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:      cfg,
		logger:   zap.NewNop(),
		recorder: metrics.Nop{},
	}
	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the effective configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

// Do executes req once. Missing token or scope fails before any I/O.
func (e *Executor) Do(ctx context.Context, req Request) (*Response, error) {
	if !req.Session.Ready() {
		return nil, apierror.Precondition(
			"missing " + strings.Join(req.Session.Missing(), " and ") + " for " + req.Resource)
	}

	target, err := withQuery(req.URL, req.Query)
	if err != nil {
		return nil, apierror.Wrap(err, apierror.KindPrecondition, 0, "invalid request url")
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, apierror.Wrap(err, apierror.KindValidation, 0, "encode request body")
		}
		body = bytes.NewReader(payload)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, apierror.FromContext(contextErr(ctx, err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, apierror.Wrap(err, apierror.KindPrecondition, 0, "build request")
	}

	requestID := uuid.NewString()
	e.setHeaders(httpReq, req, requestID)

	logger := e.logger.With(
		zap.String("resource", req.Resource),
		zap.String("method", method),
		zap.String("url", target),
		zap.String("request_id", requestID),
	)

	start := time.Now()
	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		failure := apierror.FromContext(contextErr(ctx, err))
		e.observe(req.Resource, method, 0, failure, time.Since(start))
		logger.Warn("backend request failed", zap.Error(failure))
		return nil, failure
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, e.cfg.MaxResponseBytes))
	duration := time.Since(start)
	if err != nil {
		failure := apierror.FromContext(contextErr(ctx, err))
		e.observe(req.Resource, method, httpResp.StatusCode, failure, duration)
		logger.Warn("reading backend response failed", zap.Error(failure))
		return nil, failure
	}

	if httpResp.StatusCode >= http.StatusBadRequest {
		failure := apierror.FromStatus(httpResp.StatusCode, serverMessage(data))
		e.observe(req.Resource, method, httpResp.StatusCode, failure, duration)
		logger.Warn("backend rejected request",
			zap.Int("status", httpResp.StatusCode),
			zap.String("kind", string(apierror.KindOf(failure))),
			zap.Duration("duration", duration))
		return nil, failure
	}

	e.observe(req.Resource, method, httpResp.StatusCode, nil, duration)
	logger.Debug("backend request",
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", duration))

	return &Response{
		Method:     method,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		Duration:   duration,
		RequestID:  requestID,
	}, nil
}

func (e *Executor) setHeaders(httpReq *http.Request, req Request, requestID string) {
	httpReq.Header.Set("Authorization", "Bearer "+req.Session.Token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", e.cfg.UserAgent)
	httpReq.Header.Set(e.cfg.ScopeHeader, req.Session.Scope)
	httpReq.Header.Set(RequestIDHeader, requestID)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
}

func (e *Executor) observe(resource, method string, status int, err error, d time.Duration) {
	e.recorder.ObserveRequest(resource, method, status, string(apierror.KindOf(err)), d)
}

// contextErr prefers the context's own error so timeouts and cancellations are
// classified as such instead of as transport failures.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err == nil {
		return nil
	}
	return fmt.Errorf("transport: %w", err)
}

func withQuery(rawURL string, query url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q must be absolute", rawURL)
	}
	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
