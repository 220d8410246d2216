// Package transport POSTs JSON documents to the error-tracking API and classifies
// the answer. It never retries: one call, one request.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout      = 5 * time.Second
	defaultMaxBodyBytes = 1 << 20
)

type Sender struct {
	httpClient *http.Client
	options    *options
}

type options struct {
	baseURL     string
	timeout     time.Duration
	headers     map[string]string
	middlewares []Middleware
	base        http.RoundTripper
	logger      *zap.Logger
}

type Option func(*options)

func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithHeader(key, value string) Option {
	return func(o *options) { o.headers[key] = value }
}

// WithMiddleware appends mw; the first middleware added is the outermost.
func WithMiddleware(mw Middleware) Option {
	return func(o *options) {
		if mw != nil {
			o.middlewares = append(o.middlewares, mw)
		}
	}
}

// WithRoundTripper replaces http.DefaultTransport at the bottom of the chain.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func NewSender(opts ...Option) *Sender {
	o := &options{
		timeout: defaultTimeout,
		headers: map[string]string{},
		base:    http.DefaultTransport,
		logger:  zap.L(),
	}
	for _, opt := range opts {
		opt(o)
	}
	rt := o.base
	for i := len(o.middlewares) - 1; i >= 0; i-- {
		rt = o.middlewares[i](rt)
	}
	return &Sender{
		httpClient: &http.Client{Transport: rt, Timeout: o.timeout},
		options:    o,
	}
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Outcome    Outcome
}

// PostJSON sends body to baseURL+path. The returned *Error is nil only for Delivered;
// a Response is returned whenever the server answered.
func (s *Sender) PostJSON(ctx context.Context, path string, query url.Values, body []byte) (*Response, *Error) {
	target, err := url.Parse(s.options.baseURL + path)
	if err != nil {
		return nil, &Error{Outcome: NetworkFailure, Err: err, Method: http.MethodPost, URL: s.options.baseURL + path}
	}
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, s.options.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Outcome: NetworkFailure, Err: err, Method: http.MethodPost, URL: redactURL(target)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.options.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.options.logger.Debug("airbrake request failed",
			zap.String("url", redactURL(target)), zap.Bool("timeout", IsTimeout(err)), zap.Error(err))
		return nil, &Error{Outcome: NetworkFailure, Err: err, Method: req.Method, URL: redactURL(target)}
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodyBytes))
	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Outcome:    Classify(resp.StatusCode, nil),
	}
	if out.Outcome == Delivered {
		if readErr != nil {
			s.options.logger.Debug("airbrake response body unreadable", zap.Error(readErr))
		}
		return out, nil
	}
	return out, &Error{
		Outcome:    out.Outcome,
		StatusCode: resp.StatusCode,
		Body:       data,
		Err:        statusError(resp.StatusCode),
		Method:     req.Method,
		URL:        redactURL(target),
	}
}

func (s *Sender) Close() {
	if s.httpClient == nil {
		return
	}
	if t, ok := s.options.base.(*http.Transport); ok && t != http.DefaultTransport {
		t.CloseIdleConnections()
	}
}

type statusError int

func (e statusError) Error() string {
	return http.StatusText(int(e))
}
