// Package airbrake sends error notices to an Airbrake-compatible service.
//
// A Notifier is safe for concurrent use. Each call makes at most one synchronous
// HTTP request bounded by the configured timeout; nothing is queued or retried.
package airbrake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fsandov/airbrake-go/pkg/cache"
	"github.com/fsandov/airbrake-go/pkg/config"
	"github.com/fsandov/airbrake-go/pkg/notice"
	"github.com/fsandov/airbrake-go/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	userAgent        = notice.NotifierName + "/" + notice.Version
	rateLimitHeader  = "X-RateLimit-Delay"
	dedupeKeyPrefix  = "notice:"
	noticesPathFmt   = "/api/v3/projects/%s/notices"
	deploysPathFmt   = "/api/v4/projects/%s/deploys"
	maxCooldownDelay = time.Hour
)

var (
	// ErrRateLimited is returned without a request while a 429 cooldown is active.
	ErrRateLimited = errors.New("airbrake: rate limited, cooling down")
	ErrNilNotice   = errors.New("airbrake: nil notice")
)

// Report describes what happened to one notice.
type Report struct {
	Outcome    transport.Outcome
	StatusCode int
	// ID and URL are assigned by the service on delivery.
	ID  string
	URL string
}

// SendError is returned for every outcome other than Delivered and Suppressed.
type SendError struct {
	Outcome    transport.Outcome
	StatusCode int
	// Message is the service's explanation, when it sent one.
	Message string
	Err     error
}

func (e *SendError) Error() string {
	msg := fmt.Sprintf("airbrake: notice %s: status=%d", e.Outcome, e.StatusCode)
	if e.Message != "" {
		msg += ", message=" + e.Message
	}
	if e.Err != nil {
		msg += ", err=" + e.Err.Error()
	}
	return msg
}

func (e *SendError) Unwrap() error { return e.Err }

type Notifier struct {
	cfg       config.Config
	builder   *notice.Builder
	sender    *transport.Sender
	keyFilter *notice.KeyFilter
	filters   []Filter
	logger    *zap.Logger

	dedupe    cache.Cache
	ownsCache bool

	notices *prometheus.CounterVec

	noticesPath string
	deploysPath string
	query       url.Values

	cooldownUntil atomic.Int64
	now           func() time.Time
}

// New resolves cfg against the environment and defaults. It fails with
// config.ErrNotConfigured when the project id or API key is missing.
func New(cfg config.Config, opts ...Option) (*Notifier, error) {
	resolved, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	o := &options{logger: zap.L()}
	for _, opt := range opts {
		opt(o)
	}

	topts := []transport.Option{
		transport.WithBaseURL(resolved.Host),
		transport.WithTimeout(resolved.Timeout),
		transport.WithHeader("User-Agent", userAgent),
		transport.WithHeader("Authorization", "Bearer "+resolved.APIKey),
		transport.WithLogger(o.logger),
		transport.WithMiddleware(transport.RequestIDMiddleware()),
	}
	if o.roundTripper != nil {
		topts = append(topts, transport.WithRoundTripper(o.roundTripper))
	}
	for _, mw := range o.middlewares {
		topts = append(topts, transport.WithMiddleware(mw))
	}

	n := &Notifier{
		cfg: resolved,
		builder: notice.NewBuilder(notice.Defaults{
			Environment:   resolved.Environment,
			Hostname:      resolved.Hostname,
			RootDirectory: resolved.RootDirectory,
			AppVersion:    resolved.AppVersion,
			Revision:      resolved.Revision,
			Severity:      notice.Severity(resolved.Severity),
			MaxFrames:     resolved.MaxFrames,
			MaxCauses:     resolved.MaxCauses,
		}),
		sender:      transport.NewSender(topts...),
		keyFilter:   notice.NewKeyFilter(resolved.Whitelist, resolved.Blacklist),
		filters:     o.filters,
		logger:      o.logger.Named("airbrake"),
		noticesPath: fmt.Sprintf(noticesPathFmt, url.PathEscape(resolved.ProjectID)),
		deploysPath: fmt.Sprintf(deploysPathFmt, url.PathEscape(resolved.ProjectID)),
		query:       url.Values{"key": {resolved.APIKey}},
		now:         time.Now,
	}
	if resolved.DedupeTTL > 0 {
		n.dedupe = o.cache
		if n.dedupe == nil {
			n.dedupe = cache.NewMemoryCache()
			n.ownsCache = true
		}
	}
	if o.registerer != nil {
		n.notices = noticeCounter(o.registerer)
	}
	return n, nil
}

// Config returns a copy of the resolved configuration.
func (n *Notifier) Config() config.Config { return n.cfg }

// Build turns err into a notice without sending it. A plain error without its own
// stack gets the caller's stack.
func (n *Notifier) Build(err error, opts ...NoticeOption) notice.Result {
	return n.build(notice.Input{Err: err, Stack: notice.Callers(1)}, opts)
}

func (n *Notifier) build(in notice.Input, opts []NoticeOption) notice.Result {
	for _, opt := range opts {
		opt(&in)
	}
	return n.builder.Build(in)
}

// Notify builds and sends a notice for err.
func (n *Notifier) Notify(ctx context.Context, err error, opts ...NoticeOption) (*Report, error) {
	res := n.build(notice.Input{Err: err, Stack: notice.Callers(1)}, opts)
	return n.SendNotice(ctx, res.Notice)
}

// NotifyMessage reports a message with no error value. Its backtrace is the
// placeholder frame unless WithStack or WithRecord supply one.
func (n *Notifier) NotifyMessage(ctx context.Context, msg string, opts ...NoticeOption) (*Report, error) {
	res := n.build(notice.Input{Message: msg}, opts)
	return n.SendNotice(ctx, res.Notice)
}

// NotifyInput sends a notice built from a fully populated input.
func (n *Notifier) NotifyInput(ctx context.Context, in notice.Input) (*Report, error) {
	return n.SendNotice(ctx, n.builder.Build(in).Notice)
}

// SendNotice runs filters, dedupe and the rate-limit cooldown, then POSTs nt.
// The key filter rewrites nt's params, environment and session in place.
func (n *Notifier) SendNotice(ctx context.Context, nt *notice.Notice) (*Report, error) {
	if nt == nil {
		return nil, ErrNilNotice
	}
	for _, f := range n.filters {
		if nt = f(nt); nt == nil {
			return n.finish(&Report{Outcome: transport.Suppressed}, nil)
		}
	}
	n.keyFilter.Apply(nt)

	if until := n.cooldownUntil.Load(); until > 0 && n.now().UnixNano() < until {
		return n.finish(&Report{Outcome: transport.RateLimited},
			&SendError{Outcome: transport.RateLimited, Err: ErrRateLimited})
	}

	fingerprint := ""
	if n.dedupe != nil {
		fingerprint = nt.Fingerprint()
		fresh, err := n.dedupe.SetNX(ctx, dedupeKeyPrefix+fingerprint, strconv.FormatInt(n.now().Unix(), 10), n.cfg.DedupeTTL)
		switch {
		case err != nil:
			n.logger.Warn("dedupe store unavailable, sending anyway", zap.Error(err))
			fingerprint = ""
		case !fresh:
			return n.finish(&Report{Outcome: transport.Suppressed}, nil)
		}
	}

	body, err := nt.Encode()
	if err != nil {
		n.forget(ctx, fingerprint)
		return n.finish(&Report{Outcome: transport.Rejected},
			&SendError{Outcome: transport.Rejected, Err: fmt.Errorf("encode notice: %w", err)})
	}

	resp, terr := n.sender.PostJSON(ctx, n.noticesPath, n.query, body)
	report, sendErr := n.report(resp, terr)
	if report.Outcome == transport.RateLimited && resp != nil {
		n.startCooldown(resp.Header.Get(rateLimitHeader))
	}
	if sendErr != nil {
		n.forget(ctx, fingerprint)
	}
	return n.finish(report, sendErr)
}

func (n *Notifier) report(resp *transport.Response, terr *transport.Error) (*Report, error) {
	if resp == nil {
		return &Report{Outcome: transport.NetworkFailure},
			&SendError{Outcome: transport.NetworkFailure, Err: terr}
	}
	report := &Report{Outcome: resp.Outcome, StatusCode: resp.StatusCode}
	var body apiResponse
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			n.logger.Debug("unparseable response body", zap.Int("status", resp.StatusCode), zap.Error(err))
		}
	}
	if terr == nil {
		report.ID, report.URL = body.ID, body.URL
		return report, nil
	}
	return report, &SendError{
		Outcome:    resp.Outcome,
		StatusCode: resp.StatusCode,
		Message:    body.message(),
		Err:        terr,
	}
}

type apiResponse struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (r apiResponse) message() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}

// startCooldown honours the delay header (seconds) sent with a 429.
func (n *Notifier) startCooldown(header string) {
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return
	}
	delay := time.Duration(secs) * time.Second
	if delay > maxCooldownDelay {
		delay = maxCooldownDelay
	}
	n.cooldownUntil.Store(n.now().Add(delay).UnixNano())
	n.logger.Warn("rate limited by airbrake", zap.Duration("cooldown", delay))
}

// forget releases a dedupe fingerprint so a notice that was never delivered can be
// reported again.
func (n *Notifier) forget(ctx context.Context, fingerprint string) {
	if n.dedupe == nil || fingerprint == "" {
		return
	}
	if err := n.dedupe.Delete(ctx, dedupeKeyPrefix+fingerprint); err != nil && !errors.Is(err, cache.ErrKeyNotFound) {
		n.logger.Debug("dedupe release failed", zap.Error(err))
	}
}

func (n *Notifier) finish(report *Report, err error) (*Report, error) {
	if n.notices != nil {
		n.notices.WithLabelValues(report.Outcome.String()).Inc()
	}
	switch report.Outcome {
	case transport.Delivered:
		n.logger.Debug("notice delivered", zap.String("id", report.ID))
	case transport.Suppressed:
		n.logger.Debug("notice suppressed")
	default:
		n.logger.Warn("notice not delivered",
			zap.String("outcome", report.Outcome.String()),
			zap.Int("status", report.StatusCode),
			zap.Error(err))
	}
	return report, err
}

// Close releases idle connections and the dedupe store created by New.
func (n *Notifier) Close() error {
	n.sender.Close()
	if n.ownsCache && n.dedupe != nil {
		return n.dedupe.Close()
	}
	return nil
}

func noticeCounter(reg prometheus.Registerer) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "airbrake",
		Name:      "notices_total",
		Help:      "Notices handled by the notifier by outcome",
	}, []string{"outcome"})
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}
