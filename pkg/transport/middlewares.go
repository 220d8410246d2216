package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

type Middleware func(next http.RoundTripper) http.RoundTripper

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func RequestIDMiddleware() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("X-Request-ID") == "" {
				req.Header.Set("X-Request-ID", uuid.New().String())
			}
			return next.RoundTrip(req)
		})
	}
}

// RateLimitMiddleware waits for limiter before each request. A wait that cannot
// finish before the request deadline fails the request.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	if limiter == nil {
		return nil
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if err := limiter.Wait(req.Context()); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
			return next.RoundTrip(req)
		})
	}
}

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker open")

type failedStatusError struct {
	resp *http.Response
}

func (e *failedStatusError) Error() string { return "status " + strconv.Itoa(e.resp.StatusCode) }

// CircuitBreakerMiddleware counts 5xx and 429 answers as failures so an unhealthy
// endpoint stops receiving traffic. The response itself is still returned.
func CircuitBreakerMiddleware(breaker *gobreaker.CircuitBreaker) Middleware {
	if breaker == nil {
		return nil
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			out, err := breaker.Execute(func() (interface{}, error) {
				resp, err := next.RoundTrip(req)
				if err != nil {
					return nil, err
				}
				if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
					return nil, &failedStatusError{resp: resp}
				}
				return resp, nil
			})
			var fs *failedStatusError
			switch {
			case errors.As(err, &fs):
				return fs.resp, nil
			case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
				return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, breaker.Name())
			case err != nil:
				return nil, err
			}
			return out.(*http.Response), nil
		})
	}
}

// NewCircuitBreaker returns a breaker tuned for a notice endpoint.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
}

type TracingConfig struct {
	TracerProvider    trace.TracerProvider
	Propagators       propagation.TextMapPropagator
	SpanNameFormatter func(r *http.Request) string
}

func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		TracerProvider: otel.GetTracerProvider(),
		Propagators:    otel.GetTextMapPropagator(),
		SpanNameFormatter: func(r *http.Request) string {
			return fmt.Sprintf("airbrake %s %s", r.Method, r.URL.Path)
		},
	}
}

func TracingMiddleware(config *TracingConfig) Middleware {
	if config == nil {
		config = DefaultTracingConfig()
	}
	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}
	if config.Propagators == nil {
		config.Propagators = otel.GetTextMapPropagator()
	}
	if config.SpanNameFormatter == nil {
		config.SpanNameFormatter = DefaultTracingConfig().SpanNameFormatter
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return &tracingTransport{
			next:   next,
			config: config,
			tracer: config.TracerProvider.Tracer("github.com/fsandov/airbrake-go/pkg/transport"),
		}
	}
}

type tracingTransport struct {
	next   http.RoundTripper
	config *TracingConfig
	tracer trace.Tracer
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), t.config.SpanNameFormatter(req), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	req = req.WithContext(ctx)
	t.config.Propagators.Inject(ctx, propagation.HeaderCarrier(req.Header))
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.target", req.URL.Path),
		attribute.String("http.scheme", req.URL.Scheme),
		attribute.String("http.host", req.URL.Host),
	)
	if req.ContentLength > 0 {
		span.SetAttributes(attribute.Int("http.request_content_length", int(req.ContentLength)))
	}
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	outcome := Classify(resp.StatusCode, nil)
	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.String("airbrake.outcome", outcome.String()),
	)
	if outcome != Delivered {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}

type MetricsConfig struct {
	Namespace string
	Subsystem string
	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

func MetricsMiddleware(config *MetricsConfig) Middleware {
	if config == nil {
		return nil
	}
	if config.Namespace == "" {
		config.Namespace = "airbrake"
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	requestDuration := registerOrReuse(config.Registerer, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "request_duration_seconds",
			Help:      "Time spent sending notices",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "outcome"},
	))
	requestsTotal := registerOrReuse(config.Registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "requests_total",
			Help:      "Requests sent to the notice API by outcome",
		},
		[]string{"path", "outcome"},
	))
	return func(next http.RoundTripper) http.RoundTripper {
		return &metricsTransport{
			next:            next,
			requestDuration: requestDuration,
			requestsTotal:   requestsTotal,
		}
	}
}

// registerOrReuse makes repeated registration of the same collector harmless.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

type metricsTransport struct {
	next            http.RoundTripper
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
}

func (t *metricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	outcome := Classify(status, err).String()
	path := req.URL.Path
	t.requestDuration.WithLabelValues(path, outcome).Observe(time.Since(start).Seconds())
	t.requestsTotal.WithLabelValues(path, outcome).Inc()
	return resp, err
}

// HooksConfig observes every attempt. PostRequest runs whether or not the
// server answered; resp is nil on a network failure.
type HooksConfig struct {
	PreRequest  func(req *http.Request)
	PostRequest func(req *http.Request, resp *http.Response, outcome Outcome, err error)
}

func HooksMiddleware(cfg *HooksConfig) Middleware {
	if cfg == nil || (cfg.PreRequest == nil && cfg.PostRequest == nil) {
		return nil
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if cfg.PreRequest != nil {
				cfg.PreRequest(req)
			}
			resp, err := next.RoundTrip(req)
			if cfg.PostRequest != nil {
				status := 0
				if resp != nil {
					status = resp.StatusCode
				}
				cfg.PostRequest(req, resp, Classify(status, err), err)
			}
			return resp, err
		})
	}
}
