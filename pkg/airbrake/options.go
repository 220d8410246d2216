package airbrake

import (
	"net/http"

	"github.com/fsandov/airbrake-go/pkg/cache"
	"github.com/fsandov/airbrake-go/pkg/notice"
	"github.com/fsandov/airbrake-go/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Filter may modify a notice before it is sent. Returning nil drops it.
type Filter func(*notice.Notice) *notice.Notice

type options struct {
	logger       *zap.Logger
	cache        cache.Cache
	roundTripper http.RoundTripper
	middlewares  []transport.Middleware
	filters      []Filter
	registerer   prometheus.Registerer
}

type Option func(*options)

// WithLogger sets the logger used for the notifier's own diagnostics. It must not
// feed back into this notifier.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCache sets the dedupe store. The notifier does not close a store it was given.
func WithCache(c cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *options) { o.roundTripper = rt }
}

// WithMiddleware adds a transport middleware. Middlewares run in the order added.
func WithMiddleware(mw transport.Middleware) Option {
	return func(o *options) {
		if mw != nil {
			o.middlewares = append(o.middlewares, mw)
		}
	}
}

// WithRateLimit caps outgoing notices per second on the client side.
func WithRateLimit(perSecond float64, burst int) Option {
	return WithMiddleware(transport.RateLimitMiddleware(rate.NewLimiter(rate.Limit(perSecond), burst)))
}

// WithCircuitBreaker stops sending after consecutive 5xx, 429 or network failures.
func WithCircuitBreaker() Option {
	return func(o *options) {
		o.middlewares = append(o.middlewares, transport.CircuitBreakerMiddleware(transport.NewCircuitBreaker("airbrake")))
	}
}

// WithTracing records a client span per request. A nil provider uses the global one.
func WithTracing(tp trace.TracerProvider) Option {
	return WithMiddleware(transport.TracingMiddleware(&transport.TracingConfig{TracerProvider: tp}))
}

// WithMetrics registers request metrics and the notice outcome counter on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		o.registerer = reg
		o.middlewares = append(o.middlewares, transport.MetricsMiddleware(&transport.MetricsConfig{Registerer: reg}))
	}
}

// WithHooks runs cfg around every request the notifier makes, e.g. to add
// headers or to watch outcomes without a metrics registry.
func WithHooks(cfg *transport.HooksConfig) Option {
	return WithMiddleware(transport.HooksMiddleware(cfg))
}

func WithFilter(f Filter) Option {
	return func(o *options) {
		if f != nil {
			o.filters = append(o.filters, f)
		}
	}
}

// NoticeOption adjusts the input of a single notice.
type NoticeOption func(*notice.Input)

// WithParams merges params into the notice's params.
func WithParams(params map[string]any) NoticeOption {
	return func(in *notice.Input) {
		if len(params) == 0 {
			return
		}
		if in.Params == nil {
			in.Params = make(map[string]any, len(params))
		}
		for k, v := range params {
			in.Params[k] = v
		}
	}
}

func WithParam(key string, value any) NoticeOption {
	return WithParams(map[string]any{key: value})
}

// WithSeverity overrides the default severity. Unknown names are ignored.
func WithSeverity(s notice.Severity) NoticeOption {
	return func(in *notice.Input) { in.Severity = s }
}

func WithSession(session map[string]any) NoticeOption {
	return func(in *notice.Input) { in.Session = session }
}

func WithEnvironment(environment map[string]any) NoticeOption {
	return func(in *notice.Input) { in.Environment = environment }
}

func WithUser(u notice.User) NoticeOption {
	return func(in *notice.Input) { in.User = &u }
}

func WithComponent(component string) NoticeOption {
	return func(in *notice.Input) { in.Component = component }
}

func WithAction(action string) NoticeOption {
	return func(in *notice.Input) { in.Action = action }
}

// WithMessage sets a message reported alongside the error.
func WithMessage(msg string) NoticeOption {
	return func(in *notice.Input) { in.Message = msg }
}

// WithStack supplies program counters to use when the error carries no stack.
func WithStack(pcs []uintptr) NoticeOption {
	return func(in *notice.Input) { in.Stack = pcs }
}

func WithRecord(r *notice.Record) NoticeOption {
	return func(in *notice.Input) { in.Record = r }
}

// WithRequest copies URL, method, user agent and remote address from r.
func WithRequest(r *http.Request) NoticeOption {
	return func(in *notice.Input) {
		if r == nil {
			return
		}
		u := ""
		if r.URL != nil {
			u = r.URL.String()
			if r.Host != "" && r.URL.Host == "" {
				scheme := "http"
				if r.TLS != nil {
					scheme = "https"
				}
				u = scheme + "://" + r.Host + r.URL.RequestURI()
			}
		}
		in.Request = &notice.Request{
			URL:       u,
			Method:    r.Method,
			UserAgent: r.UserAgent(),
			UserAddr:  r.RemoteAddr,
		}
	}
}
