// Package web reports panics and handler errors of HTTP servers to Airbrake,
// for gin engines and for plain net/http handlers.
package web

import (
	"context"
	"net/http"

	"github.com/fsandov/airbrake-go/pkg/airbrake"
	"github.com/fsandov/airbrake-go/pkg/notice"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// Recovery replaces gin.Recovery: a panic is reported with the request's URL,
// method, user agent and client address, then answered with a 500.
func Recovery(n *airbrake.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			in := notice.Input{
				Panic:     v,
				Stack:     notice.Callers(1),
				Severity:  notice.SeverityCritical,
				Component: "http",
				Action:    c.FullPath(),
			}
			applyRequest(&in, c.Request, GetIPFromContext(c))
			in.Params = requestParams(c.Request.Context(), c.GetString(requestIDKey))
			_, _ = n.NotifyInput(context.WithoutCancel(c.Request.Context()), in)

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}()
		c.Next()
	}
}

// ErrorReporter reports the errors handlers attached with c.Error once the
// request has been handled.
func ErrorReporter(n *airbrake.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		ctx := context.WithoutCancel(c.Request.Context())
		params := requestParams(c.Request.Context(), c.GetString(requestIDKey))
		params["status"] = c.Writer.Status()
		for _, ge := range c.Errors {
			in := notice.Input{Err: ge.Err, Component: "http", Action: c.FullPath(), Params: params}
			if ge.Meta != nil {
				in.Params = withMeta(params, ge.Meta)
			}
			applyRequest(&in, c.Request, GetIPFromContext(c))
			_, _ = n.NotifyInput(ctx, in)
		}
	}
}

// RecoverHandler is the net/http flavour of Recovery.
func RecoverHandler(n *airbrake.Notifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			in := notice.Input{
				Panic:     v,
				Stack:     notice.Callers(1),
				Severity:  notice.SeverityCritical,
				Component: "http",
				Action:    r.URL.Path,
			}
			applyRequest(&in, r, clientIP(r))
			in.Params = requestParams(r.Context(), r.Header.Get("X-Request-ID"))
			_, _ = n.NotifyInput(context.WithoutCancel(r.Context()), in)

			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

func applyRequest(in *notice.Input, r *http.Request, ip string) {
	airbrake.WithRequest(r)(in)
	if in.Request != nil && ip != "" {
		in.Request.UserAddr = ip
	}
}

// requestParams carries the ids needed to find the request in other systems.
func requestParams(ctx context.Context, requestID string) map[string]any {
	params := map[string]any{}
	if requestID != "" {
		params["request_id"] = requestID
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		params["trace_id"] = sc.TraceID().String()
		params["span_id"] = sc.SpanID().String()
	}
	return params
}

func withMeta(params map[string]any, meta any) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["meta"] = meta
	return out
}
