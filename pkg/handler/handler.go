// Package handler exposes a notifier through logging frameworks: a zapcore.Core
// for zap and a slog.Handler for log/slog. Records at or above the threshold
// (Error by default) become notices.
//
// A log call never fails or panics because of the notifier. Delivery problems
// go to the ErrorHandler, which by default writes to a stderr logger that is not
// connected to any notifier.
package handler

import (
	"context"
	"os"

	"github.com/fsandov/airbrake-go/pkg/airbrake"
	"github.com/fsandov/airbrake-go/pkg/notice"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Reporter sends one notice. *airbrake.Notifier implements it.
type Reporter interface {
	NotifyInput(ctx context.Context, in notice.Input) (*airbrake.Report, error)
}

type options struct {
	errorHandler func(error)
	component    string
}

type Option func(*options)

// WithErrorHandler receives every error the notifier returns.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.errorHandler = fn
		}
	}
}

// WithComponent sets context.component on every notice.
func WithComponent(component string) Option {
	return func(o *options) { o.component = component }
}

func newOptions(opts []Option) *options {
	o := &options{errorHandler: stderrErrorHandler()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func stderrErrorHandler() func(error) {
	l := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.Lock(os.Stderr),
		zapcore.WarnLevel,
	))
	return func(err error) {
		l.Warn("airbrake handler could not deliver notice", zap.Error(err))
	}
}

// send reports in and routes any failure to the error handler. It recovers from
// a panicking reporter so logging can continue.
func (o *options) send(ctx context.Context, r Reporter, in notice.Input) {
	defer func() {
		if v := recover(); v != nil {
			o.errorHandler(notice.PanicError(v))
		}
	}()
	if o.component != "" && in.Component == "" {
		in.Component = o.component
	}
	if _, err := r.NotifyInput(ctx, in); err != nil {
		o.errorHandler(err)
	}
}
