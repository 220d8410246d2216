package logs

// LogOption changes how a single log call is handled. Options are passed
// alongside fields: logs.Error(ctx, "msg", zap.Error(err), logs.WithNotifier()).
type LogOption interface {
	apply(*logOptions)
}

type logOptions struct {
	withNotifier bool
	targets      []string
	severity     string
}

type logOptionFunc func(*logOptions)

func (f logOptionFunc) apply(o *logOptions) { f(o) }

// WithNotifier forwards the entry to the notifiers registered for its level.
func WithNotifier() LogOption {
	return logOptionFunc(func(o *logOptions) { o.withNotifier = true })
}

// WithNotifyTarget forwards the entry to the notifiers registered under targets
// instead of the entry level.
func WithNotifyTarget(targets ...string) LogOption {
	return logOptionFunc(func(o *logOptions) {
		o.withNotifier = true
		o.targets = append(o.targets, targets...)
	})
}

// WithSeverity overrides the severity notifiers report for this entry,
// e.g. an Error log that should page as "critical".
func WithSeverity(severity string) LogOption {
	return logOptionFunc(func(o *logOptions) { o.severity = severity })
}
