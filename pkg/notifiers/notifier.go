package notifiers

import "context"

// Notifier receives log entries that asked to be forwarded.
type Notifier interface {
	Notify(ctx context.Context, level string, message string, fields map[string]any) error
}

type (
	stackKey    struct{}
	severityKey struct{}
)

// ContextWithStack attaches the program counters of the log call site so a
// notifier running on another goroutine can still report where it happened.
func ContextWithStack(ctx context.Context, pcs []uintptr) context.Context {
	return context.WithValue(ctx, stackKey{}, pcs)
}

func StackFromContext(ctx context.Context) []uintptr {
	pcs, _ := ctx.Value(stackKey{}).([]uintptr)
	return pcs
}

// ContextWithSeverity carries a per-entry severity override to notifiers.
func ContextWithSeverity(ctx context.Context, severity string) context.Context {
	return context.WithValue(ctx, severityKey{}, severity)
}

func SeverityFromContext(ctx context.Context) string {
	s, _ := ctx.Value(severityKey{}).(string)
	return s
}
