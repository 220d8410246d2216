package airbrake

import (
	"context"

	"github.com/fsandov/airbrake-go/pkg/notice"
)

// panicSkip drops runtime.Callers, notice.Callers, reportPanic, the deferred
// hook and runtime.gopanic so the stack starts where the panic was raised.
const panicSkip = 3

// NotifyOnPanic reports a panic in the calling goroutine and panics again with
// the same value. Use it as `defer n.NotifyOnPanic()`. It only reports when
// SendUncaughtPanics is enabled.
func (n *Notifier) NotifyOnPanic(opts ...NoticeOption) {
	v := recover()
	if v == nil {
		return
	}
	if n.cfg.SendsUncaught() {
		_, _ = n.reportPanic(context.Background(), v, opts)
	}
	panic(v)
}

// Recover reports a panic in the calling goroutine and swallows it. Use it as
// `defer n.Recover(ctx)`.
func (n *Notifier) Recover(ctx context.Context, opts ...NoticeOption) {
	if v := recover(); v != nil {
		_, _ = n.reportPanic(ctx, v, opts)
	}
}

// Capture runs fn and reports the error it returns, which is passed through
// unchanged. A panic inside fn is reported and re-raised.
func (n *Notifier) Capture(ctx context.Context, fn func(context.Context) error, opts ...NoticeOption) error {
	defer func() {
		if v := recover(); v != nil {
			_, _ = n.reportPanic(ctx, v, opts)
			panic(v)
		}
	}()
	err := fn(ctx)
	if err != nil {
		res := n.build(notice.Input{Err: err, Stack: notice.Callers(1)}, opts)
		_, _ = n.SendNotice(ctx, res.Notice)
	}
	return err
}

func (n *Notifier) reportPanic(ctx context.Context, v any, opts []NoticeOption) (*Report, error) {
	in := notice.Input{
		Panic:    v,
		Stack:    notice.Callers(panicSkip),
		Severity: notice.SeverityCritical,
	}
	res := n.build(in, opts)
	return n.SendNotice(ctx, res.Notice)
}
