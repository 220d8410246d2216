package handler

import (
	"context"
	"log/slog"
	"runtime"
	"strings"

	"github.com/fsandov/airbrake-go/pkg/notice"
)

// SlogHandler is a slog.Handler that reports records to Airbrake. Group names
// become dotted key prefixes; the first error-valued attribute is the reported error.
type SlogHandler struct {
	reporter Reporter
	level    slog.Leveler
	attrs    []slog.Attr
	prefix   string
	opts     *options
}

// NewSlogHandler reports records at or above level. A nil level means slog.LevelError.
func NewSlogHandler(r Reporter, level slog.Leveler, opts ...Option) *SlogHandler {
	if level == nil {
		level = slog.LevelError
	}
	return &SlogHandler{reporter: r, level: level, opts: newOptions(opts)}
}

func (h *SlogHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *SlogHandler) Handle(ctx context.Context, r slog.Record) error {
	in := notice.Input{
		Severity: SlogSeverity(r.Level),
		Record: &notice.Record{
			Level:   r.Level.String(),
			Message: r.Message,
			Time:    r.Time,
		},
	}
	if r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		in.Record.File = f.File
		in.Record.Line = f.Line
		in.Record.Function = f.Function
	}

	params := make(map[string]any)
	for _, a := range h.attrs {
		h.collect(&in, params, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.collect(&in, params, h.prefix, a)
		return true
	})
	if len(params) > 0 {
		in.Params = params
	}

	h.opts.send(context.WithoutCancel(ctx), h.reporter, in)
	return nil
}

func (h *SlogHandler) collect(in *notice.Input, params map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			h.collect(in, params, p, ga)
		}
		return
	}
	if err, ok := a.Value.Any().(error); ok && a.Value.Kind() == slog.KindAny {
		if in.Err == nil {
			in.Err = err
			return
		}
		params[prefix+a.Key] = err.Error()
		return
	}
	params[prefix+a.Key] = a.Value.Any()
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a = slog.Group(strings.TrimSuffix(h.prefix, "."), a)
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

// SlogSeverity maps slog levels onto notice severities. Levels above Error by
// four or more are critical.
func SlogSeverity(l slog.Level) notice.Severity {
	switch {
	case l < slog.LevelInfo:
		return notice.SeverityDebug
	case l < slog.LevelWarn:
		return notice.SeverityInfo
	case l < slog.LevelError:
		return notice.SeverityWarning
	case l < slog.LevelError+4:
		return notice.SeverityError
	default:
		return notice.SeverityCritical
	}
}
