package handler

import (
	"context"

	"github.com/fsandov/airbrake-go/pkg/notice"
	"go.uber.org/zap/zapcore"
)

// Core is a zapcore.Core that reports entries to Airbrake. Combine it with the
// application's own core through zapcore.NewTee.
type Core struct {
	reporter Reporter
	level    zapcore.LevelEnabler
	fields   []zapcore.Field
	opts     *options
}

// NewCore reports entries enabled by level. A nil level means zapcore.ErrorLevel.
func NewCore(r Reporter, level zapcore.LevelEnabler, opts ...Option) *Core {
	if level == nil {
		level = zapcore.ErrorLevel
	}
	return &Core{reporter: r, level: level, opts: newOptions(opts)}
}

func (c *Core) Enabled(l zapcore.Level) bool { return c.level.Enabled(l) }

func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write always returns nil; see the package doc for where failures go.
func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	all := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)

	in := notice.Input{
		Severity: ZapSeverity(ent.Level),
		Record: &notice.Record{
			Level:   ent.Level.CapitalString(),
			Logger:  ent.LoggerName,
			Message: ent.Message,
			Time:    ent.Time,
		},
	}
	if ent.Caller.Defined {
		in.Record.File = ent.Caller.File
		in.Record.Line = ent.Caller.Line
		in.Record.Function = ent.Caller.Function
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range all {
		if f.Type == zapcore.ErrorType {
			if err, ok := f.Interface.(error); ok && err != nil {
				if in.Err == nil {
					in.Err = err
					continue
				}
				enc.AddString(f.Key, err.Error())
				continue
			}
		}
		f.AddTo(enc)
	}
	if len(enc.Fields) > 0 {
		in.Params = enc.Fields
	}

	c.opts.send(context.Background(), c.reporter, in)
	return nil
}

func (c *Core) Sync() error { return nil }

// ZapSeverity maps zap levels onto notice severities.
func ZapSeverity(l zapcore.Level) notice.Severity {
	switch {
	case l <= zapcore.DebugLevel:
		return notice.SeverityDebug
	case l == zapcore.InfoLevel:
		return notice.SeverityInfo
	case l == zapcore.WarnLevel:
		return notice.SeverityWarning
	case l == zapcore.ErrorLevel:
		return notice.SeverityError
	case l == zapcore.DPanicLevel, l == zapcore.PanicLevel:
		return notice.SeverityCritical
	default:
		return notice.SeverityEmergency
	}
}
