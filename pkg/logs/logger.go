package logs

import (
	"context"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/fsandov/airbrake-go/pkg/env"
	"github.com/fsandov/airbrake-go/pkg/notifiers"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const pkgPrefix = "github.com/fsandov/airbrake-go/pkg/logs."

var (
	globalLogger *Logger
	initOnce     sync.Once
)

type Logger struct {
	zap       *zap.Logger
	notifiers map[string][]notifiers.Notifier
	appName   string
	mu        sync.RWMutex
	wg        sync.WaitGroup
}

func NewLogger(opts ...zap.Option) *Logger {
	initOnce.Do(func() {
		opts = append(opts, zap.AddCallerSkip(3))

		var zapLogger *zap.Logger
		if env.IsRemote() {
			cfg := zap.NewProductionConfig()
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			zapLogger, _ = cfg.Build(append(opts, zap.AddCaller())...)
		} else {
			cfg := zap.NewDevelopmentConfig()
			zapLogger, _ = cfg.Build(append(opts, zap.AddCaller())...)
		}

		globalLogger = newLogger(zapLogger)
		zap.ReplaceGlobals(zapLogger)
	})
	return globalLogger
}

func newLogger(z *zap.Logger) *Logger {
	return &Logger{
		zap:       z,
		notifiers: make(map[string][]notifiers.Notifier),
		appName:   os.Getenv("APP_NAME"),
	}
}

func GetLogger() *Logger {
	if globalLogger == nil {
		return NewLogger()
	}
	return globalLogger
}

// Zap exposes the underlying logger, e.g. for libraries that take a *zap.Logger.
func (l *Logger) Zap() *zap.Logger { return l.zap }

func (l *Logger) AddNotifier(level string, notifier notifiers.Notifier) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifiers[level] = append(l.notifiers[level], notifier)
}

func Info(ctx context.Context, msg string, fieldsAndOpts ...any) {
	GetLogger().Info(ctx, msg, fieldsAndOpts...)
}
func Warn(ctx context.Context, msg string, fieldsAndOpts ...any) {
	GetLogger().Warn(ctx, msg, fieldsAndOpts...)
}
func Error(ctx context.Context, msg string, fieldsAndOpts ...any) {
	GetLogger().Error(ctx, msg, fieldsAndOpts...)
}
func Debug(ctx context.Context, msg string, fieldsAndOpts ...any) {
	GetLogger().Debug(ctx, msg, fieldsAndOpts...)
}

func (l *Logger) Info(ctx context.Context, msg string, fieldsAndOpts ...any) {
	l.logWithOpts(ctx, "info", msg, fieldsAndOpts...)
}
func (l *Logger) Warn(ctx context.Context, msg string, fieldsAndOpts ...any) {
	l.logWithOpts(ctx, "warn", msg, fieldsAndOpts...)
}
func (l *Logger) Error(ctx context.Context, msg string, fieldsAndOpts ...any) {
	l.logWithOpts(ctx, "error", msg, fieldsAndOpts...)
}
func (l *Logger) Debug(ctx context.Context, msg string, fieldsAndOpts ...any) {
	l.logWithOpts(ctx, "debug", msg, fieldsAndOpts...)
}

// logWithOpts accepts zap fields, LogOptions and loose key/value pairs. A string
// key without a value is logged as "orphanKey".
func (l *Logger) logWithOpts(ctx context.Context, level, msg string, fieldsAndOpts ...any) {
	var zapFields []zap.Field
	opts := &logOptions{}
	for i := 0; i < len(fieldsAndOpts); i++ {
		switch v := fieldsAndOpts[i].(type) {
		case []zap.Field:
			zapFields = append(zapFields, v...)
		case zap.Field:
			zapFields = append(zapFields, v)
		case LogOption:
			v.apply(opts)
		case error:
			zapFields = append(zapFields, zap.Error(v))
		case string:
			if i+1 >= len(fieldsAndOpts) {
				zapFields = append(zapFields, zap.String("orphanKey", v))
				continue
			}
			i++
			zapFields = append(zapFields, zap.Any(v, fieldsAndOpts[i]))
		default:
			l.zap.Debug("unsupported log field type", zap.Any("field", v))
		}
	}

	if l.appName != "" {
		msg = "[" + l.appName + "] " + msg
	}

	switch level {
	case "info":
		l.zap.Info(msg, zapFields...)
	case "warn":
		l.zap.Warn(msg, zapFields...)
	case "error":
		l.zap.Error(msg, zapFields...)
	case "debug":
		l.zap.Debug(msg, zapFields...)
	}
	if opts.withNotifier {
		ctx = notifiers.ContextWithStack(ctx, callerStack())
		if opts.severity != "" {
			ctx = notifiers.ContextWithSeverity(ctx, opts.severity)
		}
		l.sendNotifications(ctx, level, msg, zapFields, opts.targets)
	}
}

// sendNotifications fans out to the notifiers registered for level, or for the
// explicit targets when any were given. Each notifier runs on its own goroutine;
// Flush waits for them.
func (l *Logger) sendNotifications(ctx context.Context, level, msg string, fields []zap.Field, targets []string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(targets) == 0 {
		targets = []string{level}
	}
	var selected []notifiers.Notifier
	for _, t := range targets {
		selected = append(selected, l.notifiers[t]...)
	}
	if len(selected) == 0 {
		l.zap.Warn("No notifiers configured for level", zap.String("level", level), zap.Strings("targets", targets))
		return
	}
	fieldMap := fieldsToMap(fields)
	for _, notifier := range selected {
		l.wg.Add(1)
		go func(n notifiers.Notifier) {
			defer l.wg.Done()
			if err := n.Notify(ctx, level, msg, fieldMap); err != nil {
				// Warn, not Error: a core reporting errors must not see its own failures.
				l.zap.Warn("failed to send notification", zap.String("level", level), zap.Error(err))
			}
		}(notifier)
	}
}

// fieldsToMap keeps error values intact so notifiers can report them as errors.
func fieldsToMap(fields []zap.Field) map[string]any {
	out := map[string]any{}
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		if f.Type == zapcore.ErrorType {
			if err, ok := f.Interface.(error); ok {
				out[f.Key] = err
				continue
			}
		}
		f.AddTo(enc)
	}
	for k, v := range enc.Fields {
		out[k] = v
	}
	return out
}

// callerStack returns the stack starting at the first frame outside this package.
func callerStack() []uintptr {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	pcs = pcs[:n]
	for i := range pcs {
		f, _ := runtime.CallersFrames(pcs[i : i+1]).Next()
		if !strings.HasPrefix(f.Function, pkgPrefix) {
			return pcs[i:]
		}
	}
	return nil
}

func (l *Logger) Flush() {
	l.wg.Wait()
}

func Flush() {
	if globalLogger != nil {
		globalLogger.Flush()
	}
}
