package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsandov/airbrake-go/pkg/airbrake"
	"github.com/fsandov/airbrake-go/pkg/config"
	"github.com/fsandov/airbrake-go/pkg/notice"
	"github.com/fsandov/airbrake-go/pkg/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type fakeReporter struct {
	mu        sync.Mutex
	inputs    []notice.Input
	err       error
	panicWith any
}

func (f *fakeReporter) NotifyInput(_ context.Context, in notice.Input) (*airbrake.Report, error) {
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return &airbrake.Report{Outcome: transport.ServerError}, f.err
	}
	return &airbrake.Report{Outcome: transport.Delivered}, nil
}

func (f *fakeReporter) got(t *testing.T) []notice.Input {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notice.Input(nil), f.inputs...)
}

type errorSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *errorSink) handle(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *errorSink) all() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func TestCoreThresholdAndFields(t *testing.T) {
	fake := &fakeReporter{}
	logger := zap.New(NewCore(fake, nil), zap.AddCaller()).Named("billing")

	logger.Info("just info")
	logger.Warn("just a warning")
	logger.With(zap.String("svc", "api")).Error("db down",
		zap.Error(errors.New("connection reset")), zap.Int("attempt", 3))

	inputs := fake.got(t)
	if len(inputs) != 1 {
		t.Fatalf("expected one notice, got %d", len(inputs))
	}
	in := inputs[0]
	if in.Err == nil || in.Err.Error() != "connection reset" {
		t.Errorf("expected reported error, got %v", in.Err)
	}
	if in.Params["svc"] != "api" || in.Params["attempt"] != int64(3) {
		t.Errorf("unexpected params %v", in.Params)
	}
	if _, ok := in.Params["error"]; ok {
		t.Error("reported error should not be duplicated into params")
	}
	r := in.Record
	if r == nil || r.Level != "ERROR" || r.Logger != "billing" || r.Message != "db down" {
		t.Fatalf("unexpected record %+v", r)
	}
	if !strings.HasSuffix(r.File, "handler_test.go") || r.Line == 0 {
		t.Errorf("expected caller in this file, got %s:%d", r.File, r.Line)
	}
	if in.Severity != notice.SeverityError {
		t.Errorf("unexpected severity %q", in.Severity)
	}
}

func TestCoreCustomThreshold(t *testing.T) {
	fake := &fakeReporter{}
	logger := zap.New(NewCore(fake, zapcore.WarnLevel))
	logger.Info("ignored")
	logger.Warn("reported")
	if n := len(fake.got(t)); n != 1 {
		t.Fatalf("expected one notice, got %d", n)
	}
	if sev := fake.got(t)[0].Severity; sev != notice.SeverityWarning {
		t.Errorf("expected warning severity, got %q", sev)
	}
}

func TestZapSeverity(t *testing.T) {
	cases := map[zapcore.Level]notice.Severity{
		zapcore.DebugLevel:  notice.SeverityDebug,
		zapcore.InfoLevel:   notice.SeverityInfo,
		zapcore.WarnLevel:   notice.SeverityWarning,
		zapcore.ErrorLevel:  notice.SeverityError,
		zapcore.DPanicLevel: notice.SeverityCritical,
		zapcore.PanicLevel:  notice.SeverityCritical,
		zapcore.FatalLevel:  notice.SeverityEmergency,
	}
	for level, want := range cases {
		if got := ZapSeverity(level); got != want {
			t.Errorf("%s: expected %q, got %q", level, want, got)
		}
	}
}

func TestCoreFailuresGoToErrorHandler(t *testing.T) {
	sink := &errorSink{}
	fake := &fakeReporter{err: errors.New("service unavailable")}
	logger := zap.New(NewCore(fake, nil, WithErrorHandler(sink.handle)))

	logger.Error("first")
	if errs := sink.all(); len(errs) != 1 || errs[0].Error() != "service unavailable" {
		t.Fatalf("unexpected handler errors %v", errs)
	}

	fake.panicWith = "reporter exploded"
	logger.Error("second")
	if errs := sink.all(); len(errs) != 2 || !strings.Contains(errs[1].Error(), "reporter exploded") {
		t.Errorf("expected recovered panic to reach the handler, got %v", errs)
	}
}

func TestCoreWithNotifierTimeout(t *testing.T) {
	for _, k := range []string{"AIRBRAKE_PROJECT_ID", "AIRBRAKE_API_KEY", "AIRBRAKE_HOST", "AIRBRAKE_TIMEOUT"} {
		t.Setenv(k, "")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	n, err := airbrake.New(config.Config{ProjectID: "1", APIKey: "k", Host: srv.URL, Timeout: 50 * time.Millisecond},
		airbrake.WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	sink := &errorSink{}
	logger := zap.New(NewCore(n, nil, WithErrorHandler(sink.handle)))

	start := time.Now()
	logger.Error("unreachable backend", zap.Error(errors.New("boom")))
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("log call blocked for %s", elapsed)
	}

	errs := sink.all()
	if len(errs) != 1 {
		t.Fatalf("expected one handler error, got %v", errs)
	}
	var se *airbrake.SendError
	if !errors.As(errs[0], &se) || se.Outcome != transport.NetworkFailure {
		t.Errorf("expected network failure, got %v", errs[0])
	}
}

func TestSlogHandler(t *testing.T) {
	fake := &fakeReporter{}
	logger := slog.New(NewSlogHandler(fake, nil, WithComponent("checkout")))

	logger.Info("ignored")
	logger.With("svc", "api").WithGroup("req").Error("payment failed",
		"id", 7, "err", errors.New("card declined"), slog.Group("user", "plan", "pro"))

	inputs := fake.got(t)
	if len(inputs) != 1 {
		t.Fatalf("expected one notice, got %d", len(inputs))
	}
	in := inputs[0]
	if in.Err == nil || in.Err.Error() != "card declined" {
		t.Errorf("expected reported error, got %v", in.Err)
	}
	want := map[string]any{"svc": "api", "req.id": int64(7), "req.user.plan": "pro"}
	for k, v := range want {
		if in.Params[k] != v {
			t.Errorf("%s: expected %v, got %v (params %v)", k, v, in.Params[k], in.Params)
		}
	}
	if in.Component != "checkout" {
		t.Errorf("expected component, got %q", in.Component)
	}
	if in.Record.Level != "ERROR" || !strings.HasSuffix(in.Record.File, "handler_test.go") {
		t.Errorf("unexpected record %+v", in.Record)
	}
}

func TestSlogHandlerAttrsUnderGroup(t *testing.T) {
	fake := &fakeReporter{}
	logger := slog.New(NewSlogHandler(fake, slog.LevelWarn))

	logger.WithGroup("db").With("table", "orders").Warn("slow query")

	in := fake.got(t)[0]
	if in.Params["db.table"] != "orders" {
		t.Errorf("expected grouped attr, got %v", in.Params)
	}
	if in.Severity != notice.SeverityWarning {
		t.Errorf("unexpected severity %q", in.Severity)
	}
}

func TestSlogSeverity(t *testing.T) {
	cases := map[slog.Level]notice.Severity{
		slog.LevelDebug:     notice.SeverityDebug,
		slog.LevelInfo:      notice.SeverityInfo,
		slog.LevelWarn:      notice.SeverityWarning,
		slog.LevelError:     notice.SeverityError,
		slog.LevelError + 4: notice.SeverityCritical,
	}
	for level, want := range cases {
		if got := SlogSeverity(level); got != want {
			t.Errorf("%s: expected %q, got %q", level, want, got)
		}
	}
}

func TestSlogHandlerSwallowsFailures(t *testing.T) {
	sink := &errorSink{}
	fake := &fakeReporter{err: errors.New("rejected")}
	h := NewSlogHandler(fake, nil, WithErrorHandler(sink.handle))

	r := slog.NewRecord(time.Now(), slog.LevelError, "oops", 0)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle must not fail, got %v", err)
	}
	if len(sink.all()) != 1 {
		t.Errorf("expected failure routed to the error handler")
	}
}
