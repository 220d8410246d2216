package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type mockTransport struct {
	roundTripFunc func(*http.Request) (*http.Response, error)
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.roundTripFunc(req)
}

func statusTransport(code int) *mockTransport {
	return &mockTransport{roundTripFunc: func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: code,
			Header:     http.Header{},
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"message":"x"}`))),
		}, nil
	}}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		status int
		err    error
		want   Outcome
	}{
		{201, nil, Delivered},
		{200, nil, Delivered},
		{400, nil, Rejected},
		{401, nil, Rejected},
		{429, nil, RateLimited},
		{500, nil, ServerError},
		{503, nil, ServerError},
		{302, nil, ServerError},
		{0, errors.New("dial tcp: connection refused"), NetworkFailure},
		{200, context.DeadlineExceeded, NetworkFailure},
	}
	for _, c := range cases {
		if got := Classify(c.status, c.err); got != c.want {
			t.Errorf("Classify(%d, %v) = %s, want %s", c.status, c.err, got, c.want)
		}
	}
}

func TestPostJSONOutcomes(t *testing.T) {
	for code, want := range map[int]Outcome{
		http.StatusCreated:             Delivered,
		http.StatusTooManyRequests:     RateLimited,
		http.StatusUnauthorized:        Rejected,
		http.StatusInternalServerError: ServerError,
	} {
		s := NewSender(WithBaseURL("http://example.com"), WithRoundTripper(statusTransport(code)))
		resp, err := s.PostJSON(context.Background(), "/notices", nil, []byte(`{}`))
		if resp == nil || resp.Outcome != want {
			t.Errorf("status %d: expected %s, got %+v", code, want, resp)
			continue
		}
		if want == Delivered && err != nil {
			t.Errorf("status %d: unexpected error %v", code, err)
		}
		if want != Delivered && (err == nil || err.Outcome != want) {
			t.Errorf("status %d: expected error with outcome %s, got %v", code, want, err)
		}
	}
}

func TestPostJSONNetworkFailure(t *testing.T) {
	transport := &mockTransport{roundTripFunc: func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}}
	s := NewSender(WithBaseURL("http://example.com"), WithRoundTripper(transport))
	resp, err := s.PostJSON(context.Background(), "/notices", nil, []byte(`{}`))
	if resp != nil {
		t.Errorf("expected no response, got %+v", resp)
	}
	if err == nil || err.Outcome != NetworkFailure {
		t.Fatalf("expected network failure, got %v", err)
	}
}

func TestPostJSONTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	s := NewSender(WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond))
	_, err := s.PostJSON(context.Background(), "/slow", nil, []byte(`{}`))
	if err == nil || err.Outcome != NetworkFailure {
		t.Fatalf("expected network failure, got %v", err)
	}
	if !IsTimeout(err) {
		t.Errorf("expected a timeout error, got %v", err.Err)
	}
}

func TestPostJSONSendsHeadersAndQuery(t *testing.T) {
	var gotQuery, gotType, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("key")
		gotType = r.Header.Get("Content-Type")
		gotAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewSender(WithBaseURL(srv.URL+"/"), WithHeader("User-Agent", "airbrake-go/test"))
	_, err := s.PostJSON(context.Background(), "/api/v3/projects/1/notices", url.Values{"key": {"secret"}}, []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "secret" || gotType != "application/json" || gotAgent != "airbrake-go/test" {
		t.Errorf("unexpected request: key=%q type=%q agent=%q", gotQuery, gotType, gotAgent)
	}
}

func TestErrorRedactsKey(t *testing.T) {
	s := NewSender(WithBaseURL("http://example.com"), WithRoundTripper(statusTransport(http.StatusForbidden)))
	_, err := s.PostJSON(context.Background(), "/notices", url.Values{"key": {"secret"}}, []byte(`{}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("api key leaked in error: %s", err.Error())
	}
	if err.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", err.StatusCode)
	}
}

func TestTimeoutRespectsContextDeadline(t *testing.T) {
	transport := &mockTransport{
		roundTripFunc: func(req *http.Request) (*http.Response, error) {
			deadline, ok := req.Context().Deadline()
			if !ok {
				t.Error("expected context to have deadline")
			}
			if remaining := time.Until(deadline); remaining > 3*time.Second {
				t.Errorf("deadline too far: %v", remaining)
			}
			return &http.Response{StatusCode: 201, Body: io.NopCloser(bytes.NewReader(nil))}, nil
		},
	}
	s := NewSender(WithBaseURL("http://example.com"), WithTimeout(2*time.Second), WithRoundTripper(transport))
	_, _ = s.PostJSON(context.Background(), "/test", nil, nil)
}

func TestMiddlewareOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(req)
			})
		}
	}
	var calls int32
	base := &mockTransport{roundTripFunc: func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return &http.Response{StatusCode: 201, Body: io.NopCloser(bytes.NewReader(nil))}, nil
	}}
	s := NewSender(WithBaseURL("http://example.com"), WithRoundTripper(base),
		WithMiddleware(tag("outer")), WithMiddleware(tag("inner")), WithMiddleware(nil))
	_, _ = s.PostJSON(context.Background(), "/", nil, nil)

	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("unexpected middleware order %v", order)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected exactly one request, got %d", calls)
	}
}
