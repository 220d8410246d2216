package transport

import (
	"context"
	"errors"
	"net/http"
)

// Outcome classifies what happened to one notice.
type Outcome int

const (
	// Delivered means the service answered 2xx.
	Delivered Outcome = iota
	// Rejected means a 4xx other than 429: bad payload, unknown project or key.
	Rejected
	// RateLimited means 429, or a local cooldown after a 429.
	RateLimited
	// ServerError means 5xx or any other unexpected status.
	ServerError
	// NetworkFailure means no usable response: dial or TLS error, timeout,
	// cancellation, an open circuit breaker or a limiter that gave up.
	NetworkFailure
	// Suppressed means the notice was dropped before any request was made
	// (filter hook or dedupe). The transport never reports it.
	Suppressed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Rejected:
		return "rejected"
	case RateLimited:
		return "rate_limited"
	case ServerError:
		return "server_error"
	case NetworkFailure:
		return "network_failure"
	case Suppressed:
		return "suppressed"
	}
	return "unknown"
}

// Classify maps an HTTP exchange onto an Outcome. A non-nil err always wins.
func Classify(status int, err error) Outcome {
	if err != nil {
		return NetworkFailure
	}
	switch {
	case status >= 200 && status < 300:
		return Delivered
	case status == http.StatusTooManyRequests:
		return RateLimited
	case status >= 400 && status < 500:
		return Rejected
	default:
		return ServerError
	}
}

// IsTimeout reports whether err came from a deadline rather than a refused connection.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
