package transport

import (
	"fmt"
	"net/url"
)

type Error struct {
	Outcome    Outcome
	StatusCode int
	Body       []byte
	Err        error
	Method     string
	URL        string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[HTTP] %s %s: status=%d, outcome=%s, err=%v", e.Method, e.URL, e.StatusCode, e.Outcome, e.Err)
	if len(e.Body) > 0 {
		msg += fmt.Sprintf(", body=%s", string(e.Body))
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// redactURL hides credentials carried in the query string.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	if q.Get("key") == "" {
		return u.String()
	}
	q.Set("key", "*****")
	c := *u
	c.RawQuery = q.Encode()
	return c.String()
}
