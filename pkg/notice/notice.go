// Package notice builds the JSON documents accepted by the Airbrake v3 notices API.
//
// A Notice is built once per reported error, encoded, sent and thrown away. Building
// never fails: when no stack trace can be found the notice degrades to a single
// placeholder frame and the Result is tagged StatusDegraded.
package notice

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	NotifierName = "airbrake-go"
	Version      = "1.0.0"
	NotifierURL  = "https://github.com/fsandov/airbrake-go"
)

// Placeholder values used when no frame information is available.
const (
	unknownFile     = "N/A"
	unknownFunction = "N/A"
	unknownMessage  = "N/A"
)

type Severity string

const (
	SeverityDebug     Severity = "debug"
	SeverityInfo      Severity = "info"
	SeverityNotice    Severity = "notice"
	SeverityWarning   Severity = "warning"
	SeverityError     Severity = "error"
	SeverityCritical  Severity = "critical"
	SeverityAlert     Severity = "alert"
	SeverityEmergency Severity = "emergency"
)

var severities = map[string]Severity{
	"debug":     SeverityDebug,
	"info":      SeverityInfo,
	"notice":    SeverityNotice,
	"warning":   SeverityWarning,
	"warn":      SeverityWarning,
	"error":     SeverityError,
	"critical":  SeverityCritical,
	"alert":     SeverityAlert,
	"emergency": SeverityEmergency,
}

// ParseSeverity maps a case-insensitive name onto the fixed severity set.
func ParseSeverity(s string) (Severity, bool) {
	sev, ok := severities[strings.ToLower(strings.TrimSpace(s))]
	return sev, ok
}

func (s Severity) Valid() bool {
	_, ok := severities[string(s)]
	return ok && s != "warn"
}

type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

type Error struct {
	Type      string  `json:"type"`
	Message   string  `json:"message"`
	Backtrace []Frame `json:"backtrace"`
}

type NotifierInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	URL     string `json:"url"`
}

type User struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func (u *User) empty() bool {
	return u == nil || (u.ID == "" && u.Name == "" && u.Email == "")
}

type Context struct {
	Notifier      *NotifierInfo `json:"notifier,omitempty"`
	Environment   string        `json:"environment,omitempty"`
	Hostname      string        `json:"hostname,omitempty"`
	OS            string        `json:"os,omitempty"`
	Language      string        `json:"language,omitempty"`
	Severity      Severity      `json:"severity"`
	RootDirectory string        `json:"rootDirectory,omitempty"`
	Version       string        `json:"version,omitempty"`
	Revision      string        `json:"revision,omitempty"`
	Component     string        `json:"component,omitempty"`
	Action        string        `json:"action,omitempty"`
	URL           string        `json:"url,omitempty"`
	HTTPMethod    string        `json:"httpMethod,omitempty"`
	UserAgent     string        `json:"userAgent,omitempty"`
	UserAddr      string        `json:"userAddr,omitempty"`
	User          *User         `json:"user,omitempty"`
}

type Notice struct {
	Errors      []Error        `json:"errors"`
	Context     Context        `json:"context"`
	Environment map[string]any `json:"environment,omitempty"`
	Session     map[string]any `json:"session,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// Fingerprint identifies "the same error" for dedupe: error class, message and the
// frame where it happened.
func (n *Notice) Fingerprint() string {
	if n == nil || len(n.Errors) == 0 {
		return ""
	}
	e := n.Errors[0]
	var b strings.Builder
	b.WriteString(e.Type)
	b.WriteByte('|')
	b.WriteString(e.Message)
	if len(e.Backtrace) > 0 {
		f := e.Backtrace[0]
		b.WriteByte('|')
		b.WriteString(f.File)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(f.Line))
		b.WriteByte(':')
		b.WriteString(f.Function)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// Status tags how complete a built notice is.
type Status int

const (
	// StatusComplete means the backtrace came from a real stack trace.
	StatusComplete Status = iota
	// StatusDegraded means the notice was built from a message or a single caller frame.
	StatusDegraded
)

func (s Status) String() string {
	if s == StatusDegraded {
		return "degraded"
	}
	return "complete"
}

type Result struct {
	Notice *Notice
	Status Status
}

func (r Result) Degraded() bool { return r.Status == StatusDegraded }
