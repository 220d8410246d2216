package notice

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultMaxFrames = 64
	defaultMaxCauses = 3
)

// ReservedParams are params the builder fills itself. Caller params using one of
// these keys are kept under "param_<key>" instead, prefixed again while that key
// is already taken.
var ReservedParams = []string{"level", "logger", "caller"}

// Defaults are the notifier-wide values copied into every notice.
type Defaults struct {
	Environment   string
	Hostname      string
	RootDirectory string
	AppVersion    string
	Revision      string
	Severity      Severity
	MaxFrames     int
	MaxCauses     int
	Notifier      NotifierInfo
}

// Record is the logging-framework-neutral view of a log entry.
type Record struct {
	Level    string
	Logger   string
	Message  string
	File     string
	Line     int
	Function string
	Time     time.Time
}

// Request describes the HTTP request being served when the error happened.
type Request struct {
	URL       string
	Method    string
	UserAgent string
	UserAddr  string
}

// Input is everything known about one error occurrence. Every field is optional.
type Input struct {
	Err     error
	Message string
	// Panic is a recovered panic value. It is used when Err is nil.
	Panic any
	// Stack is used when no error in the chain carries its own stack.
	Stack  []uintptr
	Record *Record

	Severity    Severity
	Params      map[string]any
	Session     map[string]any
	Environment map[string]any
	User        *User
	Component   string
	Action      string
	Request     *Request
}

type Builder struct {
	defaults Defaults
	os       string
	language string
}

func NewBuilder(d Defaults) *Builder {
	if sev, ok := ParseSeverity(string(d.Severity)); ok {
		d.Severity = sev
	} else {
		d.Severity = SeverityError
	}
	if d.Notifier.Name == "" {
		d.Notifier = NotifierInfo{Name: NotifierName, Version: Version, URL: NotifierURL}
	}
	return &Builder{
		defaults: d,
		os:       runtime.GOOS + "/" + runtime.GOARCH,
		language: "go/" + strings.TrimPrefix(runtime.Version(), "go"),
	}
}

// Build never fails; see Result.Status for how complete the outcome is.
func (b *Builder) Build(in Input) Result {
	err := in.Err
	if err == nil && in.Panic != nil {
		err = PanicError(in.Panic)
	}

	primary, status := b.primaryError(err, in)
	n := &Notice{
		Errors:      append([]Error{primary}, b.causes(err)...),
		Context:     b.context(in),
		Environment: copyMap(in.Environment),
		Session:     copyMap(in.Session),
		Params:      b.params(in),
	}
	return Result{Notice: n, Status: status}
}

func (b *Builder) primaryError(err error, in Input) (Error, Status) {
	e := Error{
		Type:    errorType(err, in.Record),
		Message: message(err, in),
	}

	if pcs := deepestStack(err); len(pcs) > 0 {
		if frames := b.framesFromPCs(pcs); len(frames) > 0 {
			e.Backtrace = frames
			return e, StatusComplete
		}
	}
	if frames := b.framesFromPCs(in.Stack); len(frames) > 0 {
		e.Backtrace = frames
		return e, StatusComplete
	}
	if r := in.Record; r != nil && r.File != "" {
		e.Backtrace = []Frame{{
			File:     b.trimRoot(r.File),
			Line:     r.Line,
			Function: orDefault(r.Function, unknownFunction),
		}}
		return e, StatusDegraded
	}
	e.Backtrace = []Frame{placeholderFrame()}
	return e, StatusDegraded
}

// causes lists the wrapped errors below err. Wrappers that only add a stack
// repeat their cause's message and are skipped.
func (b *Builder) causes(err error) []Error {
	limit := b.defaults.MaxCauses
	if limit <= 0 {
		limit = defaultMaxCauses
	}
	links := chain(err)
	if len(links) < 2 {
		return nil
	}
	var out []Error
	last := links[0].Error()
	for _, c := range links[1:] {
		msg := c.Error()
		if msg == last {
			continue
		}
		last = msg
		e := Error{Type: typeName(c), Message: msg}
		if frames := b.framesFromPCs(deepestStack(c)); len(frames) > 0 {
			e.Backtrace = frames
		} else {
			e.Backtrace = []Frame{placeholderFrame()}
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (b *Builder) context(in Input) Context {
	d := b.defaults
	notifier := d.Notifier
	c := Context{
		Notifier:      &notifier,
		Environment:   d.Environment,
		Hostname:      d.Hostname,
		OS:            b.os,
		Language:      b.language,
		Severity:      d.Severity,
		RootDirectory: d.RootDirectory,
		Version:       d.AppVersion,
		Revision:      d.Revision,
		Component:     in.Component,
		Action:        in.Action,
	}
	if sev, ok := ParseSeverity(string(in.Severity)); ok {
		c.Severity = sev
	}
	if r := in.Request; r != nil {
		c.URL = r.URL
		c.HTTPMethod = r.Method
		c.UserAgent = r.UserAgent
		c.UserAddr = r.UserAddr
	}
	if !in.User.empty() {
		u := *in.User
		c.User = &u
	}
	return c
}

func (b *Builder) params(in Input) map[string]any {
	params := make(map[string]any, len(in.Params)+3)
	if r := in.Record; r != nil {
		if r.Level != "" {
			params["level"] = r.Level
		}
		if r.Logger != "" {
			params["logger"] = r.Logger
		}
		if r.File != "" {
			params["caller"] = r.File + ":" + strconv.Itoa(r.Line)
		}
	}
	var renamed []string
	for k, v := range in.Params {
		if isReserved(k) {
			renamed = append(renamed, k)
			continue
		}
		params[k] = v
	}
	// Renamed keys go last and never displace a key the caller set themselves.
	sort.Strings(renamed)
	for _, k := range renamed {
		key := "param_" + k
		for {
			if _, taken := params[key]; !taken {
				break
			}
			key = "param_" + key
		}
		params[key] = in.Params[k]
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

func isReserved(key string) bool {
	for _, r := range ReservedParams {
		if r == key {
			return true
		}
	}
	return false
}

func errorType(err error, r *Record) string {
	if err != nil {
		for _, e := range chain(err) {
			if c, ok := e.(interface{ ErrorClass() string }); ok && c.ErrorClass() != "" {
				return c.ErrorClass()
			}
		}
		links := chain(err)
		return typeName(links[len(links)-1])
	}
	if r != nil {
		level := strings.ToUpper(orDefault(r.Level, "ERROR"))
		if r.File != "" {
			return level + ":" + filepath.Base(r.File)
		}
		return level
	}
	return "Error"
}

func typeName(err error) string {
	if c, ok := err.(interface{ ErrorClass() string }); ok && c.ErrorClass() != "" {
		return c.ErrorClass()
	}
	return fmt.Sprintf("%T", err)
}

func message(err error, in Input) string {
	msg := in.Message
	if msg == "" && in.Record != nil {
		msg = in.Record.Message
	}
	if err == nil {
		return orDefault(msg, unknownMessage)
	}
	errMsg := err.Error()
	switch {
	case msg == "" || msg == errMsg:
		return orDefault(errMsg, unknownMessage)
	case errMsg == "":
		return msg
	default:
		return msg + " | " + errMsg
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func copyMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type panicError struct {
	value any
}

func (p *panicError) Error() string      { return fmt.Sprint(p.value) }
func (p *panicError) ErrorClass() string { return "panic" }

// PanicError converts a recovered panic value into an error. Error values are
// returned unchanged so their class and stack survive.
func PanicError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return &panicError{value: v}
}
