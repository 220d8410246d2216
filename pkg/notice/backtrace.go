package notice

import (
	"errors"
	"path/filepath"
	"runtime"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

const projectRoot = "/PROJECT_ROOT"

// stackTracer is implemented by errors created with github.com/pkg/errors.
type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// pcStackTracer is the plain program-counter flavour some error libraries expose.
type pcStackTracer interface {
	StackTrace() []uintptr
}

type causer interface {
	Cause() error
}

// Callers captures the calling goroutine's stack. skip=0 starts at the caller of Callers.
func Callers(skip int) []uintptr {
	pcs := make([]uintptr, 128)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

// unwrap steps one level down an error chain, understanding both the standard
// library's Unwrap and pkg/errors' Cause.
func unwrap(err error) error {
	if next := errors.Unwrap(err); next != nil {
		return next
	}
	if c, ok := err.(causer); ok {
		if next := c.Cause(); next != nil && next != err {
			return next
		}
	}
	return nil
}

// chain lists err and its causes, outermost first. Depth is bounded so a
// self-referencing Cause cannot loop forever.
func chain(err error) []error {
	var out []error
	for e := err; e != nil && len(out) < 32; e = unwrap(e) {
		out = append(out, e)
	}
	return out
}

// stackOf returns the program counters of a single error, if it carries a stack.
func stackOf(err error) []uintptr {
	switch st := err.(type) {
	case stackTracer:
		trace := st.StackTrace()
		pcs := make([]uintptr, len(trace))
		for i, f := range trace {
			pcs[i] = uintptr(f)
		}
		return pcs
	case pcStackTracer:
		return st.StackTrace()
	}
	return nil
}

// deepestStack returns the stack recorded closest to where the error originated.
func deepestStack(err error) []uintptr {
	var pcs []uintptr
	for _, e := range chain(err) {
		if s := stackOf(e); len(s) > 0 {
			pcs = s
		}
	}
	return pcs
}

// framesFromPCs resolves program counters innermost first, dropping Go runtime frames.
func (b *Builder) framesFromPCs(pcs []uintptr) []Frame {
	if len(pcs) == 0 {
		return nil
	}
	var frames []Frame
	iter := runtime.CallersFrames(pcs)
	for {
		f, more := iter.Next()
		if f.Function != "" && !strings.HasPrefix(f.Function, "runtime.") {
			frames = append(frames, Frame{
				File:     b.trimRoot(f.File),
				Line:     f.Line,
				Function: f.Function,
			})
			if len(frames) == b.maxFrames() {
				break
			}
		}
		if !more {
			break
		}
	}
	return frames
}

func (b *Builder) trimRoot(file string) string {
	root := b.defaults.RootDirectory
	if root == "" || file == "" {
		return file
	}
	root = filepath.Clean(root)
	if file == root {
		return projectRoot
	}
	if strings.HasPrefix(file, root+string(filepath.Separator)) || strings.HasPrefix(file, root+"/") {
		return projectRoot + "/" + strings.TrimLeft(file[len(root):], `/\`)
	}
	return file
}

func (b *Builder) maxFrames() int {
	if b.defaults.MaxFrames <= 0 {
		return defaultMaxFrames
	}
	return b.defaults.MaxFrames
}

func placeholderFrame() Frame {
	return Frame{File: unknownFile, Line: 1, Function: unknownFunction}
}
