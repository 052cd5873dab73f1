package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
)

// CompilationError reports why a body could not be compiled. Diagnostics are
// ordered as found and carry line numbers relative to the user's body.
type CompilationError struct {
	Diagnostics []string
}

func newCompilationError(diags []string) *CompilationError {
	return &CompilationError{Diagnostics: diags}
}

func (e *CompilationError) Error() string {
	return strings.Join(e.Diagnostics, "\n")
}

// parseDiagnostics flattens a parser error list.
func parseDiagnostics(err error) []string {
	var list parser.ErrorList
	if errors.As(err, &list) {
		out := make([]string, 0, len(list))
		for _, e := range list {
			out = append(out, fmt.Sprintf("line %d:%d: %s", userLine(e.Position.Line), e.Position.Column, e.Message))
		}
		return out
	}
	var single *parser.Error
	if errors.As(err, &single) {
		return []string{fmt.Sprintf("line %d:%d: %s", userLine(single.Position.Line), single.Position.Column, single.Message)}
	}
	return []string{err.Error()}
}

// userLine maps a line in the wrapped source back to the user's body.
func userLine(line int) int {
	if line <= lineOffset {
		return 1
	}
	return line - lineOffset
}

// Frame is one user-code stack frame.
type Frame struct {
	Func   string
	Line   int
	Column int
}

// RuntimeError is a failure raised while running user code. Only frames from
// the user's body are kept.
type RuntimeError struct {
	Message string
	Frames  []Frame
	// Timeout is set when the call was interrupted by its deadline.
	Timeout bool
}

// Error renders the message followed by one "at" line per frame, innermost
// first.
func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, f := range e.Frames {
		fmt.Fprintf(&b, "\n    at %s (line %d:%d)", f.Func, f.Line, f.Column)
	}
	return b.String()
}

func newRuntimeError(err error, timeout time.Duration) *RuntimeError {
	re := &RuntimeError{Message: describe(err)}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		re.Message = fmt.Sprintf("execution timed out after %s", timeout)
		re.Timeout = true
	}

	var exc *goja.Exception
	switch {
	case errors.As(err, &interrupted):
		re.Frames = userFrames(interrupted.Stack())
	case errors.As(err, &exc):
		re.Frames = userFrames(exc.Stack())
	}
	return re
}

// describe returns the thrown value as text. Converting an object runs its
// toString, which is user code and may itself throw.
func describe(err error) (msg string) {
	var so *goja.StackOverflowError
	if errors.As(err, &so) {
		return "RangeError: Maximum call stack size exceeded"
	}
	var exc *goja.Exception
	if !errors.As(err, &exc) || exc.Value() == nil {
		return err.Error()
	}
	defer func() {
		if recover() != nil {
			msg = "uncaught exception"
		}
	}()
	return exc.Value().String()
}

func userFrames(stack []goja.StackFrame) []Frame {
	var out []Frame
	for i := range stack {
		f := &stack[i]
		if f.SrcName() != srcName {
			continue
		}
		pos := f.Position()
		out = append(out, Frame{
			Func:   f.FuncName(),
			Line:   userLine(pos.Line),
			Column: pos.Column,
		})
	}
	return out
}
