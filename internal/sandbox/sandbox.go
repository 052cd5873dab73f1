// Package sandbox compiles user-supplied transformation bodies into callables
// that run inside a restricted JavaScript runtime.
//
// A body is the inside of a function taking (value, context):
//
//	return value.toUpperCase()
//
// Compilation parses the body, rejects constructs that reach outside the
// sandbox (see policy.go) and binds the resulting function to a fresh, hardened
// goja runtime. The runtime holds no host objects other than the two
// arguments, and every call runs under a deadline.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

const (
	// srcName is the synthetic file name given to user code. Stack frames
	// from any other source are host frames and never reach the user.
	srcName = "<transform>"

	wrapPrefix = "(function transform(value, context) {\n"
	wrapSuffix = "\n})"

	// lineOffset is the number of wrapper lines before the user's first line.
	lineOffset = 1

	DefaultTimeout      = 2 * time.Second
	DefaultMaxCallStack = 500
)

// Options tunes the runtime limits applied to compiled functions.
type Options struct {
	// Timeout bounds a single call. Zero means DefaultTimeout.
	Timeout time.Duration
	// MaxCallStackSize bounds recursion depth. Zero means DefaultMaxCallStack.
	MaxCallStackSize int
}

// Compiler turns function bodies into Funcs. It is safe for concurrent use;
// the Funcs it returns are not.
type Compiler struct {
	opt Options
}

// NewCompiler returns a Compiler with defaults applied to zero options.
func NewCompiler(opt Options) *Compiler {
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultTimeout
	}
	if opt.MaxCallStackSize <= 0 {
		opt.MaxCallStackSize = DefaultMaxCallStack
	}
	return &Compiler{opt: opt}
}

// Func is a compiled user function bound to its own runtime.
type Func struct {
	vm      *goja.Runtime
	fn      goja.Callable
	freeze  goja.Callable
	timeout time.Duration
}

// Compile parses, checks and binds code. Any failure is reported as a
// *CompilationError carrying every diagnostic found.
func (c *Compiler) Compile(code string) (*Func, error) {
	src := wrapPrefix + code + wrapSuffix

	prg, err := parser.ParseFile(nil, srcName, src, 0)
	if err != nil {
		return nil, newCompilationError(parseDiagnostics(err))
	}
	if !isSingleFunction(prg) {
		return nil, newCompilationError([]string{"line 1: code must stay inside the function body"})
	}
	if diags := checkPolicy(prg); len(diags) > 0 {
		return nil, newCompilationError(diags)
	}

	program, err := goja.CompileAST(prg, true)
	if err != nil {
		return nil, newCompilationError([]string{err.Error()})
	}

	vm, err := c.newRuntime()
	if err != nil {
		return nil, fmt.Errorf("sandbox: init runtime: %w", err)
	}
	v, err := vm.RunProgram(program)
	if err != nil {
		return nil, newCompilationError([]string{describe(err)})
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, newCompilationError([]string{"code did not evaluate to a function"})
	}
	freeze, ok := goja.AssertFunction(vm.Get("Object").ToObject(vm).Get("freeze"))
	if !ok {
		return nil, fmt.Errorf("sandbox: Object.freeze unavailable")
	}

	return &Func{vm: vm, fn: fn, freeze: freeze, timeout: c.opt.Timeout}, nil
}

// isSingleFunction reports whether the wrapped program is still exactly the
// wrapper expression. Bodies that close the wrapper early produce more
// statements.
func isSingleFunction(prg *ast.Program) bool {
	if len(prg.Body) != 1 {
		return false
	}
	stmt, ok := prg.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return false
	}
	_, ok = stmt.Expression.(*ast.FunctionLiteral)
	return ok
}

// Call invokes the function with value and a read-only context object
// {index, row}. The returned value is exported to plain Go values
// (string, bool, int64, float64, nil, []any, map[string]any).
//
// A call is interrupted when ctx is done or the per-call timeout elapses.
// When ctx itself is done the returned error wraps ctx.Err().
func (f *Func) Call(ctx context.Context, value any, index int, row []any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	fired := make(chan struct{})
	stop := context.AfterFunc(callCtx, func() {
		defer close(fired)
		f.vm.Interrupt(callCtx.Err())
	})
	defer func() {
		if !stop() {
			<-fired
		}
		f.vm.ClearInterrupt()
	}()

	arg, err := f.toJS(value)
	if err != nil {
		return nil, err
	}
	rc, err := f.contextObject(index, row)
	if err != nil {
		return nil, err
	}

	ret, err := f.fn(goja.Undefined(), arg, rc)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, newRuntimeError(err, f.timeout)
	}
	return export(ret)
}

// export converts a JS result to Go. Accessor properties run user code, so a
// throwing or interrupted getter surfaces as a panic that is turned back into
// an error here.
func export(v goja.Value) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &RuntimeError{Message: fmt.Sprintf("result could not be read: %v", r)}
		}
	}()
	return v.Export(), nil
}

// contextObject builds the frozen {index, row} argument.
func (f *Func) contextObject(index int, row []any) (goja.Value, error) {
	rowVal, err := f.toJS(row)
	if err != nil {
		return nil, err
	}
	obj := f.vm.NewObject()
	if err := obj.Set("index", index); err != nil {
		return nil, err
	}
	if err := obj.Set("row", rowVal); err != nil {
		return nil, err
	}
	return f.freeze(goja.Undefined(), obj)
}

// toJS converts decoded JSON cells into native JS values. Lists and objects
// become frozen JS arrays and objects rather than wrappers around Go memory.
func (f *Func) toJS(v any) (goja.Value, error) {
	switch t := v.(type) {
	case []any:
		items := make([]any, len(t))
		for i, it := range t {
			jv, err := f.toJS(it)
			if err != nil {
				return nil, err
			}
			items[i] = jv
		}
		return f.freeze(goja.Undefined(), f.vm.NewArray(items...))
	case map[string]any:
		obj := f.vm.NewObject()
		for k, it := range t {
			jv, err := f.toJS(it)
			if err != nil {
				return nil, err
			}
			if err := obj.Set(k, jv); err != nil {
				return nil, err
			}
		}
		return f.freeze(goja.Undefined(), obj)
	default:
		return f.vm.ToValue(v), nil
	}
}

// IsCompilationError reports whether err is (or wraps) a *CompilationError.
func IsCompilationError(err error) bool {
	var ce *CompilationError
	return errors.As(err, &ce)
}
