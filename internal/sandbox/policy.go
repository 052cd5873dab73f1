package sandbox

import (
	"fmt"
	"reflect"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
)

// deniedNames are identifiers and property names user code may not mention,
// either as a bare name, after a dot, or as a string-literal subscript.
// Dynamic subscripts (value[i]) stay allowed; the runtime hardening in
// runtime.go covers what a computed key could still reach.
var deniedNames = map[string]string{
	"eval":             "eval is not allowed",
	"Function":         "the Function constructor is not allowed",
	"globalThis":       "access to the global object is not allowed",
	"Reflect":          "Reflect is not allowed",
	"Proxy":            "Proxy is not allowed",
	"require":          "require is not allowed",
	"constructor":      "access to constructor is not allowed",
	"__proto__":        "access to __proto__ is not allowed",
	"prototype":        "access to prototype is not allowed",
	"__defineGetter__": "access to __defineGetter__ is not allowed",
	"__defineSetter__": "access to __defineSetter__ is not allowed",
	"__lookupGetter__": "access to __lookupGetter__ is not allowed",
	"__lookupSetter__": "access to __lookupSetter__ is not allowed",
}

var astPkg = reflect.TypeOf(ast.Program{}).PkgPath()

// checkPolicy walks the program and returns one diagnostic per violation.
func checkPolicy(prg *ast.Program) []string {
	w := &policyWalker{file: prg.File, seen: map[string]bool{}}
	w.walk(reflect.ValueOf(prg))
	return w.diags
}

type policyWalker struct {
	file  *file.File
	diags []string
	seen  map[string]bool
}

// walk visits every node of the goja AST. The AST has no exported walker, so
// nodes are reached through their exported fields; values from other
// packages (file.Idx, unistring.String) are leaves.
func (w *policyWalker) walk(v reflect.Value) {
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return
		}
		w.walk(v.Elem())
	case reflect.Slice:
		for i := range v.Len() {
			w.walk(v.Index(i))
		}
	case reflect.Struct:
		t := v.Type()
		if t.PkgPath() != astPkg {
			return
		}
		if v.CanAddr() {
			w.visit(v.Addr().Interface())
		}
		for i := range v.NumField() {
			if t.Field(i).IsExported() {
				w.walk(v.Field(i))
			}
		}
	}
}

func (w *policyWalker) visit(node any) {
	switch n := node.(type) {
	case *ast.Identifier:
		w.check(n.Name.String(), n.Idx)
	case *ast.BracketExpression:
		if lit, ok := n.Member.(*ast.StringLiteral); ok {
			w.check(lit.Value.String(), lit.Idx)
		}
	case *ast.PropertyKeyed:
		if lit, ok := n.Key.(*ast.StringLiteral); ok && !n.Computed {
			w.check(lit.Value.String(), lit.Idx)
		}
	case *ast.WithStatement:
		w.report(n.With, "with statements are not allowed")
	}
}

func (w *policyWalker) check(name string, idx file.Idx) {
	if msg, ok := deniedNames[name]; ok {
		w.report(idx, msg)
	}
}

func (w *policyWalker) report(idx file.Idx, msg string) {
	line, col := 0, 0
	if w.file != nil {
		pos := w.file.Position(int(idx) - w.file.Base())
		line, col = userLine(pos.Line), pos.Column
	}
	d := fmt.Sprintf("line %d:%d: %s", line, col, msg)
	if w.seen[d] {
		return
	}
	w.seen[d] = true
	w.diags = append(w.diags, d)
}
