package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"reflect"
	"regexp"
	"runtime"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unsafe"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/harrison/doctest/internal/models"
)

const fixturePackage = "doctest/fixtures"

// Exception type names produced for errors that are not panics.
const (
	CompileError   = "CompileError"
	UndefinedError = "UndefinedError"
)

var positionPrefix = regexp.MustCompile(`^(?:\S*?:)?\d+:\d+:\s*`)

// YaegiOptions configures YaegiEvaluator.
type YaegiOptions struct {
	// AutoImports are imported into every namespace before the first example.
	AutoImports []string
}

// YaegiEvaluator runs Go source with the yaegi interpreter. One evaluator is
// one namespace: declarations made by earlier sources are visible to later
// ones.
type YaegiEvaluator struct {
	interp *interp.Interpreter
	stdout *bytes.Buffer

	declared  []string                    // type names declared so far, oldest first
	typeNames map[reflect.Type]string     // resolved declared names, "" when unknown
	methods   map[methodKey]reflect.Value // evaluated method helpers
}

// NewYaegiFactory returns an EvaluatorFactory creating a YaegiEvaluator per
// group.
func NewYaegiFactory(opts YaegiOptions) EvaluatorFactory {
	return func(group *models.Group) (Evaluator, error) {
		var globs map[string]any
		if group != nil {
			globs = group.Globs
		}
		return NewYaegiEvaluator(globs, opts)
	}
}

// NewYaegiEvaluator creates an interpreter with the standard library, binds
// globs as package-level variables and imports opts.AutoImports.
func NewYaegiEvaluator(globs map[string]any, opts YaegiOptions) (*YaegiEvaluator, error) {
	stdout := &bytes.Buffer{}
	i := interp.New(interp.Options{Stdout: stdout, Stderr: io.Discard})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load standard library symbols: %w", err)
	}

	e := &YaegiEvaluator{
		interp:    i,
		stdout:    stdout,
		typeNames: map[reflect.Type]string{},
		methods:   map[methodKey]reflect.Value{},
	}
	if err := e.bindFixtures(globs); err != nil {
		return nil, err
	}
	for _, pkg := range opts.AutoImports {
		if _, err := i.Eval(fmt.Sprintf("import %q", pkg)); err != nil {
			return nil, fmt.Errorf("failed to import %s: %w", pkg, err)
		}
	}
	return e, nil
}

// bindFixtures exposes every glob through a synthetic package and declares a
// variable of the same name for it.
func (e *YaegiEvaluator) bindFixtures(globs map[string]any) error {
	if len(globs) == 0 {
		return nil
	}

	names := make([]string, 0, len(globs))
	for name := range globs {
		names = append(names, name)
	}
	sort.Strings(names)

	symbols := map[string]reflect.Value{}
	for _, name := range names {
		if !token.IsIdentifier(name) {
			return fmt.Errorf("fixture name %q is not a Go identifier", name)
		}
		v := reflect.ValueOf(globs[name])
		if !v.IsValid() {
			return fmt.Errorf("fixture %q is nil", name)
		}
		symbols["F_"+name] = v
	}

	exports := interp.Exports{fixturePackage + "/fixtures": symbols}
	if err := e.interp.Use(exports); err != nil {
		return fmt.Errorf("failed to register fixtures: %w", err)
	}

	var src strings.Builder
	fmt.Fprintf(&src, "import %q\n", fixturePackage)
	for _, name := range names {
		fmt.Fprintf(&src, "var %s = fixtures.F_%s\n", name, name)
	}
	if _, err := e.interp.Eval(src.String()); err != nil {
		return fmt.Errorf("failed to bind fixtures: %w", err)
	}
	return nil
}

// Exec implements Evaluator. A lone expression that is not a print call
// echoes its value the way an interactive session would.
func (e *YaegiEvaluator) Exec(ctx context.Context, src string) (Execution, error) {
	e.stdout.Reset()
	v, err := e.interp.EvalWithContext(ctx, src)
	out := e.stdout.String()

	if err != nil {
		if ctx.Err() != nil {
			return Execution{Output: out}, ctx.Err()
		}
		return Execution{Output: out, Raised: e.classify(err)}, nil
	}
	e.recordTypes(src)

	if echoes(src) {
		if s, ok := render(v); ok {
			out += s + "\n"
		}
	}
	return Execution{Output: out}, nil
}

// Truth implements Evaluator.
func (e *YaegiEvaluator) Truth(ctx context.Context, expr string) (bool, error) {
	e.stdout.Reset()
	v, err := e.interp.EvalWithContext(ctx, expr)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("evaluate %q: %s", expr, e.classify(err).Summary())
	}
	if !v.IsValid() || v.Kind() != reflect.Bool {
		return false, fmt.Errorf("evaluate %q: not a boolean expression", expr)
	}
	return v.Bool(), nil
}

// recordTypes remembers the types src declared. A redeclared name moves to
// the end so it wins over older layouts.
func (e *YaegiEvaluator) recordTypes(src string) {
	names := declaredTypes(src)
	if len(names) == 0 {
		return
	}
	for _, name := range names {
		e.declared = slices.DeleteFunc(e.declared, func(d string) bool { return d == name })
		e.declared = append(e.declared, name)
	}
	clear(e.typeNames)
	clear(e.methods)
}

// Close implements Evaluator.
func (e *YaegiEvaluator) Close() error {
	e.interp = nil
	return nil
}

// echoes reports whether src is a single expression whose value should be
// printed.
func echoes(src string) bool {
	expr, err := parser.ParseExpr(strings.TrimSpace(src))
	if err != nil {
		return false
	}
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		return true
	}
	switch fn := call.Fun.(type) {
	case *ast.Ident:
		return fn.Name != "print" && fn.Name != "println"
	case *ast.SelectorExpr:
		if pkg, ok := fn.X.(*ast.Ident); ok && pkg.Name == "fmt" {
			return !strings.HasPrefix(fn.Sel.Name, "Print") && !strings.HasPrefix(fn.Sel.Name, "Fprint")
		}
	}
	return true
}

// render formats an echoed value. Nil values and missing results print
// nothing.
func render(v reflect.Value) (string, bool) {
	if !v.IsValid() {
		return "", false
	}
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		if v.IsNil() {
			return "", false
		}
	}
	if !v.CanInterface() {
		return "", false
	}
	val := v.Interface()
	if s, ok := val.(string); ok {
		return strconv.Quote(s), true
	}
	return fmt.Sprintf("%v", val), true
}

// classify turns an interpreter error into the exception an example sees.
func (e *YaegiEvaluator) classify(err error) *models.Raised {
	var p interp.Panic
	if errors.As(err, &p) {
		return e.raisedFromPanic(p.Value, string(p.Stack))
	}
	var pp *interp.Panic
	if errors.As(err, &pp) && pp != nil {
		return e.raisedFromPanic(pp.Value, string(pp.Stack))
	}

	msg := positionPrefix.ReplaceAllString(err.Error(), "")
	if strings.Contains(msg, "undefined: ") {
		return &models.Raised{
			Type:    UndefinedError,
			Chain:   []string{UndefinedError, CompileError, "error"},
			Message: msg,
			Trace:   err.Error(),
		}
	}
	return &models.Raised{
		Type:    CompileError,
		Chain:   []string{CompileError, "error"},
		Message: msg,
		Trace:   err.Error(),
	}
}

func (e *YaegiEvaluator) raisedFromPanic(value any, stack string) *models.Raised {
	r := &models.Raised{Trace: stack}
	for {
		rv, ok := value.(reflect.Value)
		if !ok || !rv.IsValid() || !rv.CanInterface() {
			break
		}
		value = rv.Interface()
	}
	if inner, ok := interfaceWrapped(value); ok {
		if _, isErr := value.(error); !isErr {
			value = inner
		}
	}
	if s, ok := value.(string); ok {
		r.Type = "panic"
		r.Message = s
		r.Chain = []string{"panic"}
		return r
	}

	r.Type = e.typeName(value)
	msg, isErr := e.errorText(value)
	if !isErr {
		r.Message = fmt.Sprint(value)
		r.Chain = []string{r.Type, "panic"}
		return r
	}
	r.Message = msg
	r.Chain = e.errorChain(value)
	if _, ok := value.(runtime.Error); ok {
		r.Chain = append(r.Chain, "runtime.Error")
	}
	r.Chain = append(r.Chain, "error", "panic")
	return r
}

// errorChain lists the type names of err and every error it wraps.
func (e *YaegiEvaluator) errorChain(err any) []string {
	var chain []string
	seen := map[string]bool{}
	queue := []any{err}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if v == nil {
			continue
		}
		if name := e.typeName(v); !seen[name] {
			seen[name] = true
			chain = append(chain, name)
		}
		queue = append(queue, e.unwrap(v)...)
	}
	return chain
}

// typeName names v the way a transcript does. Values of types declared by
// evaluated sources reach the host as unnamed structs, so they are resolved
// against the interpreter.
func (e *YaegiEvaluator) typeName(v any) string {
	if inner, ok := interfaceWrapped(v); ok {
		return e.typeName(inner)
	}
	if name, ok := e.declaredName(v); ok {
		return name
	}
	return shortTypeName(v)
}

// errorText returns the error message of v and whether v is an error.
func (e *YaegiEvaluator) errorText(v any) (string, bool) {
	if err, ok := v.(error); ok {
		return err.Error(), true
	}
	if name, ok := e.declaredName(v); ok {
		if out, ok := e.callMethod(name, "Error", v); ok && out.Kind() == reflect.String {
			return out.String(), true
		}
	}
	return "", false
}

// unwrap returns the errors v wraps.
func (e *YaegiEvaluator) unwrap(v any) []any {
	if inner, ok := interfaceWrapped(v); ok {
		return e.unwrap(inner)
	}
	if name, ok := e.declaredName(v); ok {
		out, ok := e.callMethod(name, "Unwrap", v)
		if !ok || !out.IsValid() || (out.Kind() == reflect.Interface && out.IsNil()) || !out.CanInterface() {
			return nil
		}
		return []any{out.Interface()}
	}
	switch u := v.(type) {
	case interface{ Unwrap() error }:
		if inner := u.Unwrap(); inner != nil {
			return []any{inner}
		}
	case interface{ Unwrap() []error }:
		var out []any
		for _, inner := range u.Unwrap() {
			out = append(out, inner)
		}
		return out
	}
	return nil
}

// declaredName finds the declared type whose runtime representation is the
// type of v. The most recent declaration wins when two types share a layout.
func (e *YaegiEvaluator) declaredName(v any) (string, bool) {
	t := reflect.TypeOf(v)
	if t == nil || e.interp == nil {
		return "", false
	}
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct || base.Name() != "" {
		return "", false
	}
	if name, ok := e.typeNames[base]; ok {
		return name, name != ""
	}

	name := ""
	for i := len(e.declared) - 1; i >= 0; i-- {
		ptr, err := e.interp.Eval(fmt.Sprintf("new(%s)", e.declared[i]))
		if err != nil || !ptr.IsValid() || ptr.Kind() != reflect.Pointer {
			continue
		}
		if ptr.Type().Elem() == base {
			name = e.declared[i]
			break
		}
	}
	e.typeNames[base] = name
	return name, name != ""
}

// callMethod calls a no-argument method of a declared type on v through a
// function literal evaluated in the interpreter. ok is false when the type
// has no such method or the call panics.
func (e *YaegiEvaluator) callMethod(typeName, method string, v any) (out reflect.Value, ok bool) {
	rv := reflect.ValueOf(v)
	param := typeName
	if rv.Kind() == reflect.Pointer {
		param = "*" + typeName
	}
	result := "string"
	if method == "Unwrap" {
		result = "error"
	}

	key := methodKey{typ: rv.Type(), method: method}
	fn, cached := e.methods[key]
	if !cached {
		got, err := e.interp.Eval(fmt.Sprintf("func(v %s) %s { return v.%s() }", param, result, method))
		if err == nil && got.IsValid() && got.Kind() == reflect.Func {
			fn = got
		}
		e.methods[key] = fn
	}
	if !fn.IsValid() || fn.Type().NumIn() != 1 || fn.Type().NumOut() != 1 || !rv.Type().AssignableTo(fn.Type().In(0)) {
		return reflect.Value{}, false
	}

	defer func() {
		if recover() != nil {
			out, ok = reflect.Value{}, false
		}
	}()
	return fn.Call([]reflect.Value{rv})[0], true
}

type methodKey struct {
	typ    reflect.Type
	method string
}

// interfaceWrapped returns the interpreted value held by one of yaegi's
// interface wrappers. Generated wrappers carry it in an IValue field; values
// stored in empty interfaces travel as an unexported node/value pair.
func interfaceWrapped(v any) (any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Struct || rv.NumField() == 0 {
		return nil, false
	}
	t := rv.Type()
	switch {
	case t.Field(0).Name == "IValue":
		inner := rv.Field(0)
		if !inner.CanInterface() {
			return nil, false
		}
		return inner.Interface(), true
	case t.Name() == "valueInterface" && t.NumField() == 2 && t.Field(1).Type == reflect.TypeOf(reflect.Value{}):
		c := reflect.New(t).Elem()
		c.Set(rv)
		f := c.Field(1)
		inner := *(*reflect.Value)(unsafe.Pointer(f.UnsafeAddr()))
		if !inner.IsValid() || !inner.CanInterface() {
			return nil, false
		}
		return inner.Interface(), true
	}
	return nil, false
}

// declaredTypes lists the package-level type names declared by src.
func declaredTypes(src string) []string {
	fset := token.NewFileSet()
	var decls []ast.Decl
	if f, err := parser.ParseFile(fset, "", "package p\n"+src, 0); err == nil {
		decls = f.Decls
	} else if f, err := parser.ParseFile(fset, "", "package p\nfunc _() {\n"+src+"\n}", 0); err == nil {
		for _, stmt := range f.Decls[0].(*ast.FuncDecl).Body.List {
			if ds, ok := stmt.(*ast.DeclStmt); ok {
				decls = append(decls, ds.Decl)
			}
		}
	}

	var names []string
	for _, d := range decls {
		g, ok := d.(*ast.GenDecl)
		if !ok || g.Tok != token.TYPE {
			continue
		}
		for _, spec := range g.Specs {
			names = append(names, spec.(*ast.TypeSpec).Name.Name)
		}
	}
	return names
}

// shortTypeName returns the type name without pointer or package prefix.
func shortTypeName(v any) string {
	name := strings.TrimLeft(fmt.Sprintf("%T", v), "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
