// Package collect finds the interfaces annotated for bridge generation.
//
// An interface is a Host API when its doc comment carries
//
//	//bridge:hostapi <ApiName>
//
// and a Flutter API with //bridge:flutterapi <ApiName>. The API name is the
// middle part of every channel name, "<prefix>.<ApiName>.<method>".
package collect

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"strings"
	"unicode"
)

type Kind int

const (
	HostAPI Kind = iota
	FlutterAPI
)

const (
	hostDirective    = "//bridge:hostapi"
	flutterDirective = "//bridge:flutterapi"
)

// Type is a parameter or result type the bridge knows how to carry.
type Type int

const (
	Int64 Type = iota
	Bool
	String
	Float64
	Bytes
	List
	Map
)

// Accessor is the hostbridge.Call method reading an argument of type t.
func (t Type) Accessor() string {
	return [...]string{"Int64", "Bool", "String", "Float64", "Bytes", "List", "Map"}[t]
}

type Param struct {
	Name string
	Type Type
}

type Method struct {
	GoName  string
	Channel string
	Params  []Param
	// Result is nil for methods returning only an error.
	Result *Type
}

type API struct {
	Kind    Kind
	GoName  string
	Channel string
	Methods []Method
}

type Error struct {
	Pos token.Position
	Msg string
}

func (e *Error) Error() string { return e.Pos.String() + ": " + e.Msg }

var reserved = map[string]bool{"r": true, "c": true, "api": true, "call": true, "err": true, "onReply": true}

// Collect returns the annotated interfaces of pkg in source order.
func Collect(fset *token.FileSet, pkg *types.Package, files []*ast.File) ([]API, error) {
	var apis []API
	for _, file := range files {
		for _, decl := range file.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts := spec.(*ast.TypeSpec)
				doc := ts.Doc
				if doc == nil && len(gd.Specs) == 1 {
					doc = gd.Doc
				}
				kind, name, ok := directive(doc)
				if !ok {
					continue
				}
				api, err := collectAPI(fset, pkg, ts, kind, name)
				if err != nil {
					return nil, err
				}
				apis = append(apis, api)
			}
		}
	}
	return apis, nil
}

func directive(doc *ast.CommentGroup) (Kind, string, bool) {
	if doc == nil {
		return 0, "", false
	}
	for _, c := range doc.List {
		for _, d := range []struct {
			prefix string
			kind   Kind
		}{{hostDirective, HostAPI}, {flutterDirective, FlutterAPI}} {
			if rest, ok := strings.CutPrefix(c.Text, d.prefix); ok {
				return d.kind, strings.TrimSpace(rest), true
			}
		}
	}
	return 0, "", false
}

func collectAPI(fset *token.FileSet, pkg *types.Package, ts *ast.TypeSpec, kind Kind, name string) (API, error) {
	fail := func(pos token.Pos, format string, args ...any) (API, error) {
		return API{}, &Error{Pos: fset.Position(pos), Msg: fmt.Sprintf(format, args...)}
	}
	if name == "" {
		return fail(ts.Pos(), "%s: missing API name", ts.Name.Name)
	}
	obj := pkg.Scope().Lookup(ts.Name.Name)
	if obj == nil {
		return fail(ts.Pos(), "%s: not found in package scope", ts.Name.Name)
	}
	iface, ok := obj.Type().Underlying().(*types.Interface)
	if !ok {
		return fail(ts.Pos(), "%s: annotated type is not an interface", ts.Name.Name)
	}

	api := API{Kind: kind, GoName: ts.Name.Name, Channel: name}
	for i := 0; i < iface.NumMethods(); i++ {
		fn := iface.Method(i)
		sig := fn.Type().(*types.Signature)
		m := Method{GoName: fn.Name(), Channel: lowerFirst(fn.Name())}

		for j := 0; j < sig.Params().Len(); j++ {
			p := sig.Params().At(j)
			t, ok := classify(p.Type())
			if !ok {
				return fail(p.Pos(), "%s.%s: unsupported parameter type %s", api.GoName, fn.Name(), p.Type())
			}
			if p.Name() == "" || p.Name() == "_" || reserved[p.Name()] {
				return fail(p.Pos(), "%s.%s: parameter %d needs a name other than %q", api.GoName, fn.Name(), j, p.Name())
			}
			m.Params = append(m.Params, Param{Name: p.Name(), Type: t})
		}

		res := sig.Results()
		if res.Len() == 0 || !isError(res.At(res.Len()-1).Type()) {
			return fail(fn.Pos(), "%s.%s: last result must be error", api.GoName, fn.Name())
		}
		switch {
		case res.Len() == 2 && kind == HostAPI:
			t, ok := classify(res.At(0).Type())
			if !ok {
				return fail(fn.Pos(), "%s.%s: unsupported result type %s", api.GoName, fn.Name(), res.At(0).Type())
			}
			m.Result = &t
		case res.Len() > 1:
			return fail(fn.Pos(), "%s.%s: too many results", api.GoName, fn.Name())
		}
		api.Methods = append(api.Methods, m)
	}
	if len(api.Methods) == 0 {
		return fail(ts.Pos(), "%s: no methods", api.GoName)
	}
	return api, nil
}

func classify(t types.Type) (Type, bool) {
	switch u := types.Unalias(t).(type) {
	case *types.Basic:
		switch u.Kind() {
		case types.Int64:
			return Int64, true
		case types.Bool:
			return Bool, true
		case types.String:
			return String, true
		case types.Float64:
			return Float64, true
		}
	case *types.Slice:
		if b, ok := types.Unalias(u.Elem()).(*types.Basic); ok && b.Kind() == types.Byte {
			return Bytes, true
		}
		if isAny(u.Elem()) {
			return List, true
		}
	case *types.Map:
		if isAny(u.Key()) && isAny(u.Elem()) {
			return Map, true
		}
	}
	return 0, false
}

func isAny(t types.Type) bool {
	i, ok := types.Unalias(t).(*types.Interface)
	return ok && i.Empty()
}

func isError(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}

func lowerFirst(s string) string {
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
