package collect

import (
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func check(t *testing.T, src string) ([]API, error) {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "api.go", src, parser.ParseComments)
	require.NoError(t, err)
	pkg, err := (&types.Config{}).Check("example.com/webview", fset, []*ast.File{f}, nil)
	require.NoError(t, err)
	return Collect(fset, pkg, []*ast.File{f})
}

func ptr(t Type) *Type { return &t }

func TestCollect(t *testing.T) {
	apis, err := check(t, `package webview

//bridge:hostapi WebViewHostApi
type HostAPI interface {
	Create(instanceId int64) error
	LoadUrl(instanceId int64, url string, headers map[any]any) error
	GetUrl(instanceId int64) (string, error)
}

// Not annotated.
type Other interface {
	Skip(x chan int) error
}

type (
	// ClientFlutterAPI reports page events.
	//
	//bridge:flutterapi WebViewClientFlutterApi
	ClientFlutterAPI interface {
		OnPageStarted(instanceId int64, url string) error
	}
)
`)
	require.NoError(t, err)

	want := []API{
		{
			Kind:    HostAPI,
			GoName:  "HostAPI",
			Channel: "WebViewHostApi",
			Methods: []Method{
				{GoName: "Create", Channel: "create", Params: []Param{{"instanceId", Int64}}},
				{GoName: "GetUrl", Channel: "getUrl", Params: []Param{{"instanceId", Int64}}, Result: ptr(String)},
				{GoName: "LoadUrl", Channel: "loadUrl", Params: []Param{{"instanceId", Int64}, {"url", String}, {"headers", Map}}},
			},
		},
		{
			Kind:    FlutterAPI,
			GoName:  "ClientFlutterAPI",
			Channel: "WebViewClientFlutterApi",
			Methods: []Method{
				{GoName: "OnPageStarted", Channel: "onPageStarted", Params: []Param{{"instanceId", Int64}, {"url", String}}},
			},
		},
	}
	if diff := cmp.Diff(want, apis); diff != "" {
		t.Errorf("collected APIs mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectRejects(t *testing.T) {
	cases := map[string]string{
		"unsupported param": `package p
//bridge:hostapi A
type A interface{ M(x chan int) error }`,
		"missing error": `package p
//bridge:hostapi A
type A interface{ M(x int64) string }`,
		"reserved name": `package p
//bridge:hostapi A
type A interface{ M(call int64) error }`,
		"flutter result": `package p
//bridge:flutterapi A
type A interface{ M(x int64) (string, error) }`,
		"not interface": `package p
//bridge:hostapi A
type A struct{}`,
		"missing name": `package p
//bridge:hostapi
type A interface{ M() error }`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := check(t, src)
			var e *Error
			require.ErrorAs(t, err, &e)
			require.Equal(t, "api.go", e.Pos.Filename)
		})
	}
}

func TestClassify(t *testing.T) {
	apis, err := check(t, `package p
//bridge:hostapi A
type A interface {
	M(a int64, b bool, c string, d float64, e []byte, f []any, g map[any]any) ([]byte, error)
}`)
	require.NoError(t, err)
	var got []Type
	for _, p := range apis[0].Methods[0].Params {
		got = append(got, p.Type)
	}
	require.Equal(t, []Type{Int64, Bool, String, Float64, Bytes, List, Map}, got)
	require.Equal(t, Bytes, *apis[0].Methods[0].Result)
	require.Equal(t, "Float64", Float64.Accessor())
}
