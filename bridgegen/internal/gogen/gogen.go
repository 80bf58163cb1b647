// Package gogen emits the Go glue binding collected APIs to a registrar.
package gogen

import (
	"io"

	. "github.com/dave/jennifer/jen"

	"github.com/flutterbridge/hostbridge/bridgegen/internal/collect"
)

const DefaultBridgeImport = "github.com/flutterbridge/hostbridge"

type Generator struct {
	PkgPath string
	PkgName string
	// Bridge is the import path of the hostbridge package.
	Bridge string
}

func (g *Generator) registrar() *Statement {
	return Op("*").Qual(g.Bridge, "Registrar")
}

func channelName(recv *Statement, api, method string) *Statement {
	return recv.Dot("ChannelName").Call(Lit(api), Lit(method))
}

// Render writes the glue for apis to w.
func (g *Generator) Render(w io.Writer, apis []collect.API) error {
	f := NewFilePathName(g.PkgPath, g.PkgName)
	f.HeaderComment("Code generated by bridgegen. DO NOT EDIT.")
	for _, api := range apis {
		switch api.Kind {
		case collect.HostAPI:
			g.hostAPI(f, api)
		case collect.FlutterAPI:
			g.flutterAPI(f, api)
		}
	}
	return f.Render(w)
}

func (g *Generator) hostAPI(f *File, api collect.API) {
	f.Commentf("Setup%s serves the %s channels with api.", api.GoName, api.Channel)
	f.Func().Id("Setup"+api.GoName).
		Params(Id("r").Add(g.registrar()), Id("api").Id(api.GoName)).
		BlockFunc(func(body *Group) {
			for _, m := range api.Methods {
				body.Id("r").Dot("Handle").Call(
					channelName(Id("r"), api.Channel, m.Channel),
					Func().
						Params(Id("call").Op("*").Qual(g.Bridge, "Call")).
						Params(Any(), Error()).
						BlockFunc(func(h *Group) { g.handler(h, m) }),
				)
			}
		})
}

func (g *Generator) handler(h *Group, m collect.Method) {
	var args []Code
	for i, p := range m.Params {
		h.List(Id(p.Name), Err()).Op(":=").Id("call").Dot(p.Type.Accessor()).Call(Lit(i))
		h.If(Err().Op("!=").Nil()).Block(Return(Nil(), Err()))
		args = append(args, Id(p.Name))
	}
	invoke := Id("api").Dot(m.GoName).Call(args...)
	if m.Result != nil {
		h.Return(invoke)
	} else {
		h.Return(Nil(), invoke)
	}
}

var goTypes = map[collect.Type]func() *Statement{
	collect.Int64:   Int64,
	collect.Bool:    Bool,
	collect.String:  String,
	collect.Float64: Float64,
	collect.Bytes:   func() *Statement { return Index().Byte() },
	collect.List:    func() *Statement { return Index().Any() },
	collect.Map:     func() *Statement { return Map(Any()).Any() },
}

func (g *Generator) flutterAPI(f *File, api collect.API) {
	client := api.GoName + "Client"

	f.Commentf("%s calls the %s channels on the UI side.", client, api.Channel)
	f.Type().Id(client).Struct(Id("r").Add(g.registrar()))

	f.Func().Id("New"+client).
		Params(Id("r").Add(g.registrar())).
		Op("*").Id(client).
		Block(Return(Op("&").Id(client).Values(Dict{Id("r"): Id("r")})))

	for _, m := range api.Methods {
		var (
			params []Code
			args   []Code
		)
		for _, p := range m.Params {
			params = append(params, Id(p.Name).Add(goTypes[p.Type]()))
			args = append(args, Id(p.Name))
		}
		params = append(params, Id("onReply").Func().Params(Error()))

		f.Func().Params(Id("c").Op("*").Id(client)).Id(m.GoName).
			Params(params...).
			Error().
			Block(Return(Id("c").Dot("r").Dot("Emit").Call(
				channelName(Id("c").Dot("r"), api.Channel, m.Channel),
				Index().Any().Values(args...),
				Func().Params(Id("_").Any(), Err().Error()).Block(
					If(Id("onReply").Op("!=").Nil()).Block(Id("onReply").Call(Err())),
				),
			)))
	}
}
