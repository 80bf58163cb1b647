// Package webview exposes platform web views to the UI side.
package webview

import (
	"github.com/go-kratos/kratos/v2/log"

	"github.com/flutterbridge/hostbridge"
	"github.com/flutterbridge/hostbridge/engine"
	"github.com/flutterbridge/hostbridge/instance"
)

// Platform creates native web views.
type Platform interface {
	NewWebView() View
}

// View is a native web view. Its methods are called on the platform
// looper; it may call its Client from any goroutine.
type View interface {
	LoadURL(url string, headers map[string]string) error
	URL() string
	SetClient(c Client)
	Destroy()
}

// Client receives the page events of one view.
type Client interface {
	OnPageStarted(url string)
	OnPageFinished(url string)
	OnReceivedError(code int64, description, failingURL string)
}

type webView struct {
	View
}

type webViewClient struct {
	_ byte
}

type Plugin struct {
	platform Platform
	r        *hostbridge.Registrar
	flutter  *ClientFlutterAPIClient
	log      *log.Helper
}

var _ engine.Plugin = (*Plugin)(nil)

func New(platform Platform) *Plugin {
	return &Plugin{platform: platform}
}

func (p *Plugin) Name() string { return "webview" }

func (p *Plugin) Attach(a *engine.Attachment) error {
	p.r = a.Registrar
	p.flutter = NewClientFlutterAPIClient(a.Registrar)
	p.log = log.NewHelper(log.With(a.Logger, "module", "webview"))
	SetupHostAPI(a.Registrar, hostAPI{p})
	SetupClientHostAPI(a.Registrar, clientHostAPI{p})
	return nil
}

// Detach leaves the views to the instance manager, which the engine closes.
func (p *Plugin) Detach() {}

type hostAPI struct{ p *Plugin }

func (h hostAPI) Create(instanceId int64) error {
	return hostbridge.AdoptIdentifier(h.p.r, instanceId, &webView{View: h.p.platform.NewWebView()})
}

func (h hostAPI) LoadUrl(instanceId int64, url string, headers map[any]any) error {
	v, err := hostbridge.Lookup[webView](h.p.r, instanceId)
	if err != nil {
		return err
	}
	hs := make(map[string]string, len(headers))
	for k, val := range headers {
		ks, ok1 := k.(string)
		vs, ok2 := val.(string)
		if !ok1 || !ok2 {
			return &hostbridge.ArgumentError{Channel: "loadUrl", Index: 2, Want: "map of strings", Got: headers}
		}
		hs[ks] = vs
	}
	return v.LoadURL(url, hs)
}

func (h hostAPI) GetUrl(instanceId int64) (string, error) {
	v, err := hostbridge.Lookup[webView](h.p.r, instanceId)
	if err != nil {
		return "", err
	}
	return v.URL(), nil
}

func (h hostAPI) SetWebViewClient(instanceId int64, clientInstanceId int64) error {
	v, err := hostbridge.Lookup[webView](h.p.r, instanceId)
	if err != nil {
		return err
	}
	c, err := hostbridge.Lookup[webViewClient](h.p.r, clientInstanceId)
	if err != nil {
		return err
	}
	v.SetClient(&clientAdapter{p: h.p, view: v, client: c})
	return nil
}

func (h hostAPI) Dispose(instanceId int64) error {
	v, err := hostbridge.Lookup[webView](h.p.r, instanceId)
	if err != nil {
		return err
	}
	v.Destroy()
	h.p.r.Instances().Remove(instanceId)
	return nil
}

type clientHostAPI struct{ p *Plugin }

func (h clientHostAPI) Create(instanceId int64) error {
	return hostbridge.AdoptIdentifier(h.p.r, instanceId, &webViewClient{})
}

// clientAdapter forwards the events of one view to the UI side. The SDK may
// call it from any goroutine.
type clientAdapter struct {
	p      *Plugin
	view   *webView
	client *webViewClient
}

// ids returns the identifiers the UI side knows the pair by. A view that
// was disposed has none, and its late events are dropped.
func (a *clientAdapter) ids() (client, view int64, ok bool) {
	view, ok = instance.IdentifierForStrongReference(a.p.r.Instances(), a.view)
	if !ok {
		a.p.log.Debugf("page event of a disposed view dropped")
		return 0, 0, false
	}
	client, err := hostbridge.FlutterIdentifier(a.p.r, a.client)
	if err != nil {
		a.p.log.Warnf("page event dropped: %v", err)
		return 0, 0, false
	}
	return client, view, true
}

func (a *clientAdapter) report(err error) {
	if err != nil {
		a.p.log.Warnf("page event: %v", err)
	}
}

func (a *clientAdapter) OnPageStarted(url string) {
	if client, view, ok := a.ids(); ok {
		a.report(a.p.flutter.OnPageStarted(client, view, url, a.report))
	}
}

func (a *clientAdapter) OnPageFinished(url string) {
	if client, view, ok := a.ids(); ok {
		a.report(a.p.flutter.OnPageFinished(client, view, url, a.report))
	}
}

func (a *clientAdapter) OnReceivedError(code int64, description, failingURL string) {
	if client, view, ok := a.ids(); ok {
		a.report(a.p.flutter.OnReceivedError(client, view, code, description, failingURL, a.report))
	}
}
