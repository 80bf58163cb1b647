package webview

import (
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/flutterbridge/hostbridge"
	"github.com/flutterbridge/hostbridge/bridgetest"
	"github.com/flutterbridge/hostbridge/codec"
	"github.com/flutterbridge/hostbridge/config"
	"github.com/flutterbridge/hostbridge/engine"
)

type LoadError struct{ URL string }

func (e *LoadError) Error() string { return "cannot load " + e.URL }

type fakeView struct {
	mu        sync.Mutex
	url       string
	headers   map[string]string
	client    Client
	destroyed bool
}

func (v *fakeView) LoadURL(url string, headers map[string]string) error {
	if strings.HasPrefix(url, "bad:") {
		return errors.WithStack(&LoadError{URL: url})
	}
	v.mu.Lock()
	v.url, v.headers = url, headers
	c := v.client
	v.mu.Unlock()
	if c != nil {
		// page events arrive on an SDK goroutine
		go func() {
			c.OnPageStarted(url)
			if strings.Contains(url, "404") {
				c.OnReceivedError(-2, "not found", url)
				return
			}
			c.OnPageFinished(url)
		}()
	}
	return nil
}

func (v *fakeView) URL() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.url
}

func (v *fakeView) SetClient(c Client) {
	v.mu.Lock()
	v.client = c
	v.mu.Unlock()
}

func (v *fakeView) Destroy() {
	v.mu.Lock()
	v.destroyed = true
	v.mu.Unlock()
}

type fakePlatform struct {
	mu    sync.Mutex
	views []*fakeView
}

func (p *fakePlatform) NewWebView() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := &fakeView{}
	p.views = append(p.views, v)
	return v
}

const prefix = "dev.flutter.pigeon."

func setup(t *testing.T) (*fakePlatform, *bridgetest.UI) {
	t.Helper()
	pipe := bridgetest.NewPipe(t)
	cfg, err := config.Parse(strings.NewReader("instance:\n  sweep-interval: 0s\n"))
	require.NoError(t, err)
	e := engine.New(pipe.Host, cfg, log.NewStdLogger(io.Discard))
	platform := &fakePlatform{}
	require.NoError(t, e.Add(New(platform)))
	_, err = e.Attach()
	require.NoError(t, err)
	t.Cleanup(func() { e.Detach() })
	return platform, pipe.UI
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var e *hostbridge.Error
	require.True(t, errors.As(err, &e), "got %v", err)
	require.Equal(t, code, e.Code)
}

func TestLoadAndEvents(t *testing.T) {
	platform, ui := setup(t)
	for _, m := range []string{"onPageStarted", "onPageFinished", "onReceivedError"} {
		ui.Handle(prefix+"WebViewClientFlutterApi."+m, nil)
	}

	viewId, clientId := ui.MustIdentifier(t), ui.MustIdentifier(t)
	_, err := ui.Call(prefix+"WebViewHostApi.create", viewId)
	require.NoError(t, err)
	_, err = ui.Call(prefix+"WebViewClientHostApi.create", clientId)
	require.NoError(t, err)
	_, err = ui.Call(prefix+"WebViewHostApi.setWebViewClient", viewId, clientId)
	require.NoError(t, err)

	_, err = ui.Call(prefix+"WebViewHostApi.loadUrl", viewId, "https://a.example", map[string]string{"X-Token": "t"})
	require.NoError(t, err)
	url, err := ui.Call(prefix+"WebViewHostApi.getUrl", viewId)
	require.NoError(t, err)
	require.Equal(t, "https://a.example", url)
	require.Equal(t, map[string]string{"X-Token": "t"}, platform.views[0].headers)

	started, err := ui.WaitReceived(prefix+"WebViewClientFlutterApi.onPageStarted", 1)
	require.NoError(t, err)
	if diff := cmp.Diff([]any{int32(clientId), int32(viewId), "https://a.example"}, started[0].Args); diff != "" {
		t.Errorf("onPageStarted mismatch (-want +got):\n%s", diff)
	}
	_, err = ui.WaitReceived(prefix+"WebViewClientFlutterApi.onPageFinished", 1)
	require.NoError(t, err)

	_, err = ui.Call(prefix+"WebViewHostApi.loadUrl", viewId, "https://a.example/404", nil)
	require.NoError(t, err)
	failed, err := ui.WaitReceived(prefix+"WebViewClientFlutterApi.onReceivedError", 1)
	require.NoError(t, err)
	code, _ := codec.AsInteger[int64](failed[0].Args[2])
	require.Equal(t, int64(-2), code)
	require.Equal(t, "https://a.example/404", failed[0].Args[4])
}

func TestEventsOfDisposedViewAreDropped(t *testing.T) {
	platform, ui := setup(t)
	started := prefix + "WebViewClientFlutterApi.onPageStarted"
	ui.Handle(started, nil)

	clientId := ui.MustIdentifier(t)
	_, err := ui.Call(prefix+"WebViewClientHostApi.create", clientId)
	require.NoError(t, err)
	var views []int64
	for range 2 {
		id := ui.MustIdentifier(t)
		_, err = ui.Call(prefix+"WebViewHostApi.create", id)
		require.NoError(t, err)
		_, err = ui.Call(prefix+"WebViewHostApi.setWebViewClient", id, clientId)
		require.NoError(t, err)
		views = append(views, id)
	}
	_, err = ui.Call(prefix+"WebViewHostApi.dispose", views[0])
	require.NoError(t, err)

	platform.mu.Lock()
	disposed, live := platform.views[0], platform.views[1]
	platform.mu.Unlock()
	disposed.client.OnPageStarted("https://gone.example")
	live.client.OnPageStarted("https://live.example")

	// events are delivered in order, so the dropped one would have come first
	calls, err := ui.WaitReceived(started, 1)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	if diff := cmp.Diff([]any{int32(clientId), int32(views[1]), "https://live.example"}, calls[0].Args); diff != "" {
		t.Errorf("onPageStarted mismatch (-want +got):\n%s", diff)
	}

	_, err = ui.Call(prefix+"WebViewHostApi.getUrl", views[0])
	requireCode(t, err, hostbridge.CodeNotFound)
}

func TestErrors(t *testing.T) {
	platform, ui := setup(t)

	_, err := ui.Call(prefix+"WebViewHostApi.getUrl", 42)
	requireCode(t, err, hostbridge.CodeNotFound)
	_, err = ui.Call(prefix+"WebViewHostApi.loadUrl", 42, "https://a.example", nil)
	requireCode(t, err, hostbridge.CodeNotFound)
	require.Empty(t, platform.views)

	_, err = ui.Call(prefix+"WebViewHostApi.create", 1)
	require.NoError(t, err)
	_, err = ui.Call(prefix+"WebViewHostApi.create", 1)
	requireCode(t, err, hostbridge.CodeInvalidArgument)

	_, err = ui.Call(prefix+"WebViewHostApi.loadUrl", 1, "bad:url", nil)
	requireCode(t, err, "LoadError")

	_, err = ui.Call(prefix+"WebViewHostApi.setWebViewClient", 1, 2)
	requireCode(t, err, hostbridge.CodeNotFound)

	_, err = ui.Call(prefix+"WebViewHostApi.dispose", 1)
	require.NoError(t, err)
	require.True(t, platform.views[0].destroyed)
	_, err = ui.Call(prefix+"WebViewHostApi.getUrl", 1)
	requireCode(t, err, hostbridge.CodeNotFound)
}
