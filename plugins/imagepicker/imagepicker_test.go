package imagepicker

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/flutterbridge/hostbridge"
	"github.com/flutterbridge/hostbridge/bridgetest"
	"github.com/flutterbridge/hostbridge/config"
	"github.com/flutterbridge/hostbridge/engine"
	"github.com/flutterbridge/hostbridge/lifecycle"
)

const pickImage = "dev.flutter.pigeon.ImagePickerApi.pickImage"

type launch struct {
	id       string
	source   int64
	maxWidth float64
}

type fakePicker struct {
	launches chan launch
	fail     error
}

func (p *fakePicker) Launch(id string, source int64, maxWidth float64) error {
	if p.fail != nil {
		return p.fail
	}
	p.launches <- launch{id, source, maxWidth}
	return nil
}

type fixture struct {
	picker *fakePicker
	plugin *Plugin
	engine *engine.Engine
	ui     *bridgetest.UI
}

func setup(t *testing.T, timeout string) *fixture {
	t.Helper()
	pipe := bridgetest.NewPipe(t)
	cfg, err := config.Parse(strings.NewReader("image-picker:\n  timeout: " + timeout + "\n"))
	require.NoError(t, err)
	f := &fixture{picker: &fakePicker{launches: make(chan launch, 4)}, ui: pipe.UI}
	f.plugin = New(f.picker)
	f.engine = engine.New(pipe.Host, cfg, log.NewStdLogger(io.Discard))
	require.NoError(t, f.engine.Add(f.plugin))
	_, err = f.engine.Attach()
	require.NoError(t, err)
	t.Cleanup(func() { f.engine.Detach() })
	return f
}

type outcome struct {
	v   any
	err error
}

func (f *fixture) pick(args ...any) <-chan outcome {
	out := make(chan outcome, 1)
	go func() {
		v, err := f.ui.Call(pickImage, args...)
		out <- outcome{v, err}
	}()
	return out
}

func (f *fixture) launched(t *testing.T) launch {
	t.Helper()
	select {
	case l := <-f.picker.launches:
		return l
	case <-time.After(bridgetest.Timeout):
		t.Fatal("picker never launched")
	}
	return launch{}
}

func wait(t *testing.T, c <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-c:
		return o
	case <-time.After(bridgetest.Timeout):
		t.Fatal("no reply")
	}
	return outcome{}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var e *hostbridge.Error
	require.True(t, errors.As(err, &e), "got %v", err)
	require.Equal(t, code, e.Code)
}

func TestPick(t *testing.T) {
	f := setup(t, "1m")

	first := f.pick(SourceGallery, 300.0)
	l := f.launched(t)
	require.Equal(t, SourceGallery, l.source)
	require.Equal(t, 300.0, l.maxWidth)

	_, err := f.ui.Call(pickImage, SourceCamera, nil)
	requireCode(t, err, hostbridge.CodeAlreadyActive)

	f.plugin.Deliver("stale", "/tmp/other.jpg", nil)
	f.plugin.Deliver(l.id, "/tmp/a.jpg", nil)
	o := wait(t, first)
	require.NoError(t, o.err)
	require.Equal(t, "/tmp/a.jpg", o.v)

	// a repeated delivery finds nothing pending
	f.plugin.Deliver(l.id, "/tmp/b.jpg", nil)

	second := f.pick(SourceCamera, nil)
	l = f.launched(t)
	f.plugin.Deliver(l.id, "", nil)
	o = wait(t, second)
	require.NoError(t, o.err)
	require.Nil(t, o.v)
}

func TestTimeout(t *testing.T) {
	f := setup(t, "50ms")

	o := wait(t, f.pick(SourceCamera, nil))
	requireCode(t, o.err, "TimeoutError")
	l := f.launched(t)

	// the late answer is dropped and the picker is free again
	f.plugin.Deliver(l.id, "/tmp/late.jpg", nil)
	next := f.pick(SourceCamera, nil)
	l = f.launched(t)
	f.plugin.Deliver(l.id, "/tmp/c.jpg", nil)
	o = wait(t, next)
	require.NoError(t, o.err)
	require.Equal(t, "/tmp/c.jpg", o.v)
}

type CameraError struct{}

func (CameraError) Error() string { return "camera unavailable" }

func TestFailures(t *testing.T) {
	f := setup(t, "1m")

	_, err := f.ui.Call(pickImage, int64(7), nil)
	requireCode(t, err, "ArgumentError")

	f.picker.fail = errors.WithStack(CameraError{})
	_, err = f.ui.Call(pickImage, SourceCamera, nil)
	requireCode(t, err, "CameraError")
	require.False(t, f.plugin.active.Active())
}

func TestDestroyedWhilePicking(t *testing.T) {
	f := setup(t, "1m")
	lc := f.engine.Current().Lifecycle
	require.NoError(t, lc.MoveTo(lifecycle.Resumed))

	pending := f.pick(SourceGallery, nil)
	f.launched(t)
	require.NoError(t, lc.MoveTo(lifecycle.Destroyed))

	o := wait(t, pending)
	requireCode(t, o.err, hostbridge.CodeUnavailable)
}
