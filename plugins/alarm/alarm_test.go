package alarm

import (
	"bytes"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/flutterbridge/hostbridge/bridgetest"
	"github.com/flutterbridge/hostbridge/codec"
	"github.com/flutterbridge/hostbridge/engine"
	"github.com/flutterbridge/hostbridge/lifecycle"
)

func setup(t *testing.T, logs io.Writer) (*Plugin, *engine.Engine, *bridgetest.UI) {
	t.Helper()
	pipe := bridgetest.NewPipe(t)
	e := engine.New(pipe.Host, nil, log.NewStdLogger(logs))
	p := New()
	require.NoError(t, e.Add(p))
	_, err := e.Attach()
	require.NoError(t, err)
	t.Cleanup(func() { e.Detach() })
	pipe.UI.HandleMethods(BackgroundChannel, nil)
	return p, e, pipe.UI
}

func schedule(t *testing.T, ui *bridgetest.UI, method string, id, ms, callback int64) {
	t.Helper()
	ok, err := ui.Invoke(Channel, method, []any{id, ms, callback})
	require.NoError(t, err)
	require.Equal(t, true, ok)
}

func TestOneShot(t *testing.T) {
	p, _, ui := setup(t, io.Discard)

	schedule(t, ui, "Alarm.oneShot", 1, 10, 100)
	calls, err := ui.WaitReceived(BackgroundChannel, 1)
	require.NoError(t, err)
	require.Equal(t, CallbackMethod, calls[0].Method)
	if diff := cmp.Diff([]any{int32(100), int32(1)}, calls[0].Args); diff != "" {
		t.Errorf("callback mismatch (-want +got):\n%s", diff)
	}
	require.Zero(t, p.Pending())

	ok, err := ui.Invoke(Channel, "Alarm.cancel", []any{int64(1)})
	require.NoError(t, err)
	require.Equal(t, false, ok)
}

func TestReplace(t *testing.T) {
	p, _, ui := setup(t, io.Discard)

	schedule(t, ui, "Alarm.oneShot", 3, time.Hour.Milliseconds(), 300)
	schedule(t, ui, "Alarm.oneShot", 3, 10, 301)
	require.Equal(t, 1, p.Pending())

	calls, err := ui.WaitReceived(BackgroundChannel, 1)
	require.NoError(t, err)
	require.Equal(t, int32(301), calls[0].Args[0])
	require.Zero(t, p.Pending())
}

func TestPeriodic(t *testing.T) {
	p, _, ui := setup(t, io.Discard)

	schedule(t, ui, "Alarm.periodic", 2, 10, 200)
	calls, err := ui.WaitReceived(BackgroundChannel, 3)
	require.NoError(t, err)
	for _, c := range calls {
		require.Equal(t, int32(200), c.Args[0])
	}
	require.Equal(t, 1, p.Pending())

	ok, err := ui.Invoke(Channel, "Alarm.cancel", []any{int64(2)})
	require.NoError(t, err)
	require.Equal(t, true, ok)
	require.Zero(t, p.Pending())

	// at most one tick can already be in flight
	time.Sleep(50 * time.Millisecond)
	n := len(ui.Received(BackgroundChannel))
	time.Sleep(50 * time.Millisecond)
	require.Len(t, ui.Received(BackgroundChannel), n)
}

func TestBadCalls(t *testing.T) {
	_, _, ui := setup(t, io.Discard)

	_, err := ui.Invoke(Channel, "Alarm.periodic", []any{int64(2), int64(0), int64(200)})
	var env *codec.ErrorEnvelope
	require.True(t, errors.As(err, &env), "got %v", err)
	require.Equal(t, "ArgumentError", env.Code)

	_, err = ui.Invoke(Channel, "Alarm.oneShot", []any{int64(2), int64(-1), int64(200)})
	require.True(t, errors.As(err, &env), "got %v", err)
	require.Equal(t, "ArgumentError", env.Code)

	_, err = ui.Invoke(Channel, "Alarm.snooze", nil)
	require.ErrorIs(t, err, codec.ErrNotImplemented)
}

func TestDroppedOnDestroy(t *testing.T) {
	p, e, ui := setup(t, io.Discard)
	lc := e.Current().Lifecycle
	require.NoError(t, lc.MoveTo(lifecycle.Resumed))

	schedule(t, ui, "Alarm.oneShot", 1, time.Hour.Milliseconds(), 100)
	schedule(t, ui, "Alarm.periodic", 2, time.Hour.Milliseconds(), 200)
	require.Equal(t, 2, p.Pending())

	require.NoError(t, lc.MoveTo(lifecycle.Destroyed))
	require.Eventually(t, func() bool { return p.Pending() == 0 }, bridgetest.Timeout, 10*time.Millisecond)
}

func TestDroppedOnDetach(t *testing.T) {
	p, e, ui := setup(t, io.Discard)

	schedule(t, ui, "Alarm.oneShot", 1, time.Hour.Milliseconds(), 100)
	require.NoError(t, e.Detach())
	require.Zero(t, p.Pending())

	_, err := ui.Invoke(Channel, "Alarm.cancel", []any{int64(1)})
	require.ErrorIs(t, err, codec.ErrNotImplemented)
}

func TestDurationOverflow(t *testing.T) {
	p, _, ui := setup(t, io.Discard)

	tooLong := math.MaxInt64/int64(time.Millisecond) + 1
	for _, method := range []string{"Alarm.oneShot", "Alarm.periodic"} {
		_, err := ui.Invoke(Channel, method, []any{int64(4), tooLong, int64(400)})
		var env *codec.ErrorEnvelope
		require.True(t, errors.As(err, &env), "%s: got %v", method, err)
		require.Equal(t, "ArgumentError", env.Code)
	}
	require.Zero(t, p.Pending())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStoppedLooperIsLogged(t *testing.T) {
	var out syncBuffer
	p, e, ui := setup(t, &out)

	schedule(t, ui, "Alarm.oneShot", 1, time.Hour.Milliseconds(), 100)
	e.Current().Registrar.Looper().Quit()

	require.Zero(t, p.Pending())
	require.NoError(t, e.Detach())
	require.Contains(t, out.String(), "count alarms")
	require.Contains(t, out.String(), "drop alarms on detach")
}
