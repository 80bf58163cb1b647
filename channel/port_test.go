package channel

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"

	"github.com/flutterbridge/hostbridge/looper"
)

func newTestPipe(t *testing.T) (host, ui *Port) {
	t.Helper()
	hl, ul := looper.New("host"), looper.New("ui")
	t.Cleanup(func() {
		hl.Quit()
		ul.Quit()
	})
	return NewPipe(hl, ul)
}

func TestSendAndReply(t *testing.T) {
	host, ui := newTestPipe(t)

	ui.SetHandler("echo", func(msg []byte, reply Reply) {
		require.True(t, ui.Looper().IsCurrent())
		reply(append([]byte("re:"), msg...))
	})

	got := make(chan string, 1)
	require.NoError(t, host.Looper().Run(func() {
		require.NoError(t, host.Send("echo", []byte("hi"), func(reply []byte) {
			require.True(t, host.Looper().IsCurrent(), "reply delivered on the sender's looper")
			got <- string(reply)
		}))
	}))
	select {
	case s := <-got:
		require.Equal(t, "re:hi", s)
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
	require.Eventually(t, func() bool { return host.Pending() == 0 }, time.Second, time.Millisecond)
}

func TestSendOffLooperIsRejected(t *testing.T) {
	host, _ := newTestPipe(t)
	err := host.Send("x", nil, nil)
	require.ErrorIs(t, err, ErrWrongThread)
}

func TestUnhandledChannelRepliesNil(t *testing.T) {
	host, _ := newTestPipe(t)

	got := make(chan []byte, 1)
	require.NoError(t, host.Looper().Run(func() {
		require.NoError(t, host.Send("nobody", []byte{1}, func(reply []byte) { got <- reply }))
	}))
	select {
	case reply := <-got:
		require.Nil(t, reply)
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
}

func TestDeliveryIsFIFOPerChannel(t *testing.T) {
	host, ui := newTestPipe(t)

	const n = 200
	done := make(chan struct{})
	var got []byte
	ui.SetHandler("seq", func(msg []byte, reply Reply) {
		got = append(got, msg[0])
		reply(nil)
		if len(got) == n {
			close(done)
		}
	})
	require.NoError(t, host.Looper().Run(func() {
		for i := 0; i < n; i++ {
			require.NoError(t, host.Send("seq", []byte{byte(i)}, nil))
		}
	}))
	<-done
	for i := range got {
		require.Equal(t, byte(i), got[i])
	}
}

func TestClosedPort(t *testing.T) {
	host, ui := newTestPipe(t)
	ui.SetHandler("x", func(msg []byte, reply Reply) { reply(msg) })

	ui.Close()
	require.True(t, ui.IsClosed())
	require.NoError(t, host.Looper().Run(func() {
		require.ErrorIs(t, host.Send("x", nil, nil), ErrClosed)
	}))
}

func TestRemoveHandler(t *testing.T) {
	_, ui := newTestPipe(t)
	ui.SetHandler("x", func([]byte, Reply) {})
	require.True(t, ui.HasHandler("x"))
	ui.SetHandler("x", nil)
	require.False(t, ui.HasHandler("x"))
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

func TestReplyToStoppedSenderIsLogged(t *testing.T) {
	host, ui := newTestPipe(t)
	var out syncBuffer
	ui.SetLogger(log.NewStdLogger(&out))

	held := make(chan Reply, 1)
	ui.SetHandler("slow", func(_ []byte, reply Reply) { held <- reply })
	require.NoError(t, host.Looper().Run(func() {
		require.NoError(t, host.Send("slow", nil, func([]byte) { t.Error("reply after sender stopped") }))
	}))
	var reply Reply
	select {
	case reply = <-held:
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
	require.Equal(t, 1, host.Pending())

	host.Looper().Quit()
	require.NoError(t, ui.Looper().Run(func() { reply([]byte("late")) }))
	require.Zero(t, host.Pending())
	require.Contains(t, out.String(), `reply on "slow" to Port[host, looper=host] dropped`)
}
