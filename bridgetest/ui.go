// Package bridgetest simulates the UI side of a bridge for tests.
package bridgetest

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"github.com/flutterbridge/hostbridge"
	"github.com/flutterbridge/hostbridge/channel"
	"github.com/flutterbridge/hostbridge/codec"
	"github.com/flutterbridge/hostbridge/instance"
	"github.com/flutterbridge/hostbridge/looper"
)

var (
	Timeout = 5 * time.Second

	ErrTimeout   = errors.New("bridgetest: no reply in time")
	ErrExhausted = errors.New("bridgetest: UI identifier range exhausted")
)

// Pipe is a connected host port and simulated UI, each on its own looper.
type Pipe struct {
	HostLooper *looper.Looper
	Host       *channel.Port
	UI         *UI
}

// NewPipe connects a fresh pair of loopers. Both quit when tb ends.
func NewPipe(tb testing.TB) *Pipe {
	hl, ul := looper.New("platform"), looper.New("ui")
	host, ui := channel.NewPipe(hl, ul)
	tb.Cleanup(func() {
		host.Close()
		ui.Close()
		hl.Quit()
		ul.Quit()
	})
	return &Pipe{HostLooper: hl, Host: host, UI: NewUI(ui, codec.Standard)}
}

// Call is one Flutter API call received by the UI. Method is set for calls
// on a method channel.
type Call struct {
	Channel string
	Method  string
	Args    []any
}

type FlutterFunc func(args []any) (any, error)

type MethodFunc func(method string, args any) (any, error)

type UI struct {
	port  *channel.Port
	codec codec.MessageCodec
	mc    codec.MethodCodec

	mu       sync.Mutex
	ids      *bitset.BitSet
	received []Call
	notify   chan struct{}
}

func NewUI(port *channel.Port, c codec.MessageCodec) *UI {
	u := &UI{
		port:   port,
		codec:  c,
		mc:     codec.StandardMethod,
		ids:    bitset.New(0),
		notify: make(chan struct{}, 1),
	}
	if std, ok := c.(*codec.StandardCodec); ok {
		u.mc = codec.MethodCodec{Codec: std}
	}
	return u
}

func (u *UI) Port() *channel.Port { return u.port }

// NewIdentifier allocates the lowest free identifier of the UI range.
func (u *UI) NewIdentifier() (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	av, ok := u.ids.NextClear(0)
	if !ok {
		av = u.ids.Len()
	}
	if int64(av) >= instance.MinHostCreatedIdentifier {
		return 0, ErrExhausted
	}
	u.ids.Set(av)
	return int64(av), nil
}

// MustIdentifier is NewIdentifier for tests that never exhaust the range.
func (u *UI) MustIdentifier(tb testing.TB) int64 {
	tb.Helper()
	id, err := u.NewIdentifier()
	if err != nil {
		tb.Fatal(err)
	}
	return id
}

func (u *UI) FreeIdentifier(id int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ids.Clear(uint(id))
}

func (u *UI) send(name string, msg []byte) ([]byte, error) {
	replies := make(chan []byte, 1)
	var sendErr error
	err := u.port.Looper().Run(func() {
		sendErr = u.port.Send(name, msg, func(reply []byte) { replies <- reply })
	})
	if err != nil {
		return nil, err
	}
	if sendErr != nil {
		return nil, sendErr
	}
	select {
	case reply := <-replies:
		return reply, nil
	case <-time.After(Timeout):
		return nil, errors.Wrapf(ErrTimeout, "call %s", name)
	}
}

// Call invokes a Host API channel and waits for its reply. A failed call
// returns a *hostbridge.Error. It must not be called from the UI looper.
func (u *UI) Call(name string, args ...any) (any, error) {
	if args == nil {
		args = []any{}
	}
	msg, err := u.codec.Encode(args)
	if err != nil {
		return nil, err
	}
	reply, err := u.send(name, msg)
	if err != nil {
		return nil, err
	}
	if len(reply) == 0 {
		return nil, &hostbridge.Error{Code: hostbridge.CodeChannelError, Message: "no handler for " + name}
	}
	v, err := u.codec.Decode(reply)
	if err != nil {
		return nil, err
	}
	return unpack(name, v)
}

func unpack(name string, v any) (any, error) {
	list, ok := v.([]any)
	switch {
	case ok && len(list) == 1:
		return list[0], nil
	case ok && len(list) == 3:
		e := &hostbridge.Error{Details: list[2]}
		e.Code, _ = list[0].(string)
		e.Message, _ = list[1].(string)
		return nil, e
	}
	return nil, errors.Errorf("bridgetest: malformed reply on %s: %#v", name, v)
}

// Invoke calls method on a method channel and waits for the reply.
func (u *UI) Invoke(name, method string, args any) (any, error) {
	msg, err := u.mc.EncodeMethodCall(codec.MethodCall{Method: method, Arguments: args})
	if err != nil {
		return nil, err
	}
	reply, err := u.send(name, msg)
	if err != nil {
		return nil, err
	}
	return u.mc.DecodeEnvelope(reply)
}

// Handle answers Flutter API calls on name with f and records them. A nil f
// replies with a null result.
func (u *UI) Handle(name string, f FlutterFunc) {
	u.port.SetHandler(name, func(msg []byte, reply channel.Reply) {
		var args []any
		if len(msg) > 0 {
			v, err := u.codec.Decode(msg)
			if err != nil {
				panic(fmt.Sprintf("bridgetest: decode %s: %v", name, err))
			}
			args, _ = v.([]any)
		}
		u.record(Call{Channel: name, Args: args})

		var out []any
		if f == nil {
			out = []any{nil}
		} else if res, err := f(args); err != nil {
			e := hostbridge.WrapError(err)
			out = []any{e.Code, e.Message, e.Details}
		} else {
			out = []any{res}
		}
		b, err := u.codec.Encode(out)
		if err != nil {
			panic(fmt.Sprintf("bridgetest: encode reply of %s: %v", name, err))
		}
		reply(b)
	})
}

// HandleMethods answers method channel calls on name with f and records
// them. A nil f replies with a null result.
func (u *UI) HandleMethods(name string, f MethodFunc) {
	u.port.SetHandler(name, func(msg []byte, reply channel.Reply) {
		mc, err := u.mc.DecodeMethodCall(msg)
		if err != nil {
			panic(fmt.Sprintf("bridgetest: decode method call on %s: %v", name, err))
		}
		args, ok := mc.Arguments.([]any)
		if !ok && mc.Arguments != nil {
			args = []any{mc.Arguments}
		}
		u.record(Call{Channel: name, Method: mc.Method, Args: args})

		var b []byte
		if f == nil {
			b, err = u.mc.EncodeSuccessEnvelope(nil)
		} else if res, ferr := f(mc.Method, mc.Arguments); ferr != nil {
			e := hostbridge.WrapError(ferr)
			b, err = u.mc.EncodeErrorEnvelope(e.Code, e.Message, e.Details)
		} else {
			b, err = u.mc.EncodeSuccessEnvelope(res)
		}
		if err != nil {
			panic(fmt.Sprintf("bridgetest: encode reply on %s: %v", name, err))
		}
		reply(b)
	})
}

func (u *UI) record(c Call) {
	u.mu.Lock()
	u.received = append(u.received, c)
	u.mu.Unlock()
	select {
	case u.notify <- struct{}{}:
	default:
	}
}

// Received returns the Flutter API calls recorded on name so far.
func (u *UI) Received(name string) []Call {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []Call
	for _, c := range u.received {
		if c.Channel == name {
			out = append(out, c)
		}
	}
	return out
}

// WaitReceived waits until at least n calls were recorded on name.
func (u *UI) WaitReceived(name string, n int) ([]Call, error) {
	deadline := time.After(Timeout)
	for {
		if got := u.Received(name); len(got) >= n {
			return got, nil
		}
		select {
		case <-u.notify:
		case <-deadline:
			return u.Received(name), errors.Wrapf(ErrTimeout, "%d calls on %s", n, name)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
