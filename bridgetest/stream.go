package bridgetest

import (
	"time"

	"github.com/pkg/errors"

	"github.com/flutterbridge/hostbridge/channel"
)

// Event is one message received on a stream. Done marks the end of the
// stream.
type Event struct {
	Value any
	Err   error
	Done  bool
}

type Stream struct {
	u    *UI
	name string
	C    chan Event
}

// Listen subscribes to the stream channel name.
func (u *UI) Listen(name string, args any) (*Stream, error) {
	s := &Stream{u: u, name: name, C: make(chan Event, 64)}
	u.port.SetHandler(name, func(msg []byte, reply channel.Reply) {
		defer reply(nil)
		if len(msg) == 0 {
			s.C <- Event{Done: true}
			return
		}
		v, err := u.mc.DecodeEnvelope(msg)
		s.C <- Event{Value: v, Err: err}
	})
	if _, err := u.Invoke(name, "listen", args); err != nil {
		u.port.SetHandler(name, nil)
		return nil, err
	}
	return s, nil
}

func (s *Stream) Cancel(args any) error {
	_, err := s.u.Invoke(s.name, "cancel", args)
	return err
}

// Next waits for the next event.
func (s *Stream) Next() (Event, error) {
	select {
	case ev := <-s.C:
		return ev, nil
	case <-time.After(Timeout):
		return Event{}, errors.Wrapf(ErrTimeout, "event on %s", s.name)
	}
}
