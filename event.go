package hostbridge

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/flutterbridge/hostbridge/channel"
)

// StreamHandler produces the events of one stream channel. OnListen starts
// delivering to sink; OnCancel stops it. Both run on the looper.
type StreamHandler interface {
	OnListen(args any, sink *EventSink) error
	OnCancel(args any) error
}

// StreamFuncs adapts two functions to StreamHandler.
type StreamFuncs struct {
	Listen func(args any, sink *EventSink) error
	Cancel func(args any) error
}

func (f StreamFuncs) OnListen(args any, sink *EventSink) error { return f.Listen(args, sink) }

func (f StreamFuncs) OnCancel(args any) error {
	if f.Cancel == nil {
		return nil
	}
	return f.Cancel(args)
}

// EventSink pushes events of one subscription to the UI side. Its methods
// may be called from any goroutine and return false once the subscription
// has ended.
type EventSink struct {
	r    *Registrar
	name string

	mu     sync.Mutex
	active bool
}

func (s *EventSink) post(end bool, encode func() ([]byte, error)) bool {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return false
	}
	if end {
		s.active = false
	}
	s.mu.Unlock()

	var msg []byte
	if encode != nil {
		var err error
		if msg, err = encode(); err != nil {
			s.r.log.Errorf("encode event on %s: %v", s.name, err)
			return false
		}
	}
	err := s.r.looper.Post(func() {
		if err := s.r.messenger.Send(s.name, msg, nil); err != nil {
			s.r.log.Warnf("event on %s dropped: %v", s.name, err)
		}
	})
	return err == nil
}

func (s *EventSink) Success(event any) bool {
	return s.post(false, func() ([]byte, error) {
		return s.r.method.EncodeSuccessEnvelope(event)
	})
}

func (s *EventSink) Error(code, message string, details any) bool {
	return s.post(false, func() ([]byte, error) {
		return s.r.method.EncodeErrorEnvelope(code, message, details)
	})
}

// EndOfStream closes the subscription.
func (s *EventSink) EndOfStream() bool {
	return s.post(true, nil)
}

func (s *EventSink) close() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// HandleStream serves name as an event stream channel. The UI side sends
// "listen" and "cancel" method calls; events flow back on the same name.
func (r *Registrar) HandleStream(name string, h StreamHandler) {
	var sink *EventSink
	r.setHandler(name, func(msg []byte, reply channel.Reply) {
		call, err := r.method.DecodeMethodCall(msg)
		if err != nil {
			r.log.Errorf("decode stream call on %s: %v", name, err)
			reply(nil)
			return
		}
		switch call.Method {
		case "listen":
			if sink != nil {
				sink.close()
				if err := r.safeCancel(h, call.Arguments); err != nil {
					r.log.Warnf("cancel of previous listener on %s: %v", name, err)
				}
			}
			sink = &EventSink{r: r, name: name, active: true}
			err = r.safeListen(h, call.Arguments, sink)
			if err != nil {
				sink.close()
				sink = nil
			}
			reply(r.encodeEnvelope(name, nil, err))
		case "cancel":
			if sink == nil {
				reply(r.encodeEnvelope(name, nil, &Error{Code: "error", Message: "no active stream to cancel"}))
				return
			}
			sink.close()
			sink = nil
			reply(r.encodeEnvelope(name, nil, r.safeCancel(h, call.Arguments)))
		default:
			reply(nil)
		}
	})
}

func (r *Registrar) safeListen(h StreamHandler, args any, sink *EventSink) (err error) {
	defer recoverInto(&err)
	return h.OnListen(args, sink)
}

func (r *Registrar) safeCancel(h StreamHandler, args any) (err error) {
	defer recoverInto(&err)
	return h.OnCancel(args)
}

func recoverInto(err *error) {
	if p := recover(); p != nil {
		e, ok := p.(error)
		if !ok {
			e = &PanicError{Value: p}
		}
		*err = e
	}
}

func (r *Registrar) encodeEnvelope(name string, v any, err error) []byte {
	var (
		msg    []byte
		encErr error
	)
	if err != nil {
		e := WrapError(err)
		msg, encErr = r.method.EncodeErrorEnvelope(e.Code, e.Message, e.Details)
	} else {
		msg, encErr = r.method.EncodeSuccessEnvelope(v)
	}
	if encErr != nil {
		r.log.Errorf("encode envelope on %s: %v", name, encErr)
		msg, _ = r.method.EncodeErrorEnvelope(typeName(errors.Cause(encErr)), encErr.Error(), nil)
	}
	return msg
}
