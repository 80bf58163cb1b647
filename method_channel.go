package hostbridge

import (
	"github.com/flutterbridge/hostbridge/channel"
	"github.com/flutterbridge/hostbridge/codec"
)

// Methods maps method names of a legacy method channel to their handlers.
type Methods map[string]HostFunc

// HandleMethods serves a method channel: each message names a method and
// carries its arguments. Unknown methods get the empty "not implemented"
// reply. Call.Args is the argument list, or a single element holding a
// non-list argument.
func (r *Registrar) HandleMethods(name string, methods Methods) {
	r.setHandler(name, func(msg []byte, reply channel.Reply) {
		mc, err := r.method.DecodeMethodCall(msg)
		if err != nil {
			r.log.Errorf("decode method call on %s: %v", name, err)
			reply(r.encodeEnvelope(name, nil, err))
			return
		}
		h, ok := methods[mc.Method]
		if !ok {
			r.log.Debugf("method %s.%s not implemented", name, mc.Method)
			reply(nil)
			return
		}

		call := &Call{Channel: name, Method: mc.Method, registrar: r}
		switch args := mc.Arguments.(type) {
		case nil:
		case []any:
			call.Args = args
		default:
			call.Args = []any{args}
		}
		res := newResult(r, name+"#"+mc.Method, func(v any, err error) {
			reply(r.encodeEnvelope(name, v, err))
		})
		r.invoke(res, func() { res.Complete(h(call)) })
	})
}

// InvokeMethod calls method on the UI side of a method channel. Like Emit
// it returns at once and runs onReply on the looper. A method the UI side
// does not implement fails with codec.ErrNotImplemented.
func (r *Registrar) InvokeMethod(name, method string, args any, onReply ReplyFunc) error {
	msg, err := r.method.EncodeMethodCall(codec.MethodCall{Method: method, Arguments: args})
	if err != nil {
		return err
	}
	return r.looper.Post(func() {
		err := r.messenger.Send(name, msg, func(reply []byte) {
			if onReply == nil {
				return
			}
			v, err := r.method.DecodeEnvelope(reply)
			if env, ok := err.(*codec.ErrorEnvelope); ok {
				err = &Error{Code: env.Code, Message: env.Message, Details: env.Details}
			}
			onReply(v, err)
		})
		if err != nil && onReply != nil {
			onReply(nil, err)
		}
	})
}
