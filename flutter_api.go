package hostbridge

import (
	"github.com/pkg/errors"

	"github.com/flutterbridge/hostbridge/instance"
)

type ReplyFunc func(result any, err error)

// Emit calls the Flutter API channel name with args. It may be called from
// any goroutine and never blocks: the send happens on the looper, and
// onReply, if not nil, later runs there too.
func (r *Registrar) Emit(name string, args []any, onReply ReplyFunc) error {
	if args == nil {
		args = []any{}
	}
	msg, err := r.codec.Encode(args)
	if err != nil {
		return errors.Wrapf(err, "encode arguments of %s", name)
	}
	fail := func(err error) {
		r.log.Warnf("emit %s: %v", name, err)
		if onReply != nil {
			onReply(nil, err)
		}
	}
	err = r.looper.Post(func() {
		if r.instances.Closed() {
			fail(ErrClosed)
			return
		}
		err := r.messenger.Send(name, msg, func(reply []byte) {
			if onReply == nil {
				return
			}
			onReply(r.decodeFlutterReply(name, reply))
		})
		if err != nil {
			fail(err)
		}
	})
	return errors.Wrapf(err, "emit %s", name)
}

func (r *Registrar) decodeFlutterReply(name string, reply []byte) (any, error) {
	if len(reply) == 0 {
		return decodeReply(name, nil)
	}
	v, err := r.codec.Decode(reply)
	if err != nil {
		return nil, errors.Wrapf(err, "decode reply of %s", name)
	}
	return decodeReply(name, v)
}

// FlutterIdentifier returns the identifier to send for obj, registering it
// as host-created if the UI side has never seen it.
func FlutterIdentifier[T any](r *Registrar, obj *T) (int64, error) {
	for {
		if id, ok := instance.IdentifierForStrongReference(r.instances, obj); ok {
			return id, nil
		}
		id, err := instance.AddHostCreated(r.instances, obj)
		// lost a race with another registration of obj
		if errors.Is(err, instance.ErrInstanceInUse) {
			continue
		}
		return id, instanceError(err)
	}
}
