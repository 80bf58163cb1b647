// Package hostbridge dispatches calls between the UI side and host code.
//
// A Registrar sits on one end of a message channel. Host API handlers
// answer calls the UI side makes; Emit pushes calls the other way. Objects
// crossing the bridge travel as identifiers resolved through an
// instance.Manager, which the Registrar owns.
//
// Every handler runs on the platform looper. Replies and outgoing calls
// made from other goroutines are handed over to the looper first.
package hostbridge

import (
	"fmt"
	"os"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v2"

	"github.com/flutterbridge/hostbridge/channel"
	"github.com/flutterbridge/hostbridge/codec"
	"github.com/flutterbridge/hostbridge/instance"
	"github.com/flutterbridge/hostbridge/looper"
)

const DefaultChannelPrefix = "dev.flutter.pigeon"

var ErrClosed = errors.New("hostbridge: registrar closed")

type (
	HostFunc      func(call *Call) (any, error)
	AsyncHostFunc func(call *Call, res *Result)
)

type options struct {
	codec        codec.MessageCodec
	logger       log.Logger
	prefix       string
	instanceOpts []instance.Option
}

type Option func(*options)

func WithCodec(c codec.MessageCodec) Option {
	return func(o *options) { o.codec = c }
}

func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithChannelPrefix sets the prefix of the built-in InstanceManager
// channels.
func WithChannelPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithInstanceOptions configures the instance manager owned by the
// registrar. The finalizer is always the registrar's own.
func WithInstanceOptions(opts ...instance.Option) Option {
	return func(o *options) { o.instanceOpts = append(o.instanceOpts, opts...) }
}

type Registrar struct {
	messenger channel.Messenger
	looper    *looper.Looper
	instances *instance.Manager
	codec     codec.MessageCodec
	method    codec.MethodCodec
	prefix    string
	channels  *xsync.MapOf[string, struct{}]
	log       *log.Helper
	logger    log.Logger
}

// New binds a registrar to messenger and registers the built-in
// InstanceManager Host API on it.
func New(messenger channel.Messenger, opts ...Option) *Registrar {
	o := options{
		codec:  codec.Standard,
		prefix: DefaultChannelPrefix,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewStdLogger(os.Stderr)
	}

	r := &Registrar{
		messenger: messenger,
		looper:    messenger.Looper(),
		codec:     o.codec,
		method:    codec.StandardMethod,
		prefix:    o.prefix,
		channels:  xsync.NewMapOf[struct{}](),
		logger:    o.logger,
		log:       log.NewHelper(log.With(o.logger, "module", "hostbridge")),
	}
	if std, ok := o.codec.(*codec.StandardCodec); ok {
		r.method = codec.MethodCodec{Codec: std}
	}
	instanceOpts := append([]instance.Option{instance.WithLogger(o.logger)}, o.instanceOpts...)
	instanceOpts = append(instanceOpts, instance.WithFinalizer(r.dispose))
	r.instances = instance.New(instanceOpts...)
	r.setupInstanceManagerAPI()
	return r
}

func (r *Registrar) Instances() *instance.Manager { return r.instances }

func (r *Registrar) Looper() *looper.Looper { return r.looper }

func (r *Registrar) Logger() log.Logger { return r.logger }

func (r *Registrar) Prefix() string { return r.prefix }

// ChannelName builds "<prefix>.<api>.<method>".
func (r *Registrar) ChannelName(api, method string) string {
	return fmt.Sprintf("%s.%s.%s", r.prefix, api, method)
}

func (r *Registrar) setHandler(name string, h channel.Handler) {
	if name == "" {
		panic("hostbridge: empty channel name")
	}
	if r.instances.Closed() {
		panic(fmt.Sprintf("hostbridge: handler for %q registered after close", name))
	}
	r.channels.Store(name, struct{}{})
	r.messenger.SetHandler(name, h)
}

// Handle serves the Host API channel name with h. The incoming message is
// the argument list; h's result or error is the reply.
func (r *Registrar) Handle(name string, h HostFunc) {
	if h == nil {
		panic("hostbridge: nil handler for " + name)
	}
	r.HandleAsync(name, func(call *Call, res *Result) {
		res.Complete(h(call))
	})
}

// HandleAsync serves name with h. h may return before completing res and
// complete it later from any goroutine.
func (r *Registrar) HandleAsync(name string, h AsyncHostFunc) {
	if h == nil {
		panic("hostbridge: nil handler for " + name)
	}
	r.setHandler(name, func(msg []byte, reply channel.Reply) {
		res := newResult(r, name, func(v any, err error) {
			reply(r.encodeReply(name, v, err))
		})
		call, err := r.decodeCall(name, msg)
		if err != nil {
			res.Error(err)
			return
		}
		r.log.Debugf("call %s with %d arguments", name, call.Len())
		r.invoke(res, func() { h(call, res) })
	})
}

// invoke runs f and turns a panic into an error reply.
func (r *Registrar) invoke(res *Result, f func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("handler for %s panicked: %v", res.channel, p)
			err, ok := p.(error)
			if !ok {
				err = &PanicError{Value: p}
			}
			res.Error(err)
		}
	}()
	f()
}

// Unhandle removes the handler for name. Later calls on it get no reply
// content, which the UI side reports as a channel error.
func (r *Registrar) Unhandle(name string) {
	r.channels.Delete(name)
	r.messenger.SetHandler(name, nil)
}

// Close removes every handler this registrar installed and closes its
// instance manager. No dispose calls are sent afterwards.
func (r *Registrar) Close() {
	r.instances.Close()
	r.channels.Range(func(name string, _ struct{}) bool {
		r.Unhandle(name)
		return true
	})
}

func (r *Registrar) decodeCall(name string, msg []byte) (*Call, error) {
	call := &Call{Channel: name, registrar: r}
	if len(msg) == 0 {
		return call, nil
	}
	v, err := r.codec.Decode(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "decode arguments of %s", name)
	}
	switch args := v.(type) {
	case nil:
	case []any:
		call.Args = args
	default:
		return nil, errors.Errorf("hostbridge: arguments of %s are %T, not a list", name, v)
	}
	return call, nil
}

func (r *Registrar) encodeReply(name string, v any, err error) []byte {
	var reply []any
	if err != nil {
		e := WrapError(err)
		r.log.Warnf("call %s failed: %v", name, e)
		reply = e.envelope()
	} else {
		reply = []any{v}
	}
	msg, encErr := r.codec.Encode(reply)
	if encErr == nil {
		return msg
	}
	r.log.Errorf("encode reply of %s: %v", name, encErr)
	msg, encErr = r.codec.Encode(WrapError(encErr).envelope())
	if encErr != nil {
		// the envelope of an encode error is plain strings
		panic(fmt.Sprintf("hostbridge: encode error reply of %s: %v", name, encErr))
	}
	return msg
}
