// Package channel is the generic message channel: named, asynchronous
// request/response transport between the host and the UI side.
//
// A Port is one end of the transport. It may only be used from its looper;
// messages to the peer are posted onto the peer's looper in send order, so
// delivery on any one channel name is FIFO.
package channel

import (
	"fmt"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v2"

	"github.com/flutterbridge/hostbridge/looper"
)

var (
	ErrWrongThread = errors.New("channel: used off the platform thread")
	ErrClosed      = errors.New("channel: port closed")
)

// ReplyFunc receives the peer's reply. A nil reply means the peer had no
// handler for the channel or replied with nothing.
type ReplyFunc func(reply []byte)

// Reply answers one incoming message. It must be called exactly once, on
// the port's looper.
type Reply func(reply []byte)

type Handler func(msg []byte, reply Reply)

// Messenger is what the bridge needs from a transport.
type Messenger interface {
	Send(name string, msg []byte, onReply ReplyFunc) error
	SetHandler(name string, h Handler)
	Looper() *looper.Looper
}

type Port struct {
	name        string
	looper      *looper.Looper
	peer        *Port
	handlers    *xsync.MapOf[string, Handler]
	pending     *xsync.MapOf[uint64, ReplyFunc]
	nextReplyId atomic.Uint64
	isClosed    atomic.Bool
	log         atomic.Pointer[log.Helper]
}

var _ Messenger = (*Port)(nil)

func newPort(name string, l *looper.Looper) *Port {
	p := &Port{
		name:     name,
		looper:   l,
		handlers: xsync.NewMapOf[Handler](),
		pending:  xsync.NewIntegerMapOf[uint64, ReplyFunc](),
	}
	p.SetLogger(log.GetLogger())
	return p
}

// SetLogger replaces the logger, the global kratos logger by default.
func (p *Port) SetLogger(l log.Logger) {
	p.log.Store(log.NewHelper(log.With(l, "module", "channel", "port", p.name)))
}

// NewPipe connects two ports, each served by its own looper.
func NewPipe(hostLooper, uiLooper *looper.Looper) (host, ui *Port) {
	host = newPort("host", hostLooper)
	ui = newPort("ui", uiLooper)
	host.peer, ui.peer = ui, host
	return host, ui
}

func (p *Port) String() string {
	return fmt.Sprintf("Port[%s, looper=%s]", p.name, p.looper.Name())
}

func (p *Port) Looper() *looper.Looper { return p.looper }

// SetHandler installs h for messages arriving on name; nil removes it.
func (p *Port) SetHandler(name string, h Handler) {
	if h == nil {
		p.handlers.Delete(name)
		return
	}
	p.handlers.Store(name, h)
}

func (p *Port) HasHandler(name string) bool {
	_, ok := p.handlers.Load(name)
	return ok
}

// Send delivers msg to the peer's handler for name. onReply, if not nil,
// runs later on this port's looper.
func (p *Port) Send(name string, msg []byte, onReply ReplyFunc) error {
	if !p.looper.IsCurrent() {
		return errors.Wrapf(ErrWrongThread, "send on %q from %s", name, p)
	}
	if p.isClosed.Load() || p.peer.isClosed.Load() {
		return errors.Wrapf(ErrClosed, "send on %q", name)
	}

	var replyId uint64
	if onReply != nil {
		replyId = p.pend(onReply)
	}
	peer := p.peer
	err := peer.looper.Post(func() { peer.deliver(name, msg, replyId) })
	if err != nil {
		if replyId != 0 {
			p.pending.Delete(replyId)
		}
		return errors.Wrapf(ErrClosed, "send on %q: %v", name, err)
	}
	return nil
}

func (p *Port) pend(onReply ReplyFunc) uint64 {
	for n := 0; n < 10; n++ {
		id := p.nextReplyId.Add(1)
		if id == 0 {
			continue
		}
		if _, loaded := p.pending.LoadOrStore(id, onReply); !loaded {
			return id
		}
	}
	panic(fmt.Sprintf("channel: too many replies pending on %s", p))
}

func (p *Port) deliver(name string, msg []byte, replyId uint64) {
	var answered atomic.Bool
	reply := func(b []byte) {
		if !p.looper.IsCurrent() {
			panic(fmt.Sprintf("channel: reply on %q off the platform thread of %s", name, p))
		}
		if !answered.CompareAndSwap(false, true) {
			panic(fmt.Sprintf("channel: reply on %q sent twice", name))
		}
		if replyId == 0 {
			return
		}
		sender := p.peer
		if err := sender.looper.Post(func() { sender.complete(replyId, b) }); err != nil {
			sender.pending.Delete(replyId)
			p.log.Load().Warnf("reply on %q to %s dropped: %v", name, sender, err)
		}
	}

	h, ok := p.handlers.Load(name)
	if !ok || p.isClosed.Load() {
		reply(nil)
		return
	}
	h(msg, reply)
}

func (p *Port) complete(replyId uint64, reply []byte) {
	onReply, ok := p.pending.LoadAndDelete(replyId)
	if !ok {
		return
	}
	onReply(reply)
}

// Pending reports how many sends are still waiting for a reply.
func (p *Port) Pending() int { return p.pending.Size() }

// Close stops delivering messages to handlers and drops pending replies.
func (p *Port) Close() {
	if !p.isClosed.CompareAndSwap(false, true) {
		return
	}
	p.pending.Range(func(id uint64, _ ReplyFunc) bool {
		p.pending.Delete(id)
		return true
	})
}

func (p *Port) IsClosed() bool { return p.isClosed.Load() }
