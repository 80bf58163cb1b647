package hostbridge

import (
	"sync/atomic"
)

// Result completes one asynchronous Host API call. Only the first
// completion counts; later ones return false.
type Result struct {
	r       *Registrar
	channel string
	send    func(v any, err error)
	done    atomic.Bool
}

func newResult(r *Registrar, channel string, send func(any, error)) *Result {
	return &Result{r: r, channel: channel, send: send}
}

// Complete replies with v, or with err if it is not nil. It may be called
// from any goroutine; the reply itself is sent on the looper.
func (res *Result) Complete(v any, err error) bool {
	if !res.done.CompareAndSwap(false, true) {
		res.r.log.Warnf("call %s completed twice, dropping %v", res.channel, err)
		return false
	}
	if res.r.looper.IsCurrent() {
		res.send(v, err)
		return true
	}
	if postErr := res.r.looper.Post(func() { res.send(v, err) }); postErr != nil {
		res.r.log.Warnf("reply to %s dropped: %v", res.channel, postErr)
		return false
	}
	return true
}

func (res *Result) Success(v any) bool {
	return res.Complete(v, nil)
}

func (res *Result) Error(err error) bool {
	if err == nil {
		panic("hostbridge: expect non-nil value as error")
	}
	return res.Complete(nil, err)
}

func (res *Result) Done() bool { return res.done.Load() }
