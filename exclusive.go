package hostbridge

import "sync/atomic"

// Exclusive admits one operation of a kind at a time. A second Acquire
// before Release fails with ALREADY_ACTIVE.
type Exclusive struct {
	what   string
	active atomic.Bool
}

func NewExclusive(what string) *Exclusive {
	return &Exclusive{what: what}
}

func (x *Exclusive) Acquire() error {
	if !x.active.CompareAndSwap(false, true) {
		return AlreadyActive("%s is already active", x.what)
	}
	return nil
}

// Release reports whether an operation was active.
func (x *Exclusive) Release() bool {
	return x.active.CompareAndSwap(true, false)
}

func (x *Exclusive) Active() bool { return x.active.Load() }
