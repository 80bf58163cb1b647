// Package alarm schedules UI callbacks on the legacy method channel.
//
// Alarms are delayed looper tasks. When one fires, the callback handle it
// was scheduled with is invoked on the background channel. All alarms are
// dropped when the activity is destroyed or the plugin detaches.
package alarm

import (
	"fmt"
	"math"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/flutterbridge/hostbridge"
	"github.com/flutterbridge/hostbridge/engine"
	"github.com/flutterbridge/hostbridge/lifecycle"
)

const (
	Channel           = "plugins.hostbridge.dev/alarm_manager"
	BackgroundChannel = "plugins.hostbridge.dev/alarm_manager_background"

	CallbackMethod = "invokeAlarmManagerCallback"

	maxMillis = math.MaxInt64 / int64(time.Millisecond)
)

type alarm struct {
	id       int64
	callback int64
	period   time.Duration
	cancel   func() bool
}

type Plugin struct {
	a      *engine.Attachment
	alarms map[int64]*alarm
	stop   func()
	log    *log.Helper
}

var _ engine.Plugin = (*Plugin)(nil)

func New() *Plugin {
	return &Plugin{alarms: make(map[int64]*alarm)}
}

func (p *Plugin) Name() string { return "alarm" }

func (p *Plugin) Attach(a *engine.Attachment) error {
	p.a = a
	p.log = log.NewHelper(log.With(a.Logger, "module", "alarm"))
	a.Registrar.HandleMethods(Channel, hostbridge.Methods{
		"Alarm.oneShot":  p.oneShot,
		"Alarm.periodic": p.periodic,
		"Alarm.cancel":   p.cancel,
	})
	p.stop = a.Lifecycle.Observe(func(_, to lifecycle.State) {
		if to == lifecycle.Destroyed {
			if err := a.Registrar.Looper().Post(p.cancelAll); err != nil {
				p.log.Warnf("drop alarms on destroy: %v", err)
			}
		}
	})
	return nil
}

func (p *Plugin) Detach() {
	if p.stop != nil {
		p.stop()
	}
	if err := p.a.Registrar.Looper().Run(p.cancelAll); err != nil {
		p.log.Warnf("drop alarms on detach: %v", err)
	}
	p.a.Registrar.Unhandle(Channel)
}

// Pending returns the number of scheduled alarms.
func (p *Plugin) Pending() int {
	var n int
	if err := p.a.Registrar.Looper().Run(func() { n = len(p.alarms) }); err != nil {
		p.log.Warnf("count alarms: %v", err)
	}
	return n
}

// args reads [id, millis, callback] and rejects millis below least or too
// large for a time.Duration.
func args(call *hostbridge.Call, least int64) (id int64, d time.Duration, callback int64, err error) {
	if id, err = call.Int64(0); err != nil {
		return
	}
	var ms int64
	if ms, err = call.Int64(1); err != nil {
		return
	}
	if ms < least || ms > maxMillis {
		want := "non-negative delay"
		if least > 0 {
			want = "positive period"
		}
		err = &hostbridge.ArgumentError{Channel: call.Channel + "#" + call.Method, Index: 1, Want: want + " of at most " + fmt.Sprint(maxMillis) + "ms", Got: ms}
		return
	}
	callback, err = call.Int64(2)
	return id, time.Duration(ms) * time.Millisecond, callback, err
}

func (p *Plugin) oneShot(call *hostbridge.Call) (any, error) {
	id, delay, callback, err := args(call, 0)
	if err != nil {
		return nil, err
	}
	return true, p.schedule(&alarm{id: id, callback: callback}, delay)
}

func (p *Plugin) periodic(call *hostbridge.Call) (any, error) {
	id, period, callback, err := args(call, 1)
	if err != nil {
		return nil, err
	}
	return true, p.schedule(&alarm{id: id, callback: callback, period: period}, period)
}

func (p *Plugin) cancel(call *hostbridge.Call) (any, error) {
	id, err := call.Int64(0)
	if err != nil {
		return nil, err
	}
	al, ok := p.alarms[id]
	if ok {
		al.cancel()
		delete(p.alarms, id)
	}
	return ok, nil
}

// schedule replaces any alarm with the same id. It runs on the looper.
func (p *Plugin) schedule(al *alarm, after time.Duration) error {
	if old, ok := p.alarms[al.id]; ok {
		old.cancel()
	}
	cancel, err := p.a.Registrar.Looper().PostDelayed(after, func() { p.fire(al) })
	if err != nil {
		delete(p.alarms, al.id)
		return err
	}
	al.cancel = cancel
	p.alarms[al.id] = al
	return nil
}

func (p *Plugin) fire(al *alarm) {
	if p.alarms[al.id] != al {
		return
	}
	if al.period > 0 {
		if err := p.schedule(al, al.period); err != nil {
			p.log.Warnf("reschedule alarm %d: %v", al.id, err)
		}
	} else {
		delete(p.alarms, al.id)
	}
	p.log.Debugf("alarm %d fired", al.id)
	err := p.a.Registrar.InvokeMethod(BackgroundChannel, CallbackMethod, []any{al.callback, al.id}, func(_ any, err error) {
		if err != nil {
			p.log.Warnf("alarm %d callback: %v", al.id, err)
		}
	})
	if err != nil {
		p.log.Warnf("alarm %d: %v", al.id, err)
	}
}

func (p *Plugin) cancelAll() {
	for id, al := range p.alarms {
		al.cancel()
		delete(p.alarms, id)
	}
}
