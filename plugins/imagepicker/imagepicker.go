// Package imagepicker lets the UI side pick one image at a time from the
// camera or the gallery.
package imagepicker

import (
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	"github.com/flutterbridge/hostbridge"
	"github.com/flutterbridge/hostbridge/engine"
	"github.com/flutterbridge/hostbridge/lifecycle"
)

const (
	SourceCamera  int64 = 0
	SourceGallery int64 = 1
)

// Picker launches the platform picker. The outcome comes back later
// through Plugin.Deliver with the same request id.
type Picker interface {
	Launch(requestID string, source int64, maxWidth float64) error
}

// TimeoutError fails a pick the platform never answered.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("no image picked within %s", e.After) }

type request struct {
	id     string
	res    *hostbridge.Result
	cancel func() bool
}

type Plugin struct {
	picker  Picker
	a       *engine.Attachment
	active  *hostbridge.Exclusive
	current *request
	timeout time.Duration
	stop    func()
	log     *log.Helper
}

var _ engine.Plugin = (*Plugin)(nil)

func New(picker Picker) *Plugin {
	return &Plugin{picker: picker, active: hostbridge.NewExclusive("image picker")}
}

func (p *Plugin) Name() string { return "image_picker" }

func (p *Plugin) Attach(a *engine.Attachment) error {
	p.a = a
	p.timeout = a.Config.ImagePicker.Timeout
	p.log = log.NewHelper(log.With(a.Logger, "module", "imagepicker"))
	a.Registrar.HandleAsync(a.Registrar.ChannelName("ImagePickerApi", "pickImage"), p.pickImage)
	p.stop = a.Lifecycle.Observe(func(_, to lifecycle.State) {
		if to == lifecycle.Destroyed {
			err := p.a.Registrar.Looper().Post(func() {
				p.finish(p.currentID(), "", hostbridge.Unavailable("activity destroyed while picking"))
			})
			if err != nil {
				p.log.Warnf("fail pending pick on destroy: %v", err)
			}
		}
	})
	return nil
}

func (p *Plugin) Detach() {
	if p.stop != nil {
		p.stop()
	}
}

func (p *Plugin) currentID() string {
	if p.current == nil {
		return ""
	}
	return p.current.id
}

// pickImage runs on the looper.
func (p *Plugin) pickImage(call *hostbridge.Call, res *hostbridge.Result) {
	source, err := call.Int64(0)
	if err != nil {
		res.Error(err)
		return
	}
	var maxWidth float64
	if call.Arg(1) != nil {
		if maxWidth, err = call.Float64(1); err != nil {
			res.Error(err)
			return
		}
	}
	if source != SourceCamera && source != SourceGallery {
		res.Error(&hostbridge.ArgumentError{Channel: call.Channel, Index: 0, Want: "camera or gallery source", Got: source})
		return
	}
	if err := p.active.Acquire(); err != nil {
		res.Error(err)
		return
	}

	req := &request{id: uuid.NewString(), res: res}
	cancel, err := p.a.Registrar.Looper().PostDelayed(p.timeout, func() {
		p.finish(req.id, "", &TimeoutError{After: p.timeout})
	})
	if err != nil {
		p.active.Release()
		res.Error(err)
		return
	}
	req.cancel = cancel
	p.current = req

	if err := p.picker.Launch(req.id, source, maxWidth); err != nil {
		p.finish(req.id, "", err)
	}
}

// Deliver reports the outcome of request id. An empty path with a nil
// error means the user cancelled. It may be called from any goroutine.
func (p *Plugin) Deliver(id, path string, err error) {
	postErr := p.a.Registrar.Looper().Post(func() { p.finish(id, path, err) })
	if postErr != nil {
		p.log.Warnf("result of %s dropped: %v", id, postErr)
	}
}

// finish runs on the looper. Stale or repeated outcomes are ignored.
func (p *Plugin) finish(id, path string, err error) {
	req := p.current
	if req == nil || req.id != id {
		if id != "" {
			p.log.Debugf("ignoring outcome of stale request %s", id)
		}
		return
	}
	p.current = nil
	req.cancel()
	p.active.Release()
	if err != nil {
		req.res.Error(err)
		return
	}
	if path == "" {
		req.res.Success(nil)
		return
	}
	req.res.Success(path)
}
