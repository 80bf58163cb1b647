// Package engine attaches plugins to one UI engine.
//
// An attachment owns the registrar, its instance manager and the activity
// lifecycle. Plugins get everything they need through Attach; nothing is
// kept in package state, so several engines can live side by side.
package engine

import (
	"os"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/flutterbridge/hostbridge"
	"github.com/flutterbridge/hostbridge/channel"
	"github.com/flutterbridge/hostbridge/config"
	"github.com/flutterbridge/hostbridge/lifecycle"
)

var (
	ErrAttached      = errors.New("engine: already attached")
	ErrDetached      = errors.New("engine: not attached")
	ErrDuplicateName = errors.New("engine: plugin name already registered")
)

// Plugin is one capability exposed to the UI side.
type Plugin interface {
	Name() string
	// Attach registers the plugin's handlers. It runs on the caller's
	// goroutine; handlers themselves run on the platform looper.
	Attach(a *Attachment) error
	// Detach releases whatever Attach acquired.
	Detach()
}

// Attachment is the state shared by the plugins of one attached engine.
type Attachment struct {
	ID        uuid.UUID
	Registrar *hostbridge.Registrar
	Lifecycle *lifecycle.Machine
	Config    *config.Config
	Logger    log.Logger
}

type Engine struct {
	messenger channel.Messenger
	cfg       *config.Config
	logger    log.Logger
	log       *log.Helper

	mu       sync.Mutex
	plugins  []Plugin
	attached []Plugin
	current  *Attachment
}

// New creates an engine talking over m. A nil cfg means config.Default; a
// nil logger writes to stderr at the configured level.
func New(m channel.Messenger, cfg *config.Config, logger log.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = cfg.Logger(os.Stderr)
	}
	return &Engine{
		messenger: m,
		cfg:       cfg,
		logger:    logger,
		log:       log.NewHelper(log.With(logger, "module", "engine")),
	}
}

// Add registers p. If the engine is attached, p is attached at once.
func (e *Engine) Add(p Plugin) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, q := range e.plugins {
		if q.Name() == p.Name() {
			return errors.Wrap(ErrDuplicateName, p.Name())
		}
	}
	e.plugins = append(e.plugins, p)
	if e.current == nil {
		return nil
	}
	return e.attachLocked(p)
}

func (e *Engine) attachLocked(p Plugin) error {
	if err := p.Attach(e.current); err != nil {
		return errors.Wrapf(err, "attach %s", p.Name())
	}
	e.attached = append(e.attached, p)
	e.log.Infof("plugin %s attached to %s", p.Name(), e.current.ID)
	return nil
}

// Attach creates a fresh registrar and lifecycle and attaches every plugin
// in the order added. If a plugin fails, the ones already attached are
// detached again.
func (e *Engine) Attach() (*Attachment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		return nil, ErrAttached
	}
	id := uuid.New()
	logger := log.With(e.logger, "attachment", id.String())
	e.current = &Attachment{
		ID: id,
		Registrar: hostbridge.New(e.messenger,
			hostbridge.WithLogger(logger),
			hostbridge.WithChannelPrefix(e.cfg.Channel.Prefix),
			hostbridge.WithInstanceOptions(e.cfg.InstanceOptions()...)),
		Lifecycle: lifecycle.New(logger),
		Config:    e.cfg,
		Logger:    logger,
	}
	for _, p := range e.plugins {
		if err := e.attachLocked(p); err != nil {
			e.detachLocked()
			return nil, err
		}
	}
	return e.current, nil
}

// Detach destroys the activity if there is one, detaches the plugins in
// reverse order and closes the registrar.
func (e *Engine) Detach() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return ErrDetached
	}
	if e.current.Lifecycle.State().HasActivity() {
		if err := e.current.Lifecycle.MoveTo(lifecycle.Destroyed); err != nil {
			e.log.Warnf("destroy activity: %v", err)
		}
	}
	e.detachLocked()
	return nil
}

func (e *Engine) detachLocked() {
	for i := len(e.attached) - 1; i >= 0; i-- {
		e.attached[i].Detach()
		e.log.Infof("plugin %s detached from %s", e.attached[i].Name(), e.current.ID)
	}
	e.attached = nil
	e.current.Registrar.Close()
	e.current = nil
}

// Current returns the live attachment, or nil.
func (e *Engine) Current() *Attachment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Engine) Plugins() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, len(e.plugins))
	for i, p := range e.plugins {
		names[i] = p.Name()
	}
	return names
}
