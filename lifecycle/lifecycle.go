// Package lifecycle tracks the state of the activity hosting the UI.
//
// Plugins that own native sessions (cameras, pickers, alarms) observe the
// machine and tear down on the transitions that matter to them instead of
// keeping their own flags.
package lifecycle

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/pkg/errors"
)

type State int

const (
	// Initialized is the state before the activity exists.
	Initialized State = iota
	Created
	Started
	Resumed
	Paused
	Stopped
	// Destroyed is final.
	Destroyed
)

var stateNames = [...]string{"Initialized", "Created", "Started", "Resumed", "Paused", "Stopped", "Destroyed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// HasActivity reports whether an activity exists in state s.
func (s State) HasActivity() bool { return s > Initialized && s < Destroyed }

var ErrInvalidTransition = errors.New("lifecycle: invalid transition")

var transitions = map[State][]State{
	Initialized: {Created},
	Created:     {Started, Destroyed},
	Started:     {Resumed, Stopped},
	Resumed:     {Paused},
	Paused:      {Resumed, Stopped},
	Stopped:     {Started, Destroyed},
}

// CanTransition reports whether to directly follows from.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Observer is told about every transition, after the state has changed.
type Observer func(from, to State)

type Machine struct {
	mu        sync.Mutex
	state     State
	nextId    uint64
	observers map[uint64]Observer
	order     []uint64
	log       *log.Helper
}

func New(logger log.Logger) *Machine {
	if logger == nil {
		logger = log.NewStdLogger(os.Stderr)
	}
	return &Machine{
		observers: make(map[uint64]Observer),
		log:       log.NewHelper(log.With(logger, "module", "lifecycle")),
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Observe adds o and returns a function removing it. Observers run in the
// order they were added, on the goroutine making the transition.
func (m *Machine) Observe(o Observer) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextId++
	id := m.nextId
	m.observers[id] = o
	m.order = append(m.order, id)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.observers, id)
	}
}

// Transition moves directly to the next state to.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
	}
	m.state = to
	observers := m.snapshot()
	m.mu.Unlock()

	m.log.Debugf("%s -> %s", from, to)
	for _, o := range observers {
		o(from, to)
	}
	return nil
}

// snapshot returns the live observers in order and compacts the order
// list. The caller holds m.mu.
func (m *Machine) snapshot() []Observer {
	out := make([]Observer, 0, len(m.observers))
	order := m.order[:0]
	for _, id := range m.order {
		if o, ok := m.observers[id]; ok {
			out = append(out, o)
			order = append(order, id)
		}
	}
	m.order = order
	return out
}

// MoveTo walks the shortest chain of valid transitions to target, so that
// observers see every intermediate state. Teardown uses it to reach
// Destroyed from wherever the activity is.
func (m *Machine) MoveTo(target State) error {
	for {
		cur := m.State()
		if cur == target {
			return nil
		}
		path := route(cur, target)
		if path == nil {
			return errors.Wrapf(ErrInvalidTransition, "no route %s -> %s", cur, target)
		}
		if err := m.Transition(path[0]); err != nil {
			return err
		}
	}
}

// route returns the states after from on a shortest path to target.
func route(from, target State) []State {
	prev := map[State]State{from: from}
	queue := []State{from}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if s == target {
			var path []State
			for ; s != from; s = prev[s] {
				path = append([]State{s}, path...)
			}
			return path
		}
		for _, next := range transitions[s] {
			if _, seen := prev[next]; !seen {
				prev[next] = s
				queue = append(queue, next)
			}
		}
	}
	return nil
}
