// Package instance implements the table of objects shared with the UI side.
//
// Every object the UI side can name has an identifier. The UI side
// allocates identifiers below MinHostCreatedIdentifier for objects it asks
// the host to create; the host allocates identifiers from
// MinHostCreatedIdentifier upward for objects it creates on its own and
// hands over. Neither side needs the other's counter.
//
// The table holds each object strongly until the UI side releases its
// mirrored handle, and weakly after that. Once the garbage collector has
// reclaimed a released object, the next sweep drops its entry and reports
// the identifier through the finalization callback so the UI side can drop
// whatever it still keeps for it.
//
// Instances must be pointers to heap-allocated, non-zero-sized values; the
// weak tracking needs a distinct heap object per instance.
package instance

import (
	"os"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v2"
)

const (
	MinHostCreatedIdentifier int64 = 1 << 16

	DefaultSweepInterval = 30 * time.Second
)

var (
	ErrClosed            = errors.New("instance: manager closed")
	ErrNilInstance       = errors.New("instance: nil or zero-sized instance")
	ErrInvalidIdentifier = errors.New("instance: identifier outside the caller's range")
	ErrIdentifierInUse   = errors.New("instance: identifier already in use")
	ErrInstanceInUse     = errors.New("instance: instance already has an identifier")
)

type FinalizeFunc func(identifier int64)

type options struct {
	onFinalize    FinalizeFunc
	sweepInterval time.Duration
	hostBase      int64
	logger        log.Logger
}

type Option func(*options)

// WithFinalizer sets the callback told about every entry dropped because
// its object was collected.
func WithFinalizer(f FinalizeFunc) Option {
	return func(o *options) { o.onFinalize = f }
}

// WithSweepInterval sets how often the background sweep runs. Zero turns it
// off; Sweep can still be called directly.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweepInterval = d }
}

func WithHostIdentifierBase(base int64) Option {
	return func(o *options) { o.hostBase = base }
}

func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

type entry struct {
	strong  any
	weak    func() any
	key     any
	cleanup interface{ Stop() }
}

// value returns the object if it is still reachable.
func (e *entry) value() any {
	if e.strong != nil {
		return e.strong
	}
	return e.weak()
}

type Manager struct {
	mu          *xsync.RBMutex
	instances   map[int64]*entry
	identifiers map[any]int64
	uiIds       *bitset.BitSet
	nextId      int64
	hostBase    int64
	closed      bool

	qmu   sync.Mutex
	queue []finalized

	onFinalize FinalizeFunc
	stop       chan struct{}
	stopOnce   sync.Once
	log        *log.Helper
}

func New(opts ...Option) *Manager {
	o := options{
		sweepInterval: DefaultSweepInterval,
		hostBase:      MinHostCreatedIdentifier,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.hostBase <= 0 {
		panic("instance: host identifier base must be positive")
	}
	if o.logger == nil {
		o.logger = log.NewStdLogger(os.Stderr)
	}

	m := &Manager{
		mu:          xsync.NewRBMutex(),
		instances:   make(map[int64]*entry),
		identifiers: make(map[any]int64),
		uiIds:       bitset.New(0),
		nextId:      o.hostBase,
		hostBase:    o.hostBase,
		onFinalize:  o.onFinalize,
		stop:        make(chan struct{}),
		log:         log.NewHelper(log.With(o.logger, "module", "instance")),
	}
	if o.sweepInterval > 0 {
		go m.sweepLoop(o.sweepInterval)
	}
	return m
}

// Lookup returns the object registered under identifier. A missing or
// already collected entry yields false; calls routinely race with
// disposal, so that is not an error.
func (m *Manager) Lookup(identifier int64) (any, bool) {
	t := m.mu.RLock()
	defer m.mu.RUnlock(t)

	e, ok := m.instances[identifier]
	if !ok {
		return nil, false
	}
	v := e.value()
	return v, v != nil
}

// Remove drops the entry for identifier on both sides at once. No
// finalization callback fires for it.
func (m *Manager) Remove(identifier int64) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.instances[identifier]
	if !ok {
		return nil, false
	}
	m.drop(identifier, e)
	e.cleanup.Stop()
	v := e.value()
	return v, v != nil
}

// Release drops the strong reference for identifier: the UI side no longer
// holds its handle. The entry stays addressable until the object is
// collected or the identifier is handed out again with
// IdentifierForStrongReference.
func (m *Manager) Release(identifier int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.instances[identifier]
	if !ok {
		return false
	}
	e.strong = nil
	return true
}

// Clear drops every entry without finalization callbacks. The manager stays
// usable.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

func (m *Manager) clearLocked() {
	for _, e := range m.instances {
		e.cleanup.Stop()
	}
	m.instances = make(map[int64]*entry)
	m.identifiers = make(map[any]int64)
	m.uiIds.ClearAll()

	m.qmu.Lock()
	m.queue = nil
	m.qmu.Unlock()
}

// Close clears the table, stops the background sweep and silences the
// finalization callback for good. Adding to a closed manager fails.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.clearLocked()
	m.mu.Unlock()

	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) Closed() bool {
	t := m.mu.RLock()
	defer m.mu.RUnlock(t)
	return m.closed
}

func (m *Manager) Len() int {
	t := m.mu.RLock()
	defer m.mu.RUnlock(t)
	return len(m.instances)
}

func (m *Manager) isHostCreated(identifier int64) bool { return identifier >= m.hostBase }

// add stores e under identifier. The caller holds m.mu.
func (m *Manager) add(identifier int64, e *entry) error {
	if m.closed {
		return ErrClosed
	}
	if m.inUse(identifier) {
		return errors.Wrapf(ErrIdentifierInUse, "identifier %d", identifier)
	}
	if id, ok := m.identifiers[e.key]; ok {
		return errors.Wrapf(ErrInstanceInUse, "registered as %d", id)
	}
	m.instances[identifier] = e
	m.identifiers[e.key] = identifier
	if !m.isHostCreated(identifier) {
		m.uiIds.Set(uint(identifier))
	}
	return nil
}

// inUse reports whether identifier is live. UI-range identifiers are
// answered by the occupancy bitset. The caller holds m.mu.
func (m *Manager) inUse(identifier int64) bool {
	if !m.isHostCreated(identifier) {
		return m.uiIds.Test(uint(identifier))
	}
	_, ok := m.instances[identifier]
	return ok
}

// drop removes both sides of an entry. The caller holds m.mu.
func (m *Manager) drop(identifier int64, e *entry) {
	delete(m.instances, identifier)
	if m.identifiers[e.key] == identifier {
		delete(m.identifiers, e.key)
	}
	if !m.isHostCreated(identifier) {
		m.uiIds.Clear(uint(identifier))
	}
}

// nextHostIdentifier returns an identifier in the host range that is not
// live. The caller holds m.mu.
func (m *Manager) nextHostIdentifier() int64 {
	for {
		id := m.nextId
		m.nextId++
		if m.nextId < m.hostBase {
			m.nextId = m.hostBase
		}
		if !m.inUse(id) {
			return id
		}
	}
}
