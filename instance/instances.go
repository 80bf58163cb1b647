package instance

import (
	"runtime"
	"unsafe"
	"weak"

	"github.com/pkg/errors"
)

func track[T any](m *Manager, obj *T, identifier int64) *entry {
	wp := weak.Make(obj)
	return &entry{
		strong: obj,
		key:    wp,
		weak: func() any {
			if p := wp.Value(); p != nil {
				return p
			}
			return nil
		},
		cleanup: runtime.AddCleanup(obj, m.enqueue, finalized{identifier, wp}),
	}
}

func checkInstance[T any](obj *T) error {
	if obj == nil || unsafe.Sizeof(*obj) == 0 {
		return ErrNilInstance
	}
	return nil
}

// AddDartCreated registers obj under an identifier chosen by the UI side.
// It fails if either the identifier or obj is already registered.
func AddDartCreated[T any](m *Manager, obj *T, identifier int64) error {
	if err := checkInstance(obj); err != nil {
		return err
	}
	if identifier < 0 || m.isHostCreated(identifier) {
		return errors.Wrapf(ErrInvalidIdentifier, "identifier %d", identifier)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.uiIds.Test(uint(identifier)) {
		return errors.Wrapf(ErrIdentifierInUse, "identifier %d", identifier)
	}
	if id, ok := m.identifiers[weak.Make(obj)]; ok {
		return errors.Wrapf(ErrInstanceInUse, "registered as %d", id)
	}
	return m.add(identifier, track(m, obj, identifier))
}

// AddHostCreated registers obj under a fresh identifier from the host range.
func AddHostCreated[T any](m *Manager, obj *T) (int64, error) {
	if err := checkInstance(obj); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	if id, ok := m.identifiers[weak.Make(obj)]; ok {
		return 0, errors.Wrapf(ErrInstanceInUse, "registered as %d", id)
	}
	identifier := m.nextHostIdentifier()
	if err := m.add(identifier, track(m, obj, identifier)); err != nil {
		return 0, err
	}
	return identifier, nil
}

// Get returns the object registered under identifier if it is a *T.
func Get[T any](m *Manager, identifier int64) (*T, bool) {
	v, ok := m.Lookup(identifier)
	if !ok {
		return nil, false
	}
	obj, ok := v.(*T)
	return obj, ok
}

// IdentifierForStrongReference returns the identifier of obj. Since the
// caller is about to hand the identifier to the UI side, a released entry
// becomes strong again.
func IdentifierForStrongReference[T any](m *Manager, obj *T) (int64, bool) {
	if checkInstance(obj) != nil {
		return 0, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	identifier, ok := m.identifiers[weak.Make(obj)]
	if !ok {
		return 0, false
	}
	e := m.instances[identifier]
	if e.strong == nil {
		e.strong = obj
	}
	return identifier, true
}

// Contains reports whether obj has an identifier.
func Contains[T any](m *Manager, obj *T) bool {
	if checkInstance(obj) != nil {
		return false
	}

	t := m.mu.RLock()
	defer m.mu.RUnlock(t)

	_, ok := m.identifiers[weak.Make(obj)]
	return ok
}
