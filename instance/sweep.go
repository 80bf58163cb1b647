package instance

import "time"

// finalized is queued by the runtime cleanup of a tracked object. It must
// not reference the object itself.
type finalized struct {
	identifier int64
	key        any
}

// enqueue runs on the runtime's cleanup goroutine; the table itself is only
// touched by Sweep, under the manager lock.
func (m *Manager) enqueue(f finalized) {
	m.qmu.Lock()
	m.queue = append(m.queue, f)
	m.qmu.Unlock()
}

// Sweep drops the entries whose objects have been collected and reports
// each identifier to the finalization callback, unless the manager is
// closed. It returns the number of entries dropped.
func (m *Manager) Sweep() int {
	m.qmu.Lock()
	queue := m.queue
	m.queue = nil
	m.qmu.Unlock()
	if len(queue) == 0 {
		return 0
	}

	var freed []int64
	m.mu.Lock()
	for _, f := range queue {
		e, ok := m.instances[f.identifier]
		// the identifier may have been removed and handed out again
		if !ok || e.key != f.key || e.value() != nil {
			continue
		}
		m.drop(f.identifier, e)
		freed = append(freed, f.identifier)
	}
	closed := m.closed
	m.mu.Unlock()

	if closed || m.onFinalize == nil {
		return len(freed)
	}
	for _, id := range freed {
		m.log.Debugf("instance %d finalized", id)
		m.onFinalize(id)
	}
	return len(freed)
}

func (m *Manager) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
