// Package looper provides the platform thread: a single goroutine that runs
// posted tasks one at a time, in post order, plus tasks delayed by a
// deadline.
//
// Everything that touches a channel endpoint must run on its looper. Code
// running on some other goroutine (SDK callbacks, timers, pickers) hands
// work over with Post.
package looper

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/emirpasic/gods/trees/binaryheap"
	"github.com/pkg/errors"
)

var ErrQuit = errors.New("looper: quit")

type Task func()

type delayed struct {
	deadline time.Time
	seq      uint64
	task     Task
	canceled atomic.Bool
}

func byDeadline(a, b any) int {
	x, y := a.(*delayed), b.(*delayed)
	switch {
	case x.deadline.Before(y.deadline):
		return -1
	case x.deadline.After(y.deadline):
		return 1
	case x.seq < y.seq:
		return -1
	case x.seq > y.seq:
		return 1
	}
	return 0
}

type Looper struct {
	name string

	mu      sync.Mutex
	queue   []Task
	timers  *binaryheap.Heap
	nextSeq uint64
	quit    bool

	wake chan struct{}
	done chan struct{}
	gid  atomic.Uint64
}

// New starts a looper goroutine. The name only shows up in logs and
// panics.
func New(name string) *Looper {
	l := &Looper{
		name:   name,
		timers: binaryheap.NewWith(byDeadline),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go l.loop()
	return l
}

func (l *Looper) Name() string { return l.name }

// Post enqueues task behind every task already posted.
func (l *Looper) Post(task Task) error {
	l.mu.Lock()
	if l.quit {
		l.mu.Unlock()
		return ErrQuit
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()
	l.signal()
	return nil
}

// PostDelayed runs task on the looper once d has elapsed. The returned
// function cancels the task if it has not started yet and reports whether
// it did so.
func (l *Looper) PostDelayed(d time.Duration, task Task) (cancel func() bool, err error) {
	l.mu.Lock()
	if l.quit {
		l.mu.Unlock()
		return func() bool { return false }, ErrQuit
	}
	l.nextSeq++
	t := &delayed{deadline: time.Now().Add(d), seq: l.nextSeq, task: task}
	l.timers.Push(t)
	l.mu.Unlock()
	l.signal()
	return func() bool { return t.canceled.CompareAndSwap(false, true) }, nil
}

// IsCurrent reports whether the caller is running on the looper goroutine.
func (l *Looper) IsCurrent() bool {
	return l.gid.Load() == goid()
}

// Run executes task on the looper and waits for it, or runs it inline when
// already on the looper.
func (l *Looper) Run(task Task) error {
	if l.IsCurrent() {
		task()
		return nil
	}
	done := make(chan struct{})
	if err := l.Post(func() {
		defer close(done)
		task()
	}); err != nil {
		return err
	}
	<-done
	return nil
}

// Quit stops accepting tasks. Tasks already posted still run; pending
// delayed tasks are dropped. Quit returns after the loop has exited unless
// called from the looper itself.
func (l *Looper) Quit() {
	l.mu.Lock()
	if l.quit {
		l.mu.Unlock()
		if !l.IsCurrent() {
			<-l.done
		}
		return
	}
	l.quit = true
	l.mu.Unlock()
	l.signal()
	if !l.IsCurrent() {
		<-l.done
	}
}

func (l *Looper) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Looper) loop() {
	l.gid.Store(goid())
	defer close(l.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		tasks, next, quit := l.take()
		for _, task := range tasks {
			task()
		}
		if len(tasks) > 0 {
			continue
		}
		if quit {
			return
		}
		if next > 0 {
			timer.Reset(next)
			select {
			case <-l.wake:
				if !timer.Stop() {
					<-timer.C
				}
			case <-timer.C:
			}
			continue
		}
		<-l.wake
	}
}

// take returns the tasks ready to run. When none are ready it returns the
// wait until the earliest delayed task, or zero if there is none.
func (l *Looper) take() (tasks []Task, next time.Duration, quit bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tasks, l.queue = l.queue, nil
	if l.quit {
		l.timers.Clear()
		return tasks, 0, true
	}

	now := time.Now()
	for {
		top, ok := l.timers.Peek()
		if !ok {
			break
		}
		t := top.(*delayed)
		if t.canceled.Load() {
			l.timers.Pop()
			continue
		}
		if t.deadline.After(now) {
			if len(tasks) == 0 {
				next = t.deadline.Sub(now)
			}
			break
		}
		l.timers.Pop()
		tasks = append(tasks, func() {
			if t.canceled.CompareAndSwap(false, true) {
				t.task()
			}
		})
	}
	return tasks, next, false
}
