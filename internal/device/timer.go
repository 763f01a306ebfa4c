package device

import (
	"sync"
	"time"
)

type stopper interface {
	Stop() bool
}

// afterFunc matches time.AfterFunc; tests swap in a manual clock.
type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// timerSlot holds at most one scheduled task. Scheduling while a task is
// pending is a no-op.
type timerSlot struct {
	mu      sync.Mutex
	after   afterFunc
	pending stopper
	seq     uint64
}

func newTimerSlot(after afterFunc) *timerSlot {
	if after == nil {
		after = realAfterFunc
	}
	return &timerSlot{after: after}
}

// Schedule runs f after d unless a task is already pending.
func (t *timerSlot) Schedule(d time.Duration, f func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		return false
	}
	t.seq++
	seq := t.seq
	t.pending = t.after(d, func() {
		t.mu.Lock()
		if t.seq != seq || t.pending == nil {
			t.mu.Unlock()
			return
		}
		t.pending = nil
		t.mu.Unlock()
		f()
	})
	return true
}

// Cancel drops the pending task, if any.
func (t *timerSlot) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.seq++
}

// Pending reports whether a task is scheduled.
func (t *timerSlot) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}
