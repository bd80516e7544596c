package typing

import (
	"sync"
	"time"
)

// Timer is a restartable one-shot timer. Reset cancels any pending run and
// starts a fresh countdown; Cancel stops it outright. A run that was already
// scheduled when Reset or Cancel happened never fires.
type Timer struct {
	mu    sync.Mutex
	d     time.Duration
	fn    func()
	t     *time.Timer
	gen   uint64
	armed bool
}

// NewTimer creates a stopped timer that calls fn d after each Reset.
func NewTimer(d time.Duration, fn func()) *Timer {
	return &Timer{d: d, fn: fn}
}

// Reset (re)starts the countdown.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.gen++
	gen := t.gen
	t.armed = true
	t.t = time.AfterFunc(t.d, func() { t.fire(gen) })
}

// Cancel stops the countdown. Returns whether a run was pending.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.armed
	t.stopLocked()
	t.gen++
	return was
}

// Active reports whether a run is pending.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

func (t *Timer) stopLocked() {
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
	t.armed = false
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.armed {
		t.mu.Unlock()
		return
	}
	t.armed = false
	t.t = nil
	t.mu.Unlock()
	t.fn()
}
