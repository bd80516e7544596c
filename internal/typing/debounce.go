package typing

import (
	"sync"
	"time"
)

// DefaultQuietPeriod is how long after the last keystroke the stop signal goes out.
const DefaultQuietPeriod = 3 * time.Second

// Emitter sends the local user's typing signals to the remote side.
type Emitter interface {
	EmitTypingStart(chatID string)
	EmitTypingStop(chatID string)
}

// Debouncer turns keystrokes into typing-start/typing-stop signals. Every
// keystroke emits typing-start and restarts the quiet timer; the timer
// expiring or a send emits typing-stop.
type Debouncer struct {
	mu     sync.Mutex
	quiet  time.Duration
	emit   Emitter
	timers map[string]*Timer
}

// NewDebouncer creates a debouncer. A non-positive quiet period uses DefaultQuietPeriod.
func NewDebouncer(quiet time.Duration, emit Emitter) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Debouncer{
		quiet:  quiet,
		emit:   emit,
		timers: make(map[string]*Timer),
	}
}

// Keystroke records local typing activity in chatID.
func (d *Debouncer) Keystroke(chatID string) {
	d.mu.Lock()
	t, ok := d.timers[chatID]
	if !ok {
		var nt *Timer
		nt = NewTimer(d.quiet, func() { d.expire(chatID, nt) })
		t = nt
		d.timers[chatID] = t
	}
	d.mu.Unlock()

	d.emit.EmitTypingStart(chatID)
	t.Reset()
}

// Sent stops typing in chatID immediately because a message went out.
func (d *Debouncer) Sent(chatID string) {
	d.mu.Lock()
	t, ok := d.timers[chatID]
	delete(d.timers, chatID)
	d.mu.Unlock()

	if ok && t.Cancel() {
		d.emit.EmitTypingStop(chatID)
	}
}

// Pending reports whether a stop signal is still due for chatID.
func (d *Debouncer) Pending(chatID string) bool {
	d.mu.Lock()
	t, ok := d.timers[chatID]
	d.mu.Unlock()
	return ok && t.Active()
}

// Stop cancels every pending timer without emitting anything.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	timers := d.timers
	d.timers = make(map[string]*Timer)
	d.mu.Unlock()
	for _, t := range timers {
		t.Cancel()
	}
}

func (d *Debouncer) expire(chatID string, t *Timer) {
	// A keystroke re-armed the timer after it fired; the next expiry will stop.
	if t.Active() {
		return
	}
	d.mu.Lock()
	if d.timers[chatID] == t {
		delete(d.timers, chatID)
	}
	d.mu.Unlock()
	d.emit.EmitTypingStop(chatID)
}
