package typing

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/opschat/internal/bus"
)

func TestTrackerSetClear(t *testing.T) {
	tr := NewTracker(nil)

	if !tr.SetTyping("c1", "u2") {
		t.Fatal("SetTyping() = false on first call")
	}
	if tr.SetTyping("c1", "u2") {
		t.Error("SetTyping() twice should be a no-op")
	}
	tr.SetTyping("c1", "u1")
	if got := tr.Typing("c1"); !slices.Equal(got, []string{"u1", "u2"}) {
		t.Errorf("Typing(c1) = %v, want [u1 u2]", got)
	}
	if !tr.IsTyping("c1", "u2") {
		t.Error("IsTyping(c1, u2) = false")
	}

	if !tr.ClearTyping("c1", "u2") {
		t.Error("ClearTyping() = false for a typing user")
	}
	if tr.ClearTyping("c1", "u2") {
		t.Error("ClearTyping() twice should be a no-op")
	}
	if tr.ClearTyping("c9", "u2") {
		t.Error("ClearTyping() on unknown chat should be a no-op")
	}
	if got := tr.Typing("c1"); !slices.Equal(got, []string{"u1"}) {
		t.Errorf("Typing(c1) = %v, want [u1]", got)
	}
}

// TestTrackerNoReceiverExpiry documents that a typing entry stays until an
// explicit stop arrives.
func TestTrackerNoReceiverExpiry(t *testing.T) {
	tr := NewTracker(nil)
	tr.SetTyping("c1", "u2")
	time.Sleep(30 * time.Millisecond)
	if !tr.IsTyping("c1", "u2") {
		t.Error("typing entry expired without a stop signal")
	}
}

func TestTrackerEvents(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(10, "typing.")
	defer unsub()

	tr := NewTracker(b)
	tr.SetTyping("c1", "u2")
	tr.ClearTyping("c1", "u2")

	first := (<-ch).Payload.(Change)
	if first.ChatID != "c1" || !slices.Equal(first.UserIDs, []string{"u2"}) {
		t.Errorf("first change = %+v", first)
	}
	second := (<-ch).Payload.(Change)
	if len(second.UserIDs) != 0 {
		t.Errorf("second change = %+v, want empty set", second)
	}
}

func TestTimerFires(t *testing.T) {
	fired := make(chan struct{}, 1)
	tm := NewTimer(10*time.Millisecond, func() { fired <- struct{}{} })
	tm.Reset()
	if !tm.Active() {
		t.Error("Active() = false after Reset")
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	if tm.Active() {
		t.Error("Active() = true after firing")
	}
}

func TestTimerResetRestartsCountdown(t *testing.T) {
	var mu sync.Mutex
	count := 0
	tm := NewTimer(40*time.Millisecond, func() {
		mu.Lock()
		count++
		mu.Unlock()
	})
	for range 5 {
		tm.Reset()
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("fired %d times, want 1", count)
	}
}

func TestTimerCancel(t *testing.T) {
	fired := make(chan struct{}, 1)
	tm := NewTimer(10*time.Millisecond, func() { fired <- struct{}{} })
	if tm.Cancel() {
		t.Error("Cancel() on an idle timer = true")
	}
	tm.Reset()
	if !tm.Cancel() {
		t.Error("Cancel() on an armed timer = false")
	}
	select {
	case <-fired:
		t.Error("cancelled timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEmitter) EmitTypingStart(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "start:"+chatID)
}

func (r *recordingEmitter) EmitTypingStop(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "stop:"+chatID)
}

func (r *recordingEmitter) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func TestDebouncerStopsAfterQuietPeriod(t *testing.T) {
	em := &recordingEmitter{}
	d := NewDebouncer(30*time.Millisecond, em)

	d.Keystroke("c1")
	d.Keystroke("c1")
	if !d.Pending("c1") {
		t.Error("Pending(c1) = false while typing")
	}
	time.Sleep(100 * time.Millisecond)

	want := []string{"start:c1", "start:c1", "stop:c1"}
	if got := em.snapshot(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if d.Pending("c1") {
		t.Error("Pending(c1) = true after quiet period")
	}
}

func TestDebouncerSentStopsImmediately(t *testing.T) {
	em := &recordingEmitter{}
	d := NewDebouncer(time.Hour, em)

	d.Keystroke("c1")
	d.Sent("c1")
	d.Sent("c1")

	want := []string{"start:c1", "stop:c1"}
	if got := em.snapshot(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestDebouncerSentWithoutTyping(t *testing.T) {
	em := &recordingEmitter{}
	d := NewDebouncer(time.Hour, em)
	d.Sent("c1")
	if got := em.snapshot(); len(got) != 0 {
		t.Errorf("events = %v, want none", got)
	}
}

func TestDebouncerStop(t *testing.T) {
	em := &recordingEmitter{}
	d := NewDebouncer(20*time.Millisecond, em)
	d.Keystroke("c1")
	d.Keystroke("c2")
	d.Stop()
	time.Sleep(60 * time.Millisecond)

	want := []string{"start:c1", "start:c2"}
	if got := em.snapshot(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}
