package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/opschat/internal/bus"
)

// State is a connection lifecycle state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
)

// validTransitions defines allowed state transitions. Disconnected is both
// the initial state and the terminal one reached on logout.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Reconnecting, Disconnected},
	Connected:    {Reconnecting, Disconnected},
	Reconnecting: {Connected, Disconnected},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	m.mu.Unlock()

	m.bus.Publish(bus.Event{
		Kind:      bus.KindConnectionState,
		Timestamp: time.Now(),
		Payload:   StatusChange{From: from, To: to},
	})
	return nil
}

// Reset forces the machine back to Disconnected regardless of the current
// state. Used on logout, which is valid from every state.
func (m *Machine) Reset() {
	m.mu.Lock()
	from := m.current
	m.current = Disconnected
	m.since = time.Now()
	m.mu.Unlock()
	if from == Disconnected {
		return
	}
	m.bus.Publish(bus.Event{
		Kind:      bus.KindConnectionState,
		Timestamp: time.Now(),
		Payload:   StatusChange{From: from, To: Disconnected},
	})
}

// StatusChange is the payload for state change events.
type StatusChange struct {
	From State
	To   State
}
