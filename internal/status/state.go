package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chatrelay/internal/bus"
)

// State represents a relay daemon lifecycle state.
type State string

const (
	Booting  State = "BOOTING"
	Ready    State = "READY"
	Draining State = "DRAINING"
	Stopped  State = "STOPPED"
	Error    State = "ERROR"
)

var validTransitions = map[State][]State{
	Booting:  {Ready, Error},
	Ready:    {Draining, Error},
	Draining: {Stopped, Error},
	Stopped:  {},
	Error:    {Booting, Draining},
}

// Machine tracks and enforces daemon lifecycle transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Accepting reports whether new websocket connections should be admitted.
func (m *Machine) Accepting() bool {
	return m.Current() == Ready
}

// Transition moves to a new state, publishing relay.status_changed on success.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
