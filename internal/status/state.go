package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/sigtui/internal/bus"
)

// EventChanged is the bus kind published on every transition.
const EventChanged = "session.status_changed"

// State is the connection state shown in the status bar.
type State string

const (
	Starting     State = "STARTING"
	Linking      State = "LINKING"
	Connecting   State = "CONNECTING"
	Ready        State = "READY"
	Disconnected State = "DISCONNECTED"
	Error        State = "ERROR"
)

var validTransitions = map[State][]State{
	Starting:     {Linking, Connecting, Error},
	Linking:      {Connecting, Error},
	Connecting:   {Ready, Disconnected, Error},
	Ready:        {Disconnected, Error},
	Disconnected: {Connecting, Error},
	Error:        {Starting},
}

// Label is the short human form of a state.
func (s State) Label() string {
	switch s {
	case Starting:
		return "starting"
	case Linking:
		return "linking device"
	case Connecting:
		return "connecting"
	case Ready:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Error:
		return "error"
	}
	return string(s)
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Starting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Starting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit(EventChanged, StatusChange{From: from, To: to})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
