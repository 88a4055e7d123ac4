package authservice

import (
	"log/slog"
	"slices"
)

// State is the phase of the token lifecycle the manager is in
type State int

const (
	Idle State = iota
	Refreshing
	Authorizing
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Refreshing:
		return "refreshing"
	case Authorizing:
		return "authorizing"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var transitions = map[State][]State{
	Idle:          {Refreshing, Authorizing, Authenticated},
	Refreshing:    {Authenticated, Authorizing, Failed},
	Authorizing:   {Authenticated, Failed},
	Authenticated: {Refreshing, Authorizing, Idle},
	Failed:        {Refreshing, Authorizing, Authenticated, Idle},
}

// CanTransition reports whether the manager may move from one state to the other, staying in a state is always allowed
func CanTransition(from State, to State) bool {
	if from == to {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// transition moves to the next state, an invalid transition is logged and ignored
func (m *Manager) transition(to State) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	if !CanTransition(m.state, to) {
		slog.Warn("AUTH SERVICE", "message", "ignoring invalid state transition", "from", m.state, "to", to)
		return false
	}
	if m.state != to {
		slog.Debug("AUTH SERVICE", "message", "state changed", "from", m.state, "to", to)
	}
	m.state = to
	return true
}

// State returns the current phase of the token lifecycle
func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state
}
