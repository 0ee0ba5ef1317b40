package vault

import (
	"fmt"
	"sync"

	"github.com/multiplycharity/multiply-monorepo/internal/common"
)

// State is where a client session stands.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	SessionPersisted
	Recovered
	Expired
	Revoked
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case SessionPersisted:
		return "session_persisted"
	case Recovered:
		return "recovered"
	case Expired:
		return "expired"
	case Revoked:
		return "revoked"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal states need a full login to leave.
func (s State) Terminal() bool { return s == Expired || s == Revoked }

var transitions = map[State][]State{
	Authenticated:    {SessionPersisted, Expired, Revoked},
	SessionPersisted: {Recovered, SessionPersisted, Expired, Revoked},
	Recovered:        {Recovered, SessionPersisted, Expired, Revoked},
}

// CanTransition reports whether from -> to is legal. Login or register
// (-> Authenticated) and logout (-> Unauthenticated) are allowed from
// anywhere.
func (s State) CanTransition(to State) bool {
	if to == Authenticated || to == Unauthenticated {
		return true
	}
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Machine tracks the state of one client session.
type Machine struct {
	mu    sync.Mutex
	state State
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to the next state or fails with common.ErrInvalidState.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", common.ErrInvalidState, m.state, to)
	}
	m.state = to
	return nil
}

// Reset forces a state, for restoring a session from local storage.
func (m *Machine) Reset(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// StateForError maps a session error to the terminal state it implies.
func StateForError(err error) (State, bool) {
	switch common.KindOf(err) {
	case common.KindSessionExpired, common.KindSessionInvalid:
		return Expired, true
	case common.KindSessionRevoked:
		return Revoked, true
	}
	return 0, false
}
