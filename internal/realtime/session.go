package realtime

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var ErrIllegalTransition = errors.New("illegal session state transition")

type State string

const (
	StateConnecting    State = "connecting"
	StateAuthenticated State = "authenticated"
	StateActive        State = "active"
	StateDisconnected  State = "disconnected"
	StateRejected      State = "rejected"
)

var transitions = map[State][]State{
	StateConnecting:    {StateAuthenticated, StateRejected},
	StateAuthenticated: {StateActive, StateDisconnected},
	StateActive:        {StateDisconnected},
}

const DefaultSendBuffer = 64

// Session is one live connection of one user. A reconnect is a new session.
type Session struct {
	ID     string
	UserID int64
	Role   string

	mu    sync.Mutex
	state State

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(sendBuffer int) *Session {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Session{
		ID:    uuid.NewString(),
		state: StateConnecting,
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, next := range transitions[s.state] {
		if next == to {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.state, to)
}

// Authenticate binds the verified identity to the session.
func (s *Session) Authenticate(userID int64, role string) error {
	if err := s.transition(StateAuthenticated); err != nil {
		return err
	}
	s.mu.Lock()
	s.UserID, s.Role = userID, role
	s.mu.Unlock()
	return nil
}

func (s *Session) Activate() error { return s.transition(StateActive) }

func (s *Session) Reject() error {
	err := s.transition(StateRejected)
	s.close()
	return err
}

func (s *Session) Disconnect() error {
	err := s.transition(StateDisconnected)
	s.close()
	return err
}

// Enqueue queues data without blocking. It reports false when the buffer is
// full or the session is closed; the frame is dropped in both cases.
func (s *Session) Enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}
