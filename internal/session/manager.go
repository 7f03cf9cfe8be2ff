package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/example/id-verify/internal/capture"
)

// Manager tracks the live verification sessions for this process. Each
// session is owned by exactly one flow instance; the mutex only guards the
// registry map, not per-session state.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session registry.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create starts a new session in AwaitingSelfie holding the uploaded card
// images.
func (m *Manager) Create(flow Flow, front, back capture.Image) *Session {
	s := &Session{
		ID:    uuid.NewString(),
		Flow:  flow,
		Phase: PhaseAwaitingSelfie,
	}
	s.Captures.Front = front
	s.Captures.Back = back

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the live session for the identifier.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove ends a session, discarding its images and derived data. Removing
// an unknown identifier is a no-op.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Discard()
	}
}

// Len reports how many sessions are currently live.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
