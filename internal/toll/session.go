package toll

import (
	"sync"
	"time"

	"tollgrid/internal/topics"
)

// Phase is the explicit per-session state. Together with tracker membership
// it replaces the implicit "state as join of maps" the saga would otherwise
// rely on.
type Phase string

const (
	// PhaseOpen: entry accepted, vehicle on the highway.
	PhaseOpen Phase = "open"
	// PhaseAwaitingPayment: manual exit priced, INSERT_PAYMENT outstanding.
	PhaseAwaitingPayment Phase = "awaiting_payment"
)

// Session is one vehicle's in-progress crossing, owned exclusively by the
// orchestrator of the tollbooth that observed entry.
type Session struct {
	PassID           string
	Channel          topics.Channel
	EntryTollboothID string
	Plate            string
	EntryAt          time.Time
	Phase            Phase
}

// SessionStore holds one active crossing per pass id. Concurrent command
// handlers share it; the last writer for a pass id wins.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]Session),
	}
}

func (s *SessionStore) Put(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.PassID] = session
}

func (s *SessionStore) Get(passID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[passID]
	return session, ok
}

func (s *SessionStore) Remove(passID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, passID)
}

// SetPhase transitions an existing session; it reports false when no session
// exists for the pass id.
func (s *SessionStore) SetPhase(passID string, phase Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[passID]
	if !ok {
		return false
	}
	session.Phase = phase
	s.sessions[passID] = session
	return true
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
