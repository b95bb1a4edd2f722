package memory

import (
	"slices"
	"sync"

	"quizly-game-service/internal/app"
	"quizly-game-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Rooms are kept in creation order so matchmaking scans oldest rooms first.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
	order    []string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Create(id string, options *domain.GameOptions, maxPlayers int) (*app.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		return nil, domain.ErrRoomExists
	}
	session := app.NewSession(id, options, maxPlayers)
	s.sessions[id] = session
	s.order = append(s.order, id)
	return session, nil
}

func (s *SessionStore) Get(id string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// Snapshot copies the registered rooms so callers can iterate without holding the lock.
func (s *SessionStore) Snapshot() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id])
	}
	return out
}

func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return
	}
	delete(s.sessions, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
