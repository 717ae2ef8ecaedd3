package api

import (
	"sync"

	"kanban-api/domain"
)

// sessionRegistry hands out one board session per project so that concurrent
// requests for the same project serialise on the session mutex.
type sessionRegistry struct {
	mu       sync.Mutex
	store    domain.SnapshotStorage
	sessions map[string]*domain.Session
}

func newSessionRegistry(store domain.SnapshotStorage) *sessionRegistry {
	return &sessionRegistry{
		store:    store,
		sessions: make(map[string]*domain.Session),
	}
}

func (r *sessionRegistry) session(projectID string) *domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[projectID]
	if !ok {
		s = domain.NewSession(projectID, r.store)
		r.sessions[projectID] = s
	}
	return s
}
