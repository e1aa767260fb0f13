package memory

import (
	"sync"

	"lesson-quiz-service/internal/session"
)

// SessionRegistry is an in-memory implementation of app.SessionRegistry.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session.Controller
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*session.Controller),
	}
}

func (r *SessionRegistry) Register(id string, c *session.Controller) {
	r.mu.Lock()
	prev, ok := r.sessions[id]
	r.sessions[id] = c
	r.mu.Unlock()

	if ok && prev != c {
		prev.Close()
	}
}

func (r *SessionRegistry) Get(id string) (*session.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[id]
	return c, ok
}

// Remove forgets c if it is still the controller registered under id. It does not close c.
func (r *SessionRegistry) Remove(id string, c *session.Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[id] == c {
		delete(r.sessions, id)
	}
}

func (r *SessionRegistry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll closes and forgets every registered controller.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session.Controller)
	r.mu.Unlock()

	for _, c := range sessions {
		c.Close()
	}
}
