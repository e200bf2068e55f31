package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionCookie carries the opaque session token. The tenant/project
// selection itself stays server-side.
const sessionCookie = "depara_sessao"

type sessionEntry struct {
	projeto string
	expires time.Time
}

// Sessions is the in-memory session table mapping tokens to the selected
// project. The authentication flow that would gate it is out of scope; the
// table only remembers which project an operator picked.
type Sessions struct {
	ttl time.Duration

	mu sync.Mutex
	m  map[string]sessionEntry
}

// NewSessions creates a session table with the given entry lifetime.
func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{ttl: ttl, m: map[string]sessionEntry{}}
}

// Create registers a new session for a project and returns its token.
func (s *Sessions) Create(projeto string) string {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[token] = sessionEntry{projeto: projeto, expires: time.Now().Add(s.ttl)}
	return token
}

// Project returns the project for a token, pruning expired entries.
func (s *Sessions) Project(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[token]
	if !ok {
		return "", false
	}
	if time.Now().After(e.expires) {
		delete(s.m, token)
		return "", false
	}
	return e.projeto, true
}

// projectFromRequest reads the session cookie and resolves the project.
func (s *Sessions) projectFromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return "", false
	}
	return s.Project(c.Value)
}
