package api

import (
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionCookie carries the admin session id.
const SessionCookie = "wagateway_session"

// AuthGate admits requests carrying the exact bearer token or a live admin
// session cookie.
type AuthGate struct {
	expected []byte
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]time.Time
}

// NewAuthGate returns a gate for token. Sessions issued by it expire after ttl.
func NewAuthGate(token string, ttl time.Duration) *AuthGate {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AuthGate{
		expected: []byte("Bearer " + token),
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]time.Time),
	}
}

// Middleware rejects unauthorized requests with 403 before next runs.
func (g *AuthGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Authorized(r) {
			respondError(w, http.StatusForbidden, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Authorized reports whether r passes the gate.
func (g *AuthGate) Authorized(r *http.Request) bool {
	return g.BearerValid(r) || g.SessionValid(r)
}

// BearerValid compares the Authorization header in constant time.
func (g *AuthGate) BearerValid(r *http.Request) bool {
	return g.tokenMatches(r.Header.Get("Authorization"))
}

func (g *AuthGate) tokenMatches(header string) bool {
	return subtle.ConstantTimeCompare([]byte(header), g.expected) == 1
}

// SessionValid reports whether r carries an unexpired session cookie.
func (g *AuthGate) SessionValid(r *http.Request) bool {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	exp, ok := g.sessions[c.Value]
	if !ok {
		return false
	}
	if !g.now().Before(exp) {
		delete(g.sessions, c.Value)
		return false
	}
	return true
}

// IssueSession starts an admin session and sets its cookie on w.
func (g *AuthGate) IssueSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	now := g.now()
	exp := now.Add(g.ttl)

	g.mu.Lock()
	for sid, e := range g.sessions {
		if !now.Before(e) {
			delete(g.sessions, sid)
		}
	}
	g.sessions[id] = exp
	g.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		Expires:  exp,
		MaxAge:   int(g.ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

// RevokeSession ends the session carried by r, if any.
func (g *AuthGate) RevokeSession(r *http.Request) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return
	}
	g.mu.Lock()
	delete(g.sessions, c.Value)
	g.mu.Unlock()
}

// Sessions returns the number of tracked sessions.
func (g *AuthGate) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}
