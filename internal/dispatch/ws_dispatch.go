package dispatch

import (
	"errors"
	"sync"

	"github.com/example/ride-pool/internal/observability"
)

// Conn is the subset of *websocket.Conn a session writes to.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Session is one connected client of a user.
type Session struct {
	conn Conn
	mu   sync.Mutex
}

func (s *Session) Send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// Registry holds the open sessions of each user. A user may have several tabs
// or devices connected at once.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
}

func NewRegistry() *Registry { return &Registry{sessions: make(map[string]map[*Session]struct{})} }

func (r *Registry) Add(userID string, conn Conn) *Session {
	s := &Session{conn: conn}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[userID]
	if !ok {
		set = make(map[*Session]struct{})
		r.sessions[userID] = set
	}
	set[s] = struct{}{}
	observability.RealtimeSessions.Inc()
	return s
}

// Remove drops the session and closes its connection. Removing twice is a no-op.
func (r *Registry) Remove(userID string, s *Session) {
	r.mu.Lock()
	set, ok := r.sessions[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, ok := set[s]; !ok {
		r.mu.Unlock()
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.sessions, userID)
	}
	r.mu.Unlock()
	observability.RealtimeSessions.Dec()
	_ = s.conn.Close()
}

// Deliver writes msg to every session of the user. Sessions that fail to
// write are dropped.
func (r *Registry) Deliver(userID string, msg Message) error {
	r.mu.RLock()
	set := r.sessions[userID]
	targets := make([]*Session, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	r.mu.RUnlock()
	if len(targets) == 0 {
		return ErrNoSession
	}

	var errs []error
	for _, s := range targets {
		if err := s.Send(msg); err != nil {
			errs = append(errs, err)
			r.Remove(userID, s)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID])
}

var ErrNoSession = &NoSessionError{}

type NoSessionError struct{}

func (n *NoSessionError) Error() string { return "no ws session" }
