package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/WmBreck/2nd-opinion-construction/internal/intake"
)

// SessionRegistry holds the live intake sessions of this process.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*intake.Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[uuid.UUID]*intake.Session)}
}

func (r *SessionRegistry) Create(opts intake.Options, now time.Time) *intake.Session {
	s := intake.NewSession(uuid.New(), opts, now)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

func (r *SessionRegistry) Get(id uuid.UUID) (*intake.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Acquire returns the registered session with its flight lock held. The
// lookup and the lock happen under the registry lock so a sweep or close
// cannot drop the session in between.
func (r *SessionRegistry) Acquire(id uuid.UUID) (*intake.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !s.TryAcquire() {
		return nil, intake.ErrBusy
	}
	return s, nil
}

// Remove forgets the session at once. Its staged files are released now,
// or by the step in flight once it finishes.
func (r *SessionRegistry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.ResetWhenIdle()
	}
	return ok
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// SweepIdle drops sessions untouched for longer than ttl. Sessions with a
// step in flight are left for the next sweep.
func (r *SessionRegistry) SweepIdle(now time.Time, ttl time.Duration) int {
	r.mu.Lock()
	var stale []*intake.Session
	for id, s := range r.sessions {
		if now.Sub(s.TouchedAt()) <= ttl || !s.TryAcquire() {
			continue
		}
		delete(r.sessions, id)
		stale = append(stale, s)
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.Reset()
		s.Release()
	}
	return len(stale)
}
