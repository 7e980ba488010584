package viewer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/metrics"
)

// Registry tracks open sessions.
type Registry struct {
	deps Deps
	max  int
	idle time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. max <= 0 means unlimited; idle <= 0
// disables idle expiry.
func NewRegistry(deps Deps, max int, idle time.Duration) *Registry {
	return &Registry{deps: deps, max: max, idle: idle, sessions: make(map[string]*Session)}
}

// Create opens an empty session.
func (r *Registry) Create() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.sessions) >= r.max {
		return nil, ErrTooManySessions
	}
	s := newSession(uuid.NewString(), r.deps)
	r.sessions[s.ID] = s
	metrics.SetSessions(len(r.sessions))
	log.Info().Str("session", s.ID).Int("sessions", len(r.sessions)).Msg("session created")
	return s, nil
}

// Get returns the session and marks it used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.Touch()
	return s, nil
}

// Remove closes and forgets the session.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	metrics.SetSessions(n)
	s.Close()
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle longer than the registry's idle TTL and returns
// how many it closed.
func (r *Registry) Sweep(now time.Time) int {
	if r.idle <= 0 {
		return 0
	}
	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.IdleFor(now) >= r.idle {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()
	if len(expired) == 0 {
		return 0
	}
	metrics.SetSessions(n)
	for _, s := range expired {
		s.Close()
	}
	log.Info().Int("closed", len(expired)).Int("sessions", n).Msg("idle sessions expired")
	return len(expired)
}

// Janitor sweeps idle sessions every interval until ctx ends.
func (r *Registry) Janitor(ctx context.Context, every time.Duration) {
	if r.idle <= 0 {
		return
	}
	if every <= 0 {
		every = r.idle / 2
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
			metrics.SetSlotsInUse(r.deps.Slots.InUse())
		}
	}
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
	metrics.SetSessions(0)
}
