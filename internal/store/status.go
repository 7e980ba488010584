// Package store persists per-session progress so it survives the HTTP request
// that started a load and can be read by other replicas.
package store

import (
	"context"
	"sync"
	"time"
)

// Session status values.
const (
	StatusLoading   = "loading"
	StatusRendering = "rendering"
	StatusReady     = "ready"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

type Status struct {
	Status      string    `json:"status"`
	Generation  uint64    `json:"generation"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Pages       int       `json:"pages"`
	Rendered    int       `json:"rendered"`
	Upgraded    int       `json:"upgraded"`
	Failed      int       `json:"failed"`
	Tier        string    `json:"tier,omitempty"`
	Phase       string    `json:"phase,omitempty"`
	Message     string    `json:"message,omitempty"`
	Updated     time.Time `json:"updated"`
}

// StatusStore is implemented by RedisStatus and MemoryStatus.
type StatusStore interface {
	Set(ctx context.Context, id string, st Status) error
	Get(ctx context.Context, id string) (Status, bool, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStatus keeps statuses in process, used when no REDIS_URL is set.
type MemoryStatus struct {
	mu sync.RWMutex
	m  map[string]Status
}

func NewMemoryStatus() *MemoryStatus { return &MemoryStatus{m: make(map[string]Status)} }

func (s *MemoryStatus) Set(_ context.Context, id string, st Status) error {
	if st.Updated.IsZero() {
		st.Updated = time.Now()
	}
	s.mu.Lock()
	s.m[id] = st
	s.mu.Unlock()
	return nil
}

func (s *MemoryStatus) Get(_ context.Context, id string) (Status, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.m[id]
	return st, ok, nil
}

func (s *MemoryStatus) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
	return nil
}
