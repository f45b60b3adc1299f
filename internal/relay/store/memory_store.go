package store

import (
	"context"
	"sync"

	"github.com/cb3tech/moshcast-live/internal/domain"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Snapshot
}

// NewMemoryStore creates a process-local session store.
func NewMemoryStore() SessionStore {
	return &memoryStore{
		sessions: make(map[string]domain.Snapshot),
	}
}

func (s *memoryStore) Save(_ context.Context, snap *domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[snap.HostID] = *snap
	return nil
}

func (s *memoryStore) Get(_ context.Context, hostID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.sessions[hostID]
	if !ok {
		return nil, nil
	}
	cp := snap
	return &cp, nil
}

func (s *memoryStore) Delete(_ context.Context, hostID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, hostID)
	return nil
}

func (s *memoryStore) ListActive(_ context.Context) ([]*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Snapshot, 0, len(s.sessions))
	for _, snap := range s.sessions {
		cp := snap
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memoryStore) Close() error {
	return nil
}
