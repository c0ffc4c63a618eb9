package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/atmx/surveillance-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[string]*model.Alert
	order  []string // insertion order, oldest first
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts: make(map[string]*model.Alert),
	}
}

func (s *MemoryStore) InsertAlerts(_ context.Context, alerts []model.Alert) ([]model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []model.Alert
	for _, a := range alerts {
		if _, exists := s.alerts[a.AlertID]; exists {
			continue
		}
		// Store a copy to avoid external mutation.
		copy := a
		s.alerts[a.AlertID] = &copy
		s.order = append(s.order, a.AlertID)
		inserted = append(inserted, a)
	}
	return inserted, nil
}

func (s *MemoryStore) GetAlert(_ context.Context, id string) (*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) ListAlerts(_ context.Context, f Filter) ([]model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Alert
	for i := len(s.order) - 1; i >= 0; i-- {
		a := s.alerts[s.order[i]]
		if !f.match(a) {
			continue
		}
		result = append(result, *a)
		if f.Limit > 0 && len(result) == f.Limit {
			break
		}
	}
	return result, nil
}
