package event

import (
	"context"
	"sort"
	"sync"

	"touristid/internal/digitalid/models"
)

// InMemoryStore keeps lifecycle events in memory. Appends are idempotent on ID.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []*models.LifecycleEvent
	seen   map[string]struct{}
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{seen: make(map[string]struct{})}
}

func (s *InMemoryStore) Append(_ context.Context, e *models.LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[e.ID]; ok {
		return nil
	}
	cp := *e
	s.events = append(s.events, &cp)
	s.seen[e.ID] = struct{}{}
	return nil
}

// ListRecent returns up to limit events, newest first. A non-empty eventType filters.
func (s *InMemoryStore) ListRecent(_ context.Context, eventType models.EventType, limit int) ([]*models.LifecycleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.LifecycleEvent, 0, len(s.events))
	for _, e := range s.events {
		if eventType == "" || e.Type == eventType {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) CountByType(_ context.Context) (map[models.EventType]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.EventType]int64)
	for _, e := range s.events {
		out[e.Type]++
	}
	return out, nil
}
