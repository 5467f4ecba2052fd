package accesslog

import (
	"context"
	"sort"
	"sync"
	"time"

	"touristid/internal/digitalid/models"
)

// InMemoryStore is an append-only access log for tests and local development.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*models.AccessLogEntry
	seen    map[string]struct{}
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{seen: make(map[string]struct{})}
}

// Append stores e unless an entry with the same ID exists. inserted reports which.
func (s *InMemoryStore) Append(_ context.Context, e *models.AccessLogEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[e.ID]; ok {
		return false, nil
	}
	cp := *e
	cp.Categories = append([]models.DataCategory(nil), e.Categories...)
	s.entries = append(s.entries, &cp)
	s.seen[e.ID] = struct{}{}
	return true, nil
}

// ListByCredential returns entries newest first.
func (s *InMemoryStore) ListByCredential(_ context.Context, credentialID string, limit int) ([]*models.AccessLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AccessLogEntry
	for _, e := range s.entries {
		if e.CredentialID == credentialID {
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

func (s *InMemoryStore) CountByCredential(_ context.Context, credentialID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.entries {
		if e.CredentialID == credentialID {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Stats(_ context.Context, since time.Time) (models.AccessStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := models.AccessStats{ByRole: make(map[models.Role]int64), Since: since}
	for _, e := range s.entries {
		if e.CreatedAt.Before(since) {
			continue
		}
		stats.Total++
		if e.Emergency {
			stats.Emergency++
		}
		stats.ByRole[e.AccessorRole]++
	}
	return stats, nil
}
