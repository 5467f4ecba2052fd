package credential

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"touristid/internal/digitalid/models"
	"touristid/pkg/platform/sentinel"
)

// Error Contract:
// - ErrNotFound when the credential (or an ACTIVE one for the subject) does not exist
// - ErrConflict when the ID is taken or the subject already holds an ACTIVE credential
// - ErrInvalidState when a transition finds the row in a different state

// InMemoryStore keeps credentials in memory for tests and local development.
// All mutations happen under one lock so counters and transitions are atomic.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*models.Credential
	active map[string]string // subject -> ACTIVE credential id
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[string]*models.Credential),
		active: make(map[string]string),
	}
}

// LockSubject is a no-op; the in-memory transaction runner already serializes per subject.
func (s *InMemoryStore) LockSubject(_ context.Context, _ string) error {
	return nil
}

func (s *InMemoryStore) Create(_ context.Context, c *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.ID]; ok {
		return fmt.Errorf("credential %s exists: %w", c.ID, sentinel.ErrConflict)
	}
	if c.State == models.StateActive {
		if _, ok := s.active[c.SubjectID]; ok {
			return fmt.Errorf("subject %s already has an active credential: %w", c.SubjectID, sentinel.ErrConflict)
		}
		s.active[c.SubjectID] = c.ID
	}
	s.byID[c.ID] = c.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) FindActiveBySubject(_ context.Context, subjectID string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[subjectID]
	if !ok {
		return nil, fmt.Errorf("active credential for %s: %w", subjectID, sentinel.ErrNotFound)
	}
	return s.byID[id].Clone(), nil
}

func (s *InMemoryStore) Transition(_ context.Context, id string, from, to models.State, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	if c.State != from {
		return fmt.Errorf("credential %s is %s, want %s: %w", id, c.State, from, sentinel.ErrInvalidState)
	}
	c.State = to
	c.UpdatedAt = at
	if from == models.StateActive && s.active[c.SubjectID] == id {
		delete(s.active, c.SubjectID)
	}
	return nil
}

func (s *InMemoryStore) RecordAccess(_ context.Context, id string, at time.Time, emergency bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return 0, fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	c.AccessCount++
	if c.LastAccessedAt == nil || at.After(*c.LastAccessedAt) {
		t := at
		c.LastAccessedAt = &t
	}
	if emergency {
		c.EmergencyOverride = true
	}
	c.UpdatedAt = at
	return c.AccessCount, nil
}

func (s *InMemoryStore) MarkConsentConfigured(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	c.ConsentConfigured = true
	c.UpdatedAt = at
	return nil
}

// ListExpirable returns up to limit ACTIVE credentials due at now with ID > afterID, ordered by ID.
func (s *InMemoryStore) ListExpirable(_ context.Context, now time.Time, afterID string, limit int) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Credential
	for _, id := range s.active {
		c := s.byID[id]
		if c.ID > afterID && c.IsExpirable(now) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) CountByState(_ context.Context) (map[models.State]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.State]int64, len(models.AllStates))
	for _, st := range models.AllStates {
		out[st] = 0
	}
	for _, c := range s.byID {
		out[c.State]++
	}
	return out, nil
}

func (s *InMemoryStore) MostAccessed(_ context.Context, limit int) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Credential, 0, len(s.byID))
	for _, c := range s.byID {
		if c.AccessCount > 0 {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccessCount != out[j].AccessCount {
			return out[i].AccessCount > out[j].AccessCount
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
