package service

import (
	"context"
	"time"

	"touristid/internal/digitalid/models"
	dErrors "touristid/pkg/domain-errors"
)

// Read paths answer from local state only and never call the ledger.

// Get returns the local summary of a credential.
func (s *Service) Get(ctx context.Context, id string) (*models.Summary, error) {
	cred, err := s.findCredential(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := cred.Summary()
	return &summary, nil
}

// AccessHistory lists access log entries newest first. Restricted to the holder and admins.
func (s *Service) AccessHistory(ctx context.Context, caller models.Principal, id string, limit int) ([]*models.AccessLogEntry, error) {
	cred, err := s.findCredential(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Role != models.RoleAdmin && !(caller.Role == models.RoleTourist && caller.ID == cred.SubjectID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the credential holder or an admin may read the access history")
	}
	limit = clampLimit(limit)

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	entries, err := s.accessLogs.ListByCredential(ctx, cred.ID, limit)
	if err != nil {
		return nil, translateStoreError(err, "access history of "+cred.ID)
	}
	if entries == nil {
		entries = []*models.AccessLogEntry{}
	}
	return entries, nil
}

// Stats aggregates counts by state, access statistics since the given time,
// the most accessed credentials and event counts.
func (s *Service) Stats(ctx context.Context, since time.Time, top int) (*models.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	byState, err := s.credentials.CountByState(ctx)
	if err != nil {
		return nil, translateStoreError(err, "credential counts")
	}
	access, err := s.accessLogs.Stats(ctx, since)
	if err != nil {
		return nil, translateStoreError(err, "access statistics")
	}
	mostAccessed, err := s.credentials.MostAccessed(ctx, clampLimit(top))
	if err != nil {
		return nil, translateStoreError(err, "most accessed credentials")
	}
	events, err := s.events.CountByType(ctx)
	if err != nil {
		return nil, translateStoreError(err, "event counts")
	}

	summaries := make([]models.Summary, 0, len(mostAccessed))
	for _, c := range mostAccessed {
		summaries = append(summaries, c.Summary())
	}
	return &models.Stats{
		ByState:      byState,
		Access:       access,
		MostAccessed: summaries,
		Events:       events,
	}, nil
}

// RecentEvents lists lifecycle events newest first, optionally filtered by type.
func (s *Service) RecentEvents(ctx context.Context, eventType models.EventType, limit int) ([]*models.LifecycleEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	events, err := s.events.ListRecent(ctx, eventType, clampLimit(limit))
	if err != nil {
		return nil, translateStoreError(err, "lifecycle events")
	}
	if events == nil {
		events = []*models.LifecycleEvent{}
	}
	return events, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	}
	return limit
}
