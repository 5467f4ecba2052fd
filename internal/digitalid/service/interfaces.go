package service

import (
	"context"
	"time"

	"touristid/internal/digitalid/models"
)

// Store interfaces follow the sentinel error contract in pkg/platform/sentinel.

type CredentialStore interface {
	LockSubject(ctx context.Context, subjectID string) error
	Create(ctx context.Context, c *models.Credential) error
	FindByID(ctx context.Context, id string) (*models.Credential, error)
	FindActiveBySubject(ctx context.Context, subjectID string) (*models.Credential, error)
	Transition(ctx context.Context, id string, from, to models.State, at time.Time) error
	RecordAccess(ctx context.Context, id string, at time.Time, emergency bool) (int64, error)
	MarkConsentConfigured(ctx context.Context, id string, at time.Time) error
	ListExpirable(ctx context.Context, now time.Time, afterID string, limit int) ([]*models.Credential, error)
	CountByState(ctx context.Context) (map[models.State]int64, error)
	MostAccessed(ctx context.Context, limit int) ([]*models.Credential, error)
}

type AccessLogStore interface {
	Append(ctx context.Context, e *models.AccessLogEntry) (inserted bool, err error)
	ListByCredential(ctx context.Context, credentialID string, limit int) ([]*models.AccessLogEntry, error)
	CountByCredential(ctx context.Context, credentialID string) (int64, error)
	Stats(ctx context.Context, since time.Time) (models.AccessStats, error)
}

type EventStore interface {
	Append(ctx context.Context, e *models.LifecycleEvent) error
	ListRecent(ctx context.Context, eventType models.EventType, limit int) ([]*models.LifecycleEvent, error)
	CountByType(ctx context.Context) (map[models.EventType]int64, error)
}

// Stores groups the stores a transaction may touch.
type Stores struct {
	Credentials CredentialStore
	AccessLogs  AccessLogStore
	Events      EventStore
}

// StoreTx provides a transactional boundary for store mutations.
// Implementations may wrap a database transaction or, in-memory, a sharded lock.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(stores Stores) error) error
}

// Outbox receives local writes that failed after the ledger confirmed them.
// PendingForSubject reports a queued issue or loss write that will give the subject
// a new ACTIVE credential once applied.
type Outbox interface {
	Enqueue(ctx context.Context, w models.PendingWrite) error
	PendingForSubject(ctx context.Context, subjectID string) (credentialID string, ok bool, err error)
}
