package event

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"touristid/internal/digitalid/models"
)

type store interface {
	Append(ctx context.Context, e *models.LifecycleEvent) error
	ListRecent(ctx context.Context, eventType models.EventType, limit int) ([]*models.LifecycleEvent, error)
	CountByType(ctx context.Context) (map[models.EventType]int64, error)
}

type contractSuite struct {
	suite.Suite
	newStore func() store
	store    store
	ctx      context.Context
	now      time.Time
}

func (s *contractSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *contractSuite) event(t models.EventType, offset time.Duration) *models.LifecycleEvent {
	return &models.LifecycleEvent{
		ID:           uuid.NewString(),
		Type:         t,
		CredentialID: "dtid-1",
		SubjectID:    "T-1",
		LedgerTxRef:  "0xref",
		Metadata:     map[string]any{"reason": "test"},
		CreatedAt:    s.now.Add(offset),
	}
}

func (s *contractSuite) TestAppendIsIdempotent() {
	e := s.event(models.EventIssued, 0)
	s.Require().NoError(s.store.Append(s.ctx, e))
	s.Require().NoError(s.store.Append(s.ctx, e))

	counts, err := s.store.CountByType(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), counts[models.EventIssued])
}

func (s *contractSuite) TestListRecentFiltersAndOrders() {
	s.Require().NoError(s.store.Append(s.ctx, s.event(models.EventIssued, 0)))
	s.Require().NoError(s.store.Append(s.ctx, s.event(models.EventAccessed, time.Minute)))
	s.Require().NoError(s.store.Append(s.ctx, s.event(models.EventAccessed, 2*time.Minute)))
	sweep := &models.LifecycleEvent{ID: uuid.NewString(), Type: models.EventAutoExpirationRun, CreatedAt: s.now.Add(3 * time.Minute)}
	s.Require().NoError(s.store.Append(s.ctx, sweep))

	all, err := s.store.ListRecent(s.ctx, "", 0)
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	s.Equal(models.EventAutoExpirationRun, all[0].Type)
	s.Empty(all[0].CredentialID, "sweep events carry no credential")

	accessed, err := s.store.ListRecent(s.ctx, models.EventAccessed, 1)
	s.Require().NoError(err)
	s.Require().Len(accessed, 1)
	s.True(accessed[0].CreatedAt.Equal(s.now.Add(2 * time.Minute)))
	s.Equal("test", accessed[0].Metadata["reason"])

	counts, err := s.store.CountByType(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), counts[models.EventAccessed])
	s.Equal(int64(1), counts[models.EventAutoExpirationRun])
}

func TestInMemoryStoreContract(t *testing.T) {
	suite.Run(t, &contractSuite{newStore: func() store { return NewInMemory() }})
}
