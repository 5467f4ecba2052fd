package credential

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"touristid/internal/digitalid/models"
	"touristid/pkg/platform/sentinel"
)

type store interface {
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

// contractSuite holds the behaviour every credential store must share.
// newStore returns an empty store for each test.
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

func (s *contractSuite) create(id, subject string, issued time.Time, days int) *models.Credential {
	issuer := models.Principal{ID: "kiosk-1", Role: models.RoleKiosk}
	c, err := models.NewCredential(id, subject, "0xwallet", "hash-"+id, "kr_"+id, issued, issued.AddDate(0, 0, days), nil, issuer, "0xmint-"+id)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, c))
	return c
}

func (s *contractSuite) TestCreateAndFind() {
	s.create("dtid-1", "T-1", s.now, 30)

	got, err := s.store.FindByID(s.ctx, "dtid-1")
	s.Require().NoError(err)
	s.Equal("T-1", got.SubjectID)
	s.Equal(models.StateActive, got.State)
	s.True(got.ExpiresAt.Equal(s.now.AddDate(0, 0, 30)))

	active, err := s.store.FindActiveBySubject(s.ctx, "T-1")
	s.Require().NoError(err)
	s.Equal("dtid-1", active.ID)

	_, err = s.store.FindByID(s.ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindActiveBySubject(s.ctx, "nobody")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestOneActivePerSubject() {
	s.create("dtid-1", "T-1", s.now, 30)

	issuer := models.Principal{ID: "kiosk-1", Role: models.RoleKiosk}
	dup, err := models.NewCredential("dtid-2", "T-1", "0xw", "h", "kr", s.now, s.now.AddDate(0, 0, 5), nil, issuer, "0x2")
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)

	s.Require().NoError(s.store.Transition(s.ctx, "dtid-1", models.StateActive, models.StateExpired, s.now))
	s.Require().NoError(s.store.Create(s.ctx, dup), "a retired credential frees the subject")
}

func (s *contractSuite) TestTransitionChecksCurrentState() {
	s.create("dtid-1", "T-1", s.now, 30)

	s.Require().NoError(s.store.Transition(s.ctx, "dtid-1", models.StateActive, models.StateLost, s.now))
	err := s.store.Transition(s.ctx, "dtid-1", models.StateActive, models.StateExpired, s.now)
	s.ErrorIs(err, sentinel.ErrInvalidState)
	err = s.store.Transition(s.ctx, "missing", models.StateActive, models.StateExpired, s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindActiveBySubject(s.ctx, "T-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestConcurrentRecordAccessLosesNothing() {
	s.create("dtid-1", "T-1", s.now, 30)

	const n = 25
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.RecordAccess(s.ctx, "dtid-1", s.now.Add(time.Duration(i)*time.Second), i == 7)
			s.NoError(err)
		}()
	}
	wg.Wait()

	got, err := s.store.FindByID(s.ctx, "dtid-1")
	s.Require().NoError(err)
	s.Equal(int64(n), got.AccessCount)
	s.True(got.EmergencyOverride)
	s.Require().NotNil(got.LastAccessedAt)
	s.True(got.LastAccessedAt.Equal(s.now.Add((n-1)*time.Second)), "last access keeps the latest time")

	_, err = s.store.RecordAccess(s.ctx, "missing", s.now, false)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestMarkConsentConfigured() {
	s.create("dtid-1", "T-1", s.now, 30)
	s.Require().NoError(s.store.MarkConsentConfigured(s.ctx, "dtid-1", s.now))
	got, err := s.store.FindByID(s.ctx, "dtid-1")
	s.Require().NoError(err)
	s.True(got.ConsentConfigured)
	s.ErrorIs(s.store.MarkConsentConfigured(s.ctx, "missing", s.now), sentinel.ErrNotFound)
}

func (s *contractSuite) TestListExpirablePages() {
	past := s.now.AddDate(0, 0, -40)
	for i := range 5 {
		s.create(fmt.Sprintf("dtid-%d", i), fmt.Sprintf("T-%d", i), past, 30)
	}
	s.create("dtid-fresh", "T-fresh", s.now, 30)
	s.Require().NoError(s.store.Transition(s.ctx, "dtid-2", models.StateActive, models.StateLost, s.now))

	first, err := s.store.ListExpirable(s.ctx, s.now, "", 2)
	s.Require().NoError(err)
	s.Require().Len(first, 2)
	s.Equal("dtid-0", first[0].ID)
	s.Equal("dtid-1", first[1].ID)

	rest, err := s.store.ListExpirable(s.ctx, s.now, first[1].ID, 10)
	s.Require().NoError(err)
	ids := make([]string, 0, len(rest))
	for _, c := range rest {
		ids = append(ids, c.ID)
	}
	s.Equal([]string{"dtid-3", "dtid-4"}, ids)
}

func (s *contractSuite) TestCountsAndMostAccessed() {
	s.create("dtid-a", "T-a", s.now, 30)
	s.create("dtid-b", "T-b", s.now, 30)
	s.create("dtid-c", "T-c", s.now, 30)
	for range 3 {
		_, err := s.store.RecordAccess(s.ctx, "dtid-b", s.now, false)
		s.Require().NoError(err)
	}
	_, err := s.store.RecordAccess(s.ctx, "dtid-a", s.now, false)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Transition(s.ctx, "dtid-c", models.StateActive, models.StateRevoked, s.now))

	counts, err := s.store.CountByState(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), counts[models.StateActive])
	s.Equal(int64(1), counts[models.StateRevoked])
	s.Equal(int64(0), counts[models.StateLost])

	top, err := s.store.MostAccessed(s.ctx, 5)
	s.Require().NoError(err)
	s.Require().Len(top, 2)
	s.Equal("dtid-b", top[0].ID)
	s.Equal("dtid-a", top[1].ID)
}

func TestInMemoryStoreContract(t *testing.T) {
	suite.Run(t, &contractSuite{newStore: func() store { return NewInMemory() }})
}
