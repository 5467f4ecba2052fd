package accesslog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"touristid/internal/digitalid/models"
)

type store interface {
	Append(ctx context.Context, e *models.AccessLogEntry) (bool, error)
	ListByCredential(ctx context.Context, credentialID string, limit int) ([]*models.AccessLogEntry, error)
	CountByCredential(ctx context.Context, credentialID string) (int64, error)
	Stats(ctx context.Context, since time.Time) (models.AccessStats, error)
}

// contractSuite runs against any access log store. seed makes the credential
// IDs used by a test exist where the backend enforces references.
type contractSuite struct {
	suite.Suite
	newStore func() store
	seed     func(credentialIDs ...string)
	store    store
	ctx      context.Context
	now      time.Time
}

func (s *contractSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.seed("dtid-1", "dtid-2")
}

func (s *contractSuite) entry(credentialID string, role models.Role, at time.Time, emergency bool) *models.AccessLogEntry {
	return &models.AccessLogEntry{
		ID:           uuid.NewString(),
		CredentialID: credentialID,
		AccessorID:   string(role) + "-1",
		AccessorRole: role,
		Reason:       "check",
		Emergency:    emergency,
		LedgerTxRef:  "0xaccess",
		Categories:   []models.DataCategory{models.DataPersonal, models.DataBooking},
		Device:       "Firefox on Linux",
		CreatedAt:    at,
	}
}

func (s *contractSuite) TestAppendIsIdempotent() {
	e := s.entry("dtid-1", models.RolePolice, s.now, false)

	inserted, err := s.store.Append(s.ctx, e)
	s.Require().NoError(err)
	s.True(inserted)
	inserted, err = s.store.Append(s.ctx, e)
	s.Require().NoError(err)
	s.False(inserted, "replaying the same entry inserts nothing")

	n, err := s.store.CountByCredential(s.ctx, "dtid-1")
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *contractSuite) TestListNewestFirst() {
	for i := range 4 {
		_, err := s.store.Append(s.ctx, s.entry("dtid-1", models.RoleHotel, s.now.Add(time.Duration(i)*time.Minute), false))
		s.Require().NoError(err)
	}
	_, err := s.store.Append(s.ctx, s.entry("dtid-2", models.RoleHotel, s.now, false))
	s.Require().NoError(err)

	got, err := s.store.ListByCredential(s.ctx, "dtid-1", 3)
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.True(got[0].CreatedAt.Equal(s.now.Add(3 * time.Minute)))
	s.True(got[2].CreatedAt.Equal(s.now.Add(time.Minute)))
	s.Equal([]models.DataCategory{models.DataPersonal, models.DataBooking}, got[0].Categories)
	s.Equal("Firefox on Linux", got[0].Device)
}

func (s *contractSuite) TestStatsSince() {
	_, err := s.store.Append(s.ctx, s.entry("dtid-1", models.RolePolice, s.now.Add(-48*time.Hour), false))
	s.Require().NoError(err)
	_, err = s.store.Append(s.ctx, s.entry("dtid-1", models.RolePolice, s.now, false))
	s.Require().NoError(err)
	_, err = s.store.Append(s.ctx, s.entry("dtid-2", models.RoleEmergencyResponder, s.now, true))
	s.Require().NoError(err)

	stats, err := s.store.Stats(s.ctx, s.now.Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(2), stats.Total)
	s.Equal(int64(1), stats.Emergency)
	s.Equal(int64(1), stats.ByRole[models.RolePolice])
	s.Equal(int64(1), stats.ByRole[models.RoleEmergencyResponder])
}

func TestInMemoryStoreContract(t *testing.T) {
	suite.Run(t, &contractSuite{
		newStore: func() store { return NewInMemory() },
		seed:     func(...string) {},
	})
}
