package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"touristid/internal/digitalid/models"
	"touristid/internal/digitalid/ports"
	"touristid/pkg/platform/protect"
)

type LedgerSuite struct {
	suite.Suite
	keyring *protect.Keyring
	ledger  *Ledger
	ctx     context.Context
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	kr, err := protect.NewKeyring([]byte("0123456789abcdef0123456789abcdef"))
	s.Require().NoError(err)
	s.keyring = kr
	s.ledger = New(kr)
	s.ctx = context.Background()
}

func (s *LedgerSuite) mint(subject string) string {
	payload := models.ProtectedPayload{
		Personal:  models.PersonalData{Name: "Ana", Nationality: "PT", MedicalConditions: "diabetes"},
		Booking:   models.BookingData{Hotel: "Miramar"},
		Emergency: models.EmergencyContacts{Primary: models.Contact{Name: "Rui", Phone: "+351"}},
	}
	raw, err := payload.Marshal()
	s.Require().NoError(err)
	sealed, keyRef, err := s.keyring.Seal(raw)
	s.Require().NoError(err)

	receipt, err := s.ledger.Mint(s.ctx, ports.MintRequest{
		SubjectID:     subject,
		WalletAddress: "0xabc",
		DataHash:      s.keyring.Hash(raw),
		KeyRef:        keyRef,
		SealedPayload: sealed,
		ExpiresAt:     time.Now().Add(24 * time.Hour),
	})
	s.Require().NoError(err)
	s.NotEmpty(receipt.TxRef)
	return receipt.CredentialID
}

func (s *LedgerSuite) TestRoutineAccessRequiresConsent() {
	id := s.mint("T1")
	police := models.Principal{ID: "officer-7", Role: models.RolePolice}

	_, err := s.ledger.AuthorizeAccess(s.ctx, ports.AccessGrant{CredentialID: id, Accessor: police, Reason: "check"})
	s.ErrorIs(err, ports.ErrLedgerRejected)

	_, err = s.ledger.SetConsent(s.ctx, id, models.ConsentSettings{Police: true})
	s.Require().NoError(err)

	receipt, err := s.ledger.AuthorizeAccess(s.ctx, ports.AccessGrant{CredentialID: id, Accessor: police, Reason: "check"})
	s.Require().NoError(err)
	s.Require().NotNil(receipt.Disclosure.Personal)
	s.Equal("Ana", receipt.Disclosure.Personal.Name)
	s.Empty(receipt.Disclosure.Personal.MedicalConditions)
}

func (s *LedgerSuite) TestEmergencyIgnoresConsentAndState() {
	id := s.mint("T1")
	_, err := s.ledger.Expire(s.ctx, id)
	s.Require().NoError(err)

	responder := models.Principal{ID: "medic-1", Role: models.RoleEmergencyResponder}
	receipt, err := s.ledger.AuthorizeAccess(s.ctx, ports.AccessGrant{CredentialID: id, Accessor: responder, Reason: "injury", Emergency: true})
	s.Require().NoError(err)
	s.Equal("diabetes", receipt.Disclosure.Personal.MedicalConditions)
	s.NotNil(receipt.Disclosure.Emergency)
	s.Contains(receipt.Disclosure.Categories, models.DataMedical)
}

func (s *LedgerSuite) TestOwnerSeesOwnData() {
	id := s.mint("T1")
	owner := models.Principal{ID: "T1", Role: models.RoleTourist}
	_, err := s.ledger.AuthorizeAccess(s.ctx, ports.AccessGrant{CredentialID: id, Accessor: owner, Reason: "self"})
	s.NoError(err)

	other := models.Principal{ID: "T2", Role: models.RoleTourist}
	_, err = s.ledger.AuthorizeAccess(s.ctx, ports.AccessGrant{CredentialID: id, Accessor: other, Reason: "peek"})
	s.ErrorIs(err, ports.ErrLedgerRejected)
}

func (s *LedgerSuite) TestReportLostCarriesConsent() {
	id := s.mint("T1")
	_, err := s.ledger.SetConsent(s.ctx, id, models.ConsentSettings{Hotel: true})
	s.Require().NoError(err)

	receipt, err := s.ledger.ReportLost(s.ctx, ports.LostRequest{CredentialID: id, Reason: "stolen", NewWalletAddress: "0xnew"})
	s.Require().NoError(err)
	s.NotEqual(id, receipt.ReplacementID)

	consent, ok := s.ledger.Consent(receipt.ReplacementID)
	s.True(ok)
	s.True(consent.Hotel)

	_, err = s.ledger.ReportLost(s.ctx, ports.LostRequest{CredentialID: id, Reason: "again"})
	s.ErrorIs(err, ports.ErrLedgerRejected)
}

func (s *LedgerSuite) TestExpireIsIdempotent() {
	id := s.mint("T1")
	_, err := s.ledger.Expire(s.ctx, id)
	s.Require().NoError(err)
	_, err = s.ledger.Expire(s.ctx, id)
	s.NoError(err)

	_, err = s.ledger.Revoke(s.ctx, id, "fraud")
	s.ErrorIs(err, ports.ErrLedgerRejected)

	_, err = s.ledger.Expire(s.ctx, "dtid-missing")
	s.ErrorIs(err, ports.ErrLedgerNotFound)
}

func (s *LedgerSuite) TestCancelledContextIsUnavailable() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.ledger.Mint(ctx, ports.MintRequest{SubjectID: "T1"})
	s.ErrorIs(err, ports.ErrLedgerUnavailable)
}
