// Package ports declares the external capabilities the lifecycle manager consumes.
package ports

//go:generate mockgen -source=ledger.go -destination=mocks/ledger_mock.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"touristid/internal/digitalid/models"
)

// Ledger errors. Unavailable means the outcome is unknown and the whole operation may be
// retried; rejected and not-found are definitive answers from the ledger.
var (
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrLedgerRejected    = errors.New("ledger rejected request")
	ErrLedgerNotFound    = errors.New("ledger record not found")
)

type MintRequest struct {
	SubjectID     string
	WalletAddress string
	DataHash      string
	KeyRef        string
	SealedPayload []byte
	ExpiresAt     time.Time
	Issuer        models.Principal
}

type MintReceipt struct {
	CredentialID string
	TxRef        string
}

type AccessGrant struct {
	CredentialID string
	Accessor     models.Principal
	Reason       string
	Emergency    bool
}

type AccessReceipt struct {
	Disclosure models.Disclosure
	TxRef      string
}

type ConsentReceipt struct {
	Previous models.ConsentSettings
	Updated  models.ConsentSettings
	TxRef    string
}

type LostRequest struct {
	CredentialID     string
	Reason           string
	NewWalletAddress string
	Reporter         models.Principal
}

type LostReceipt struct {
	ReplacementID string
	TxRef         string
}

// Ledger is the facade over the settlement ledger. It is the authority for credential
// existence, consent and access authorization.
type Ledger interface {
	Mint(ctx context.Context, req MintRequest) (MintReceipt, error)
	// AuthorizeAccess rejects routine access when the accessor's role lacks consent.
	// Emergency grants always disclose the emergency bundle.
	AuthorizeAccess(ctx context.Context, grant AccessGrant) (AccessReceipt, error)
	SetConsent(ctx context.Context, credentialID string, settings models.ConsentSettings) (ConsentReceipt, error)
	ReportLost(ctx context.Context, req LostRequest) (LostReceipt, error)
	Expire(ctx context.Context, credentialID string) (txRef string, err error)
	Revoke(ctx context.Context, credentialID, reason string) (txRef string, err error)
}

// Protector fingerprints and seals personal data. The manager never decrypts.
type Protector interface {
	Hash(data []byte) string
	Seal(plaintext []byte) (ciphertext []byte, keyRef string, err error)
}
