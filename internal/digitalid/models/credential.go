package models

import (
	"time"

	dErrors "touristid/pkg/domain-errors"
)

// Credential is the local record of a ledger-minted Digital Tourist ID.
// It never holds plaintext personal data, only the hash and key reference.
type Credential struct {
	ID                string
	SubjectID         string
	WalletAddress     string
	DataHash          string
	KeyRef            string
	State             State
	IssuedAt          time.Time
	ExpiresAt         time.Time
	CheckoutAt        *time.Time
	LastAccessedAt    *time.Time
	AccessCount       int64
	EmergencyOverride bool
	ConsentConfigured bool
	IssuerID          string
	IssuerRole        Role
	Replaces          string
	LedgerTxRef       string
	UpdatedAt         time.Time
}

// NewCredential builds an ACTIVE credential and enforces the construction invariants.
func NewCredential(id, subjectID, wallet, dataHash, keyRef string, issuedAt, expiresAt time.Time, checkoutAt *time.Time, issuer Principal, txRef string) (*Credential, error) {
	switch {
	case id == "":
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential id is required")
	case subjectID == "":
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject id is required")
	case dataHash == "":
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "protected data hash is required")
	case !expiresAt.After(issuedAt):
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "expires-at must be after issued-at")
	case checkoutAt != nil && !checkoutAt.After(issuedAt):
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "checkout-at must be after issued-at")
	}
	return &Credential{
		ID:            id,
		SubjectID:     subjectID,
		WalletAddress: wallet,
		DataHash:      dataHash,
		KeyRef:        keyRef,
		State:         StateActive,
		IssuedAt:      issuedAt,
		ExpiresAt:     expiresAt,
		CheckoutAt:    checkoutAt,
		IssuerID:      issuer.ID,
		IssuerRole:    issuer.Role,
		LedgerTxRef:   txRef,
		UpdatedAt:     issuedAt,
	}, nil
}

// Replacement builds the ACTIVE successor of a lost credential. Subject, protected-data
// reference and validity window are carried over; wallet is replaced when one is given.
func (c *Credential) Replacement(newID, newWallet string, now time.Time, issuer Principal, txRef string) *Credential {
	wallet := c.WalletAddress
	if newWallet != "" {
		wallet = newWallet
	}
	return &Credential{
		ID:                newID,
		SubjectID:         c.SubjectID,
		WalletAddress:     wallet,
		DataHash:          c.DataHash,
		KeyRef:            c.KeyRef,
		State:             StateActive,
		IssuedAt:          now,
		ExpiresAt:         c.ExpiresAt,
		CheckoutAt:        c.CheckoutAt,
		ConsentConfigured: c.ConsentConfigured,
		IssuerID:          issuer.ID,
		IssuerRole:        issuer.Role,
		Replaces:          c.ID,
		LedgerTxRef:       txRef,
		UpdatedAt:         now,
	}
}

func (c *Credential) IsActive() bool {
	return c.State == StateActive
}

// IsExpirable reports whether the sweep should expire c at now.
func (c *Credential) IsExpirable(now time.Time) bool {
	if c.State != StateActive {
		return false
	}
	if !c.ExpiresAt.After(now) {
		return true
	}
	return c.CheckoutAt != nil && !c.CheckoutAt.After(now)
}

// Summary is the read view of a credential.
func (c *Credential) Summary() Summary {
	return Summary{
		ID:                c.ID,
		SubjectID:         c.SubjectID,
		WalletAddress:     c.WalletAddress,
		State:             c.State,
		IssuedAt:          c.IssuedAt,
		ExpiresAt:         c.ExpiresAt,
		CheckoutAt:        c.CheckoutAt,
		LastAccessedAt:    c.LastAccessedAt,
		AccessCount:       c.AccessCount,
		EmergencyOverride: c.EmergencyOverride,
		ConsentConfigured: c.ConsentConfigured,
		Replaces:          c.Replaces,
	}
}

// Clone returns a deep copy so in-memory stores never hand out shared pointers.
func (c *Credential) Clone() *Credential {
	cp := *c
	if c.CheckoutAt != nil {
		t := *c.CheckoutAt
		cp.CheckoutAt = &t
	}
	if c.LastAccessedAt != nil {
		t := *c.LastAccessedAt
		cp.LastAccessedAt = &t
	}
	return &cp
}

type Summary struct {
	ID                string     `json:"blockchainId"`
	SubjectID         string     `json:"touristId"`
	WalletAddress     string     `json:"walletAddress,omitempty"`
	State             State      `json:"status"`
	IssuedAt          time.Time  `json:"issuedAt"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	CheckoutAt        *time.Time `json:"checkoutAt,omitempty"`
	LastAccessedAt    *time.Time `json:"lastAccessedAt,omitempty"`
	AccessCount       int64      `json:"accessCount"`
	EmergencyOverride bool       `json:"emergencyOverride"`
	ConsentConfigured bool       `json:"consentConfigured"`
	Replaces          string     `json:"replaces,omitempty"`
}

// Principal identifies who performed an operation.
type Principal struct {
	ID      string
	Role    Role
	Address string
}
