// Package local is an in-process ledger used when no ledger gateway is configured.
//
// It keeps the sealed payload and consent per credential and enforces the same
// consent rules a remote ledger would, so the service runs unchanged in degraded
// local-only mode and in tests.
package local

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"touristid/internal/digitalid/models"
	"touristid/internal/digitalid/ports"
)

// Opener decrypts a sealed payload.
type Opener interface {
	Open(ciphertext []byte, keyRef string) ([]byte, error)
}

type record struct {
	id        string
	subjectID string
	wallet    string
	dataHash  string
	keyRef    string
	sealed    []byte
	consent   models.ConsentSettings
	state     models.State
	expiresAt time.Time
	replaces  string
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	records map[string]*record
	opener  Opener
	logger  *slog.Logger
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func New(opener Opener, opts ...Option) *Ledger {
	l := &Ledger{
		records: make(map[string]*record),
		opener:  opener,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Mint(ctx context.Context, req ports.MintRequest) (ports.MintReceipt, error) {
	if err := ctx.Err(); err != nil {
		return ports.MintReceipt{}, fmt.Errorf("mint: %w: %w", ports.ErrLedgerUnavailable, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	id := "dtid-" + uuid.NewString()
	l.records[id] = &record{
		id:        id,
		subjectID: req.SubjectID,
		wallet:    req.WalletAddress,
		dataHash:  req.DataHash,
		keyRef:    req.KeyRef,
		sealed:    append([]byte(nil), req.SealedPayload...),
		state:     models.StateActive,
		expiresAt: req.ExpiresAt,
	}
	tx := txHash()
	l.logger.DebugContext(ctx, "local ledger minted credential", "credential_id", id, "tx", tx)
	return ports.MintReceipt{CredentialID: id, TxRef: tx}, nil
}

func (l *Ledger) AuthorizeAccess(ctx context.Context, grant ports.AccessGrant) (ports.AccessReceipt, error) {
	if err := ctx.Err(); err != nil {
		return ports.AccessReceipt{}, fmt.Errorf("authorize access: %w: %w", ports.ErrLedgerUnavailable, err)
	}
	l.mu.Lock()
	rec, ok := l.records[grant.CredentialID]
	if !ok {
		l.mu.Unlock()
		return ports.AccessReceipt{}, fmt.Errorf("credential %s: %w", grant.CredentialID, ports.ErrLedgerNotFound)
	}
	categories, err := categoriesFor(rec, grant)
	sealed, keyRef := rec.sealed, rec.keyRef
	l.mu.Unlock()
	if err != nil {
		return ports.AccessReceipt{}, err
	}

	plaintext, err := l.opener.Open(sealed, keyRef)
	if err != nil {
		return ports.AccessReceipt{}, fmt.Errorf("open payload: %w", err)
	}
	payload, err := models.UnmarshalPayload(plaintext)
	if err != nil {
		return ports.AccessReceipt{}, fmt.Errorf("decode payload: %w", err)
	}
	return ports.AccessReceipt{
		Disclosure: models.Disclose(payload, categories),
		TxRef:      txHash(),
	}, nil
}

func categoriesFor(rec *record, grant ports.AccessGrant) ([]models.DataCategory, error) {
	if grant.Emergency {
		return models.EmergencyCategories(), nil
	}
	if rec.state != models.StateActive {
		return nil, fmt.Errorf("credential %s is %s: %w", rec.id, rec.state, ports.ErrLedgerRejected)
	}
	role := grant.Accessor.Role
	if role == models.RoleTourist && grant.Accessor.ID == rec.subjectID {
		return models.RoutineCategories(role), nil
	}
	category, ok := models.CategoryFor(role)
	if !ok || !rec.consent.Allows(category) {
		return nil, fmt.Errorf("role %q has no consent on %s: %w", role, rec.id, ports.ErrLedgerRejected)
	}
	return models.RoutineCategories(role), nil
}

func (l *Ledger) SetConsent(ctx context.Context, credentialID string, settings models.ConsentSettings) (ports.ConsentReceipt, error) {
	if err := ctx.Err(); err != nil {
		return ports.ConsentReceipt{}, fmt.Errorf("set consent: %w: %w", ports.ErrLedgerUnavailable, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[credentialID]
	if !ok {
		return ports.ConsentReceipt{}, fmt.Errorf("credential %s: %w", credentialID, ports.ErrLedgerNotFound)
	}
	if rec.state != models.StateActive {
		return ports.ConsentReceipt{}, fmt.Errorf("credential %s is %s: %w", credentialID, rec.state, ports.ErrLedgerRejected)
	}
	prev := rec.consent
	rec.consent = settings
	return ports.ConsentReceipt{Previous: prev, Updated: settings, TxRef: txHash()}, nil
}

func (l *Ledger) ReportLost(ctx context.Context, req ports.LostRequest) (ports.LostReceipt, error) {
	if err := ctx.Err(); err != nil {
		return ports.LostReceipt{}, fmt.Errorf("report lost: %w: %w", ports.ErrLedgerUnavailable, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[req.CredentialID]
	if !ok {
		return ports.LostReceipt{}, fmt.Errorf("credential %s: %w", req.CredentialID, ports.ErrLedgerNotFound)
	}
	if rec.state != models.StateActive {
		return ports.LostReceipt{}, fmt.Errorf("credential %s is %s: %w", req.CredentialID, rec.state, ports.ErrLedgerRejected)
	}
	rec.state = models.StateLost

	next := *rec
	next.id = "dtid-" + uuid.NewString()
	next.state = models.StateActive
	next.replaces = rec.id
	if req.NewWalletAddress != "" {
		next.wallet = req.NewWalletAddress
	}
	l.records[next.id] = &next
	return ports.LostReceipt{ReplacementID: next.id, TxRef: txHash()}, nil
}

// Expire is idempotent: expiring an already expired record succeeds.
func (l *Ledger) Expire(ctx context.Context, credentialID string) (string, error) {
	return l.retire(ctx, credentialID, models.StateExpired)
}

func (l *Ledger) Revoke(ctx context.Context, credentialID, _ string) (string, error) {
	return l.retire(ctx, credentialID, models.StateRevoked)
}

func (l *Ledger) retire(ctx context.Context, credentialID string, to models.State) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w: %w", to, ports.ErrLedgerUnavailable, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[credentialID]
	if !ok {
		return "", fmt.Errorf("credential %s: %w", credentialID, ports.ErrLedgerNotFound)
	}
	if rec.state == to {
		return txHash(), nil
	}
	if !rec.state.CanTransitionTo(to) {
		return "", fmt.Errorf("credential %s is %s: %w", credentialID, rec.state, ports.ErrLedgerRejected)
	}
	rec.state = to
	return txHash(), nil
}

// Consent returns the settings recorded for a credential.
func (l *Ledger) Consent(credentialID string) (models.ConsentSettings, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[credentialID]
	if !ok {
		return models.ConsentSettings{}, false
	}
	return rec.consent, true
}

func txHash() string {
	var b [32]byte
	_, _ = rand.Read(b[:])
	return "0x" + hex.EncodeToString(b[:])
}
