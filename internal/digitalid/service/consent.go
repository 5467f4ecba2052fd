package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"touristid/internal/digitalid/models"
	"touristid/internal/digitalid/ports"
	dErrors "touristid/pkg/domain-errors"
	"touristid/pkg/requestcontext"
)

// UpdateConsent changes the per-category grants on the ledger. Only the credential's
// subject or an admin may change consent. Locally only the fact that consent was
// configured is stored; every access re-checks consent with the ledger.
func (s *Service) UpdateConsent(ctx context.Context, caller models.Principal, req models.UpdateConsentRequest) (result *models.ConsentResult, err error) {
	ctx, done := s.instrument(ctx, "update_consent", attribute.String("credential_id", req.CredentialID))
	defer func() { done(err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	cred, err := s.findCredential(ctx, req.CredentialID)
	if err != nil {
		return nil, err
	}
	if !canManageConsent(caller, cred) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the credential holder or an admin may change consent")
	}
	return s.applyConsentChange(ctx, caller, cred, req.Settings)
}

func canManageConsent(caller models.Principal, cred *models.Credential) bool {
	if caller.Role == models.RoleAdmin {
		return true
	}
	return caller.Role == models.RoleTourist && caller.ID == cred.SubjectID
}

func (s *Service) applyConsentChange(ctx context.Context, caller models.Principal, cred *models.Credential, settings models.ConsentSettings) (*models.ConsentResult, error) {
	var receipt ports.ConsentReceipt
	err := s.callLedger(ctx, "set_consent", func(ctx context.Context) error {
		var err error
		receipt, err = s.ledger.SetConsent(ctx, cred.ID, settings)
		return err
	})
	if err != nil {
		return nil, translateLedgerError(err, "consent update", dErrors.CodeForbidden)
	}

	now := requestcontext.Now(ctx)
	w := newWrite(models.WriteConsent, cred.ID, now)
	w.Events = []*models.LifecycleEvent{
		newEvent(models.EventConsentUpdated, cred, receipt.TxRef, now, map[string]any{
			"updatedBy":     caller.ID,
			"updaterRole":   string(caller.Role),
			"previousGrant": receipt.Previous.Granted(),
			"updatedGrant":  receipt.Updated.Granted(),
		}),
	}
	s.persist(ctx, w, func(ctx context.Context, st Stores) error {
		return applyConsent(ctx, st, w)
	})

	s.auditLog(ctx, "consent updated",
		"credential_id", cred.ID,
		"updated_by", caller.ID,
		"granted", receipt.Updated.Granted(),
		"tx", receipt.TxRef,
	)
	return &models.ConsentResult{
		CredentialID:    cred.ID,
		Previous:        receipt.Previous,
		Updated:         receipt.Updated,
		TransactionHash: receipt.TxRef,
	}, nil
}

func applyConsent(ctx context.Context, st Stores, w *models.PendingWrite) error {
	if err := st.Credentials.MarkConsentConfigured(ctx, w.CredentialID, w.At); err != nil {
		return err
	}
	return appendEvents(ctx, st, w.Events)
}
