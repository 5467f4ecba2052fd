package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"touristid/internal/digitalid/models"
	"touristid/internal/digitalid/ports"
	dErrors "touristid/pkg/domain-errors"
	"touristid/pkg/platform/sentinel"
	"touristid/pkg/requestcontext"
)

// Issue mints a credential on the ledger and records it locally as ACTIVE.
//
// The ACTIVE check, the ledger mint and the insert run inside one transaction holding
// the subject lock, so two concurrent issuances for the same subject cannot both pass
// the check. A failed mint rolls back with nothing written.
func (s *Service) Issue(ctx context.Context, caller models.Principal, req models.IssueRequest) (result *models.IssueResult, err error) {
	ctx, done := s.instrument(ctx, "issue", attribute.String("subject_id", req.SubjectID))
	defer func() { done(err) }()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !caller.Role.CanIssue() && !(caller.Role == models.RoleTourist && caller.ID == req.SubjectID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "caller may not issue digital IDs for this subject")
	}

	now := requestcontext.Now(ctx)
	expiresAt := now.AddDate(0, 0, req.ValidityDays)
	if req.CheckoutAt != nil && !req.CheckoutAt.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "checkoutAt must be in the future")
	}

	personal, err := json.Marshal(req.Personal)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode personal data")
	}
	payload, err := models.ProtectedPayload{
		Personal:  req.Personal,
		Booking:   req.Booking,
		Emergency: req.Emergency,
	}.Marshal()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode protected payload")
	}
	dataHash := s.protector.Hash(personal)
	sealed, keyRef, err := s.protector.Seal(payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal protected payload")
	}

	storeCtx, cancel := s.detached(ctx, s.ledgerTimeout)
	defer cancel()
	storeCtx = bySubject(storeCtx, req.SubjectID)

	var (
		pending *models.PendingWrite
		queued  bool
	)
	err = s.tx.RunInTx(storeCtx, func(st Stores) error {
		if err := st.Credentials.LockSubject(storeCtx, req.SubjectID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock subject")
		}
		if err := s.subjectSettled(storeCtx, req.SubjectID); err != nil {
			return err
		}
		existing, err := st.Credentials.FindActiveBySubject(storeCtx, req.SubjectID)
		switch {
		case err == nil:
			return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("subject %s already holds active digital ID %s", req.SubjectID, existing.ID))
		case !errors.Is(err, sentinel.ErrNotFound):
			return translateStoreError(err, "active digital ID for subject "+req.SubjectID)
		}

		var receipt ports.MintReceipt
		err = s.callLedger(ctx, "mint", func(ctx context.Context) error {
			var err error
			receipt, err = s.ledger.Mint(ctx, ports.MintRequest{
				SubjectID:     req.SubjectID,
				WalletAddress: req.WalletAddress,
				DataHash:      dataHash,
				KeyRef:        keyRef,
				SealedPayload: sealed,
				ExpiresAt:     expiresAt,
				Issuer:        caller,
			})
			return err
		})
		if err != nil {
			return translateLedgerError(err, "mint", dErrors.CodeBadRequest)
		}

		cred, err := models.NewCredential(receipt.CredentialID, req.SubjectID, req.WalletAddress, dataHash, keyRef,
			now, expiresAt, req.CheckoutAt, caller, receipt.TxRef)
		if err != nil {
			return err
		}
		pending = newWrite(models.WriteIssue, cred.ID, now)
		pending.Credential = cred
		pending.Events = []*models.LifecycleEvent{
			newEvent(models.EventIssued, cred, receipt.TxRef, now, map[string]any{
				"issuerId":     caller.ID,
				"issuerRole":   string(caller.Role),
				"validityDays": req.ValidityDays,
				"expiresAt":    expiresAt,
			}),
		}
		result = &models.IssueResult{
			CredentialID:    cred.ID,
			TransactionHash: receipt.TxRef,
			ExpiresAt:       expiresAt,
		}
		// Enqueued while the subject lock is still held.
		if err := applyIssue(storeCtx, st, pending); err != nil {
			s.enqueue(storeCtx, pending, err)
			queued = true
			return err
		}
		return nil
	})
	if err != nil {
		if pending == nil {
			return nil, err
		}
		if !queued {
			s.enqueue(storeCtx, pending, err)
		}
	}

	s.auditLog(ctx, "digital ID issued",
		"credential_id", result.CredentialID,
		"subject_id", req.SubjectID,
		"issuer_id", caller.ID,
		"issuer_role", caller.Role,
		"tx", result.TransactionHash,
	)

	if req.InitialConsent != nil {
		// The credential already exists on the ledger; a consent failure here is reported
		// through the missing Consent field, not as a failed issuance.
		consentCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ledgerTimeout+s.storeTimeout)
		defer cancel()
		if consent, err := s.applyConsentChange(consentCtx, caller, pending.Credential, *req.InitialConsent); err != nil {
			s.logger.WarnContext(ctx, "initial consent not applied",
				"credential_id", result.CredentialID,
				"error", err,
			)
		} else {
			result.Consent = &consent.Updated
		}
	}
	return result, nil
}

// applyIssue is idempotent: a credential already stored under the same ID is left alone.
func applyIssue(ctx context.Context, st Stores, w *models.PendingWrite) error {
	if _, err := st.Credentials.FindByID(ctx, w.Credential.ID); err == nil {
		return appendEvents(ctx, st, w.Events)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	if err := st.Credentials.Create(ctx, w.Credential); err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return appendEvents(ctx, st, w.Events)
}

func appendEvents(ctx context.Context, st Stores, events []*models.LifecycleEvent) error {
	for _, e := range events {
		if err := st.Events.Append(ctx, e); err != nil {
			return fmt.Errorf("append %s event: %w", e.Type, err)
		}
	}
	return nil
}
