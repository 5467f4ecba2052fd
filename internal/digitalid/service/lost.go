package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"touristid/internal/digitalid/models"
	"touristid/internal/digitalid/ports"
	dErrors "touristid/pkg/domain-errors"
	"touristid/pkg/platform/sentinel"
	"touristid/pkg/requestcontext"
)

func canReportLost(caller models.Principal, cred *models.Credential) bool {
	switch caller.Role {
	case models.RoleAdmin, models.RoleKiosk, models.RolePolice:
		return true
	case models.RoleTourist:
		return caller.ID == cred.SubjectID
	}
	return false
}

// ReportLost marks the credential LOST and records the ledger-minted replacement as the
// subject's new ACTIVE credential. Runs under the subject lock, like Issue.
func (s *Service) ReportLost(ctx context.Context, caller models.Principal, req models.ReportLostRequest) (result *models.LostResult, err error) {
	ctx, done := s.instrument(ctx, "report_lost", attribute.String("credential_id", req.CredentialID))
	defer func() { done(err) }()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	cred, err := s.findCredential(ctx, req.CredentialID)
	if err != nil {
		return nil, err
	}
	if !canReportLost(caller, cred) {
		return nil, dErrors.New(dErrors.CodeForbidden, "caller may not report this digital ID lost")
	}

	storeCtx, cancel := s.detached(ctx, s.ledgerTimeout)
	defer cancel()
	storeCtx = bySubject(storeCtx, cred.SubjectID)

	var (
		pending *models.PendingWrite
		queued  bool
	)
	err = s.tx.RunInTx(storeCtx, func(st Stores) error {
		if err := st.Credentials.LockSubject(storeCtx, cred.SubjectID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock subject")
		}
		if err := s.subjectSettled(storeCtx, cred.SubjectID); err != nil {
			return err
		}
		current, err := st.Credentials.FindByID(storeCtx, cred.ID)
		if err != nil {
			return translateStoreError(err, "digital ID "+cred.ID)
		}
		if !current.State.CanTransitionTo(models.StateLost) {
			return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("digital ID is %s, only ACTIVE credentials can be reported lost", current.State))
		}

		var receipt ports.LostReceipt
		err = s.callLedger(ctx, "report_lost", func(ctx context.Context) error {
			var err error
			receipt, err = s.ledger.ReportLost(ctx, ports.LostRequest{
				CredentialID:     current.ID,
				Reason:           req.Reason,
				NewWalletAddress: req.NewWalletAddress,
				Reporter:         caller,
			})
			return err
		})
		if err != nil {
			return translateLedgerError(err, "loss report", dErrors.CodeInvalidInput)
		}

		now := requestcontext.Now(ctx)
		replacement := current.Replacement(receipt.ReplacementID, req.NewWalletAddress, now, caller, receipt.TxRef)
		pending = newWrite(models.WriteLost, current.ID, now)
		pending.Credential = replacement
		pending.Events = []*models.LifecycleEvent{
			newEvent(models.EventLostReported, current, receipt.TxRef, now, map[string]any{
				"reason":        req.Reason,
				"reportedBy":    caller.ID,
				"reporterRole":  string(caller.Role),
				"replacementId": replacement.ID,
				"kioskLocation": req.KioskLocation,
				"walletChanged": req.NewWalletAddress != "",
			}),
		}
		result = &models.LostResult{
			OriginalID:      current.ID,
			ReplacementID:   replacement.ID,
			TransactionHash: receipt.TxRef,
		}
		if err := applyLost(storeCtx, st, pending); err != nil {
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

	s.auditLog(ctx, "digital ID reported lost",
		"credential_id", result.OriginalID,
		"replacement_id", result.ReplacementID,
		"reported_by", caller.ID,
		"tx", result.TransactionHash,
	)
	return result, nil
}

// applyLost retires the original before inserting the replacement so the
// one-ACTIVE-per-subject rule holds at every step. Both halves tolerate replays.
func applyLost(ctx context.Context, st Stores, w *models.PendingWrite) error {
	if err := transitionIdempotent(ctx, st, w.CredentialID, models.StateActive, models.StateLost, w.At); err != nil {
		return err
	}
	if _, err := st.Credentials.FindByID(ctx, w.Credential.ID); err == nil {
		return appendEvents(ctx, st, w.Events)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	if err := st.Credentials.Create(ctx, w.Credential); err != nil {
		return fmt.Errorf("create replacement: %w", err)
	}
	return appendEvents(ctx, st, w.Events)
}

// transitionIdempotent treats "already in the target state" as success.
func transitionIdempotent(ctx context.Context, st Stores, id string, from, to models.State, at time.Time) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("transition %s -> %s: %w", from, to, sentinel.ErrInvalidState)
	}
	err := st.Credentials.Transition(ctx, id, from, to, at)
	if err == nil || !errors.Is(err, sentinel.ErrInvalidState) {
		return err
	}
	current, findErr := st.Credentials.FindByID(ctx, id)
	if findErr == nil && current.State == to {
		return nil
	}
	return err
}
