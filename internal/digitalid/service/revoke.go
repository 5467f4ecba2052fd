package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"touristid/internal/digitalid/models"
	dErrors "touristid/pkg/domain-errors"
	"touristid/pkg/requestcontext"
)

// Revoke administratively retires an ACTIVE credential.
func (s *Service) Revoke(ctx context.Context, caller models.Principal, req models.RevokeRequest) (result *models.RevokeResult, err error) {
	ctx, done := s.instrument(ctx, "revoke", attribute.String("credential_id", req.CredentialID))
	defer func() { done(err) }()

	if caller.Role != models.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "only admins may revoke digital IDs")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	cred, err := s.findCredential(ctx, req.CredentialID)
	if err != nil {
		return nil, err
	}
	if !cred.State.CanTransitionTo(models.StateRevoked) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("digital ID is %s, only ACTIVE credentials can be revoked", cred.State))
	}

	var txRef string
	err = s.callLedger(ctx, "revoke", func(ctx context.Context) error {
		var err error
		txRef, err = s.ledger.Revoke(ctx, cred.ID, req.Reason)
		return err
	})
	if err != nil {
		return nil, translateLedgerError(err, "revocation", dErrors.CodeInvalidInput)
	}

	now := requestcontext.Now(ctx)
	w := newWrite(models.WriteRevoke, cred.ID, now)
	w.Events = []*models.LifecycleEvent{
		newEvent(models.EventRevoked, cred, txRef, now, map[string]any{
			"reason":    req.Reason,
			"revokedBy": caller.ID,
		}),
	}
	s.persist(ctx, w, func(ctx context.Context, st Stores) error {
		return applyRetire(ctx, st, w, models.StateRevoked)
	})

	s.auditLog(ctx, "digital ID revoked",
		"credential_id", cred.ID,
		"revoked_by", caller.ID,
		"reason", req.Reason,
		"tx", txRef,
	)
	return &models.RevokeResult{CredentialID: cred.ID, TransactionHash: txRef}, nil
}

func applyRetire(ctx context.Context, st Stores, w *models.PendingWrite, to models.State) error {
	if err := transitionIdempotent(ctx, st, w.CredentialID, models.StateActive, to, w.At); err != nil {
		return err
	}
	return appendEvents(ctx, st, w.Events)
}
