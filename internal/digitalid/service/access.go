package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"touristid/internal/digitalid/models"
	"touristid/internal/digitalid/ports"
	dErrors "touristid/pkg/domain-errors"
	"touristid/pkg/platform/device"
	"touristid/pkg/requestcontext"
)

// Access discloses protected data to caller after the ledger authorizes it.
// Routine access needs an ACTIVE credential and a consented role; emergency access
// is allowed in any state.
func (s *Service) Access(ctx context.Context, caller models.Principal, req models.AccessRequest) (result *models.AccessResult, err error) {
	ctx, done := s.instrument(ctx, "access",
		attribute.String("credential_id", req.CredentialID),
		attribute.Bool("emergency", req.Emergency),
	)
	defer func() { done(err) }()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Emergency && !caller.Role.CanUseEmergency() {
		return nil, dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("role %s may not use emergency access", caller.Role))
	}
	cred, err := s.findCredential(ctx, req.CredentialID)
	if err != nil {
		return nil, err
	}
	if !cred.IsActive() && !req.Emergency {
		return nil, dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("digital ID is %s, routine access requires ACTIVE", cred.State))
	}
	return s.disclose(ctx, caller, cred, req.Reason, req.Emergency, models.EventAccessed)
}

// TriggerEmergencyAccess is Access on the emergency path for a responder. It works in
// any credential state and always sets the sticky emergency override.
func (s *Service) TriggerEmergencyAccess(ctx context.Context, caller models.Principal, req models.EmergencyAccessRequest) (result *models.EmergencyAccessResult, err error) {
	ctx, done := s.instrument(ctx, "emergency_access", attribute.String("credential_id", req.CredentialID))
	defer func() { done(err) }()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !caller.Role.CanUseEmergency() {
		return nil, dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("role %s may not trigger emergency access", caller.Role))
	}
	if req.ResponderAddress != "" {
		caller.Address = req.ResponderAddress
	}
	cred, err := s.findCredential(ctx, req.CredentialID)
	if err != nil {
		return nil, err
	}
	out, err := s.disclose(ctx, caller, cred, req.Reason, true, models.EventAccessed, models.EventEmergencyTriggered)
	if err != nil {
		return nil, err
	}
	return &models.EmergencyAccessResult{
		Credential:      out.Credential,
		EmergencyData:   out.Disclosure,
		AccessCount:     out.AccessCount,
		TransactionHash: out.TransactionHash,
		OverrideActive:  out.Credential.EmergencyOverride,
	}, nil
}

func (s *Service) disclose(ctx context.Context, caller models.Principal, cred *models.Credential, reason string, emergency bool, eventTypes ...models.EventType) (*models.AccessResult, error) {
	var receipt ports.AccessReceipt
	err := s.callLedger(ctx, "authorize_access", func(ctx context.Context) error {
		var err error
		receipt, err = s.ledger.AuthorizeAccess(ctx, ports.AccessGrant{
			CredentialID: cred.ID,
			Accessor:     caller,
			Reason:       reason,
			Emergency:    emergency,
		})
		return err
	})
	if err != nil {
		return nil, translateLedgerError(err, "access", dErrors.CodeForbidden)
	}

	now := requestcontext.Now(ctx)
	entry := &models.AccessLogEntry{
		ID:              uuid.NewString(),
		CredentialID:    cred.ID,
		AccessorID:      caller.ID,
		AccessorRole:    caller.Role,
		AccessorAddress: caller.Address,
		Reason:          reason,
		Emergency:       emergency,
		LedgerTxRef:     receipt.TxRef,
		Categories:      receipt.Disclosure.Categories,
		RequestID:       requestcontext.RequestID(ctx),
		Device:          device.ParseUserAgent(requestcontext.UserAgent(ctx)),
		CreatedAt:       now,
	}
	w := newWrite(models.WriteAccess, cred.ID, now)
	w.Access = entry
	for _, t := range eventTypes {
		w.Events = append(w.Events, newEvent(t, cred, receipt.TxRef, now, map[string]any{
			"accessorId":   caller.ID,
			"accessorRole": string(caller.Role),
			"reason":       reason,
			"emergency":    emergency,
			"categories":   models.CategoryNames(entry.Categories),
		}))
	}

	count := cred.AccessCount + 1
	s.persist(ctx, w, func(ctx context.Context, st Stores) error {
		n, err := applyAccess(ctx, st, w)
		if err == nil && n > 0 {
			count = n
		}
		return err
	})

	if emergency {
		s.metrics.IncEmergencyAccess()
	}
	s.auditLog(ctx, "digital ID accessed",
		"credential_id", cred.ID,
		"accessor_id", caller.ID,
		"accessor_role", caller.Role,
		"emergency", emergency,
		"categories", models.CategoryNames(entry.Categories),
		"tx", receipt.TxRef,
	)

	summary := cred.Summary()
	summary.AccessCount = count
	summary.LastAccessedAt = &now
	summary.EmergencyOverride = cred.EmergencyOverride || emergency
	return &models.AccessResult{
		Credential:      summary,
		Disclosure:      receipt.Disclosure,
		AccessCount:     count,
		Emergency:       emergency,
		TransactionHash: receipt.TxRef,
	}, nil
}

// applyAccess writes the log entry and bumps the counter as one unit. The entry ID
// makes replays harmless: the counter only moves when the entry is new, so the count
// always equals the number of log rows.
func applyAccess(ctx context.Context, st Stores, w *models.PendingWrite) (int64, error) {
	inserted, err := st.AccessLogs.Append(ctx, w.Access)
	if err != nil {
		return 0, fmt.Errorf("append access log: %w", err)
	}
	var count int64
	if inserted {
		count, err = st.Credentials.RecordAccess(ctx, w.CredentialID, w.Access.CreatedAt, w.Access.Emergency)
		if err != nil {
			return 0, fmt.Errorf("record access: %w", err)
		}
	}
	if err := appendEvents(ctx, st, w.Events); err != nil {
		return 0, err
	}
	return count, nil
}
