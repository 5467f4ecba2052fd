package service

import (
	"context"
	"fmt"

	"touristid/internal/digitalid/models"
)

// Apply re-runs a queued local write. Every write kind is idempotent, so the
// reconcile worker may call Apply any number of times for the same write.
func (s *Service) Apply(ctx context.Context, w models.PendingWrite) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if subject, _, ok := w.HeldSubject(); ok {
		ctx = bySubject(ctx, subject)
	} else {
		ctx = byCredential(ctx, w.CredentialID)
	}

	return s.tx.RunInTx(ctx, func(st Stores) error {
		switch w.Kind {
		case models.WriteIssue:
			if w.Credential == nil {
				return fmt.Errorf("issue write %s has no credential", w.ID)
			}
			return applyIssue(ctx, st, &w)
		case models.WriteAccess:
			if w.Access == nil {
				return fmt.Errorf("access write %s has no log entry", w.ID)
			}
			_, err := applyAccess(ctx, st, &w)
			return err
		case models.WriteConsent:
			return applyConsent(ctx, st, &w)
		case models.WriteLost:
			if w.Credential == nil {
				return fmt.Errorf("lost write %s has no replacement", w.ID)
			}
			if err := st.Credentials.LockSubject(ctx, w.Credential.SubjectID); err != nil {
				return err
			}
			return applyLost(ctx, st, &w)
		case models.WriteExpire:
			return applyRetire(ctx, st, &w, models.StateExpired)
		case models.WriteRevoke:
			return applyRetire(ctx, st, &w, models.StateRevoked)
		case models.WriteEvent:
			return appendEvents(ctx, st, w.Events)
		default:
			return fmt.Errorf("unknown write kind %q", w.Kind)
		}
	})
}
