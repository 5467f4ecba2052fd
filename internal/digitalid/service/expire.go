package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"touristid/internal/digitalid/models"
	dErrors "touristid/pkg/domain-errors"
	"touristid/pkg/requestcontext"
)

// AutoExpire expires every ACTIVE credential whose expiry or checkout time has passed.
//
// Credentials are paged by ID in bounded batches and expired with bounded parallelism.
// A failure on one record is recorded in the result and never stops the sweep, and the
// sweep itself never fails: listing errors are reported the same way. Re-running only
// touches records still ACTIVE past their expiry. Exactly one AUTO_EXPIRATION_RUN event
// is appended per run.
func (s *Service) AutoExpire(ctx context.Context) (result *models.ExpireResult, err error) {
	ctx, done := s.instrument(ctx, "auto_expire")
	defer func() { done(err) }()

	now := requestcontext.Now(ctx)
	ctx = requestcontext.WithTime(ctx, now)
	result = &models.ExpireResult{Errors: []models.ExpireError{}}

	var (
		mu    sync.Mutex
		after string
	)
	for {
		batch, err := s.listExpirable(ctx, now, after)
		if err != nil {
			result.Errors = append(result.Errors, models.ExpireError{Error: "list expirable credentials: " + err.Error()})
			break
		}
		if len(batch) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(s.sweepParallelism)
		for _, cred := range batch {
			g.Go(func() error {
				expireErr := s.expireOne(ctx, cred)
				mu.Lock()
				defer mu.Unlock()
				result.ProcessedCount++
				if expireErr != nil {
					result.Errors = append(result.Errors, models.ExpireError{CredentialID: cred.ID, Error: expireErr.Error()})
					return nil
				}
				result.ExpiredCount++
				return nil
			})
		}
		_ = g.Wait()

		after = batch[len(batch)-1].ID
		if len(batch) < s.sweepBatchSize {
			break
		}
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, models.ExpireError{Error: "sweep stopped: " + ctx.Err().Error()})
			break
		}
	}

	s.metrics.AddExpired(result.ExpiredCount)
	s.metrics.AddExpireFailures(len(result.Errors))
	s.recordSweep(ctx, now, result)
	s.auditLog(ctx, "auto-expiration run",
		"processed", result.ProcessedCount,
		"expired", result.ExpiredCount,
		"failed", len(result.Errors),
	)
	return result, nil
}

func (s *Service) listExpirable(ctx context.Context, now time.Time, after string) ([]*models.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.credentials.ListExpirable(ctx, now, after, s.sweepBatchSize)
}

func (s *Service) expireOne(ctx context.Context, cred *models.Credential) error {
	if !cred.State.CanTransitionTo(models.StateExpired) {
		return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf("digital ID is %s", cred.State))
	}
	var txRef string
	err := s.callLedger(ctx, "expire", func(ctx context.Context) error {
		var err error
		txRef, err = s.ledger.Expire(ctx, cred.ID)
		return err
	})
	if err != nil {
		return translateLedgerError(err, "expiration", dErrors.CodeInvalidState)
	}

	w := newWrite(models.WriteExpire, cred.ID, requestcontext.Now(ctx))
	if !s.persist(ctx, w, func(ctx context.Context, st Stores) error {
		return applyRetire(ctx, st, w, models.StateExpired)
	}) {
		return fmt.Errorf("expired on ledger (tx %s) but local update failed, queued for reconciliation", txRef)
	}
	return nil
}

func (s *Service) recordSweep(ctx context.Context, now time.Time, result *models.ExpireResult) {
	failed := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		if e.CredentialID != "" {
			failed = append(failed, e.CredentialID)
		}
	}
	w := newWrite(models.WriteEvent, "", now)
	w.Events = []*models.LifecycleEvent{
		newEvent(models.EventAutoExpirationRun, nil, "", now, map[string]any{
			"processedCount": result.ProcessedCount,
			"expiredCount":   result.ExpiredCount,
			"errorCount":     len(result.Errors),
			"failedIds":      failed,
		}),
	}
	s.persist(ctx, w, func(ctx context.Context, st Stores) error {
		return appendEvents(ctx, st, w.Events)
	})
}
