// Package service implements the credential lifecycle manager.
//
// Every mutating operation follows the same order: check preconditions against the
// local stores, call the ledger, and only after the ledger confirms, persist the
// local state and log entries in one transaction. When that local write fails the
// ledger fact still stands, so the operation reports success and the write is handed
// to the reconciliation outbox instead of being dropped.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"touristid/internal/digitalid/metrics"
	"touristid/internal/digitalid/models"
	"touristid/internal/digitalid/ports"
	dErrors "touristid/pkg/domain-errors"
	"touristid/pkg/platform/sentinel"
)

const (
	defaultLedgerTimeout    = 10 * time.Second
	defaultStoreTimeout     = 5 * time.Second
	defaultSweepBatchSize   = 100
	defaultSweepParallelism = 8
	defaultHistoryLimit     = 50
	maxHistoryLimit         = 500
)

// Service is the only writer of credential, access log and lifecycle event records.
type Service struct {
	tx          StoreTx
	credentials CredentialStore
	accessLogs  AccessLogStore
	events      EventStore
	ledger      ports.Ledger
	protector   ports.Protector
	outbox      Outbox

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	ledgerTimeout    time.Duration
	storeTimeout     time.Duration
	sweepBatchSize   int
	sweepParallelism int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithLedgerTimeout bounds every ledger call. A timed-out call is LedgerUnavailable.
func WithLedgerTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ledgerTimeout = d
		}
	}
}

// WithStoreTimeout bounds each local transaction.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithSweep sets the AutoExpire page size and how many records are expired concurrently.
func WithSweep(batchSize, parallelism int) Option {
	return func(s *Service) {
		if batchSize > 0 {
			s.sweepBatchSize = batchSize
		}
		if parallelism > 0 {
			s.sweepParallelism = parallelism
		}
	}
}

func New(tx StoreTx, stores Stores, ledger ports.Ledger, protector ports.Protector, outbox Outbox, opts ...Option) (*Service, error) {
	switch {
	case tx == nil:
		return nil, errors.New("store transaction runner is required")
	case stores.Credentials == nil || stores.AccessLogs == nil || stores.Events == nil:
		return nil, errors.New("credential, access log and event stores are required")
	case ledger == nil:
		return nil, errors.New("ledger is required")
	case protector == nil:
		return nil, errors.New("protector is required")
	case outbox == nil:
		return nil, errors.New("reconciliation outbox is required")
	}
	s := &Service{
		tx:               tx,
		credentials:      stores.Credentials,
		accessLogs:       stores.AccessLogs,
		events:           stores.Events,
		ledger:           ledger,
		protector:        protector,
		outbox:           outbox,
		logger:           slog.Default(),
		tracer:           otel.Tracer("touristid/digitalid"),
		ledgerTimeout:    defaultLedgerTimeout,
		storeTimeout:     defaultStoreTimeout,
		sweepBatchSize:   defaultSweepBatchSize,
		sweepParallelism: defaultSweepParallelism,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// instrument opens a span and returns a completion func that records the outcome.
func (s *Service) instrument(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "digitalid."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(dErrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		s.metrics.ObserveOperation(op, outcome, time.Since(start))
	}
}

// callLedger runs fn under the ledger timeout. The context passed in is the caller's,
// so cancelling before the ledger answers aborts the operation.
func (s *Service) callLedger(ctx context.Context, call string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "ledger."+call)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ports.ErrLedgerRejected):
		outcome = "rejected"
	case errors.Is(err, ports.ErrLedgerNotFound):
		outcome = "not_found"
	default:
		outcome = "unavailable"
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	s.metrics.ObserveLedgerCall(call, outcome, time.Since(start))
	return err
}

// detached returns a context that survives caller cancellation, for local writes
// that follow a confirmed ledger call.
func (s *Service) detached(ctx context.Context, extra time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout+extra)
}

// persist applies w and hands it to the outbox when the local write fails.
// It reports whether the write landed.
func (s *Service) persist(ctx context.Context, w *models.PendingWrite, fn func(ctx context.Context, st Stores) error) bool {
	storeCtx, cancel := s.detached(ctx, 0)
	defer cancel()
	storeCtx = byCredential(storeCtx, w.CredentialID)
	err := s.tx.RunInTx(storeCtx, func(st Stores) error {
		return fn(storeCtx, st)
	})
	if err != nil {
		s.enqueue(storeCtx, w, err)
		return false
	}
	return true
}

func (s *Service) enqueue(ctx context.Context, w *models.PendingWrite, cause error) {
	now := time.Now()
	w.LastError = cause.Error()
	w.EnqueuedAt = now
	w.NotBefore = now
	s.metrics.IncReconcileEnqueued(string(w.Kind))
	s.logger.WarnContext(ctx, "local write failed after ledger confirmation, queued for reconciliation",
		"kind", w.Kind,
		"credential_id", w.CredentialID,
		"write_id", w.ID,
		"error", cause,
	)
	if err := s.outbox.Enqueue(ctx, *w); err != nil {
		s.logger.ErrorContext(ctx, "CRITICAL: reconciliation enqueue failed, local store diverges from ledger",
			"kind", w.Kind,
			"credential_id", w.CredentialID,
			"write_id", w.ID,
			"error", err,
		)
	}
}

// subjectSettled fails with Conflict while a queued write is still creating an ACTIVE
// credential for the subject. Callers hold the subject lock.
func (s *Service) subjectSettled(ctx context.Context, subjectID string) error {
	credID, pending, err := s.outbox.PendingForSubject(ctx, subjectID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check reconciliation queue")
	}
	if pending {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("digital ID %s for subject %s is still being recorded", credID, subjectID))
	}
	return nil
}

func newWrite(kind models.WriteKind, credentialID string, at time.Time) *models.PendingWrite {
	return &models.PendingWrite{
		ID:           uuid.NewString(),
		Kind:         kind,
		CredentialID: credentialID,
		At:           at,
	}
}

func newEvent(t models.EventType, cred *models.Credential, txRef string, at time.Time, meta map[string]any) *models.LifecycleEvent {
	e := &models.LifecycleEvent{
		ID:          uuid.NewString(),
		Type:        t,
		LedgerTxRef: txRef,
		Metadata:    meta,
		CreatedAt:   at,
	}
	if cred != nil {
		e.CredentialID = cred.ID
		e.SubjectID = cred.SubjectID
	}
	return e
}

func (s *Service) auditLog(ctx context.Context, msg string, args ...any) {
	s.logger.InfoContext(ctx, msg, append([]any{"log_type", "audit"}, args...)...)
}

// findCredential maps store errors for a lookup by ID.
func (s *Service) findCredential(ctx context.Context, id string) (*models.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	cred, err := s.credentials.FindByID(ctx, id)
	if err != nil {
		return nil, translateStoreError(err, "digital ID "+id)
	}
	return cred, nil
}

func translateStoreError(err error, what string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, what+" conflicts with an existing record")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, what+" is not in the required state")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "local store timed out reading "+what)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "local store failed reading "+what)
	}
}

// translateLedgerError maps a ledger failure. rejected is the code used when the
// ledger refused the request outright.
func translateLedgerError(err error, op string, rejected dErrors.Code) error {
	switch {
	case errors.Is(err, ports.ErrLedgerNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "digital ID not found on ledger")
	case errors.Is(err, ports.ErrLedgerRejected):
		return dErrors.Wrap(err, rejected, "ledger refused "+op)
	default:
		return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, fmt.Sprintf("ledger unavailable during %s, safe to retry", op))
	}
}
