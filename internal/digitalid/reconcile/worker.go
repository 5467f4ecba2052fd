package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"touristid/internal/digitalid/metrics"
	"touristid/internal/digitalid/models"
	"touristid/pkg/platform/sentinel"
)

const (
	defaultInterval       = 10 * time.Second
	defaultMaxAttempts    = 10
	defaultInitialBackoff = 2 * time.Second
	defaultMaxBackoff     = 5 * time.Minute
)

// Applier re-applies one pending write. Implementations must be idempotent.
type Applier interface {
	Apply(ctx context.Context, w models.PendingWrite) error
}

// DrainResult counts what one pass over the queue did.
type DrainResult struct {
	Applied      int
	Retried      int
	Deferred     int
	DeadLettered int
}

type Worker struct {
	queue          Queue
	applier        Applier
	logger         *slog.Logger
	metrics        *metrics.Metrics
	interval       time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithMaxAttempts sets how many failed applies move a write to the dead-letter list.
func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func WithBackoff(initial, max time.Duration) Option {
	return func(w *Worker) {
		if initial > 0 {
			w.initialBackoff = initial
		}
		if max > 0 {
			w.maxBackoff = max
		}
	}
}

// WithClock overrides time.Now for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

func NewWorker(queue Queue, applier Applier, opts ...Option) *Worker {
	w := &Worker{
		queue:          queue,
		applier:        applier,
		logger:         slog.Default(),
		interval:       defaultInterval,
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run returns writes orphaned by a previous process to the queue, then drains it every
// interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if n, err := w.queue.Recover(ctx); err != nil {
		w.logger.ErrorContext(ctx, "recovering claimed writes failed", "error", err)
	} else if n > 0 {
		w.logger.WarnContext(ctx, "recovered writes claimed before restart", "count", n)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := w.Drain(ctx)
			if err != nil {
				w.logger.ErrorContext(ctx, "reconcile pass failed", "error", err)
				continue
			}
			if res.Applied+res.Retried+res.DeadLettered > 0 {
				w.logger.InfoContext(ctx, "reconcile pass complete",
					"applied", res.Applied,
					"retried", res.Retried,
					"deferred", res.Deferred,
					"dead_lettered", res.DeadLettered,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Drain makes one pass over the writes queued when it starts. Writes whose retry time
// has not come yet go back to the end of the queue untouched.
func (w *Worker) Drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	n, err := w.queue.Len(ctx)
	if err != nil {
		return res, err
	}
	defer w.reportPending(ctx)

	for i := int64(0); i < n; i++ {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		claim, err := w.queue.Claim(ctx)
		if errors.Is(err, sentinel.ErrQueueEmpty) {
			return res, nil
		}
		if errors.Is(err, ErrUndecodable) {
			res.DeadLettered++
			w.metrics.IncReconcileDeadLetter()
			w.logger.ErrorContext(ctx, "CRITICAL: unreadable reconcile entry dead-lettered", "error", err)
			continue
		}
		if err != nil {
			return res, err
		}
		pw := claim.Write

		now := w.now()
		if pw.NotBefore.After(now) {
			res.Deferred++
			if err := w.queue.Requeue(ctx, claim, pw); err != nil {
				return res, w.stuck(ctx, pw, err)
			}
			continue
		}

		applyErr := w.applier.Apply(ctx, pw)
		if applyErr == nil {
			res.Applied++
			w.metrics.IncReconcileApplied()
			w.logger.InfoContext(ctx, "reconciled local write",
				"kind", pw.Kind,
				"credential_id", pw.CredentialID,
				"write_id", pw.ID,
				"attempts", pw.Attempts+1,
			)
			if err := w.queue.Complete(ctx, claim); err != nil {
				return res, w.stuck(ctx, pw, err)
			}
			continue
		}

		pw.Attempts++
		pw.LastError = applyErr.Error()
		if pw.Attempts >= w.maxAttempts {
			res.DeadLettered++
			w.metrics.IncReconcileDeadLetter()
			w.logger.ErrorContext(ctx, "CRITICAL: local write dead-lettered, manual reconciliation required",
				"kind", pw.Kind,
				"credential_id", pw.CredentialID,
				"write_id", pw.ID,
				"attempts", pw.Attempts,
				"error", applyErr,
			)
			if err := w.queue.DeadLetter(ctx, claim, pw); err != nil {
				return res, w.stuck(ctx, pw, err)
			}
			continue
		}

		res.Retried++
		pw.NotBefore = now.Add(w.delay(pw.Attempts))
		if err := w.queue.Requeue(ctx, claim, pw); err != nil {
			return res, w.stuck(ctx, pw, err)
		}
	}
	return res, nil
}

// delay is the exponential backoff interval before the given retry attempt.
func (w *Worker) delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initialBackoff
	b.MaxInterval = w.maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// stuck reports a claim the queue could not settle. The write stays claimed and
// Recover returns it to the queue on the next start.
func (w *Worker) stuck(ctx context.Context, pw models.PendingWrite, err error) error {
	w.logger.ErrorContext(ctx, "settling claimed write failed",
		"kind", pw.Kind,
		"credential_id", pw.CredentialID,
		"write_id", pw.ID,
		"error", err,
	)
	return fmt.Errorf("settle write %s: %w", pw.ID, err)
}

func (w *Worker) reportPending(ctx context.Context) {
	if n, err := w.queue.Len(ctx); err == nil {
		w.metrics.SetReconcilePending(n)
	}
}
