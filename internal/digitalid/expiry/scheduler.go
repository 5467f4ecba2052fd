// Package expiry runs the auto-expiration sweep on a schedule.
package expiry

import (
	"context"
	"log/slog"
	"time"

	"touristid/internal/digitalid/models"
)

const (
	defaultInterval = time.Hour
	defaultLockKey  = "digitalid:expiry:lock"
)

// Sweeper is the lifecycle operation the scheduler drives.
type Sweeper interface {
	AutoExpire(ctx context.Context) (*models.ExpireResult, error)
}

type Scheduler struct {
	sweeper  Sweeper
	locker   Locker
	logger   *slog.Logger
	interval time.Duration
	lockKey  string
	lockTTL  time.Duration
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLocker coordinates sweeps across instances. Defaults to LocalLocker.
func WithLocker(l Locker) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithLockTTL bounds how long a crashed instance can hold the sweep lock.
func WithLockTTL(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

func New(sweeper Sweeper, opts ...Option) *Scheduler {
	s := &Scheduler{
		sweeper:  sweeper,
		locker:   LocalLocker{},
		logger:   slog.Default(),
		interval: defaultInterval,
		lockKey:  defaultLockKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.lockTTL == 0 {
		s.lockTTL = s.interval
	}
	return s
}

// Run sweeps every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce sweeps if this instance wins the lock. It returns nil when another
// instance holds the lock or the lock backend is unreachable.
func (s *Scheduler) RunOnce(ctx context.Context) *models.ExpireResult {
	token, ok, err := s.locker.Acquire(ctx, s.lockKey, s.lockTTL)
	if err != nil {
		s.logger.WarnContext(ctx, "expiry sweep skipped, lock unavailable", "error", err)
		return nil
	}
	if !ok {
		s.logger.DebugContext(ctx, "expiry sweep skipped, another instance holds the lock")
		return nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), s.lockKey, token); err != nil {
			s.logger.WarnContext(ctx, "failed to release expiry lock", "error", err)
		}
	}()

	res, err := s.sweeper.AutoExpire(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
		return nil
	}
	if len(res.Errors) > 0 {
		s.logger.WarnContext(ctx, "expiry sweep finished with failures",
			"processed", res.ProcessedCount,
			"expired", res.ExpiredCount,
			"failed", len(res.Errors),
		)
	}
	return res
}
