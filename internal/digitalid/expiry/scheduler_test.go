package expiry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"touristid/internal/digitalid/models"
)

type countingSweeper struct {
	runs atomic.Int32
	err  error
}

func (s *countingSweeper) AutoExpire(context.Context) (*models.ExpireResult, error) {
	s.runs.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &models.ExpireResult{ProcessedCount: 2, ExpiredCount: 1, Errors: []models.ExpireError{{CredentialID: "dtid-1", Error: "ledger down"}}}, nil
}

// memoryLocker mimics SET NX semantics in process.
type memoryLocker struct {
	mu       sync.Mutex
	held     map[string]string
	released []string
	err      error
}

func (l *memoryLocker) Acquire(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.held[key] = "token-" + key
	return l.held[key], true, nil
}

func (l *memoryLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		l.released = append(l.released, key)
	}
	return nil
}

func TestRunOnceSweepsUnderLock(t *testing.T) {
	sweeper := &countingSweeper{}
	locker := &memoryLocker{held: map[string]string{}}
	s := New(sweeper, WithLocker(locker))

	res := s.RunOnce(context.Background())

	require.NotNil(t, res)
	assert.Equal(t, 2, res.ProcessedCount)
	assert.Equal(t, int32(1), sweeper.runs.Load())
	assert.Equal(t, []string{defaultLockKey}, locker.released)
	assert.Empty(t, locker.held)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	sweeper := &countingSweeper{}
	locker := &memoryLocker{held: map[string]string{defaultLockKey: "other-instance"}}
	s := New(sweeper, WithLocker(locker))

	assert.Nil(t, s.RunOnce(context.Background()))
	assert.Zero(t, sweeper.runs.Load())
	assert.Equal(t, "other-instance", locker.held[defaultLockKey])
}

func TestRunOnceSkipsWhenLockBackendDown(t *testing.T) {
	sweeper := &countingSweeper{}
	locker := &memoryLocker{held: map[string]string{}, err: errors.New("connection refused")}
	s := New(sweeper, WithLocker(locker))

	assert.Nil(t, s.RunOnce(context.Background()))
	assert.Zero(t, sweeper.runs.Load())
}

func TestRunOnceReleasesLockAfterSweepError(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("boom")}
	locker := &memoryLocker{held: map[string]string{}}
	s := New(sweeper, WithLocker(locker))

	assert.Nil(t, s.RunOnce(context.Background()))
	assert.Empty(t, locker.held)
}

func TestRunSweepsOnInterval(t *testing.T) {
	sweeper := &countingSweeper{}
	s := New(sweeper, WithInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return sweeper.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
