package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	fail     bool
	wantOpen bool
	opened   bool
	closed   bool
}

func TestBreakerTransitions(t *testing.T) {
	cases := []struct {
		name  string
		opts  []Option
		steps []step
	}{
		{
			name: "opens on the threshold failure only",
			opts: []Option{WithFailureThreshold(3)},
			steps: []step{
				{fail: true},
				{fail: true},
				{fail: true, wantOpen: true, opened: true},
				{fail: true, wantOpen: true},
			},
		},
		{
			name: "needs consecutive successes to close",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{fail: true, wantOpen: true, opened: true},
				{wantOpen: true},
				{closed: true},
			},
		},
		{
			name: "failure while open restarts the success count",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(3)},
			steps: []step{
				{fail: true, wantOpen: true, opened: true},
				{wantOpen: true},
				{wantOpen: true},
				{fail: true, wantOpen: true},
				{wantOpen: true},
				{wantOpen: true},
				{closed: true},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := New("ledger", tc.opts...)
			for i, s := range tc.steps {
				var change StateChange
				if s.fail {
					_, change = b.RecordFailure()
				} else {
					_, change = b.RecordSuccess()
				}
				require.Equal(t, s.wantOpen, b.IsOpen(), "step %d", i)
				assert.Equal(t, s.opened, change.Opened, "step %d opened", i)
				assert.Equal(t, s.closed, change.Closed, "step %d closed", i)
			}
		})
	}
}

func TestBreakerStartsClosedAndResets(t *testing.T) {
	b := New("ledger", WithFailureThreshold(1))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "ledger", b.Name())

	useFallback, _ := b.RecordFailure()
	assert.True(t, useFallback)
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerCooldownGatesProbes(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := New("ledger", WithFailureThreshold(2), WithCooldown(10*time.Second), WithClock(func() time.Time { return now }))

	b.RecordFailure()
	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.False(t, b.Allow(), "rejects during cooldown")

	now = now.Add(11 * time.Second)
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.False(t, b.Allow(), "failed probe restarts cooldown")
}
