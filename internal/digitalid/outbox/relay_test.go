package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"touristid/internal/digitalid/metrics"
	"touristid/internal/platform/kafka"
)

// fakeStore mimics the claim/mark contract of PostgresStore.
type fakeStore struct {
	mu        sync.Mutex
	pending   []Entry
	processed []Entry
}

func (f *fakeStore) Process(ctx context.Context, limit int, handle Handler) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := min(limit, len(f.pending))
	if n == 0 {
		return 0, nil
	}
	batch := append([]Entry(nil), f.pending[:n]...)
	if err := handle(ctx, batch); err != nil {
		return 0, err
	}
	f.processed = append(f.processed, batch...)
	f.pending = f.pending[n:]
	return n, nil
}

type fakePublisher struct {
	err  error
	sent []kafka.Message
}

func (f *fakePublisher) Publish(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msgs...)
	return nil
}

func entries(n int) []Entry {
	out := make([]Entry, n)
	for i := range out {
		out[i] = Entry{
			ID:            "ob-" + string(rune('a'+i)),
			AggregateType: "digital_id",
			AggregateID:   "dtid-1",
			EventType:     "DIGITAL_ID_ACCESSED",
			Payload:       []byte(`{"id":"ev-` + string(rune('a'+i)) + `","eventType":"DIGITAL_ID_ACCESSED"}`),
		}
	}
	return out
}

func TestRelayOncePublishesAndMarks(t *testing.T) {
	store := &fakeStore{pending: entries(3)}
	pub := &fakePublisher{}
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	r := NewRelay(store, pub, WithMetrics(m))

	n, err := r.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, store.pending)
	require.Len(t, pub.sent, 3)

	first := pub.sent[0]
	assert.Equal(t, DefaultTopic, first.Topic)
	assert.Equal(t, "dtid-1", string(first.Key))
	assert.Equal(t, "ev-a", first.Headers["event_id"])
	assert.Equal(t, "DIGITAL_ID_ACCESSED", first.Headers["event_type"])
	assert.Equal(t, "ob-a", first.Headers["outbox_id"])
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OutboxPublished))
}

func TestRelayFailureLeavesBatchPending(t *testing.T) {
	store := &fakeStore{pending: entries(2)}
	pub := &fakePublisher{err: errors.New("broker down")}
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	r := NewRelay(store, pub, WithMetrics(m), WithTopic("custom.topic"))

	n, err := r.RelayOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Len(t, store.pending, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxFailures))

	pub.err = nil
	n, err = r.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "custom.topic", pub.sent[0].Topic)
}

func TestRelayRespectsBatchSize(t *testing.T) {
	store := &fakeStore{pending: entries(5)}
	pub := &fakePublisher{}
	r := NewRelay(store, pub, WithBatchSize(2))

	n, err := r.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, store.pending, 3)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRelay(&fakeStore{}, &fakePublisher{})
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
}

func TestEventIDFromPayload(t *testing.T) {
	assert.Equal(t, "ev-1", eventID([]byte(`{"id":"ev-1"}`)))
	assert.Empty(t, eventID([]byte(`not json`)))
}
