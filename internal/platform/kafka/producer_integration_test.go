//go:build integration

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"touristid/pkg/testutil/containers"
)

func TestPublishRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rp := containers.GetManager().GetRedpanda(t)
	p, err := NewProducer(rp.Brokers, WithLinger(0))
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Ping(ctx))

	const topic = "producer-roundtrip"
	require.NoError(t, p.EnsureTopic(ctx, topic, 1, 1))
	require.NoError(t, p.EnsureTopic(ctx, topic, 1, 1), "second call finds the topic")

	require.NoError(t, p.Publish(ctx, Message{
		Topic:   topic,
		Key:     []byte("dtid-1"),
		Value:   []byte(`{"eventType":"DIGITAL_ID_ISSUED"}`),
		Headers: map[string]string{"event_type": "DIGITAL_ID_ISSUED"},
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, "dtid-1", string(records[0].Key))
	require.Equal(t, "event_type", records[0].Headers[0].Key)
}
