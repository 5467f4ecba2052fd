//go:build integration

package outbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"touristid/internal/digitalid/models"
	"touristid/internal/digitalid/outbox"
	"touristid/internal/digitalid/store/event"
	"touristid/internal/platform/kafka"
	"touristid/pkg/testutil/containers"
)

type RelaySuite struct {
	suite.Suite
	pg       *containers.PostgresContainer
	rp       *containers.RedpandaContainer
	producer *kafka.Producer
	events   *event.PostgresStore
	store    *outbox.PostgresStore
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	mgr := containers.GetManager()
	s.pg = mgr.GetPostgres(s.T())
	s.rp = mgr.GetRedpanda(s.T())

	var err error
	s.producer, err = kafka.NewProducer(s.rp.Brokers, kafka.WithLinger(0))
	s.Require().NoError(err)
	s.events = event.NewPostgres(s.pg.DB)
	s.store = outbox.NewPostgresStore(s.pg.DB)
}

func (s *RelaySuite) TearDownSuite() {
	s.producer.Close()
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background(), "outbox", "digital_id_events"))
}

func (s *RelaySuite) appendEvent(credentialID string, typ models.EventType) *models.LifecycleEvent {
	e := &models.LifecycleEvent{
		ID:           uuid.NewString(),
		Type:         typ,
		CredentialID: credentialID,
		SubjectID:    "T-" + credentialID,
		CreatedAt:    time.Now().UTC(),
	}
	s.Require().NoError(s.events.Append(context.Background(), e))
	return e
}

func (s *RelaySuite) consume(topic string, want int) []*kgo.Record {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.rp.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var out []*kgo.Record
	for len(out) < want {
		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil {
			break
		}
		s.Require().Empty(fetches.Errors())
		fetches.EachRecord(func(r *kgo.Record) { out = append(out, r) })
	}
	return out
}

func (s *RelaySuite) TestEventsReachKafka() {
	ctx := context.Background()
	topic := "digitalid.lifecycle." + uuid.NewString()[:8]
	s.Require().NoError(s.producer.EnsureTopic(ctx, topic, 1, 1))
	s.Require().NoError(s.producer.EnsureTopic(ctx, topic, 1, 1), "second bootstrap is a no-op")

	issued := s.appendEvent("dtid-1", models.EventIssued)
	accessed := s.appendEvent("dtid-1", models.EventAccessed)

	pending, err := s.store.Pending(ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), pending)

	relay := outbox.NewRelay(s.store, s.producer, outbox.WithTopic(topic))
	n, err := relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	pending, err = s.store.Pending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)

	records := s.consume(topic, 2)
	s.Require().Len(records, 2)
	ids := map[string]bool{}
	for _, r := range records {
		s.Equal("dtid-1", string(r.Key))
		var got models.LifecycleEvent
		s.Require().NoError(json.Unmarshal(r.Value, &got))
		ids[got.ID] = true
	}
	s.True(ids[issued.ID])
	s.True(ids[accessed.ID])
}

func (s *RelaySuite) TestReplayedEventWritesOneOutboxRow() {
	ctx := context.Background()
	e := s.appendEvent("dtid-2", models.EventLostReported)
	s.Require().NoError(s.events.Append(ctx, e))

	pending, err := s.store.Pending(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), pending)
}

func (s *RelaySuite) TestEmptyOutboxIsNoop() {
	relay := outbox.NewRelay(s.store, s.producer)
	n, err := relay.RelayOnce(context.Background())
	s.Require().NoError(err)
	s.Zero(n)
}
