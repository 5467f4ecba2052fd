// Package outbox relays lifecycle events written to the outbox table onto Kafka.
//
// The event store inserts the outbox row in the same statement as the event, so an
// event is published if and only if it was committed. Delivery is at-least-once:
// a batch whose publish fails stays unprocessed and is sent again on the next tick.
// Consumers dedupe on the event_id header.
package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"touristid/internal/digitalid/metrics"
	"touristid/internal/platform/kafka"
)

const DefaultTopic = "digitalid.lifecycle"

// Entry is one claimed outbox row.
type Entry struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Handler receives a claimed batch. Returning an error leaves the batch unprocessed.
type Handler func(ctx context.Context, entries []Entry) error

// Store claims up to limit unprocessed entries, calls handle, and marks them
// processed only when handle succeeds. Returns the number marked.
type Store interface {
	Process(ctx context.Context, limit int, handle Handler) (int, error)
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

type Relay struct {
	store     Store
	publisher Publisher
	topic     string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Relay)

func WithTopic(topic string) Option {
	return func(r *Relay) {
		if topic != "" {
			r.topic = topic
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func NewRelay(store Store, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		topic:     DefaultTopic,
		batchSize: 100,
		interval:  time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays on every tick until ctx is cancelled. A full batch triggers an
// immediate follow-up so a backlog drains without waiting for the ticker.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		for {
			n, err := r.RelayOnce(ctx)
			if err != nil || n < r.batchSize {
				break
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were marked processed.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	n, err := r.store.Process(ctx, r.batchSize, r.publish)
	if err != nil {
		r.metrics.IncOutboxFailure()
		r.logger.WarnContext(ctx, "outbox relay failed", "topic", r.topic, "error", err)
		return 0, err
	}
	if n > 0 {
		r.metrics.AddOutboxPublished(n)
		r.logger.DebugContext(ctx, "outbox relayed", "topic", r.topic, "count", n)
	}
	return n, nil
}

func (r *Relay) publish(ctx context.Context, entries []Entry) error {
	msgs := make([]kafka.Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, kafka.Message{
			Topic: r.topic,
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: map[string]string{
				"event_type":     e.EventType,
				"event_id":       eventID(e.Payload),
				"aggregate_type": e.AggregateType,
				"outbox_id":      e.ID,
			},
		})
	}
	return r.publisher.Publish(ctx, msgs...)
}

// eventID reads the lifecycle event ID from the payload; empty when absent.
func eventID(payload []byte) string {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return ""
	}
	return head.ID
}
