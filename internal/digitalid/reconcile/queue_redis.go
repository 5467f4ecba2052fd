package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"touristid/internal/digitalid/models"
	"touristid/pkg/platform/sentinel"
)

const (
	defaultPendingKey    = "digitalid:reconcile:pending"
	defaultProcessingKey = "digitalid:reconcile:processing"
	defaultDeadKey       = "digitalid:reconcile:dead"
	defaultSubjectsKey   = "digitalid:reconcile:subjects"
)

// completeScript drops the claimed entry and releases the subject hold if it still
// names this write's credential.
var completeScript = redis.NewScript(`
redis.call("LREM", KEYS[1], 1, ARGV[1])
if ARGV[2] ~= "" and redis.call("HGET", KEYS[2], ARGV[2]) == ARGV[3] then
	redis.call("HDEL", KEYS[2], ARGV[2])
end
return 1
`)

// RedisQueue keeps pending writes in Redis lists so they survive process restarts.
// Writes are pushed on the left of the pending list. Claim moves the oldest one to
// the processing list with LMOVE; settling a claim removes it from there.
type RedisQueue struct {
	client        *redis.Client
	pendingKey    string
	processingKey string
	deadKey       string
	subjectsKey   string
}

type RedisOption func(*RedisQueue)

// WithKeyPrefix namespaces every key, e.g. per deployment.
func WithKeyPrefix(prefix string) RedisOption {
	return func(q *RedisQueue) {
		if prefix != "" {
			q.pendingKey = prefix + ":" + defaultPendingKey
			q.processingKey = prefix + ":" + defaultProcessingKey
			q.deadKey = prefix + ":" + defaultDeadKey
			q.subjectsKey = prefix + ":" + defaultSubjectsKey
		}
	}
}

func NewRedisQueue(client *redis.Client, opts ...RedisOption) *RedisQueue {
	q := &RedisQueue{
		client:        client,
		pendingKey:    defaultPendingKey,
		processingKey: defaultProcessingKey,
		deadKey:       defaultDeadKey,
		subjectsKey:   defaultSubjectsKey,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) Enqueue(ctx context.Context, w models.PendingWrite) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode pending write: %w", err)
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, q.pendingKey, raw)
		if subject, credID, ok := w.HeldSubject(); ok {
			pipe.HSet(ctx, q.subjectsKey, subject, credID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("push pending write: %w", err)
	}
	return nil
}

func (q *RedisQueue) Claim(ctx context.Context) (Claim, error) {
	raw, err := q.client.LMove(ctx, q.pendingKey, q.processingKey, "RIGHT", "LEFT").Result()
	if errors.Is(err, redis.Nil) {
		return Claim{}, sentinel.ErrQueueEmpty
	}
	if err != nil {
		return Claim{}, fmt.Errorf("claim pending write: %w", err)
	}
	var w models.PendingWrite
	if decodeErr := json.Unmarshal([]byte(raw), &w); decodeErr != nil {
		if err := q.move(ctx, q.processingKey, q.deadKey, raw, raw); err != nil {
			return Claim{}, fmt.Errorf("dead-letter undecodable write: %w", err)
		}
		return Claim{}, fmt.Errorf("%w: %v", ErrUndecodable, decodeErr)
	}
	return Claim{Write: w, token: raw}, nil
}

func (q *RedisQueue) Complete(ctx context.Context, c Claim) error {
	subject, credID, _ := c.Write.HeldSubject()
	err := completeScript.Run(ctx, q.client, []string{q.processingKey, q.subjectsKey}, c.token, subject, credID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("complete write %s: %w", c.Write.ID, err)
	}
	return nil
}

func (q *RedisQueue) Requeue(ctx context.Context, c Claim, w models.PendingWrite) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode pending write: %w", err)
	}
	return q.move(ctx, q.processingKey, q.pendingKey, c.token, string(raw))
}

func (q *RedisQueue) DeadLetter(ctx context.Context, c Claim, w models.PendingWrite) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode pending write: %w", err)
	}
	return q.move(ctx, q.processingKey, q.deadKey, c.token, string(raw))
}

// Recover moves everything on the processing list back to the consuming end of the
// pending list, oldest claim first in line. Replays are safe because Apply is
// idempotent.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processingKey, q.pendingKey, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover claimed writes: %w", err)
		}
		n++
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.pendingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count pending writes: %w", err)
	}
	return n, nil
}

func (q *RedisQueue) PendingForSubject(ctx context.Context, subjectID string) (string, bool, error) {
	credID, err := q.client.HGet(ctx, q.subjectsKey, subjectID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read subject hold: %w", err)
	}
	return credID, true, nil
}

// DeadLetters lists dead-lettered writes, oldest first. Entries that cannot be
// decoded stay in the list but are not returned.
func (q *RedisQueue) DeadLetters(ctx context.Context) ([]models.PendingWrite, error) {
	raws, err := q.client.LRange(ctx, q.deadKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	out := make([]models.PendingWrite, 0, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		var w models.PendingWrite
		if err := json.Unmarshal([]byte(raws[i]), &w); err != nil {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

// move atomically drops one copy of raw from one list and pushes payload onto another.
func (q *RedisQueue) move(ctx context.Context, from, to, raw, payload string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, from, 1, raw)
		pipe.LPush(ctx, to, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("move write %s -> %s: %w", from, to, err)
	}
	return nil
}
