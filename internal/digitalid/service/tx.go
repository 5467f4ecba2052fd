package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	dErrors "touristid/pkg/domain-errors"
)

const (
	lockStripes       = 128
	defaultTxTimeout = 5 * time.Second
)

// stripedTx serializes in-memory transactions on a fixed set of mutexes, picked by
// the key the operation put on the context:
//
//   - subject: Issue, ReportLost and replays of their writes, which create the
//     subject's next ACTIVE credential.
//   - credential: every other write, which touches one credential's row and log.
//
// Subject-keyed and credential-keyed transactions may overlap. Credential-keyed
// writes never create credentials, and state changes go through guarded Transition.
type stripedTx struct {
	stripes  [lockStripes]sync.Mutex
	stores   Stores
	deadline time.Duration
}

// NewInMemoryTx returns a StoreTx for in-memory stores.
func NewInMemoryTx(stores Stores) StoreTx {
	return &stripedTx{stores: stores, deadline: defaultTxTimeout}
}

func (t *stripedTx) RunInTx(ctx context.Context, fn func(stores Stores) error) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.deadline)
		defer cancel()
	}
	if err := alive(ctx); err != nil {
		return err
	}

	mu := &t.stripes[stripe(txKey(ctx))]
	mu.Lock()
	defer mu.Unlock()

	// Waiting for the stripe may have used up the deadline.
	if err := alive(ctx); err != nil {
		return err
	}
	return fn(t.stores)
}

func alive(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return nil
}

// stripe maps a key to its mutex. Unkeyed transactions share stripe 0.
func stripe(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % lockStripes)
}

type txKeyCtx struct{}

func bySubject(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, txKeyCtx{}, "subject:"+subjectID)
}

func byCredential(ctx context.Context, credentialID string) context.Context {
	return context.WithValue(ctx, txKeyCtx{}, "credential:"+credentialID)
}

func txKey(ctx context.Context) string {
	key, _ := ctx.Value(txKeyCtx{}).(string)
	return key
}
