// Package reconcile replays local writes that failed after the ledger confirmed them.
//
// The service enqueues a PendingWrite whenever its local transaction fails after a
// successful ledger call. The Worker claims writes from the queue and re-applies each
// one until it lands or runs out of attempts, at which point it is moved to the
// dead-letter list for an operator. A claimed write stays in the queue's processing
// area until the worker settles it, so a crash mid-apply loses nothing.
package reconcile

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"

	"touristid/internal/digitalid/models"
	"touristid/pkg/platform/sentinel"
)

// ErrUndecodable marks a queue entry that could not be read back. The queue has
// already moved it to the dead-letter list when Claim returns this.
var ErrUndecodable = errors.New("undecodable pending write")

// Claim is a write handed to one worker. Settle it with exactly one of Complete,
// Requeue or DeadLetter.
type Claim struct {
	Write models.PendingWrite
	token string
}

// Queue is a FIFO of pending writes. Claim returns sentinel.ErrQueueEmpty when
// nothing is waiting.
//
// Issue and loss writes also hold their subject until completed: PendingForSubject
// reports the credential they will create. Dead-lettered writes keep the hold.
type Queue interface {
	Enqueue(ctx context.Context, w models.PendingWrite) error
	Claim(ctx context.Context) (Claim, error)
	Complete(ctx context.Context, c Claim) error
	Requeue(ctx context.Context, c Claim, w models.PendingWrite) error
	DeadLetter(ctx context.Context, c Claim, w models.PendingWrite) error
	// Recover returns writes left claimed by a stopped worker to the head of the queue.
	Recover(ctx context.Context) (int, error)
	Len(ctx context.Context) (int64, error)
	PendingForSubject(ctx context.Context, subjectID string) (credentialID string, ok bool, err error)
}

// MemoryQueue is used when Redis is not configured. Its contents do not survive a restart.
type MemoryQueue struct {
	mu       sync.Mutex
	seq      uint64
	pending  []models.PendingWrite
	claimed  map[string]claimedWrite
	dead     []models.PendingWrite
	subjects map[string]string
}

type claimedWrite struct {
	seq uint64
	w   models.PendingWrite
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		claimed:  make(map[string]claimedWrite),
		subjects: make(map[string]string),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, w models.PendingWrite) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, w)
	if subject, credID, ok := w.HeldSubject(); ok {
		q.subjects[subject] = credID
	}
	return nil
}

func (q *MemoryQueue) Claim(_ context.Context) (Claim, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Claim{}, sentinel.ErrQueueEmpty
	}
	w := q.pending[0]
	q.pending[0] = models.PendingWrite{}
	q.pending = q.pending[1:]

	q.seq++
	token := strconv.FormatUint(q.seq, 10)
	q.claimed[token] = claimedWrite{seq: q.seq, w: w}
	return Claim{Write: w, token: token}, nil
}

func (q *MemoryQueue) Complete(_ context.Context, c Claim) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.claimed, c.token)
	if subject, credID, ok := c.Write.HeldSubject(); ok && q.subjects[subject] == credID {
		delete(q.subjects, subject)
	}
	return nil
}

func (q *MemoryQueue) Requeue(_ context.Context, c Claim, w models.PendingWrite) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.claimed, c.token)
	q.pending = append(q.pending, w)
	return nil
}

func (q *MemoryQueue) DeadLetter(_ context.Context, c Claim, w models.PendingWrite) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.claimed, c.token)
	q.dead = append(q.dead, w)
	return nil
}

func (q *MemoryQueue) Recover(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.claimed) == 0 {
		return 0, nil
	}
	back := make([]claimedWrite, 0, len(q.claimed))
	for _, c := range q.claimed {
		back = append(back, c)
	}
	sort.Slice(back, func(i, j int) bool { return back[i].seq < back[j].seq })

	head := make([]models.PendingWrite, 0, len(back)+len(q.pending))
	for _, c := range back {
		head = append(head, c.w)
	}
	q.pending = append(head, q.pending...)
	clear(q.claimed)
	return len(back), nil
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending)), nil
}

func (q *MemoryQueue) PendingForSubject(_ context.Context, subjectID string) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	credID, ok := q.subjects[subjectID]
	return credID, ok, nil
}

// Pending returns a copy of the waiting writes.
func (q *MemoryQueue) Pending() []models.PendingWrite {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.PendingWrite(nil), q.pending...)
}

// Dead returns a copy of the dead-lettered writes.
func (q *MemoryQueue) Dead() []models.PendingWrite {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.PendingWrite(nil), q.dead...)
}

// InFlight counts claimed writes that have not been settled.
func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.claimed)
}
