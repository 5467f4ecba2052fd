package service

import (
	"context"
	"database/sql"
	"time"

	"touristid/internal/digitalid/store/accesslog"
	"touristid/internal/digitalid/store/credential"
	"touristid/internal/digitalid/store/event"
	dErrors "touristid/pkg/domain-errors"
)

type postgresTx struct {
	db      *sql.DB
	timeout time.Duration
	events  []event.Option
}

// NewPostgresTx returns a StoreTx that runs fn inside one database transaction
// with every store bound to it. Serialization between transactions comes from
// row locks and LockSubject, not from the tx key. The event options are applied to
// the event store bound inside each transaction.
func NewPostgresTx(db *sql.DB, timeout time.Duration, events ...event.Option) StoreTx {
	return &postgresTx{db: db, timeout: timeout, events: events}
}

func (t *postgresTx) RunInTx(ctx context.Context, fn func(stores Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stores := Stores{
		Credentials: credential.NewPostgresTx(tx),
		AccessLogs:  accesslog.NewPostgresTx(tx),
		Events:      event.NewPostgresTx(tx, t.events...),
	}
	if err := fn(stores); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	return nil
}
