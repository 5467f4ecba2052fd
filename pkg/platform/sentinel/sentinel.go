package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and adapters return these
// (optionally wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: row or ledger record does not exist
//   - ErrConflict: a uniqueness rule rejected the write (e.g. a second ACTIVE credential)
//   - ErrInvalidState: row exists but is not in the state the write requires
//   - ErrUnavailable: backend could not be reached or timed out
//   - ErrQueueEmpty: nothing pending in a work queue
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrQueueEmpty   = errors.New("queue empty")
)
