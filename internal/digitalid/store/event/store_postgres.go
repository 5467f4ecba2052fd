package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"touristid/internal/digitalid/models"
	txcontext "touristid/pkg/platform/tx"
)

// PostgresStore writes lifecycle events and, in the same statement, an outbox row
// that the outbox worker publishes to Kafka. Replayed events produce neither row.
type PostgresStore struct {
	db     *sql.DB
	tx     *sql.Tx
	outbox bool
}

type Option func(*PostgresStore)

// WithoutOutbox stops Append from writing outbox rows. Use it when no relay drains
// the table.
func WithoutOutbox() Option {
	return func(s *PostgresStore) {
		s.outbox = false
	}
}

func NewPostgres(db *sql.DB, opts ...Option) *PostgresStore {
	return newPostgres(&PostgresStore{db: db, outbox: true}, opts)
}

// NewPostgresTx binds the store to tx for the life of one transaction.
func NewPostgresTx(tx *sql.Tx, opts ...Option) *PostgresStore {
	return newPostgres(&PostgresStore{tx: tx, outbox: true}, opts)
}

func newPostgres(s *PostgresStore, opts []Option) *PostgresStore {
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const insertEvent = `
	INSERT INTO digital_id_events (id, event_type, credential_id, subject_id, ledger_tx_ref, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING
`

func (s *PostgresStore) Append(ctx context.Context, e *models.LifecycleEvent) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	if e.Metadata == nil {
		metadata = []byte(`{}`)
	}
	if !s.outbox {
		_, err = s.exec().ExecContext(ctx, insertEvent,
			e.ID, string(e.Type), nullString(e.CredentialID), nullString(e.SubjectID), nullString(e.LedgerTxRef),
			metadata, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert lifecycle event: %w", err)
		}
		return nil
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	aggregateID := e.CredentialID
	if aggregateID == "" {
		aggregateID = e.ID
	}

	query := `
		WITH inserted AS (
			INSERT INTO digital_id_events (id, event_type, credential_id, subject_id, ledger_tx_ref, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
			RETURNING id
		)
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		SELECT $8, 'digital_id', $9, $2, $10, $7 FROM inserted
	`
	_, err = s.exec().ExecContext(ctx, query,
		e.ID, string(e.Type), nullString(e.CredentialID), nullString(e.SubjectID), nullString(e.LedgerTxRef),
		metadata, e.CreatedAt,
		uuid.New(), aggregateID, payload,
	)
	if err != nil {
		return fmt.Errorf("insert lifecycle event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, eventType models.EventType, limit int) ([]*models.LifecycleEvent, error) {
	query := `
		SELECT id, event_type, credential_id, subject_id, ledger_tx_ref, metadata, created_at
		FROM digital_id_events
		WHERE ($1 = '' OR event_type = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.exec().QueryContext(ctx, query, string(eventType), limit)
	if err != nil {
		return nil, fmt.Errorf("query lifecycle events: %w", err)
	}
	defer rows.Close()

	var out []*models.LifecycleEvent
	for rows.Next() {
		var (
			e                          models.LifecycleEvent
			typ                        string
			credentialID, subject, ref sql.NullString
			metadata                   []byte
		)
		if err := rows.Scan(&e.ID, &typ, &credentialID, &subject, &ref, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lifecycle event: %w", err)
		}
		e.Type = models.EventType(typ)
		e.CredentialID = credentialID.String
		e.SubjectID = subject.String
		e.LedgerTxRef = ref.String
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode event metadata: %w", err)
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lifecycle events: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountByType(ctx context.Context) (map[models.EventType]int64, error) {
	rows, err := s.exec().QueryContext(ctx, `SELECT event_type, COUNT(*) FROM digital_id_events GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("count lifecycle events: %w", err)
	}
	defer rows.Close()

	out := make(map[models.EventType]int64)
	for rows.Next() {
		var (
			typ string
			n   int64
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		out[models.EventType(typ)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event counts: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *PostgresStore) exec() txcontext.Executor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}
