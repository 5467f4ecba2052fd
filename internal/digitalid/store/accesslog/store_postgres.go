package accesslog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"touristid/internal/digitalid/models"
	txcontext "touristid/pkg/platform/tx"
)

// PostgresStore writes the digital_id_access_logs table. Rows are never updated.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx binds the store to tx for the life of one transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

// Append is idempotent on the entry ID; inserted is false for a replay.
func (s *PostgresStore) Append(ctx context.Context, e *models.AccessLogEntry) (bool, error) {
	query := `
		INSERT INTO digital_id_access_logs (
			id, credential_id, accessor_id, accessor_role, accessor_address,
			reason, emergency, ledger_tx_ref, data_categories, request_id, device, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.exec().ExecContext(ctx, query,
		e.ID, e.CredentialID, e.AccessorID, string(e.AccessorRole), e.AccessorAddress,
		e.Reason, e.Emergency, e.LedgerTxRef, pq.Array(models.CategoryNames(e.Categories)),
		e.RequestID, e.Device, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert access log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert access log: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) ListByCredential(ctx context.Context, credentialID string, limit int) ([]*models.AccessLogEntry, error) {
	query := `
		SELECT id, credential_id, accessor_id, accessor_role, accessor_address,
			   reason, emergency, ledger_tx_ref, data_categories, request_id, device, created_at
		FROM digital_id_access_logs
		WHERE credential_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.exec().QueryContext(ctx, query, credentialID, limit)
	if err != nil {
		return nil, fmt.Errorf("query access logs: %w", err)
	}
	defer rows.Close()

	var out []*models.AccessLogEntry
	for rows.Next() {
		var (
			e          models.AccessLogEntry
			role       string
			categories []string
		)
		err := rows.Scan(
			&e.ID, &e.CredentialID, &e.AccessorID, &role, &e.AccessorAddress,
			&e.Reason, &e.Emergency, &e.LedgerTxRef, pq.Array(&categories),
			&e.RequestID, &e.Device, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan access log: %w", err)
		}
		e.AccessorRole = models.Role(role)
		e.Categories = models.ParseCategories(categories)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access logs: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountByCredential(ctx context.Context, credentialID string) (int64, error) {
	var n int64
	err := s.exec().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM digital_id_access_logs WHERE credential_id = $1`, credentialID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count access logs: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Stats(ctx context.Context, since time.Time) (models.AccessStats, error) {
	query := `
		SELECT accessor_role, COUNT(*), COUNT(*) FILTER (WHERE emergency)
		FROM digital_id_access_logs
		WHERE created_at >= $1
		GROUP BY accessor_role
	`
	rows, err := s.exec().QueryContext(ctx, query, since)
	if err != nil {
		return models.AccessStats{}, fmt.Errorf("query access stats: %w", err)
	}
	defer rows.Close()

	stats := models.AccessStats{ByRole: make(map[models.Role]int64), Since: since}
	for rows.Next() {
		var (
			role             string
			total, emergency int64
		)
		if err := rows.Scan(&role, &total, &emergency); err != nil {
			return models.AccessStats{}, fmt.Errorf("scan access stats: %w", err)
		}
		stats.ByRole[models.Role(role)] = total
		stats.Total += total
		stats.Emergency += emergency
	}
	if err := rows.Err(); err != nil {
		return models.AccessStats{}, fmt.Errorf("iterate access stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) exec() txcontext.Executor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}
