package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"touristid/internal/digitalid/models"
	"touristid/pkg/platform/sentinel"
	txcontext "touristid/pkg/platform/tx"
)

const uniqueViolation = "23505"

const credentialColumns = `
	id, subject_id, wallet_address, data_hash, key_ref, state,
	issued_at, expires_at, checkout_at, last_accessed_at,
	access_count, emergency_override, consent_configured,
	issuer_id, issuer_role, replaces, ledger_tx_ref, updated_at`

// PostgresStore persists credentials in the digital_ids table, on the pool or,
// when built with NewPostgresTx, inside one transaction.
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

func (s *PostgresStore) exec() txcontext.Executor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// LockSubject takes a transaction-scoped advisory lock on the subject so the
// ACTIVE check and the insert that follows cannot interleave with another issuance.
func (s *PostgresStore) LockSubject(ctx context.Context, subjectID string) error {
	if _, err := s.exec().ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, subjectID); err != nil {
		return fmt.Errorf("lock subject: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, c *models.Credential) error {
	query := `
		INSERT INTO digital_ids (` + credentialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := s.exec().ExecContext(ctx, query,
		c.ID, c.SubjectID, c.WalletAddress, c.DataHash, c.KeyRef, string(c.State),
		c.IssuedAt, c.ExpiresAt, c.CheckoutAt, c.LastAccessedAt,
		c.AccessCount, c.EmergencyOverride, c.ConsentConfigured,
		c.IssuerID, string(c.IssuerRole), nullString(c.Replaces), c.LedgerTxRef, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert credential %s (%s): %w", c.ID, pgErr.ConstraintName, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Credential, error) {
	row := s.exec().QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM digital_ids WHERE id = $1`, id)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) FindActiveBySubject(ctx context.Context, subjectID string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM digital_ids WHERE subject_id = $1 AND state = 'ACTIVE' FOR UPDATE`
	c, err := scanCredential(s.exec().QueryRowContext(ctx, query, subjectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active credential for %s: %w", subjectID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find active credential: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Transition(ctx context.Context, id string, from, to models.State, at time.Time) error {
	res, err := s.exec().ExecContext(ctx,
		`UPDATE digital_ids SET state = $3, updated_at = $4 WHERE id = $1 AND state = $2`,
		id, string(from), string(to), at,
	)
	if err != nil {
		return fmt.Errorf("transition credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition credential: %w", err)
	}
	if n == 1 {
		return nil
	}
	var current string
	err = s.exec().QueryRowContext(ctx, `SELECT state FROM digital_ids WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("transition credential: %w", err)
	}
	return fmt.Errorf("credential %s is %s, want %s: %w", id, current, from, sentinel.ErrInvalidState)
}

// RecordAccess increments the counter in place so concurrent accesses never lose updates.
func (s *PostgresStore) RecordAccess(ctx context.Context, id string, at time.Time, emergency bool) (int64, error) {
	query := `
		UPDATE digital_ids SET
			access_count = access_count + 1,
			last_accessed_at = GREATEST(COALESCE(last_accessed_at, $2), $2),
			emergency_override = emergency_override OR $3,
			updated_at = $2
		WHERE id = $1
		RETURNING access_count
	`
	var count int64
	err := s.exec().QueryRowContext(ctx, query, id, at, emergency).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("record access: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) MarkConsentConfigured(ctx context.Context, id string, at time.Time) error {
	res, err := s.exec().ExecContext(ctx,
		`UPDATE digital_ids SET consent_configured = TRUE, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark consent configured: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListExpirable(ctx context.Context, now time.Time, afterID string, limit int) ([]*models.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM digital_ids
		WHERE state = 'ACTIVE'
		  AND (expires_at <= $1 OR checkout_at <= $1)
		  AND id > $2
		ORDER BY id
		LIMIT $3
	`
	rows, err := s.exec().QueryContext(ctx, query, now, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list expirable credentials: %w", err)
	}
	defer rows.Close()
	return scanCredentials(rows)
}

func (s *PostgresStore) CountByState(ctx context.Context) (map[models.State]int64, error) {
	rows, err := s.exec().QueryContext(ctx, `SELECT state, COUNT(*) FROM digital_ids GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count credentials: %w", err)
	}
	defer rows.Close()

	out := make(map[models.State]int64, len(models.AllStates))
	for _, st := range models.AllStates {
		out[st] = 0
	}
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		out[models.State(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state counts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MostAccessed(ctx context.Context, limit int) ([]*models.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM digital_ids
		WHERE access_count > 0
		ORDER BY access_count DESC, id
		LIMIT $1
	`
	rows, err := s.exec().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list most accessed: %w", err)
	}
	defer rows.Close()
	return scanCredentials(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (*models.Credential, error) {
	var (
		c                    models.Credential
		state, role          string
		checkout, lastAccess sql.NullTime
		replaces             sql.NullString
	)
	err := row.Scan(
		&c.ID, &c.SubjectID, &c.WalletAddress, &c.DataHash, &c.KeyRef, &state,
		&c.IssuedAt, &c.ExpiresAt, &checkout, &lastAccess,
		&c.AccessCount, &c.EmergencyOverride, &c.ConsentConfigured,
		&c.IssuerID, &role, &replaces, &c.LedgerTxRef, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.State = models.State(state)
	c.IssuerRole = models.Role(role)
	if checkout.Valid {
		t := checkout.Time
		c.CheckoutAt = &t
	}
	if lastAccess.Valid {
		t := lastAccess.Time
		c.LastAccessedAt = &t
	}
	c.Replaces = replaces.String
	return &c, nil
}

func scanCredentials(rows *sql.Rows) ([]*models.Credential, error) {
	var out []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
