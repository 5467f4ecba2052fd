//go:build integration

package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"touristid/internal/digitalid/models"
	"touristid/pkg/testutil/containers"
)

func TestPostgresStoreContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)

	suite.Run(t, &contractSuite{newStore: func() store {
		require.NoError(t, pg.Truncate(context.Background(), "outbox", "digital_id_events"))
		return NewPostgres(pg.DB)
	}})
}

func TestPostgresAppendWritesOutboxOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pg := containers.GetManager().GetPostgres(t)
	require.NoError(t, pg.Truncate(ctx, "outbox", "digital_id_events"))
	s := NewPostgres(pg.DB)

	e := &models.LifecycleEvent{ID: "7d7c8f4e-1d2a-4c55-9e0a-3b1f2a6d9c11", Type: models.EventRevoked, CredentialID: "dtid-1"}
	require.NoError(t, s.Append(ctx, e))
	require.NoError(t, s.Append(ctx, e))

	var aggregate string
	var n int
	require.NoError(t, pg.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(aggregate_id) FROM outbox WHERE event_type = $1`, string(models.EventRevoked)).Scan(&n, &aggregate))
	require.Equal(t, 1, n)
	require.Equal(t, "dtid-1", aggregate)
}

func TestPostgresWithoutOutboxWritesEventOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pg := containers.GetManager().GetPostgres(t)
	require.NoError(t, pg.Truncate(ctx, "outbox", "digital_id_events"))

	e := &models.LifecycleEvent{ID: "0b6f7c2e-8a41-4f0d-b5a3-6d2e9c1f4a77", Type: models.EventRevoked, CredentialID: "dtid-2"}
	require.NoError(t, NewPostgres(pg.DB, WithoutOutbox()).Append(ctx, e))

	tx, err := pg.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, NewPostgresTx(tx, WithoutOutbox()).Append(ctx, &models.LifecycleEvent{
		ID: "5c1d2e3f-4a5b-4c6d-8e7f-9a0b1c2d3e4f", Type: models.EventRevoked, CredentialID: "dtid-3",
	}))
	require.NoError(t, tx.Commit())

	var events, outboxRows int
	require.NoError(t, pg.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM digital_id_events`).Scan(&events))
	require.NoError(t, pg.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&outboxRows))
	require.Equal(t, 2, events)
	require.Zero(t, outboxRows)
}
