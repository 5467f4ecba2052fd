//go:build integration

package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"touristid/pkg/testutil/containers"
)

func TestPostgresStoreContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	suite.Run(t, &contractSuite{newStore: func() store {
		if err := pg.Truncate(context.Background(), "digital_id_access_logs", "digital_ids"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return NewPostgres(pg.DB)
	}})
}
