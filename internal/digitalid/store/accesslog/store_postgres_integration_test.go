//go:build integration

package accesslog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"touristid/internal/digitalid/models"
	"touristid/internal/digitalid/store/credential"
	"touristid/pkg/testutil/containers"
)

func TestPostgresStoreContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	creds := credential.NewPostgres(pg.DB)
	issuer := models.Principal{ID: "kiosk-1", Role: models.RoleKiosk}

	suite.Run(t, &contractSuite{
		newStore: func() store {
			if err := pg.Truncate(context.Background(), "digital_id_access_logs", "digital_ids"); err != nil {
				t.Fatalf("truncate: %v", err)
			}
			return NewPostgres(pg.DB)
		},
		seed: func(ids ...string) {
			issued := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
			for _, id := range ids {
				c, err := models.NewCredential(id, "T-"+id, "0xw", "h-"+id, "kr", issued, issued.AddDate(0, 0, 60), nil, issuer, "0xmint")
				if err != nil {
					t.Fatalf("credential: %v", err)
				}
				if err := creds.Create(context.Background(), c); err != nil {
					t.Fatalf("seed credential: %v", err)
				}
			}
		},
	})
}
