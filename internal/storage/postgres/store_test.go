package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"uptimewatch/internal/storage"
	"uptimewatch/internal/storage/storagetest"
)

// Runs against a disposable database named by TEST_POSTGRES_URL.
func TestPostgresStoreSuite(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}

	suite.Run(t, &storagetest.StoreSuite{
		NewStore: func() storage.Storer {
			ctx := context.Background()
			store, err := New(ctx, dsn)
			require.NoError(t, err)
			_, err = store.db.Exec(ctx, `TRUNCATE archived_outcomes, outcomes, targets, admin_users RESTART IDENTITY CASCADE`)
			require.NoError(t, err)
			return store
		},
	})
}
