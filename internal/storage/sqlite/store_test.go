package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"uptimewatch/internal/storage"
	"uptimewatch/internal/storage/storagetest"
)

func TestSQLiteStoreSuite(t *testing.T) {
	dir := t.TempDir()
	n := 0
	suite.Run(t, &storagetest.StoreSuite{
		NewStore: func() storage.Storer {
			n++
			store, err := New(context.Background(), filepath.Join(dir, fmt.Sprintf("test-%d.db", n)))
			require.NoError(t, err)
			return store
		},
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	first, err := New(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestNewInvalidPath(t *testing.T) {
	_, err := New(context.Background(), filepath.Join(os.TempDir(), "does", "not", "exist", "x.db"))
	require.Error(t, err)
}

func TestTimestampsSortLexically(t *testing.T) {
	require.Less(t,
		storage.FormatTime(mustParse(t, "2024-01-01T09:59:59.999999999Z")),
		storage.FormatTime(mustParse(t, "2024-01-01T10:00:00Z")))
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339Nano, s)
	require.NoError(t, err)
	return v
}
