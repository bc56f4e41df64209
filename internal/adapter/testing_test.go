package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"sql2csv/internal/sqlitetest"
)

func openAdapter(t *testing.T, statements ...string) *SQLiteAdapter {
	t.Helper()
	path := sqlitetest.Create(t, "test", statements...)
	a, err := NewSQLiteAdapter(context.Background(), DatabaseName(path), FileDSN(path), 0)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}
