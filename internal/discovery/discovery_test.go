package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql2csv/internal/adapter"
	"sql2csv/internal/sqlitetest"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("dummy"), 0644))
	}
}

func TestDiscoverDirectory(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.db", "a.sqlite", "c.SQLITE3", "notes.txt", "report.db.bak")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.db"), 0755))

	dbs, err := Discover(context.Background(), dir, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, dbs, 3)

	names := []string{dbs[0].Name, dbs[1].Name, dbs[2].Name}
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, filepath.Join(dir, "b.db"), dbs[1].Path)
	assert.Equal(t, "file:"+filepath.Join(dir, "b.db")+"?mode=ro", dbs[1].DSN)
}

func TestDiscoverIsNotRecursive(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	touch(t, sub, "deep.db")

	dbs, err := Discover(context.Background(), dir, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, dbs)
}

func TestDiscoverSingleFile(t *testing.T) {
	path := sqlitetest.Create(t, "single", sqlitetest.UsersFixture...)

	dbs, err := Discover(context.Background(), path, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, dbs, 1)
	assert.Equal(t, "single", dbs[0].Name)

	db, err := dbs[0].Open(context.Background(), 0)
	require.NoError(t, err)
	defer db.Close()
	tables, err := db.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Users"}, tables)
}

func TestDiscoverMissingDirectory(t *testing.T) {
	dbs, err := Discover(context.Background(), filepath.Join(t.TempDir(), "missing"), zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, dbs)
	assert.Empty(t, dbs)
}

func TestDiscoverEmptyPath(t *testing.T) {
	for _, path := range []string{"", "   "} {
		_, err := Discover(context.Background(), path, zerolog.Nop())
		assert.ErrorIs(t, err, ErrEmptyPath)
	}
}

func TestDiscoverCancelled(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.db")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Discover(ctx, dir, zerolog.Nop())
	assert.True(t, errors.Is(err, adapter.ErrCancelled))
}

func TestOpenMissingFileIsConnectionError(t *testing.T) {
	db := FromFile(filepath.Join(t.TempDir(), "gone.db"))
	_, err := db.Open(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, adapter.ErrConnection))
}

func TestResolve(t *testing.T) {
	root := t.TempDir()

	got, err := Resolve(root, "sales/q1.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sales", "q1.db"), got)

	got, err = Resolve(root, "a/../b.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "b.db"), got)

	for _, rel := range []string{"../secret.db", "a/../../x.db", "/etc/passwd", ".."} {
		_, err := Resolve(root, rel)
		assert.True(t, errors.Is(err, ErrOutsideRoot), rel)
	}

	_, err = Resolve(root, "")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestIsDatabaseFile(t *testing.T) {
	assert.True(t, IsDatabaseFile("x.DB"))
	assert.True(t, IsDatabaseFile("x.sqlite3"))
	assert.False(t, IsDatabaseFile("x.db-journal"))
	assert.False(t, IsDatabaseFile("db"))
}
