package query

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql2csv/internal/adapter"
)

var itemsTable = adapter.Table{
	Name: "items",
	Columns: []adapter.Column{
		{Name: "id", DataType: "INTEGER", IsPrimaryKey: true},
		{Name: "Name", DataType: "TEXT"},
		{Name: "note", DataType: "TEXT", Nullable: true},
	},
}

func TestBuildDefaults(t *testing.T) {
	q, err := NewBuilder(itemsTable, DefaultLimits()).Build(Request{})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "Name", "note"}, q.Columns)
	assert.Equal(t, `SELECT COUNT(*) FROM "items"`, q.CountSQL)
	assert.Equal(t, q.CountSQL, q.FilteredCountSQL)
	assert.Empty(t, q.FilterArgs)
	assert.Equal(t, `SELECT "id", "Name", "note" FROM "items" ORDER BY "id" ASC LIMIT ? OFFSET ?`, q.DataSQL)
	assert.Equal(t, []any{DefaultPageLength, 0}, q.DataArgs)
}

func TestBuildSearch(t *testing.T) {
	q, err := NewBuilder(itemsTable, DefaultLimits()).Build(Request{Search: " 50%_off ", Start: 20, Length: 5})
	require.NoError(t, err)

	where := ` WHERE ("id" LIKE ? ESCAPE '\' OR "Name" LIKE ? ESCAPE '\' OR "note" LIKE ? ESCAPE '\')`
	assert.Equal(t, `SELECT COUNT(*) FROM "items"`+where, q.FilteredCountSQL)
	pattern := `%50\%\_off%`
	assert.Equal(t, []any{pattern, pattern, pattern}, q.FilterArgs)
	assert.Equal(t, `SELECT "id", "Name", "note" FROM "items"`+where+` ORDER BY "id" ASC LIMIT ? OFFSET ?`, q.DataSQL)
	assert.Equal(t, []any{pattern, pattern, pattern, 5, 20}, q.DataArgs)
}

func TestBuildOrder(t *testing.T) {
	b := NewBuilder(itemsTable, DefaultLimits())

	q, err := b.Build(Request{Order: []Order{{Column: 1, Desc: true}, {Column: 9}, {Column: -1}, {Column: 2}}})
	require.NoError(t, err)
	assert.Contains(t, q.DataSQL, `ORDER BY "Name" DESC, "note" ASC LIMIT`)

	// 全部越界时回落到主键
	q, err = b.Build(Request{Order: []Order{{Column: 3}}})
	require.NoError(t, err)
	assert.Contains(t, q.DataSQL, `ORDER BY "id" ASC LIMIT`)
}

func TestBuildOrderFallsBackToRowid(t *testing.T) {
	table := adapter.Table{Name: "log", Columns: []adapter.Column{{Name: "line", DataType: "TEXT"}}}
	q, err := NewBuilder(table, DefaultLimits()).Build(Request{})
	require.NoError(t, err)
	assert.Contains(t, q.DataSQL, "ORDER BY rowid ASC")
}

func TestBuildPageLength(t *testing.T) {
	b := NewBuilder(itemsTable, Limits{DefaultLength: 25, MaxLength: 100})
	tests := []struct {
		length int
		want   int
	}{
		{0, 25},
		{-1, -1},
		{-7, 25},
		{50, 50},
		{500, 100},
	}
	for _, tt := range tests {
		q, err := b.Build(Request{Length: tt.length, Start: -3})
		require.NoError(t, err)
		assert.Equal(t, []any{tt.want, 0}, q.DataArgs, "length %d", tt.length)
	}
}

func TestBuildProjection(t *testing.T) {
	b := NewBuilder(itemsTable, DefaultLimits())

	q, err := b.Build(Request{Columns: []string{"name", "id"}, Order: []Order{{Column: 0}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "id"}, q.Columns)
	assert.Equal(t, `SELECT "Name", "id" FROM "items" ORDER BY "Name" ASC LIMIT ? OFFSET ?`, q.DataSQL)
}

func TestBuildRejectsUnknownIdentifiers(t *testing.T) {
	b := NewBuilder(itemsTable, DefaultLimits())
	for _, name := range []string{"price", `id" FROM sqlite_master --`, "rowid"} {
		_, err := b.Build(Request{Columns: []string{"id", name}})
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrUnknownIdentifier), name)
	}
}

func TestBuildQuotesIdentifiers(t *testing.T) {
	table := adapter.Table{Name: `we"ird`, Columns: []adapter.Column{{Name: `a"b`, DataType: "TEXT"}}}
	q, err := NewBuilder(table, DefaultLimits()).Build(Request{Search: "x"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "we""ird"`, q.CountSQL)
	assert.Contains(t, q.DataSQL, `SELECT "a""b" FROM "we""ird" WHERE ("a""b" LIKE ? ESCAPE '\')`)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, EscapeLike("100%"))
	assert.Equal(t, `a\_b`, EscapeLike("a_b"))
	assert.Equal(t, `c:\\dir`, EscapeLike(`c:\dir`))
	assert.Equal(t, "plain", EscapeLike("plain"))
}

func TestParseOrder(t *testing.T) {
	assert.Equal(t, []Order{{Column: 0}, {Column: 2, Desc: true}, {Column: 1}},
		ParseOrder("0:asc, 2:DESC,x:asc,1"))
	assert.Nil(t, ParseOrder(""))
}
