package renderer

import (
	"context"
	"database/sql"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql2csv/internal/adapter"
)

func TestIdentifier(t *testing.T) {
	tests := map[string]string{
		"users":       "Users",
		"order_items": "OrderItems",
		"created-at":  "CreatedAt",
		"Id":          "Id",
		"2fa codes":   "X2faCodes",
		"":            "X",
		"__":          "X",
	}
	for in, want := range tests {
		assert.Equal(t, want, Identifier(in), in)
	}
}

func TestGenerateStruct(t *testing.T) {
	table := adapter.Table{
		Name: "order_items",
		Columns: []adapter.Column{
			{Name: "id", DataType: "INTEGER", IsPrimaryKey: true, Nullable: true},
			{Name: "name", DataType: "TEXT"},
			{Name: "price", DataType: "REAL", Nullable: true},
			{Name: "created_at", DataType: "DATETIME", Nullable: true},
			{Name: "payload", DataType: "BLOB", Nullable: true},
			{Name: "active", DataType: "BOOLEAN", DefaultValue: sql.NullString{String: "1", Valid: true}},
		},
	}

	src, err := GenerateStruct(table, "shop")
	require.NoError(t, err)

	code := string(src)
	_, err = parser.ParseFile(token.NewFileSet(), "order_items.go", src, 0)
	require.NoError(t, err, code)

	assert.Contains(t, code, "package shop")
	assert.Contains(t, code, `"database/sql"`)
	assert.NotContains(t, code, `"time"`)
	assert.Contains(t, code, "type OrderItems struct {")
	assert.Regexp(t, `Id\s+int64\s+`+"`"+`db:"id" json:"id"`+"`", code)
	assert.Regexp(t, `Name\s+string\s`, code)
	assert.Regexp(t, `Price\s+sql\.NullFloat64\s`, code)
	assert.Regexp(t, `CreatedAt\s+sql\.NullTime\s`, code)
	assert.Regexp(t, `Payload\s+\[\]byte\s`, code)
	assert.Regexp(t, `Active\s+bool\s`, code)
}

func TestGenerateStructDuplicateFields(t *testing.T) {
	table := adapter.Table{
		Name: "t",
		Columns: []adapter.Column{
			{Name: "user_id", DataType: "INTEGER"},
			{Name: "UserId", DataType: "INTEGER"},
			{Name: "seen", DataType: "DATE"},
		},
	}
	src, err := GenerateStruct(table, "")
	require.NoError(t, err)

	code := string(src)
	assert.Contains(t, code, "package models")
	assert.Contains(t, code, `"time"`)
	assert.Regexp(t, `UserId\s+int64`, code)
	assert.Regexp(t, `UserId2\s+int64`, code)
}

func TestGenerateStructs(t *testing.T) {
	files, err := GenerateStructs(context.Background(), openShop(t), "shop")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Contains(t, string(files["users.go"]), "type Users struct")
	assert.Contains(t, string(files["orders.go"]), "type Orders struct")
}

// renamedTables 只返回固定的表定义
type renamedTables struct {
	adapter.SchemaProvider
	tables []adapter.Table
}

func (r renamedTables) GetTables(context.Context) ([]adapter.Table, error) {
	return r.tables, nil
}

func TestGenerateStructsCollidingNames(t *testing.T) {
	col := []adapter.Column{{Name: "id", DataType: "INTEGER", IsPrimaryKey: true}}
	provider := renamedTables{tables: []adapter.Table{
		{Name: "a b", Columns: col},
		{Name: "a_b", Columns: col},
		{Name: "a_b_2", Columns: col},
	}}

	files, err := GenerateStructs(context.Background(), provider, "")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Contains(t, string(files["a_b.go"]), "type AB struct")
	assert.Contains(t, string(files["a_b_2.go"]), "type AB2 struct")
	assert.Contains(t, string(files["a_b_2_2.go"]), "type AB22 struct")
}
