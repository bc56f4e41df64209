// Package sqlitetest 提供测试用的 SQLite 数据库构建工具
package sqlitetest

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// UsersFixture Users 表及两行样例数据
var UsersFixture = []string{
	`CREATE TABLE Users (Id INTEGER PRIMARY KEY, Name TEXT NOT NULL, Email TEXT NULL, Age INTEGER NULL)`,
	`INSERT INTO Users (Id, Name, Email, Age) VALUES (1, 'John Doe', 'john@example.com', 30)`,
	`INSERT INTO Users (Id, Name, Email, Age) VALUES (2, 'Jane Smith', NULL, NULL)`,
}

// Create 在临时目录中创建名为 name 的数据库并执行语句
func Create(t testing.TB, name string, statements ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return path
}
