package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteAdapter SQLite 适配器
type SQLiteAdapter struct {
	db      *sql.DB
	name    string
	timeout time.Duration
}

// FileDSN 根据文件路径构建只读连接串
//
// 路径按 URI 转义，文件名中的 `#`、`?`、`%` 不会截断参数。
func FileDSN(path string) string {
	return "file:" + (&url.URL{Path: filepath.ToSlash(path)}).EscapedPath() + "?mode=ro"
}

// DatabaseName 由文件路径得到数据库名称
func DatabaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NewSQLiteAdapter 打开数据库并验证连接
func NewSQLiteAdapter(ctx context.Context, name, connStr string, timeout time.Duration) (*SQLiteAdapter, error) {
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, errors.Wrapf(ErrConnection, "open %s: %v", name, err)
	}
	// 单连接，保证一次导出只有一个游标
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(ErrConnection, "ping %s: %v", name, err)
	}
	return NewSQLiteAdapterFromDB(db, name, timeout), nil
}

// NewSQLiteAdapterFromDB 使用已打开的连接创建适配器
func NewSQLiteAdapterFromDB(db *sql.DB, name string, timeout time.Duration) *SQLiteAdapter {
	return &SQLiteAdapter{db: db, name: name, timeout: timeout}
}

// Name 数据库名称
func (a *SQLiteAdapter) Name() string {
	return a.name
}

func (a *SQLiteAdapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// Query 执行查询
func (a *SQLiteAdapter) Query(ctx context.Context, query string, args ...any) (RowCursor, error) {
	qctx, cancel := a.withTimeout(ctx)
	rows, err := a.db.QueryContext(qctx, query, args...)
	if err != nil {
		cancel()
		return nil, err
	}
	return &timedRows{Rows: rows, cancel: cancel}, nil
}

// ScanRow 执行单行查询
func (a *SQLiteAdapter) ScanRow(ctx context.Context, query string, args []any, dest ...any) error {
	qctx, cancel := a.withTimeout(ctx)
	defer cancel()
	return a.db.QueryRowContext(qctx, query, args...).Scan(dest...)
}

// ListTables 列出用户表
func (a *SQLiteAdapter) ListTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY name
	`
	rows, err := a.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list tables")
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan table name")
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// ListColumns 获取列信息
func (a *SQLiteAdapter) ListColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := a.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", QuoteIdent(table)))
	if err != nil {
		return nil, errors.Wrapf(err, "table info %q", table)
	}
	defer rows.Close()

	columns := []Column{}
	for rows.Next() {
		var (
			cid     int
			c       Column
			dataTyp sql.NullString
			notNull int
			pk      int
		)
		if err := rows.Scan(&cid, &c.Name, &dataTyp, &notNull, &c.DefaultValue, &pk); err != nil {
			return nil, errors.Wrapf(err, "scan column of %q", table)
		}
		c.DataType = dataTyp.String
		c.Nullable = notNull == 0
		c.IsPrimaryKey = pk > 0
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// RowCount 统计行数
func (a *SQLiteAdapter) RowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", QuoteIdent(table))
	if err := a.ScanRow(ctx, query, nil, &count); err != nil {
		return 0, errors.Wrapf(err, "count rows of %q", table)
	}
	return count, nil
}

// GetTables 获取全部表信息
func (a *SQLiteAdapter) GetTables(ctx context.Context) ([]Table, error) {
	names, err := a.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		columns, err := a.ListColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		count, err := a.RowCount(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, Table{
			Schema:   DefaultSchema,
			Name:     name,
			Columns:  columns,
			RowCount: count,
		})
	}
	return tables, nil
}

// GetForeignKeys 获取外键约束
func (a *SQLiteAdapter) GetForeignKeys(ctx context.Context) ([]ForeignKey, error) {
	names, err := a.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	var fks []ForeignKey
	for _, table := range names {
		rows, err := a.Query(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", QuoteIdent(table)))
		if err != nil {
			return nil, errors.Wrapf(err, "foreign keys of %q", table)
		}
		for rows.Next() {
			var (
				id, seq            int
				toTable, from      string
				to                 sql.NullString
				onUpdate, onDelete string
				match              string
			)
			if err := rows.Scan(&id, &seq, &toTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
				rows.Close()
				return nil, errors.Wrapf(err, "scan foreign key of %q", table)
			}
			fks = append(fks, ForeignKey{
				FromTable:  table,
				FromColumn: from,
				ToTable:    toTable,
				ToColumn:   to.String,
			})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return fks, nil
}

// Close 关闭连接
func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}

type timedRows struct {
	*sql.Rows
	cancel context.CancelFunc
}

func (r *timedRows) Close() error {
	err := r.Rows.Close()
	r.cancel()
	return err
}
