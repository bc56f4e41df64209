package adapter

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-faster/errors"
)

// DefaultSchema SQLite 主库名
const DefaultSchema = "main"

// ErrConnection 数据库无法打开或无法访问
var ErrConnection = errors.New("database connection failed")

// SchemaProvider 元数据提供者接口，隔离引擎相关的 SQL
type SchemaProvider interface {
	// ListTables 列出用户表（按名称升序）
	ListTables(ctx context.Context) ([]string, error)

	// ListColumns 列出表的列，表不存在时返回空
	ListColumns(ctx context.Context, table string) ([]Column, error)

	// RowCount 统计行数
	RowCount(ctx context.Context, table string) (int64, error)

	// GetTables 获取全部表的结构和行数
	GetTables(ctx context.Context) ([]Table, error)

	// GetForeignKeys 获取外键约束
	GetForeignKeys(ctx context.Context) ([]ForeignKey, error)
}

// DBAdapter 数据库适配器接口
type DBAdapter interface {
	SchemaProvider

	// Name 数据库名称
	Name() string

	// Query 执行查询，返回的游标关闭时释放超时上下文
	Query(ctx context.Context, query string, args ...any) (RowCursor, error)

	// ScanRow 执行单行查询并扫描结果
	ScanRow(ctx context.Context, query string, args []any, dest ...any) error

	// Close 关闭连接
	Close() error
}

// RowCursor 行游标，*sql.Rows 满足该接口
type RowCursor interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Table 表信息
type Table struct {
	Schema   string
	Name     string
	Columns  []Column
	RowCount int64
}

// ColumnNames 返回列名列表
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column 列信息
type Column struct {
	Name         string
	DataType     string
	Nullable     bool
	IsPrimaryKey bool
	DefaultValue sql.NullString
}

// Category 根据声明类型分类
func (c Column) Category() Category {
	return Classify(c.DataType)
}

// ForeignKey 外键
type ForeignKey struct {
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

// QuoteIdent 以双引号包裹标识符
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// FindColumn 按名称查找列（区分大小写优先，其次不区分）
func FindColumn(columns []Column, name string) (Column, bool) {
	for _, c := range columns {
		if c.Name == name {
			return c, true
		}
	}
	for _, c := range columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}
