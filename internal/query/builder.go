// Package query 构建表格视图的分页、搜索和排序 SQL
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"

	"sql2csv/internal/adapter"
)

const (
	// DefaultPageLength 未指定长度时的每页行数
	DefaultPageLength = 10
	// MaxPageLength 单页行数上限，-1（全部）不受限制
	MaxPageLength = 1000
	// AllRows 请求全部行
	AllRows = -1
)

// ErrUnknownIdentifier 请求的列不在表结构中
var ErrUnknownIdentifier = errors.New("unknown identifier")

// Limits 分页限制
type Limits struct {
	DefaultLength int
	MaxLength     int
}

// DefaultLimits 默认分页限制
func DefaultLimits() Limits {
	return Limits{DefaultLength: DefaultPageLength, MaxLength: MaxPageLength}
}

// Order 按投影列下标排序
type Order struct {
	Column int
	Desc   bool
}

// Request 表格视图请求
type Request struct {
	Draw   int
	Start  int
	Length int
	Search string
	Order  []Order
	// Columns 投影列，为空表示全部列
	Columns []string
}

// Query 构建结果，标识符已校验并加引号，值全部绑定为参数
type Query struct {
	Columns          []string
	CountSQL         string
	FilteredCountSQL string
	FilterArgs       []any
	DataSQL          string
	DataArgs         []any
}

// Builder 针对单张表的查询构建器
type Builder struct {
	table   adapter.Table
	limits  Limits
	allowed map[string]string
}

// NewBuilder 以表结构中的列名作为白名单
func NewBuilder(table adapter.Table, limits Limits) *Builder {
	if limits.DefaultLength <= 0 {
		limits.DefaultLength = DefaultPageLength
	}
	if limits.MaxLength <= 0 {
		limits.MaxLength = MaxPageLength
	}
	allowed := make(map[string]string, len(table.Columns)*2)
	for _, c := range table.Columns {
		allowed[c.Name] = c.Name
	}
	// 不区分大小写的匹配不能覆盖精确匹配
	for _, c := range table.Columns {
		if _, ok := allowed[strings.ToLower(c.Name)]; !ok {
			allowed[strings.ToLower(c.Name)] = c.Name
		}
	}
	return &Builder{table: table, limits: limits, allowed: allowed}
}

// Build 构建计数、过滤计数和数据查询
func (b *Builder) Build(req Request) (*Query, error) {
	columns, err := b.projection(req.Columns)
	if err != nil {
		return nil, err
	}

	from := "FROM " + adapter.QuoteIdent(b.table.Name)
	q := &Query{
		Columns:  columns,
		CountSQL: "SELECT COUNT(*) " + from,
	}

	where, args := b.where(columns, req.Search)
	q.FilteredCountSQL = q.CountSQL + where
	q.FilterArgs = args

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = adapter.QuoteIdent(c)
	}
	q.DataSQL = fmt.Sprintf("SELECT %s %s%s ORDER BY %s LIMIT ? OFFSET ?",
		strings.Join(quoted, ", "), from, where, b.orderBy(columns, req.Order))

	start := req.Start
	if start < 0 {
		start = 0
	}
	q.DataArgs = append(append([]any{}, args...), b.length(req.Length), start)
	return q, nil
}

func (b *Builder) projection(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return b.table.ColumnNames(), nil
	}
	out := make([]string, 0, len(requested))
	for _, name := range requested {
		canonical, ok := b.allowed[name]
		if !ok {
			canonical, ok = b.allowed[strings.ToLower(name)]
		}
		if !ok {
			return nil, errors.Wrapf(ErrUnknownIdentifier, "column %q of %q", name, b.table.Name)
		}
		out = append(out, canonical)
	}
	return out, nil
}

// where 搜索词匹配所有投影列，大小写是否敏感取决于 SQLite 的 LIKE（仅 ASCII 不敏感）
func (b *Builder) where(columns []string, search string) (string, []any) {
	term := strings.TrimSpace(search)
	if term == "" || len(columns) == 0 {
		return "", nil
	}
	pattern := "%" + EscapeLike(term) + "%"
	conds := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		conds[i] = adapter.QuoteIdent(c) + ` LIKE ? ESCAPE '\'`
		args[i] = pattern
	}
	return " WHERE (" + strings.Join(conds, " OR ") + ")", args
}

func (b *Builder) orderBy(columns []string, orders []Order) string {
	var parts []string
	for _, o := range orders {
		// 越界下标忽略
		if o.Column < 0 || o.Column >= len(columns) {
			continue
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, adapter.QuoteIdent(columns[o.Column])+" "+dir)
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}

	// 稳定的默认顺序：主键，否则 rowid
	for _, c := range b.table.Columns {
		if c.IsPrimaryKey {
			parts = append(parts, adapter.QuoteIdent(c.Name)+" ASC")
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	return "rowid ASC"
}

func (b *Builder) length(n int) int {
	switch {
	case n == AllRows:
		return AllRows
	case n <= 0:
		return b.limits.DefaultLength
	case n > b.limits.MaxLength:
		return b.limits.MaxLength
	}
	return n
}

// EscapeLike 转义 LIKE 通配符，配合 ESCAPE '\' 使用
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ParseOrder 解析 "0:asc,2:desc" 形式的排序参数，无法解析的项被忽略
func ParseOrder(s string) []Order {
	var orders []Order
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx, dir, _ := strings.Cut(part, ":")
		col, err := strconv.Atoi(strings.TrimSpace(idx))
		if err != nil {
			continue
		}
		orders = append(orders, Order{Column: col, Desc: strings.EqualFold(strings.TrimSpace(dir), "desc")})
	}
	return orders
}
