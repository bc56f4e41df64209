package query

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"

	"sql2csv/internal/adapter"
)

// ErrUnknownTable 请求的表不存在
var ErrUnknownTable = errors.New("unknown table")

// TableDataPage 表格组件使用的分页响应
type TableDataPage struct {
	Draw            int              `json:"draw"`
	RecordsTotal    int64            `json:"recordsTotal"`
	RecordsFiltered int64            `json:"recordsFiltered"`
	Data            []map[string]any `json:"data"`
	Error           *string          `json:"error"`
}

// ErrorPage 返回带错误信息的空页
func ErrorPage(draw int, err error) *TableDataPage {
	msg := err.Error()
	return &TableDataPage{Draw: draw, Data: []map[string]any{}, Error: &msg}
}

// Viewer 表数据浏览
type Viewer struct {
	db     adapter.DBAdapter
	limits Limits
	logger zerolog.Logger
}

// NewViewer 创建浏览器
func NewViewer(db adapter.DBAdapter, limits Limits, logger zerolog.Logger) *Viewer {
	return &Viewer{
		db:     db,
		limits: limits,
		logger: logger.With().Str("component", "viewer").Str("database", db.Name()).Logger(),
	}
}

// Page 查询一页数据
//
// 表名必须存在于数据库中；列名由 Builder 校验。
func (v *Viewer) Page(ctx context.Context, table string, req Request) (*TableDataPage, error) {
	tables, err := v.db.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	name, ok := resolveTable(tables, table)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTable, "%q", table)
	}

	columns, err := v.db.ListColumns(ctx, name)
	if err != nil {
		return nil, err
	}
	q, err := NewBuilder(adapter.Table{Name: name, Columns: columns}, v.limits).Build(req)
	if err != nil {
		return nil, err
	}

	page := &TableDataPage{Draw: req.Draw, Data: []map[string]any{}}
	if err := v.db.ScanRow(ctx, q.CountSQL, nil, &page.RecordsTotal); err != nil {
		return nil, errors.Wrapf(err, "count rows of %q", name)
	}
	if len(q.FilterArgs) == 0 {
		page.RecordsFiltered = page.RecordsTotal
	} else if err := v.db.ScanRow(ctx, q.FilteredCountSQL, q.FilterArgs, &page.RecordsFiltered); err != nil {
		return nil, errors.Wrapf(err, "count filtered rows of %q", name)
	}

	rows, err := v.db.Query(ctx, q.DataSQL, q.DataArgs...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %q", name)
	}
	defer rows.Close()

	categories := make([]adapter.Category, len(q.Columns))
	for i, c := range q.Columns {
		if col, ok := adapter.FindColumn(columns, c); ok {
			categories[i] = col.Category()
		}
	}

	values := make([]any, len(q.Columns))
	ptrs := make([]any, len(q.Columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrapf(err, "scan %q", name)
		}
		row := make(map[string]any, len(q.Columns))
		for i, c := range q.Columns {
			row[c] = jsonValue(values[i], categories[i])
		}
		page.Data = append(page.Data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %q", name)
	}

	v.logger.Debug().Str("table", name).Int("rows", len(page.Data)).Int64("filtered", page.RecordsFiltered).Msg("Served page")
	return page, nil
}

// jsonValue 时间和字节转为文本，数值保持原样
func jsonValue(v any, cat adapter.Category) any {
	switch v.(type) {
	case time.Time, []byte:
		text, _ := adapter.FormatValue(v, cat)
		return text
	}
	return v
}

func resolveTable(tables []string, name string) (string, bool) {
	for _, t := range tables {
		if t == name {
			return t, true
		}
	}
	for _, t := range tables {
		if strings.EqualFold(t, name) {
			return t, true
		}
	}
	return "", false
}
