package export

import (
	"bufio"
	"io"
	"strings"

	"github.com/go-faster/errors"

	"sql2csv/internal/adapter"
)

const (
	DefaultDelimiter = ","
	DefaultNewline   = "\n"
)

// CSVOptions CSV 输出选项
type CSVOptions struct {
	Delimiter      string
	IncludeHeaders bool
	Newline        string
}

// DefaultCSVOptions 逗号分隔、包含表头
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter:      DefaultDelimiter,
		IncludeHeaders: true,
		Newline:        DefaultNewline,
	}
}

// CSVWriter 按列类型决定引号策略的 CSV 写入器
//
// 数值列的数值不加引号；NULL 一律输出为 ""；其余值总是加引号，内部的 " 写成 ""。
// 注意 NULL 与空字符串输出相同，读回时无法区分。
type CSVWriter struct {
	opts CSVOptions
}

// NewCSVWriter 创建写入器，空选项回落到默认值
func NewCSVWriter(opts CSVOptions) *CSVWriter {
	if opts.Delimiter == "" {
		opts.Delimiter = DefaultDelimiter
	}
	if opts.Newline == "" {
		opts.Newline = DefaultNewline
	}
	return &CSVWriter{opts: opts}
}

// WriteTable 写出表头和全部行，返回数据行数
//
// columns 提供声明类型，按游标返回的列名匹配；匹配不到的列按 Other 处理。
func (w *CSVWriter) WriteTable(cursor adapter.RowCursor, columns []adapter.Column, sink io.Writer) (int64, error) {
	names, err := cursor.Columns()
	if err != nil {
		return 0, errors.Wrap(err, "read column names")
	}

	categories := make([]adapter.Category, len(names))
	for i, name := range names {
		if col, ok := adapter.FindColumn(columns, name); ok {
			categories[i] = col.Category()
		} else {
			categories[i] = adapter.CategoryOther
		}
	}

	buf := bufio.NewWriter(sink)

	if w.opts.IncludeHeaders {
		header := make([]string, len(names))
		for i, name := range names {
			header[i] = quote(name)
		}
		if err := w.writeRecord(buf, header); err != nil {
			return 0, err
		}
	}

	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}
	fields := make([]string, len(names))

	var count int64
	for cursor.Next() {
		if err := cursor.Scan(ptrs...); err != nil {
			return count, errors.Wrapf(err, "scan row %d", count+1)
		}
		for i, v := range values {
			fields[i] = RenderField(v, categories[i])
		}
		if err := w.writeRecord(buf, fields); err != nil {
			return count, err
		}
		count++
	}
	if err := cursor.Err(); err != nil {
		return count, errors.Wrap(err, "read rows")
	}

	if err := buf.Flush(); err != nil {
		return count, errors.Wrap(err, "flush")
	}
	return count, nil
}

func (w *CSVWriter) writeRecord(buf *bufio.Writer, fields []string) error {
	if _, err := buf.WriteString(strings.Join(fields, w.opts.Delimiter)); err != nil {
		return errors.Wrap(err, "write record")
	}
	if _, err := buf.WriteString(w.opts.Newline); err != nil {
		return errors.Wrap(err, "write record")
	}
	return nil
}

// RenderField 渲染单个字段（含引号）
func RenderField(v any, cat adapter.Category) string {
	if v == nil {
		return `""`
	}
	text, numeric := adapter.FormatValue(v, cat)
	if cat == adapter.CategoryNumeric && numeric {
		return text
	}
	return quote(text)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
