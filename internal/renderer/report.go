package renderer

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"sql2csv/internal/adapter"
)

// Format 报告格式
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatMermaid  Format = "mermaid"
)

// ErrUnknownFormat 不支持的报告格式
var ErrUnknownFormat = errors.New("unknown report format")

// InferredKey 推断出的外键及置信度
type InferredKey struct {
	adapter.ForeignKey
	Confidence float64
}

// Schema 渲染输入
type Schema struct {
	Tables      []adapter.Table
	ForeignKeys []adapter.ForeignKey
	Inferred    []InferredKey
}

// relationsOf 与表相关的声明外键和推断外键
func (s Schema) relationsOf(table string) (declared []adapter.ForeignKey, inferred []InferredKey) {
	for _, fk := range s.ForeignKeys {
		if fk.FromTable == table || fk.ToTable == table {
			declared = append(declared, fk)
		}
	}
	for _, k := range s.Inferred {
		if k.FromTable == table || k.ToTable == table {
			inferred = append(inferred, k)
		}
	}
	return declared, inferred
}

// ReportOption 报告选项
type ReportOption func(*Schema)

// WithInferredKeys 附加推断外键，只有 markdown 和 mermaid 会使用
func WithInferredKeys(keys []InferredKey) ReportOption {
	return func(s *Schema) {
		s.Inferred = keys
	}
}

// Renderer 报告渲染器
type Renderer interface {
	Render(s Schema) (string, error)
}

// ParseFormat 解析格式名，空字符串为 text
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "mermaid", "er":
		return FormatMermaid, nil
	}
	return "", errors.Wrapf(ErrUnknownFormat, "%q (want text, markdown, json or mermaid)", name)
}

// NewRenderer 返回格式对应的渲染器
func NewRenderer(format Format) (Renderer, error) {
	switch format {
	case FormatText:
		return NewTextRenderer(), nil
	case FormatMarkdown:
		return NewMarkdownRenderer(), nil
	case FormatJSON:
		return NewJSONRenderer(), nil
	case FormatMermaid:
		return NewMermaidRenderer(), nil
	}
	return nil, errors.Wrapf(ErrUnknownFormat, "%q", format)
}

// GenerateReport 读取数据库结构并渲染为指定格式
func GenerateReport(ctx context.Context, provider adapter.SchemaProvider, format Format, opts ...ReportOption) (string, error) {
	r, err := NewRenderer(format)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", adapter.Cancelled(err)
	}

	tables, err := provider.GetTables(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", adapter.Cancelled(ctx.Err())
		}
		return "", errors.Wrap(err, "read schema")
	}

	s := Schema{Tables: tables}
	for _, opt := range opts {
		opt(&s)
	}
	if format == FormatMermaid || format == FormatMarkdown {
		if s.ForeignKeys, err = provider.GetForeignKeys(ctx); err != nil {
			return "", errors.Wrap(err, "read foreign keys")
		}
	}
	return r.Render(s)
}
