package renderer

import (
	"fmt"
	"strings"

	"sql2csv/internal/adapter"
)

const ruleWidth = 50

// TextRenderer 纯文本结构报告
type TextRenderer struct{}

// NewTextRenderer 创建渲染器
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

// Render 每张表一个段落，列缩进两格
func (r *TextRenderer) Render(s Schema) (string, error) {
	var sb strings.Builder
	for _, table := range s.Tables {
		fmt.Fprintf(&sb, "Table: %s (%d rows)\n", table.Name, table.RowCount)
		sb.WriteString(strings.Repeat("-", ruleWidth))
		sb.WriteString("\n")
		for _, col := range table.Columns {
			sb.WriteString(textColumn(col))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func textColumn(col adapter.Column) string {
	nullable := "NOT NULL"
	if col.Nullable {
		nullable = "NULL"
	}
	line := fmt.Sprintf("  %s (%s) %s", col.Name, col.DataType, nullable)
	if col.IsPrimaryKey {
		line += " PRIMARY KEY"
	}
	if col.DefaultValue.Valid && col.DefaultValue.String != "" {
		line += " DEFAULT " + col.DefaultValue.String
	}
	return line
}
