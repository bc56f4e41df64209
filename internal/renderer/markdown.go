package renderer

import (
	"fmt"
	"strings"

	"sql2csv/internal/adapter"
)

// MarkdownRenderer Markdown 数据字典渲染器
type MarkdownRenderer struct{}

// NewMarkdownRenderer 创建渲染器
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// Render 渲染为 Markdown 格式
func (m *MarkdownRenderer) Render(s Schema) (string, error) {
	var sb strings.Builder

	sb.WriteString("# Database Schema Report\n\n")

	for _, table := range s.Tables {
		fmt.Fprintf(&sb, "## Table: %s\n\n", cell(table.Name))
		fmt.Fprintf(&sb, "Rows: %d\n\n", table.RowCount)

		// 表头
		sb.WriteString("| Column | Type | Nullable | PK | Default |\n")
		sb.WriteString("|--------|------|----------|----|---------|\n")

		for _, col := range table.Columns {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
				cell(col.Name),
				cell(col.DataType),
				yesNo(col.Nullable),
				yesNo(col.IsPrimaryKey),
				cell(defaultText(col)),
			)
		}

		sb.WriteString("\n")

		// 输出该表的关系
		m.renderTableRelations(&sb, s, table.Name)
	}

	return sb.String(), nil
}

// renderTableRelations 渲染表关系
func (m *MarkdownRenderer) renderTableRelations(sb *strings.Builder, s Schema, tableName string) {
	declared, inferred := s.relationsOf(tableName)
	if len(declared) == 0 && len(inferred) == 0 {
		return
	}

	sb.WriteString("### Relations\n\n")

	for _, fk := range declared {
		fmt.Fprintf(sb, "- **Foreign key** `%s.%s` → `%s.%s`\n",
			fk.FromTable, fk.FromColumn, fk.ToTable, targetColumn(fk))
	}
	for _, k := range inferred {
		fmt.Fprintf(sb, "- **Inferred** `%s.%s` → `%s.%s` (confidence: %.2f)\n",
			k.FromTable, k.FromColumn, k.ToTable, targetColumn(k.ForeignKey), k.Confidence)
	}

	sb.WriteString("\n")
}

// targetColumn 省略目标列的外键指向主键
func targetColumn(fk adapter.ForeignKey) string {
	if fk.ToColumn == "" {
		return "(primary key)"
	}
	return fk.ToColumn
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func defaultText(col adapter.Column) string {
	if !col.DefaultValue.Valid {
		return ""
	}
	return col.DefaultValue.String
}

// cell 转义单元格中的竖线和换行
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
