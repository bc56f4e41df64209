package renderer

import (
	"fmt"
	"strings"
	"unicode"
)

// MermaidRenderer Mermaid ER 图渲染器
type MermaidRenderer struct{}

// NewMermaidRenderer 创建渲染器
func NewMermaidRenderer() *MermaidRenderer {
	return &MermaidRenderer{}
}

// Render 渲染为 Mermaid 格式
func (m *MermaidRenderer) Render(s Schema) (string, error) {
	var sb strings.Builder

	sb.WriteString("erDiagram\n")

	// 输出表定义
	for _, table := range s.Tables {
		fmt.Fprintf(&sb, "    %s {\n", entityName(table.Name))
		for _, col := range table.Columns {
			keys := ""
			if col.IsPrimaryKey {
				keys = " PK"
			}
			if isForeignKey(s, table.Name, col.Name) {
				if keys == "" {
					keys = " FK"
				} else {
					keys += ", FK"
				}
			}
			fmt.Fprintf(&sb, "        %s %s%s\n", attributeType(col.DataType), entityName(col.Name), keys)
		}
		sb.WriteString("    }\n")
	}

	if len(s.ForeignKeys) == 0 && len(s.Inferred) == 0 {
		return sb.String(), nil
	}

	sb.WriteString("\n")

	// 渲染关系，被引用表在左侧
	for _, fk := range s.ForeignKeys {
		fmt.Fprintf(&sb, "    %s ||--o{ %s : \"%s\"\n",
			entityName(fk.ToTable), entityName(fk.FromTable), label(fk.FromColumn))
	}
	// 虚线表示推断关系
	for _, k := range s.Inferred {
		fmt.Fprintf(&sb, "    %s ||..o{ %s : \"%s %.2f\"\n",
			entityName(k.ToTable), entityName(k.FromTable), label(k.FromColumn), k.Confidence)
	}

	return sb.String(), nil
}

func label(s string) string {
	return strings.ReplaceAll(s, `"`, `'`)
}

func isForeignKey(s Schema, table, column string) bool {
	for _, fk := range s.ForeignKeys {
		if fk.FromTable == table && fk.FromColumn == column {
			return true
		}
	}
	return false
}

// entityName Mermaid 标识符只允许字母、数字、下划线和连字符
func entityName(name string) string {
	out := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
	if out == "" {
		return "_"
	}
	return out
}

// attributeType 去掉长度后缀，未声明类型记为 any
func attributeType(dataType string) string {
	base := strings.TrimSpace(dataType)
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if base == "" {
		return "any"
	}
	return entityName(base)
}
