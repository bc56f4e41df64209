package renderer

import (
	"context"
	"fmt"
	"go/format"
	"sort"
	"strings"
	"unicode"

	"github.com/go-faster/errors"

	"sql2csv/internal/adapter"
)

// DefaultPackage 生成代码的默认包名
const DefaultPackage = "models"

// goType 列对应的 Go 类型及需要的导入
type goType struct {
	name string
	pkg  string
}

// GenerateStruct 为一张表生成 Go 结构体源码
//
// 可空列使用 sql.Null* 类型，BLOB 列总是 []byte。
func GenerateStruct(table adapter.Table, pkg string) ([]byte, error) {
	return generateStruct(table, pkg, Identifier(table.Name))
}

func generateStruct(table adapter.Table, pkg, typeName string) ([]byte, error) {
	if pkg == "" {
		pkg = DefaultPackage
	}

	imports := map[string]bool{}
	used := map[string]int{}

	var body strings.Builder
	fmt.Fprintf(&body, "// %s 表 %s 的一行\n", typeName, table.Name)
	fmt.Fprintf(&body, "type %s struct {\n", typeName)
	for _, col := range table.Columns {
		t := columnGoType(col)
		if t.pkg != "" {
			imports[t.pkg] = true
		}

		field := Identifier(col.Name)
		// 不同列名可能映射为相同字段名
		if n := used[field]; n > 0 {
			used[field] = n + 1
			field = fmt.Sprintf("%s%d", field, n+1)
		} else {
			used[field] = 1
		}
		fmt.Fprintf(&body, "\t%s %s `db:%q json:%q`\n", field, t.name, col.Name, col.Name)
	}
	body.WriteString("}\n")

	var sb strings.Builder
	sb.WriteString("// Code generated by sql2csv. DO NOT EDIT.\n\n")
	fmt.Fprintf(&sb, "package %s\n\n", pkg)
	if len(imports) > 0 {
		paths := make([]string, 0, len(imports))
		for p := range imports {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		sb.WriteString("import (\n")
		for _, p := range paths {
			fmt.Fprintf(&sb, "\t%q\n", p)
		}
		sb.WriteString(")\n\n")
	}
	sb.WriteString(body.String())

	src, err := format.Source([]byte(sb.String()))
	if err != nil {
		return nil, errors.Wrapf(err, "format struct for %q", table.Name)
	}
	return src, nil
}

// StructFileName 生成文件名
func StructFileName(table string) string {
	return strings.ToLower(entityName(table)) + ".go"
}

func columnGoType(col adapter.Column) goType {
	base := strings.ToUpper(strings.TrimSpace(col.DataType))
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	var plain, null goType
	switch {
	case base == "INTEGER" || base == "INT" || base == "BIGINT" || base == "SMALLINT" || base == "TINYINT":
		plain, null = goType{name: "int64"}, goType{name: "sql.NullInt64", pkg: "database/sql"}
	case base == "BOOLEAN" || base == "BOOL":
		plain, null = goType{name: "bool"}, goType{name: "sql.NullBool", pkg: "database/sql"}
	case base == "BLOB":
		return goType{name: "[]byte"}
	default:
		switch adapter.Classify(col.DataType) {
		case adapter.CategoryNumeric:
			plain, null = goType{name: "float64"}, goType{name: "sql.NullFloat64", pkg: "database/sql"}
		case adapter.CategoryDateTime:
			plain, null = goType{name: "time.Time", pkg: "time"}, goType{name: "sql.NullTime", pkg: "database/sql"}
		default:
			plain, null = goType{name: "string"}, goType{name: "sql.NullString", pkg: "database/sql"}
		}
	}
	if col.Nullable && !col.IsPrimaryKey {
		return null
	}
	return plain
}

// Identifier 将表名或列名转换为导出的 Go 标识符（PascalCase）
func Identifier(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var sb strings.Builder
	for _, p := range parts {
		runes := []rune(p)
		runes[0] = unicode.ToUpper(runes[0])
		sb.WriteString(string(runes))
	}

	out := sb.String()
	if out == "" {
		return "X"
	}
	if first := []rune(out)[0]; unicode.IsDigit(first) || !unicode.IsUpper(first) {
		out = "X" + out
	}
	return out
}

// GenerateStructs 为数据库中的每张表生成源码，键为文件名
func GenerateStructs(ctx context.Context, provider adapter.SchemaProvider, pkg string) (map[string][]byte, error) {
	tables, err := provider.GetTables(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read schema")
	}
	files := make(map[string][]byte, len(tables))
	types := map[string]bool{}
	for _, table := range tables {
		// 不同表名可能映射为相同的类型名和文件名
		base := Identifier(table.Name)
		stem := strings.TrimSuffix(StructFileName(table.Name), ".go")
		typeName, fileName := base, stem+".go"
		for n := 2; types[typeName] || files[fileName] != nil; n++ {
			typeName = fmt.Sprintf("%s%d", base, n)
			fileName = fmt.Sprintf("%s_%d.go", stem, n)
		}
		types[typeName] = true

		src, err := generateStruct(table, pkg, typeName)
		if err != nil {
			return nil, err
		}
		files[fileName] = src
	}
	return files, nil
}
