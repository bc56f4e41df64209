package adapter

import "strings"

// Category 列类型分类
type Category int

const (
	CategoryOther Category = iota
	CategoryNumeric
	CategoryText
	CategoryDateTime
	CategoryBlob
)

var categoryNames = map[Category]string{
	CategoryOther:    "other",
	CategoryNumeric:  "numeric",
	CategoryText:     "text",
	CategoryDateTime: "datetime",
	CategoryBlob:     "blob",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "other"
}

// MarshalText 以名称序列化
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

var typeVocabulary = map[string]Category{
	"INTEGER":   CategoryNumeric,
	"REAL":      CategoryNumeric,
	"NUMERIC":   CategoryNumeric,
	"DECIMAL":   CategoryNumeric,
	"FLOAT":     CategoryNumeric,
	"DOUBLE":    CategoryNumeric,
	"TEXT":      CategoryText,
	"VARCHAR":   CategoryText,
	"CHAR":      CategoryText,
	"STRING":    CategoryText,
	"DATETIME":  CategoryDateTime,
	"DATE":      CategoryDateTime,
	"TIME":      CategoryDateTime,
	"TIMESTAMP": CategoryDateTime,
	"BLOB":      CategoryBlob,
}

// Classify 将声明类型映射为分类，未知类型归为 Other
//
// 匹配不区分大小写，`VARCHAR(255)` 这类长度后缀会先被去掉。
func Classify(dataType string) Category {
	base := strings.TrimSpace(dataType)
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if c, ok := typeVocabulary[strings.ToUpper(base)]; ok {
		return c
	}
	return CategoryOther
}

// Vocabulary 返回已知类型名及其分类
func Vocabulary() map[string]Category {
	out := make(map[string]Category, len(typeVocabulary))
	for k, v := range typeVocabulary {
		out[k] = v
	}
	return out
}
