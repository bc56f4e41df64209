package renderer

import (
	"encoding/json"

	"github.com/go-faster/errors"
)

// TableReport JSON 报告中的一张表
type TableReport struct {
	Table    string         `json:"table"`
	RowCount int64          `json:"rowCount"`
	Columns  []ColumnReport `json:"columns"`
}

// ColumnReport JSON 报告中的一列
type ColumnReport struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Nullable   bool    `json:"nullable"`
	PrimaryKey bool    `json:"primaryKey"`
	Default    *string `json:"default"`
}

// JSONRenderer JSON 结构报告
type JSONRenderer struct{}

// NewJSONRenderer 创建渲染器
func NewJSONRenderer() *JSONRenderer {
	return &JSONRenderer{}
}

// Render 输出表数组，没有默认值的列 default 为 null
func (r *JSONRenderer) Render(s Schema) (string, error) {
	reports := make([]TableReport, 0, len(s.Tables))
	for _, table := range s.Tables {
		tr := TableReport{
			Table:    table.Name,
			RowCount: table.RowCount,
			Columns:  make([]ColumnReport, 0, len(table.Columns)),
		}
		for _, col := range table.Columns {
			cr := ColumnReport{
				Name:       col.Name,
				Type:       col.DataType,
				Nullable:   col.Nullable,
				PrimaryKey: col.IsPrimaryKey,
			}
			if col.DefaultValue.Valid {
				v := col.DefaultValue.String
				cr.Default = &v
			}
			tr.Columns = append(tr.Columns, cr)
		}
		reports = append(reports, tr)
	}

	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal report")
	}
	return string(data), nil
}

// ParseJSONReport 解析 JSON 报告
func ParseJSONReport(data []byte) ([]TableReport, error) {
	var reports []TableReport
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, errors.Wrap(err, "parse report")
	}
	return reports, nil
}
