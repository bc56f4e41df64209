package analyzer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"

	"sql2csv/internal/adapter"
)

// DefaultTopValues 默认的高频值个数
const DefaultTopValues = 10

// NullLabel 高频值列表中 NULL 的显示文本
const NullLabel = "(null)"

var (
	// ErrUnknownColumn 列不存在
	ErrUnknownColumn = errors.New("unknown column")
	// ErrUnknownTable 表不存在
	ErrUnknownTable = errors.New("unknown table")
)

// QualityWeights 质量分权重
type QualityWeights struct {
	Completeness float64 `json:"completeness" yaml:"completeness"`
	Uniqueness   float64 `json:"uniqueness" yaml:"uniqueness"`
}

// DefaultQualityWeights 完整度 0.7，唯一度 0.3
var DefaultQualityWeights = QualityWeights{Completeness: 0.7, Uniqueness: 0.3}

// Score 计算质量分，结果在 [0,1]；total 为 0 时为 0
func (w QualityWeights) Score(nullCount, uniqueCount, total int64) float64 {
	if total <= 0 {
		return 0
	}
	completeness := 1 - float64(nullCount)/float64(total)
	uniqueness := math.Min(1, float64(uniqueCount)/float64(total))
	return clamp01(w.Completeness*completeness + w.Uniqueness*uniqueness)
}

// ValueFrequency 值及其出现次数
type ValueFrequency struct {
	Value      string  `json:"value"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ColumnStats 按类型分类的统计信息，只会是下面三种之一
type ColumnStats interface {
	Kind() string
}

// NumericStats 数值列统计，查询失败的字段为 nil
type NumericStats struct {
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Mean   *float64 `json:"mean,omitempty"`
	Median *float64 `json:"median,omitempty"`
	StdDev *float64 `json:"stdDev,omitempty"`
}

// Kind 统计类型
func (*NumericStats) Kind() string { return "numeric" }

// TextStats 文本长度统计
type TextStats struct {
	MinLength *int64   `json:"minLength,omitempty"`
	MaxLength *int64   `json:"maxLength,omitempty"`
	AvgLength *float64 `json:"avgLength,omitempty"`
}

// Kind 统计类型
func (*TextStats) Kind() string { return "text" }

// DateTimeStats 时间范围统计
type DateTimeStats struct {
	Min   *time.Time     `json:"min,omitempty"`
	Max   *time.Time     `json:"max,omitempty"`
	Range *time.Duration `json:"range,omitempty"`
}

// Kind 统计类型
func (*DateTimeStats) Kind() string { return "datetime" }

// ColumnAnalysis 单列分析结果
type ColumnAnalysis struct {
	TableName        string           `json:"tableName"`
	ColumnName       string           `json:"columnName"`
	DataType         string           `json:"dataType"`
	Category         adapter.Category `json:"category"`
	IsNullable       bool             `json:"isNullable"`
	IsPrimaryKey     bool             `json:"isPrimaryKey"`
	TotalCount       int64            `json:"totalCount"`
	NullCount        int64            `json:"nullCount"`
	UniqueCount      int64            `json:"uniqueCount"`
	NullPercentage   float64          `json:"nullPercentage"`
	UniquePercentage float64          `json:"uniquePercentage"`
	Stats            ColumnStats      `json:"stats,omitempty"`
	TopValues        []ValueFrequency `json:"topValues"`
	QualityScore     float64          `json:"qualityScore"`
}

// MarshalJSON 附带统计类型，便于客户端区分
func (a ColumnAnalysis) MarshalJSON() ([]byte, error) {
	type plain ColumnAnalysis
	out := struct {
		plain
		StatsKind string `json:"statsKind,omitempty"`
	}{plain: plain(a)}
	if a.Stats != nil {
		out.StatsKind = a.Stats.Kind()
	}
	return json.Marshal(out)
}

// Numeric 返回数值统计
func (a *ColumnAnalysis) Numeric() (*NumericStats, bool) {
	s, ok := a.Stats.(*NumericStats)
	return s, ok
}

// Text 返回文本统计
func (a *ColumnAnalysis) Text() (*TextStats, bool) {
	s, ok := a.Stats.(*TextStats)
	return s, ok
}

// DateTime 返回时间统计
func (a *ColumnAnalysis) DateTime() (*DateTimeStats, bool) {
	s, ok := a.Stats.(*DateTimeStats)
	return s, ok
}

// DuplicateCount 非唯一值个数
func (a *ColumnAnalysis) DuplicateCount() int64 {
	if d := a.TotalCount - a.UniqueCount; d > 0 {
		return d
	}
	return 0
}

// StatisticsAnalyzer 列统计分析器
type StatisticsAnalyzer struct {
	db      adapter.DBAdapter
	topN    int
	weights QualityWeights
	logger  zerolog.Logger
}

// Option 分析器选项
type Option func(*StatisticsAnalyzer)

// WithTopValues 设置高频值个数
func WithTopValues(n int) Option {
	return func(a *StatisticsAnalyzer) {
		if n > 0 {
			a.topN = n
		}
	}
}

// WithQualityWeights 覆盖质量分权重
func WithQualityWeights(w QualityWeights) Option {
	return func(a *StatisticsAnalyzer) {
		a.weights = w
	}
}

// NewStatisticsAnalyzer 创建分析器
func NewStatisticsAnalyzer(db adapter.DBAdapter, logger zerolog.Logger, opts ...Option) *StatisticsAnalyzer {
	a := &StatisticsAnalyzer{
		db:      db,
		topN:    DefaultTopValues,
		weights: DefaultQualityWeights,
		logger:  logger.With().Str("component", "analyzer").Str("database", db.Name()).Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze 分析单列
//
// 空值数和唯一值数查询失败时返回错误；类型统计和高频值失败时降级为缺省。
func (a *StatisticsAnalyzer) Analyze(ctx context.Context, table, column string, totalRows int64) (*ColumnAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, adapter.Cancelled(err)
	}

	columns, err := a.db.ListColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	col, ok := adapter.FindColumn(columns, column)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownColumn, "%s.%s", table, column)
	}
	return a.analyzeColumn(ctx, table, col, totalRows)
}

func (a *StatisticsAnalyzer) analyzeColumn(ctx context.Context, table string, col adapter.Column, totalRows int64) (*ColumnAnalysis, error) {
	q := columnQueries{table: adapter.QuoteIdent(table), column: adapter.QuoteIdent(col.Name)}
	log := a.logger.With().Str("table", table).Str("column", col.Name).Logger()

	result := &ColumnAnalysis{
		TableName:    table,
		ColumnName:   col.Name,
		DataType:     col.DataType,
		Category:     col.Category(),
		IsNullable:   col.Nullable,
		IsPrimaryKey: col.IsPrimaryKey,
		TotalCount:   totalRows,
		TopValues:    []ValueFrequency{},
	}

	if err := a.db.ScanRow(ctx, q.nullCount(), nil, &result.NullCount); err != nil {
		return nil, columnError(ctx, err, "count nulls of %s.%s", table, col.Name)
	}
	if err := a.db.ScanRow(ctx, q.uniqueCount(), nil, &result.UniqueCount); err != nil {
		return nil, columnError(ctx, err, "count distinct values of %s.%s", table, col.Name)
	}
	result.NullPercentage = percentage(result.NullCount, totalRows)
	result.UniquePercentage = percentage(result.UniqueCount, totalRows)

	switch result.Category {
	case adapter.CategoryNumeric:
		result.Stats = a.numericStats(ctx, q, log)
	case adapter.CategoryText:
		result.Stats = a.textStats(ctx, q, log)
	case adapter.CategoryDateTime:
		result.Stats = a.dateTimeStats(ctx, q, log)
	}

	top, err := a.topValues(ctx, q, result.Category, totalRows)
	if err != nil {
		log.Debug().Err(err).Msg("Top values unavailable")
	} else {
		result.TopValues = top
	}

	// 取消后不返回降级的结果
	if err := ctx.Err(); err != nil {
		return nil, adapter.Cancelled(err)
	}

	result.QualityScore = a.weights.Score(result.NullCount, result.UniqueCount, totalRows)
	return result, nil
}

// columnError 上下文已取消时返回取消错误，否则包装查询错误
func columnError(ctx context.Context, err error, format string, args ...any) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return adapter.Cancelled(ctxErr)
	}
	return errors.Wrapf(err, format, args...)
}

func (a *StatisticsAnalyzer) numericStats(ctx context.Context, q columnQueries, log zerolog.Logger) *NumericStats {
	stats := &NumericStats{}

	var (
		minV, maxV   any
		mean, meanSq sql.NullFloat64
		nonNull      int64
	)
	if err := a.db.ScanRow(ctx, q.numericAggregate(), nil, &minV, &maxV, &mean, &meanSq, &nonNull); err != nil {
		log.Debug().Err(err).Msg("Numeric aggregate unavailable")
		return stats
	}
	stats.Min = toFloat(minV)
	stats.Max = toFloat(maxV)
	if mean.Valid {
		stats.Mean = floatPtr(mean.Float64)
		if meanSq.Valid {
			// 总体标准差
			variance := math.Max(0, meanSq.Float64-mean.Float64*mean.Float64)
			stats.StdDev = floatPtr(math.Sqrt(variance))
		}
	}

	if nonNull > 0 {
		var median any
		if err := a.db.ScanRow(ctx, q.median(), []any{nonNull / 2}, &median); err != nil {
			log.Debug().Err(err).Msg("Median unavailable")
		} else {
			stats.Median = toFloat(median)
		}
	}
	return stats
}

func (a *StatisticsAnalyzer) textStats(ctx context.Context, q columnQueries, log zerolog.Logger) *TextStats {
	stats := &TextStats{}
	var (
		minLen, maxLen sql.NullInt64
		avgLen         sql.NullFloat64
	)
	if err := a.db.ScanRow(ctx, q.textLengths(), nil, &minLen, &maxLen, &avgLen); err != nil {
		log.Debug().Err(err).Msg("Text statistics unavailable")
		return stats
	}
	if minLen.Valid {
		stats.MinLength = &minLen.Int64
	}
	if maxLen.Valid {
		stats.MaxLength = &maxLen.Int64
	}
	if avgLen.Valid {
		stats.AvgLength = &avgLen.Float64
	}
	return stats
}

func (a *StatisticsAnalyzer) dateTimeStats(ctx context.Context, q columnQueries, log zerolog.Logger) *DateTimeStats {
	stats := &DateTimeStats{}
	var minV, maxV any
	if err := a.db.ScanRow(ctx, q.minMax(), nil, &minV, &maxV); err != nil {
		log.Debug().Err(err).Msg("Date statistics unavailable")
		return stats
	}
	if t, ok := adapter.ToTime(minV); ok {
		stats.Min = &t
	}
	if t, ok := adapter.ToTime(maxV); ok {
		stats.Max = &t
	}
	if stats.Min != nil && stats.Max != nil {
		d := stats.Max.Sub(*stats.Min)
		stats.Range = &d
	}
	return stats
}

func (a *StatisticsAnalyzer) topValues(ctx context.Context, q columnQueries, cat adapter.Category, totalRows int64) ([]ValueFrequency, error) {
	rows, err := a.db.Query(ctx, q.topValues(), a.topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ValueFrequency{}
	for rows.Next() {
		var (
			v     any
			count int64
		)
		if err := rows.Scan(&v, &count); err != nil {
			return nil, err
		}
		label := NullLabel
		if v != nil {
			label, _ = adapter.FormatValue(v, cat)
		}
		out = append(out, ValueFrequency{
			Value:      label,
			Count:      count,
			Percentage: percentage(count, totalRows),
		})
	}
	return out, rows.Err()
}

// TableStatistics 表级统计
type TableStatistics struct {
	TotalRows         int64   `json:"totalRows"`
	TotalColumns      int     `json:"totalColumns"`
	NumericColumns    int     `json:"numericColumns"`
	TextColumns       int     `json:"textColumns"`
	DateTimeColumns   int     `json:"dateTimeColumns"`
	NullableColumns   int     `json:"nullableColumns"`
	PrimaryKeyColumns int     `json:"primaryKeyColumns"`
	DataQualityScore  float64 `json:"dataQualityScore"`
}

// TableAnalysis 表分析结果
type TableAnalysis struct {
	DatabaseName string            `json:"databaseName"`
	TableName    string            `json:"tableName"`
	Statistics   TableStatistics   `json:"statistics"`
	Columns      []*ColumnAnalysis `json:"columns"`
	Duration     time.Duration     `json:"duration"`
}

// AnalyzeTable 依次分析表中的每一列，列之间检查取消
func (a *StatisticsAnalyzer) AnalyzeTable(ctx context.Context, table string) (*TableAnalysis, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, adapter.Cancelled(err)
	}

	tables, err := a.db.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	name, ok := matchTable(tables, table)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTable, "%q", table)
	}

	columns, err := a.db.ListColumns(ctx, name)
	if err != nil {
		return nil, err
	}
	total, err := a.db.RowCount(ctx, name)
	if err != nil {
		return nil, err
	}

	result := &TableAnalysis{
		DatabaseName: a.db.Name(),
		TableName:    name,
		Columns:      make([]*ColumnAnalysis, 0, len(columns)),
	}
	for _, col := range columns {
		if err := ctx.Err(); err != nil {
			a.logger.Warn().Str("table", name).Int("completed", len(result.Columns)).Msg("Analysis cancelled")
			return nil, adapter.Cancelled(err)
		}
		ca, err := a.analyzeColumn(ctx, name, col, total)
		if err != nil {
			return nil, err
		}
		result.Columns = append(result.Columns, ca)
	}

	result.Statistics = Summarize(columns, result.Columns, total)
	result.Duration = time.Since(start)
	a.logger.Debug().Str("table", name).Int("columns", len(columns)).Dur("duration", result.Duration).Msg("Analyzed table")
	return result, nil
}

// AnalyzeColumn 解析表名并以表的总行数分析单列
func (a *StatisticsAnalyzer) AnalyzeColumn(ctx context.Context, table, column string) (*ColumnAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, adapter.Cancelled(err)
	}
	tables, err := a.db.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	name, ok := matchTable(tables, table)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTable, "%q", table)
	}
	total, err := a.db.RowCount(ctx, name)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, name, column, total)
}

// Summarize 汇总表级统计，质量分取各列平均
func Summarize(columns []adapter.Column, analyses []*ColumnAnalysis, totalRows int64) TableStatistics {
	s := TableStatistics{TotalRows: totalRows, TotalColumns: len(columns)}
	for _, col := range columns {
		switch col.Category() {
		case adapter.CategoryNumeric:
			s.NumericColumns++
		case adapter.CategoryText:
			s.TextColumns++
		case adapter.CategoryDateTime:
			s.DateTimeColumns++
		}
		if col.Nullable {
			s.NullableColumns++
		}
		if col.IsPrimaryKey {
			s.PrimaryKeyColumns++
		}
	}
	if len(analyses) > 0 {
		var sum float64
		for _, a := range analyses {
			sum += a.QualityScore
		}
		s.DataQualityScore = sum / float64(len(analyses))
	}
	return s
}

func matchTable(tables []string, name string) (string, bool) {
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

// columnQueries 单列统计使用的 SQL，标识符均已加引号
type columnQueries struct {
	table, column string
}

func (q columnQueries) nullCount() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", q.table, q.column)
}

func (q columnQueries) uniqueCount() string {
	return fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s", q.column, q.table)
}

func (q columnQueries) numericAggregate() string {
	return fmt.Sprintf("SELECT MIN(%[1]s), MAX(%[1]s), AVG(%[1]s), AVG(%[1]s * %[1]s), COUNT(%[1]s) FROM %[2]s WHERE %[1]s IS NOT NULL",
		q.column, q.table)
}

func (q columnQueries) median() string {
	return fmt.Sprintf("SELECT %[1]s FROM %[2]s WHERE %[1]s IS NOT NULL ORDER BY %[1]s LIMIT 1 OFFSET ?", q.column, q.table)
}

func (q columnQueries) textLengths() string {
	return fmt.Sprintf("SELECT MIN(LENGTH(%[1]s)), MAX(LENGTH(%[1]s)), AVG(LENGTH(%[1]s)) FROM %[2]s WHERE %[1]s IS NOT NULL",
		q.column, q.table)
}

func (q columnQueries) minMax() string {
	return fmt.Sprintf("SELECT MIN(%[1]s), MAX(%[1]s) FROM %[2]s WHERE %[1]s IS NOT NULL", q.column, q.table)
}

func (q columnQueries) topValues() string {
	return fmt.Sprintf("SELECT %[1]s, COUNT(*) AS cnt FROM %[2]s GROUP BY %[1]s ORDER BY cnt DESC, %[1]s ASC LIMIT ?",
		q.column, q.table)
}
