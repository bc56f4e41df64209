package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/text/encoding"

	"sql2csv/internal/adapter"
)

// FileSuffix 导出文件名后缀
const FileSuffix = "_extract.csv"

// ErrCancelled 导出被取消
var ErrCancelled = adapter.ErrCancelled

// Result 单表导出结果
type Result struct {
	DatabaseName string        `json:"database_name"`
	TableName    string        `json:"table_name"`
	OutputPath   string        `json:"output_path"`
	RowCount     int64         `json:"row_count"`
	Duration     time.Duration `json:"duration"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
}

// Options 单次导出的覆盖选项
type Options struct {
	// Tables 为空表示全部表，匹配不区分大小写
	Tables []string
	// Delimiter 为空时使用默认分隔符
	Delimiter string
	// IncludeHeaders 为 nil 时使用默认设置
	IncludeHeaders *bool
}

// Exporter 表导出器
type Exporter struct {
	defaults CSVOptions
	encoding encoding.Encoding
	logger   zerolog.Logger
	progress func(Result)
}

// Option 导出器选项
type Option func(*Exporter)

// WithEncoding 设置输出编码，nil 表示 UTF-8
func WithEncoding(enc encoding.Encoding) Option {
	return func(e *Exporter) {
		e.encoding = enc
	}
}

// WithProgress 每导出完一张表回调一次
func WithProgress(fn func(Result)) Option {
	return func(e *Exporter) {
		e.progress = fn
	}
}

// NewExporter 创建导出器
func NewExporter(defaults CSVOptions, logger zerolog.Logger, opts ...Option) *Exporter {
	e := &Exporter{
		defaults: defaults,
		logger:   logger.With().Str("component", "exporter").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FileName 表对应的输出文件名
func FileName(table string) string {
	return table + FileSuffix
}

// ExportDatabase 按表顺序导出数据库
//
// 单表失败只记录在对应结果中；连接级错误直接返回。取消时返回已完成的结果和
// 匹配 adapter.ErrCancelled 的错误。
func (e *Exporter) ExportDatabase(ctx context.Context, db adapter.DBAdapter, outputDir string, opts Options) ([]Result, error) {
	log := e.logger.With().Str("database", db.Name()).Logger()
	log.Info().Msg("Starting export")

	if err := ctx.Err(); err != nil {
		return nil, adapter.Cancelled(err)
	}

	all, err := db.ListTables(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "export %s", db.Name())
	}

	tables := all
	if opts.Tables != nil {
		var unknown []string
		tables, unknown = FilterTables(all, opts.Tables)
		for _, name := range unknown {
			ev := log.Warn().Str("table", name)
			if s := Suggest(name, all); s != "" {
				ev = ev.Str("suggestion", s)
			}
			ev.Msg("Requested table not found")
		}
		log.Info().Int("selected", len(tables)).Int("total", len(all)).Msg("Filtered tables")
	}

	results := []Result{}
	if len(tables) == 0 {
		log.Warn().Msg("No tables to export")
		return results, nil
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create output directory %s", outputDir)
	}

	csvOpts := e.csvOptions(opts)
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			log.Warn().Int("completed", len(results)).Msg("Export cancelled")
			return results, adapter.Cancelled(err)
		}
		result := e.ExportTable(ctx, db, table, filepath.Join(outputDir, FileName(table)), csvOpts)
		results = append(results, result)
		if e.progress != nil {
			e.progress(result)
		}
		// 表导出途中被取消时该表记为失败，整体返回取消
		if err := ctx.Err(); err != nil && !result.Success {
			log.Warn().Str("table", table).Int("completed", len(results)-1).Msg("Export cancelled")
			return results, adapter.Cancelled(err)
		}
	}

	log.Info().Int("tables", len(results)).Msg("Completed export")
	return results, nil
}

// ExportTable 导出单表
//
// 先写入临时文件，成功后再重命名，失败时删除临时文件。
func (e *Exporter) ExportTable(ctx context.Context, db adapter.DBAdapter, table, outputPath string, opts CSVOptions) Result {
	start := time.Now()
	result := Result{
		DatabaseName: db.Name(),
		TableName:    table,
		OutputPath:   outputPath,
	}

	count, err := e.writeTable(ctx, db, table, outputPath, opts)
	result.RowCount = count
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		e.logger.Error().Err(err).Str("table", table).Str("output", outputPath).Msg("Table export failed")
		return result
	}

	result.Success = true
	e.logger.Debug().Str("table", table).Int64("rows", count).Dur("duration", result.Duration).Msg("Exported table")
	return result
}

func (e *Exporter) writeTable(ctx context.Context, db adapter.DBAdapter, table, outputPath string, opts CSVOptions) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return 0, errors.Wrap(err, "create output directory")
	}

	columns, err := db.ListColumns(ctx, table)
	if err != nil {
		return 0, err
	}

	cursor, err := db.Query(ctx, fmt.Sprintf("SELECT * FROM %s", adapter.QuoteIdent(table)))
	if err != nil {
		return 0, errors.Wrapf(err, "query %q", table)
	}
	defer cursor.Close()

	tmpPath := outputPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, errors.Wrap(err, "create output file")
	}

	var sink io.Writer = f
	if e.encoding != nil {
		sink = e.encoding.NewEncoder().Writer(f)
	}

	count, err := NewCSVWriter(opts).WriteTable(cursor, columns, sink)
	if c, ok := sink.(io.Closer); ok && e.encoding != nil && err == nil {
		// 刷新编码器缓冲，不会关闭底层文件
		if flushErr := c.Close(); flushErr != nil {
			err = errors.Wrap(flushErr, "flush encoder")
		}
	}
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = errors.Wrap(closeErr, "close output file")
	}
	if err != nil {
		os.Remove(tmpPath)
		return count, err
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return count, errors.Wrap(err, "rename output file")
	}
	return count, nil
}

func (e *Exporter) csvOptions(opts Options) CSVOptions {
	out := e.defaults
	if opts.Delimiter != "" {
		out.Delimiter = opts.Delimiter
	}
	if opts.IncludeHeaders != nil {
		out.IncludeHeaders = *opts.IncludeHeaders
	}
	return out
}

// FilterTables 按请求列表筛选表，保持原有顺序，返回未找到的名称
func FilterTables(all, requested []string) (selected, unknown []string) {
	wanted := make(map[string]bool, len(requested))
	for _, name := range requested {
		name = strings.TrimSpace(name)
		if name != "" {
			wanted[strings.ToLower(name)] = true
		}
	}

	found := make(map[string]bool)
	for _, table := range all {
		key := strings.ToLower(table)
		if wanted[key] {
			selected = append(selected, table)
			found[key] = true
		}
	}

	seen := make(map[string]bool)
	for _, name := range requested {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || found[key] || seen[key] {
			continue
		}
		seen[key] = true
		unknown = append(unknown, name)
	}
	return selected, unknown
}

// Suggest 返回编辑距离最近的表名，差距过大时返回空
func Suggest(name string, candidates []string) string {
	best := ""
	bestDistance := -1
	for _, c := range candidates {
		d := levenshtein.DistanceForStrings([]rune(strings.ToLower(name)), []rune(strings.ToLower(c)), levenshtein.DefaultOptions)
		if bestDistance < 0 || d < bestDistance {
			best, bestDistance = c, d
		}
	}
	if bestDistance < 0 || bestDistance > len([]rune(name))/2+1 {
		return ""
	}
	return best
}

// ParseTableList 解析逗号或分号分隔的表名列表
func ParseTableList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Summary 多表导出汇总
type Summary struct {
	Tables    int           `json:"tables"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Rows      int64         `json:"rows"`
	Duration  time.Duration `json:"duration"`
}

// Summarize 汇总导出结果，行数只统计成功的表
func Summarize(results []Result) Summary {
	s := Summary{Tables: len(results)}
	for _, r := range results {
		s.Duration += r.Duration
		if !r.Success {
			s.Failed++
			continue
		}
		s.Succeeded++
		s.Rows += r.RowCount
	}
	return s
}
