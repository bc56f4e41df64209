// Package config 加载 sql2csv 的配置
//
// 配置来源依次为 Default()、可选的 YAML 文件、SQL2CSV_* 环境变量，后者覆盖前者。
package config

import (
	"math"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"sql2csv/internal/analyzer"
	"sql2csv/internal/export"
	"sql2csv/internal/query"
)

// DefaultFileName 默认配置文件名
const DefaultFileName = "sql2csv.yaml"

// ErrInvalid 配置校验失败
var ErrInvalid = errors.New("invalid configuration")

// Config 全部配置
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Export   ExportConfig   `yaml:"export"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Viewer   ViewerConfig   `yaml:"viewer"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig 数据库来源
type DatabaseConfig struct {
	// Path 目录或单个数据库文件
	Path    string        `yaml:"path" env:"SQL2CSV_PATH" env-description:"database directory or file"`
	Timeout time.Duration `yaml:"timeout" env:"SQL2CSV_TIMEOUT" env-description:"per-query timeout"`
}

// ExportConfig CSV 导出设置
type ExportConfig struct {
	OutputDir      string `yaml:"output_dir" env:"SQL2CSV_OUTPUT" env-description:"output directory"`
	Delimiter      string `yaml:"delimiter" env:"SQL2CSV_DELIMITER" env-description:"field delimiter (tab, semicolon ...)"`
	IncludeHeaders bool   `yaml:"include_headers" env:"SQL2CSV_HEADERS" env-description:"write a header row"`
	Encoding       string `yaml:"encoding" env:"SQL2CSV_ENCODING" env-description:"output encoding"`
	Newline        string `yaml:"newline" env:"SQL2CSV_NEWLINE" env-description:"record terminator (lf or crlf)"`
}

// AnalysisConfig 列统计设置
type AnalysisConfig struct {
	TopValues          int     `yaml:"top_values" env:"SQL2CSV_TOP_VALUES" env-description:"number of most frequent values"`
	CompletenessWeight float64 `yaml:"completeness_weight" env:"SQL2CSV_COMPLETENESS_WEIGHT"`
	UniquenessWeight   float64 `yaml:"uniqueness_weight" env:"SQL2CSV_UNIQUENESS_WEIGHT"`
}

// ViewerConfig 表格视图分页设置
type ViewerConfig struct {
	DefaultPageLength int `yaml:"default_page_length" env:"SQL2CSV_PAGE_LENGTH"`
	MaxPageLength     int `yaml:"max_page_length" env:"SQL2CSV_MAX_PAGE_LENGTH"`
}

// ServerConfig HTTP 服务设置
type ServerConfig struct {
	Addr string `yaml:"addr" env:"SQL2CSV_ADDR" env-description:"listen address"`
	// DataDir 服务只访问该目录下的数据库
	DataDir   string `yaml:"data_dir" env:"SQL2CSV_DATA_DIR" env-description:"directory served databases are resolved in"`
	StaticDir string `yaml:"static_dir" env:"SQL2CSV_STATIC_DIR"`
}

// LogConfig 日志设置
type LogConfig struct {
	Level  string `yaml:"level" env:"SQL2CSV_LOG_LEVEL" env-description:"debug, info, warn or error"`
	Format string `yaml:"format" env:"SQL2CSV_LOG_FORMAT" env-description:"console or json"`
}

// Default 默认配置
func Default() *Config {
	weights := analyzer.DefaultQualityWeights
	return &Config{
		Database: DatabaseConfig{Path: ".", Timeout: 10 * time.Minute},
		Export: ExportConfig{
			OutputDir:      "./export",
			Delimiter:      export.DefaultDelimiter,
			IncludeHeaders: true,
			Encoding:       "UTF-8",
			Newline:        "lf",
		},
		Analysis: AnalysisConfig{
			TopValues:          analyzer.DefaultTopValues,
			CompletenessWeight: weights.Completeness,
			UniquenessWeight:   weights.Uniqueness,
		},
		Viewer: ViewerConfig{
			DefaultPageLength: query.DefaultPageLength,
			MaxPageLength:     query.MaxPageLength,
		},
		Server: ServerConfig{Addr: ":8080", DataDir: "./data", StaticDir: "web/static"},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// Load 读取配置
//
// path 为空时只读取环境变量；指定的文件不存在视为错误。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, errors.Wrap(err, "read environment")
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrap(err, "config file")
		}
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save 以 YAML 写出配置
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// Usage 列出支持的环境变量
func Usage() (string, error) {
	return cleanenv.GetDescription(Default(), nil)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Database.Timeout <= 0 {
		return errors.Wrap(ErrInvalid, "database.timeout must be positive")
	}
	if ParseDelimiter(c.Export.Delimiter) == "" {
		return errors.Wrap(ErrInvalid, "export.delimiter must not be empty")
	}
	if _, err := ParseNewline(c.Export.Newline); err != nil {
		return err
	}
	if _, err := export.LookupEncoding(c.Export.Encoding); err != nil {
		return errors.Wrapf(ErrInvalid, "export.encoding: %v", err)
	}
	if c.Analysis.TopValues <= 0 {
		return errors.Wrap(ErrInvalid, "analysis.top_values must be positive")
	}
	wc, wu := c.Analysis.CompletenessWeight, c.Analysis.UniquenessWeight
	if wc < 0 || wc > 1 || wu < 0 || wu > 1 || math.Abs(wc+wu-1) > 1e-9 {
		return errors.Wrapf(ErrInvalid, "analysis weights must be in [0,1] and sum to 1, got %v and %v", wc, wu)
	}
	if c.Viewer.DefaultPageLength <= 0 || c.Viewer.MaxPageLength < c.Viewer.DefaultPageLength {
		return errors.Wrap(ErrInvalid, "viewer page lengths must be positive and default must not exceed max")
	}
	return nil
}

// CSVOptions 导出默认选项
func (c *Config) CSVOptions() export.CSVOptions {
	newline, _ := ParseNewline(c.Export.Newline)
	return export.CSVOptions{
		Delimiter:      ParseDelimiter(c.Export.Delimiter),
		IncludeHeaders: c.Export.IncludeHeaders,
		Newline:        newline,
	}
}

// QualityWeights 数据质量评分权重
func (c *Config) QualityWeights() analyzer.QualityWeights {
	return analyzer.QualityWeights{
		Completeness: c.Analysis.CompletenessWeight,
		Uniqueness:   c.Analysis.UniquenessWeight,
	}
}

// Limits 表格视图分页限制
func (c *Config) Limits() query.Limits {
	return query.Limits{DefaultLength: c.Viewer.DefaultPageLength, MaxLength: c.Viewer.MaxPageLength}
}

// ParseDelimiter 解析分隔符别名，其他值原样返回
func ParseDelimiter(s string) string {
	switch strings.ToLower(s) {
	case "tab", `\t`:
		return "\t"
	case "semicolon":
		return ";"
	case "comma":
		return ","
	case "pipe":
		return "|"
	}
	return s
}

// ParseNewline 解析记录分隔符
func ParseNewline(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lf", `\n`, "\n":
		return "\n", nil
	case "crlf", `\r\n`, "\r\n":
		return "\r\n", nil
	}
	return "", errors.Wrapf(ErrInvalid, "export.newline %q", s)
}
