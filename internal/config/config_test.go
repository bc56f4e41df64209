package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	opts := cfg.CSVOptions()
	assert.Equal(t, ",", opts.Delimiter)
	assert.Equal(t, "\n", opts.Newline)
	assert.True(t, opts.IncludeHeaders)
	assert.Equal(t, 0.7, cfg.QualityWeights().Completeness)
	assert.Equal(t, 10, cfg.Limits().DefaultLength)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
database:
  timeout: 30s
export:
  delimiter: tab
  include_headers: false
  newline: crlf
analysis:
  top_values: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Database.Timeout)
	assert.Equal(t, "\t", cfg.CSVOptions().Delimiter)
	assert.Equal(t, "\r\n", cfg.CSVOptions().Newline)
	assert.False(t, cfg.Export.IncludeHeaders)
	assert.Equal(t, 5, cfg.Analysis.TopValues)
	// 未出现在文件中的字段保持默认值
	assert.Equal(t, "UTF-8", cfg.Export.Encoding)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "export:\n  delimiter: semicolon\n  output_dir: /tmp/from-yaml\n")
	t.Setenv("SQL2CSV_DELIMITER", "|")
	t.Setenv("SQL2CSV_TIMEOUT", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "|", cfg.CSVOptions().Delimiter)
	assert.Equal(t, "/tmp/from-yaml", cfg.Export.OutputDir)
	assert.Equal(t, 2*time.Minute, cfg.Database.Timeout)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("SQL2CSV_HEADERS", "false")
	t.Setenv("SQL2CSV_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Export.IncludeHeaders)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"weights":  "analysis:\n  completeness_weight: 0.9\n  uniqueness_weight: 0.3\n",
		"encoding": "export:\n  encoding: no-such-charset\n",
		"newline":  "export:\n  newline: cr\n",
		"pages":    "viewer:\n  default_page_length: 50\n  max_page_length: 20\n",
		"timeout":  "database:\n  timeout: 0s\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), err.Error())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Export.Delimiter = ";"
	cfg.Export.IncludeHeaders = false
	cfg.Database.Timeout = 45 * time.Second

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestParseDelimiter(t *testing.T) {
	assert.Equal(t, "\t", ParseDelimiter("tab"))
	assert.Equal(t, "\t", ParseDelimiter(`\t`))
	assert.Equal(t, ";", ParseDelimiter("Semicolon"))
	assert.Equal(t, "||", ParseDelimiter("||"))
	assert.Equal(t, "", ParseDelimiter(""))
}

func TestUsageListsVariables(t *testing.T) {
	usage, err := Usage()
	require.NoError(t, err)
	assert.Contains(t, usage, "SQL2CSV_DELIMITER")
	assert.Contains(t, usage, "SQL2CSV_DATA_DIR")
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("table", "Users").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, "warn", gjson.Get(lines[0], "level").String())
	assert.Equal(t, "Users", gjson.Get(lines[0], "table").String())
	assert.Equal(t, "shown", gjson.Get(lines[0], "message").String())
}

func TestNewLoggerUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(LogConfig{Level: "loud", Format: "json"}, &buf)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}
