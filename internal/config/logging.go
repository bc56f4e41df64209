package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger 按配置创建写到 stderr 的日志
func NewLogger(cfg LogConfig) zerolog.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg LogConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	w := out
	if !strings.EqualFold(cfg.Format, "json") {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
