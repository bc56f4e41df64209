// Package discovery 查找目录中的 SQLite 数据库文件
package discovery

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"

	"sql2csv/internal/adapter"
)

var (
	// ErrEmptyPath 未指定路径
	ErrEmptyPath = errors.New("empty path")
	// ErrOutsideRoot 路径不在允许的目录内
	ErrOutsideRoot = errors.New("path outside data directory")
)

// Extensions 识别为 SQLite 数据库的文件扩展名
var Extensions = []string{".db", ".sqlite", ".sqlite3"}

// Database 发现的数据库
type Database struct {
	Name string `json:"name"`
	Path string `json:"path"`
	DSN  string `json:"-"`
}

// FromFile 由文件路径构建
func FromFile(path string) Database {
	return Database{Name: adapter.DatabaseName(path), Path: path, DSN: adapter.FileDSN(path)}
}

// Open 以只读方式打开数据库
func (d Database) Open(ctx context.Context, timeout time.Duration) (*adapter.SQLiteAdapter, error) {
	return adapter.NewSQLiteAdapter(ctx, d.Name, d.DSN, timeout)
}

// IsDatabaseFile 按扩展名判断，不区分大小写
func IsDatabaseFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Discover 返回 path 下（不递归）的数据库；path 是文件时只返回该文件
//
// 目录不存在时记录警告并返回空列表。
func Discover(ctx context.Context, path string, logger zerolog.Logger) ([]Database, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrEmptyPath
	}
	log := logger.With().Str("component", "discovery").Str("path", path).Logger()

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Msg("Path does not exist")
		return []Database{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	if !info.IsDir() {
		return []Database{FromFile(path)}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read directory %s", path)
	}

	databases := []Database{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, adapter.Cancelled(err)
		}
		if entry.IsDir() || !IsDatabaseFile(entry.Name()) {
			continue
		}
		db := FromFile(filepath.Join(path, entry.Name()))
		log.Debug().Str("database", db.Name).Msg("Discovered database")
		databases = append(databases, db)
	}
	sort.Slice(databases, func(i, j int) bool { return databases[i].Path < databases[j].Path })

	log.Info().Int("count", len(databases)).Msg("Discovered databases")
	return databases, nil
}

// Resolve 将相对路径限制在 root 内，返回绝对路径
func Resolve(root, rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", ErrEmptyPath
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", errors.Wrap(err, "resolve data directory")
	}
	if filepath.IsAbs(rel) {
		return "", errors.Wrapf(ErrOutsideRoot, "%q", rel)
	}
	full := filepath.Join(absRoot, rel)
	inside, err := filepath.Rel(absRoot, full)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", errors.Wrapf(ErrOutsideRoot, "%q", rel)
	}
	return full, nil
}
