package adapter

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
	dateTimeNanos  = "2006-01-02 15:04:05.999999999"
)

// FormatValue 将扫描得到的值转为文本
//
// numeric 表示值本身是数值类型（可以不加引号输出）。nil 由调用方处理。
func FormatValue(v any, cat Category) (text string, numeric bool) {
	switch val := v.(type) {
	case int64:
		return strconv.FormatInt(val, 10), true
	case int:
		return strconv.Itoa(val), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case bool:
		return strconv.FormatBool(val), false
	case time.Time:
		return FormatTime(val), false
	case []byte:
		if cat == CategoryBlob {
			return base64.StdEncoding.EncodeToString(val), false
		}
		return formatString(string(val), cat), false
	case string:
		return formatString(val, cat), false
	case nil:
		return "", false
	default:
		return "", false
	}
}

func formatString(s string, cat Category) string {
	if cat != CategoryDateTime {
		return s
	}
	if t, ok := ParseTime(s); ok {
		return FormatTime(t)
	}
	return s
}

// FormatTime 零点时间只输出日期
func FormatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(dateLayout)
	}
	if t.Nanosecond() != 0 {
		return t.Format(dateTimeNanos)
	}
	return t.Format(dateTimeLayout)
}

// ParseTime 按 SQLite 常见时间格式解析
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ToTime 将 MIN/MAX 等聚合结果转换为时间
func ToTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		return ParseTime(val)
	case []byte:
		return ParseTime(string(val))
	default:
		return time.Time{}, false
	}
}
