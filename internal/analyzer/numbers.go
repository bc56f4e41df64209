package analyzer

import (
	"math"
	"strconv"
	"strings"
)

func floatPtr(f float64) *float64 {
	return &f
}

// toFloat 转换聚合结果，非数值返回 nil
func toFloat(v any) *float64 {
	switch val := v.(type) {
	case int64:
		return floatPtr(float64(val))
	case float64:
		return floatPtr(val)
	case int:
		return floatPtr(float64(val))
	case bool:
		if val {
			return floatPtr(1)
		}
		return floatPtr(0)
	case []byte:
		return parseFloat(string(val))
	case string:
		return parseFloat(val)
	}
	return nil
}

func parseFloat(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// percentage 保留两位小数，total 为 0 时为 0
func percentage(n, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*10000) / 100
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
