// Package fastparse 提供数据源解析使用的数值转换函数。
// 避免在热路径使用 fmt.Sscanf，使用 strconv 进行转换。
package fastparse

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseFloat 解析浮点数字符串，忽略首尾空白
// 参数 s: 待解析的字符串，如 " 12345.67"
func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// ParseFinite 解析有限浮点数，NaN 与 ±Inf 视为错误
func ParseFinite(s string) (float64, error) {
	v, err := ParseFloat(s)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("非有限数值: %q", s)
	}
	return v, nil
}

// ParseInt 解析整数字符串，忽略首尾空白
func ParseInt(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

// FormatFloat 格式化浮点数为字符串
// 参数 prec: 小数位数，-1 表示最短表示
func FormatFloat(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}

// FormatInt 格式化整数为字符串
func FormatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}
