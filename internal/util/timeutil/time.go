// Package timeutil 提供时间相关的工具函数。
// 主要用于获取高精度时间戳，用于数据源到达时延测量。
package timeutil

import (
	"time"
)

var (
	// baseTime 基准时间点（包含单调时钟读数）
	baseTime = time.Now()
	// baseUnixNs 基准时间点对应的 Unix 纳秒时间戳
	baseUnixNs = baseTime.UnixNano()
)

// NowNano 获取当前时间的纳秒时间戳
// 使用“单调时钟 + 启动时 Unix 时间”组合实现：
// NowNano = baseUnixNs + time.Since(baseTime).Nanoseconds()
// 系统时间跳变（NTP/手动调整）时仍保持时间差单调，避免污染时延统计。
func NowNano() int64 {
	return baseUnixNs + time.Since(baseTime).Nanoseconds()
}

// NanoToMs 将纳秒时间戳转换为毫秒
func NanoToMs(ns int64) int64 {
	return ns / 1_000_000
}

// MsToNano 将毫秒时间戳转换为纳秒
func MsToNano(ms int64) int64 {
	return ms * 1_000_000
}

// NanoToTime 将纳秒时间戳转换为 time.Time
func NanoToTime(ns int64) time.Time {
	return time.Unix(0, ns)
}

// DurationMs 计算两个纳秒时间戳之间的毫秒差
func DurationMs(startNs, endNs int64) float64 {
	return float64(endNs-startNs) / 1_000_000.0
}

// ToUnixNano 将未知精度的 Unix 时间戳归一化为纳秒
// 按数量级判断：秒（<1e11）、毫秒（<1e14）、微秒（<1e17），否则视为纳秒；<=0 返回 0。
func ToUnixNano(ts float64) int64 {
	switch {
	case ts <= 0:
		return 0
	case ts < 1e11:
		return int64(ts * 1e9)
	case ts < 1e14:
		return int64(ts * 1e6)
	case ts < 1e17:
		return int64(ts * 1e3)
	default:
		return int64(ts)
	}
}
