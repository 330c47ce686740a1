// Package model 定义评估器中使用的核心数据结构。
// 包含流数据点、决策、已结算交易、阈值信号与汇总等类型。
package model

import "math"

// Point 上游推送的单个流数据点
// 每条流按 Index 严格递增、无缺口地推送。
type Point struct {
	// Stream 流标识（文件路径、远程 stream id 或 substream id）
	Stream string
	// Index 流内序号，从 0 开始
	Index int64
	// Value 观测值（近似鞅过程）
	Value float64
	// EventTimeNs 数据源给出的事件时间（纳秒），未知时为 0
	EventTimeNs int64
	// ArrivedAtNs 本机收到该点的时间（纳秒），离线回放时为 0
	ArrivedAtNs int64
}

// IsValid 检查数据点是否可用
func (p *Point) IsValid() bool {
	if p == nil {
		return false
	}
	return !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0)
}

// LatencyMs 事件时间到到达时间的延迟（毫秒）
// 任一时间缺失时返回 (0, false)。
func (p *Point) LatencyMs() (float64, bool) {
	if p == nil || p.EventTimeNs <= 0 || p.ArrivedAtNs <= 0 {
		return 0, false
	}
	return float64(p.ArrivedAtNs-p.EventTimeNs) / 1_000_000, true
}
