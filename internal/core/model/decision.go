package model

// Decision 等待结算的方向性决策
// 每个 Index 至多一个；由 Ledger.Tick 创建，结算或 Reset 时销毁。
type Decision struct {
	// Index 决策所在步序号
	Index int64 `json:"index" yaml:"index"`
	// AnchorValue 参考价，执行延迟模式下在下一步才确定（此前为 nil）
	AnchorValue *float64 `json:"anchor_value" yaml:"anchor_value"`
	// Horizon 结算步长（>0）
	Horizon int `json:"horizon" yaml:"horizon"`
	// Direction 方向（非零，符号即多空）
	Direction float64 `json:"direction" yaml:"direction"`
}

// Anchored 是否已确定参考价
func (d *Decision) Anchored() bool {
	return d.AnchorValue != nil
}

// TargetIndex 结算步序号
// 执行延迟模式下额外推迟一步。
func (d *Decision) TargetIndex(executionLag bool) int64 {
	target := d.Index + int64(d.Horizon)
	if executionLag {
		target++
	}
	return target
}

// Sign 方向系数，多头 1，空头 -1
func (d *Decision) Sign() float64 {
	return Sign(d.Direction)
}

// Clone 深拷贝
func (d *Decision) Clone() Decision {
	out := *d
	if d.AnchorValue != nil {
		v := *d.AnchorValue
		out.AnchorValue = &v
	}
	return out
}

// Sign 返回 v 的符号：1、-1 或 0
func Sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
