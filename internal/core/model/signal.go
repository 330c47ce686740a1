package model

// Side 阈值桶方向
type Side string

const (
	// SidePositive 标准化信号高于 +T，对应做多
	SidePositive Side = "positive"
	// SideNegative 标准化信号低于 -T，对应做空
	SideNegative Side = "negative"
)

// Valid 是否为合法方向
func (s Side) Valid() bool {
	return s == SidePositive || s == SideNegative
}

// Direction 方向系数，positive 返回 1，negative 返回 -1
func (s Side) Direction() float64 {
	if s == SidePositive {
		return 1
	}
	return -1
}

// PendingSignal 阈值桶中等待结算的穿越事件
type PendingSignal struct {
	// StartIndex 穿越发生的步序号
	StartIndex int64 `json:"start_index" yaml:"start_index"`
	// AnchorValue 穿越时的观测值
	AnchorValue float64 `json:"anchor_value" yaml:"anchor_value"`
	// Horizon 结算步长
	Horizon int `json:"horizon" yaml:"horizon"`
}

// Payoff 方向性实现收益
// positive: value - anchor；negative: anchor - value
func (p *PendingSignal) Payoff(side Side, value float64) float64 {
	return side.Direction() * (value - p.AnchorValue)
}
