package model

// ResolvedTrade 已结算的决策，追加后不可变
type ResolvedTrade struct {
	// DecisionIndex 决策步序号
	DecisionIndex int64 `json:"decision_index" yaml:"decision_index"`
	// ResolutionIndex 结算步序号
	ResolutionIndex int64 `json:"resolution_index" yaml:"resolution_index"`
	// Horizon 持有步长
	Horizon int `json:"horizon" yaml:"horizon"`
	// Direction 决策方向（原值）
	Direction float64 `json:"direction" yaml:"direction"`
	// AnchorValue 参考价
	AnchorValue float64 `json:"anchor_value" yaml:"anchor_value"`
	// ResolutionValue 结算价
	ResolutionValue float64 `json:"resolution_value" yaml:"resolution_value"`
	// PnL 计算公式: sign(direction) × (resolution - anchor) - epsilon
	PnL float64 `json:"pnl" yaml:"pnl"`
}

// IsWin 判断是否盈利（pnl==0 既非盈利也非亏损）
func (t *ResolvedTrade) IsWin() bool {
	return t.PnL > 0
}

// IsLoss 判断是否亏损
func (t *ResolvedTrade) IsLoss() bool {
	return t.PnL < 0
}

// IsLong 判断是否为多头
func (t *ResolvedTrade) IsLong() bool {
	return t.Direction > 0
}

// Outcome 结算结果标签: win, loss 或 flat
func (t *ResolvedTrade) Outcome() string {
	switch {
	case t.IsWin():
		return "win"
	case t.IsLoss():
		return "loss"
	default:
		return "flat"
	}
}

// TradeRecord 已结算交易的 JSONL 输出结构
type TradeRecord struct {
	// RunID 运行标识
	RunID string `json:"run_id"`
	// Stream 流标识
	Stream string `json:"stream"`
	// Source 决策来源: attacker 或 calibrated
	Source string `json:"source"`
	ResolvedTrade
}

// ToRecord 转换为 JSONL 输出格式
func (t *ResolvedTrade) ToRecord(runID, stream, source string) *TradeRecord {
	return &TradeRecord{
		RunID:         runID,
		Stream:        stream,
		Source:        source,
		ResolvedTrade: *t,
	}
}
