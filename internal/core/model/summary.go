package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Ratio 允许 ±Inf 的比值
// JSON 中 ±Inf 编码为字符串 "Infinity" / "-Infinity"（encoding/json 不支持 Inf）。
type Ratio float64

// MarshalJSON 实现 json.Marshaler
func (r Ratio) MarshalJSON() ([]byte, error) {
	v := float64(r)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

// UnmarshalJSON 实现 json.Unmarshaler
func (r *Ratio) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		switch s {
		case "Infinity", "+Infinity", "inf":
			*r = Ratio(math.Inf(1))
		case "-Infinity", "-inf":
			*r = Ratio(math.Inf(-1))
		case "NaN":
			*r = Ratio(math.NaN())
		default:
			return fmt.Errorf("无法解析比值: %q", s)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = Ratio(v)
	return nil
}

// Summary 决策账本汇总
type Summary struct {
	// CurrentIndex 已处理步数
	CurrentIndex int64 `json:"current_index"`
	// NumResolvedDecisions 已结算决策数
	NumResolvedDecisions int64 `json:"num_resolved_decisions"`
	// TotalProfit 总收益
	TotalProfit float64 `json:"total_profit"`
	// Wins 盈利笔数（pnl>0）
	Wins int64 `json:"wins"`
	// Losses 亏损笔数（pnl<0）
	Losses int64 `json:"losses"`
	// WinLossRatio wins/losses；losses=0 且 wins>0 时为 +Inf，均为 0 时为 0
	WinLossRatio Ratio `json:"win_loss_ratio"`
	// ProfitPerDecision 平均每笔收益，无结算时为 0
	ProfitPerDecision float64 `json:"profit_per_decision"`
	// StandardizedProfitPerDecision 平均收益 / 总体标准差；结算数 <2 时为 nil
	StandardizedProfitPerDecision *Ratio `json:"standardized_profit_per_decision,omitempty"`
}

// SummaryRecord 汇总的 JSONL 输出结构
type SummaryRecord struct {
	// RunID 运行标识
	RunID string `json:"run_id"`
	// Stream 流标识，总计行为 "*"
	Stream string `json:"stream"`
	// Source 决策来源: attacker 或 calibrated
	Source string `json:"source"`
	// Suppressed 因 backoff 被抑制的决策数
	Suppressed int64 `json:"suppressed"`
	Summary
}
