package calibrate

import "attacker-evaluator/internal/core/model"

// BucketView 阈值桶只读视图
type BucketView struct {
	Threshold float64    `json:"threshold"`
	Side      model.Side `json:"side"`
	// Pending 待结算穿越事件数
	Pending int `json:"pending"`
	// Payoff 学习到的平均收益（无样本时为 0）
	Payoff float64 `json:"payoff"`
	// Samples 已结算事件数
	Samples int64 `json:"samples"`
}

// Buckets 全部阈值桶视图（阈值升序，同阈值 positive 在前）
func (c *Calibrator) Buckets() []BucketView {
	out := make([]BucketView, len(c.buckets))
	for i, b := range c.buckets {
		out[i] = BucketView{
			Threshold: b.threshold,
			Side:      b.side,
			Pending:   len(b.pending),
			Payoff:    b.payoff.Mean(),
			Samples:   b.payoff.Count(),
		}
	}
	return out
}

// Expected 某阈值两侧的预期收益
type Expected struct {
	Threshold float64 `json:"threshold"`
	Positive  float64 `json:"positive"`
	Negative  float64 `json:"negative"`
}

// ExpectedPayoffs 当前标准化信号下各阈值的预期收益表
// 被越过的一侧为 payoff - cost，未越过为 0。
func (c *Calibrator) ExpectedPayoffs(cost float64) []Expected {
	out := make([]Expected, 0, len(c.thresholds))
	byThreshold := make(map[float64]int, len(c.thresholds))
	for _, t := range c.thresholds {
		byThreshold[t] = len(out)
		out = append(out, Expected{Threshold: t})
	}
	for _, b := range c.buckets {
		if !b.crossed(c.standardized) {
			continue
		}
		e := &out[byThreshold[b.threshold]]
		if b.side == model.SidePositive {
			e.Positive = b.payoff.Mean() - cost
		} else {
			e.Negative = b.payoff.Mean() - cost
		}
	}
	return out
}

// PendingTotal 全部桶中待结算事件总数
func (c *Calibrator) PendingTotal() int {
	n := 0
	for _, b := range c.buckets {
		n += len(b.pending)
	}
	return n
}
