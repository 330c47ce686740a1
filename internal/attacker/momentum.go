package attacker

import (
	"encoding/json"
	"fmt"

	"github.com/montanaflynn/stats"

	"attacker-evaluator/internal/core/model"
	"attacker-evaluator/internal/stats/moment"
)

// Momentum 动量信号：scale × (快均值 − 慢均值)
// 样本数不足 warmup 时输出 0。
type Momentum struct {
	fast   *moment.Moment
	slow   *moment.Moment
	scale  float64
	warmup int64
}

type momentumState struct {
	Fast   moment.State `json:"fast"`
	Slow   moment.State `json:"slow"`
	Scale  float64      `json:"scale"`
	Warmup int64        `json:"warmup"`
}

// NewMomentum 创建动量信号
// 参数 fastFading/slowFading: 快/慢均值衰减因子，(0,1)
func NewMomentum(fastFading, slowFading, scale float64, warmup int) (*Momentum, error) {
	for _, f := range []float64{fastFading, slowFading} {
		if !(f > 0 && f < 1) {
			return nil, fmt.Errorf("衰减因子必须在 (0,1) 内，当前值: %v", f)
		}
	}
	return &Momentum{
		fast:   moment.NewMean(fastFading),
		slow:   moment.NewMean(slowFading),
		scale:  scale,
		warmup: int64(warmup),
	}, nil
}

// TickAndPredict 实现 Attacker
func (m *Momentum) TickAndPredict(value float64, _ int) float64 {
	m.fast.Update(value)
	m.slow.Update(value)
	if m.fast.Count() < m.warmup {
		return 0
	}
	return m.scale * (m.fast.Mean() - m.slow.Mean())
}

// MarshalState 实现 Stateful
func (m *Momentum) MarshalState() (json.RawMessage, error) {
	return json.Marshal(momentumState{Fast: m.fast.State(), Slow: m.slow.State(), Scale: m.scale, Warmup: m.warmup})
}

// UnmarshalState 实现 Stateful
func (m *Momentum) UnmarshalState(data json.RawMessage) error {
	var st momentumState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformedSnapshot, err)
	}
	fast, err := moment.FromState(st.Fast)
	if err != nil {
		return fmt.Errorf("fast: %w", err)
	}
	slow, err := moment.FromState(st.Slow)
	if err != nil {
		return fmt.Errorf("slow: %w", err)
	}
	m.fast, m.slow, m.scale, m.warmup = fast, slow, st.Scale, st.Warmup
	return nil
}

// MedianBreakout 偏离历史中位数的突破信号
// 历史填满前输出 0；最新值高于中位数+margin 返回 1，低于中位数−margin 返回 -1。
type MedianBreakout struct {
	history *History
	margin  float64
}

type medianState struct {
	History HistoryState `json:"history"`
	Margin  float64      `json:"margin"`
}

// NewMedianBreakout 创建中位数突破信号
func NewMedianBreakout(historyLen int, margin float64) *MedianBreakout {
	return &MedianBreakout{history: NewHistory(historyLen), margin: margin}
}

// TickAndPredict 实现 Attacker
func (m *MedianBreakout) TickAndPredict(value float64, _ int) float64 {
	m.history.Push(value)
	if !m.history.Full() {
		return 0
	}
	median, err := stats.Median(m.history.Values())
	if err != nil {
		return 0
	}
	switch {
	case value > median+m.margin:
		return 1
	case value < median-m.margin:
		return -1
	default:
		return 0
	}
}

// MarshalState 实现 Stateful
func (m *MedianBreakout) MarshalState() (json.RawMessage, error) {
	return json.Marshal(medianState{History: m.history.State(), Margin: m.margin})
}

// UnmarshalState 实现 Stateful
func (m *MedianBreakout) UnmarshalState(data json.RawMessage) error {
	var st medianState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformedSnapshot, err)
	}
	h, err := HistoryFromState(st.History)
	if err != nil {
		return err
	}
	m.history, m.margin = h, st.Margin
	return nil
}
