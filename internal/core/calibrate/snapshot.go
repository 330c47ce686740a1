package calibrate

import (
	"encoding/json"
	"fmt"
	"math"

	"attacker-evaluator/internal/core/model"
	"attacker-evaluator/internal/stats/moment"
)

// BucketSnapshot 单个阈值桶的状态
type BucketSnapshot struct {
	Threshold *float64              `json:"threshold" yaml:"threshold"`
	Side      model.Side            `json:"side" yaml:"side"`
	Payoff    moment.State          `json:"payoff" yaml:"payoff"`
	Pending   []model.PendingSignal `json:"pending" yaml:"pending"`
}

// Snapshot 校准器完整状态
type Snapshot struct {
	Thresholds         []float64        `json:"thresholds" yaml:"thresholds"`
	FadingFactor       *float64         `json:"fading_factor" yaml:"fading_factor"`
	CurrentIndex       *int64           `json:"current_index" yaml:"current_index"`
	StandardizedSignal float64          `json:"standardized_signal" yaml:"standardized_signal"`
	Signal             moment.State     `json:"signal" yaml:"signal"`
	Buckets            []BucketSnapshot `json:"buckets" yaml:"buckets"`
}

// Snapshot 导出完整状态（深拷贝）
func (c *Calibrator) Snapshot() *Snapshot {
	ff := c.fadingFactor
	cur := c.currentIndex
	snap := &Snapshot{
		Thresholds:         c.Thresholds(),
		FadingFactor:       &ff,
		CurrentIndex:       &cur,
		StandardizedSignal: c.standardized,
		Signal:             c.signal.State(),
		Buckets:            make([]BucketSnapshot, len(c.buckets)),
	}
	for i, b := range c.buckets {
		t := b.threshold
		pending := make([]model.PendingSignal, len(b.pending))
		copy(pending, b.pending)
		snap.Buckets[i] = BucketSnapshot{
			Threshold: &t,
			Side:      b.side,
			Payoff:    b.payoff.State(),
			Pending:   pending,
		}
	}
	return snap
}

// FromSnapshot 从快照恢复校准器
// 未出现在快照中的桶保持初始状态；结构非法时返回 model.ErrMalformedSnapshot。
func FromSnapshot(snap *Snapshot) (*Calibrator, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: 快照为空", model.ErrMalformedSnapshot)
	}
	if snap.FadingFactor == nil {
		return nil, fmt.Errorf("%w: 缺少 fading_factor", model.ErrMalformedSnapshot)
	}
	if snap.CurrentIndex == nil {
		return nil, fmt.Errorf("%w: 缺少 current_index", model.ErrMalformedSnapshot)
	}
	if len(snap.Thresholds) == 0 {
		return nil, fmt.Errorf("%w: 缺少 thresholds", model.ErrMalformedSnapshot)
	}
	if math.IsNaN(snap.StandardizedSignal) || math.IsInf(snap.StandardizedSignal, 0) {
		return nil, fmt.Errorf("%w: standardized_signal 不是有限值", model.ErrMalformedSnapshot)
	}

	// New 会把 0 替换为默认值，恢复时必须显式给出合法衰减因子
	if ff := *snap.FadingFactor; !(ff > 0 && ff < 1) {
		return nil, fmt.Errorf("%w: fading_factor=%v 必须在 (0,1) 内", model.ErrMalformedSnapshot, ff)
	}

	c, err := New(Config{Thresholds: snap.Thresholds, FadingFactor: *snap.FadingFactor})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedSnapshot, err)
	}
	cur := *snap.CurrentIndex
	if cur < 0 {
		return nil, fmt.Errorf("%w: current_index=%d 不能为负数", model.ErrMalformedSnapshot, cur)
	}
	c.currentIndex = cur
	c.standardized = snap.StandardizedSignal

	sig, err := moment.FromState(snap.Signal)
	if err != nil {
		return nil, fmt.Errorf("signal: %w", err)
	}
	c.signal = sig

	seen := make(map[*bucket]bool, len(snap.Buckets))
	for i := range snap.Buckets {
		bs := &snap.Buckets[i]
		if bs.Threshold == nil {
			return nil, fmt.Errorf("%w: buckets[%d] 缺少 threshold", model.ErrMalformedSnapshot, i)
		}
		b := c.find(*bs.Threshold, bs.Side)
		if b == nil {
			return nil, fmt.Errorf("%w: buckets[%d] (%v, %s) 不在阈值列表中", model.ErrMalformedSnapshot, i, *bs.Threshold, bs.Side)
		}
		if seen[b] {
			return nil, fmt.Errorf("%w: buckets[%d] (%v, %s) 重复", model.ErrMalformedSnapshot, i, *bs.Threshold, bs.Side)
		}
		seen[b] = true

		payoff, err := moment.FromState(bs.Payoff)
		if err != nil {
			return nil, fmt.Errorf("buckets[%d].payoff: %w", i, err)
		}
		b.payoff = payoff

		for j, p := range bs.Pending {
			if p.Horizon < 0 || p.StartIndex < 0 || p.StartIndex >= cur || cur-p.StartIndex > int64(p.Horizon) {
				return nil, fmt.Errorf("%w: buckets[%d].pending[%d] 越界", model.ErrMalformedSnapshot, i, j)
			}
		}
		b.pending = append([]model.PendingSignal(nil), bs.Pending...)
	}
	return c, nil
}

func (c *Calibrator) find(threshold float64, side model.Side) *bucket {
	for _, b := range c.buckets {
		if b.threshold == threshold && b.side == side {
			return b
		}
	}
	return nil
}

// MarshalSnapshot 将校准器状态编码为 JSON
func (c *Calibrator) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(c.Snapshot())
}

// UnmarshalSnapshot 从 JSON 恢复校准器
func UnmarshalSnapshot(data []byte) (*Calibrator, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedSnapshot, err)
	}
	return FromSnapshot(&snap)
}
