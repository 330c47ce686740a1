package ledger

import (
	"encoding/json"
	"fmt"
	"math"

	"attacker-evaluator/internal/core/model"
)

// Snapshot 账本完整状态
// 所有记录均为具名字段，不依赖位置顺序。必填标量使用指针以区分“缺失”与零值。
type Snapshot struct {
	Epsilon           *float64              `json:"epsilon" yaml:"epsilon"`
	Backoff           *int                  `json:"backoff" yaml:"backoff"`
	ExecutionLag      bool                  `json:"execution_lag" yaml:"execution_lag"`
	CurrentIndex      *int64                `json:"current_index" yaml:"current_index"`
	LastDecisionIndex *int64                `json:"last_decision_index" yaml:"last_decision_index"`
	Suppressed        int64                 `json:"suppressed" yaml:"suppressed"`
	PendingDecisions  []model.Decision      `json:"pending_decisions" yaml:"pending_decisions"`
	ResolvedTrades    []model.ResolvedTrade `json:"resolved_trades" yaml:"resolved_trades"`
}

// Snapshot 导出完整状态（深拷贝）
func (l *Ledger) Snapshot() *Snapshot {
	eps := l.cfg.Epsilon
	backoff := l.cfg.Backoff
	cur := l.currentIndex
	snap := &Snapshot{
		Epsilon:          &eps,
		Backoff:          &backoff,
		ExecutionLag:     l.cfg.ExecutionLag,
		CurrentIndex:     &cur,
		Suppressed:       l.suppressed,
		PendingDecisions: l.Pending(),
		ResolvedTrades:   l.Trades(),
	}
	if l.lastDecisionIndex >= 0 {
		last := l.lastDecisionIndex
		snap.LastDecisionIndex = &last
	}
	return snap
}

// FromSnapshot 从快照恢复账本
// 结构非法时返回 model.ErrMalformedSnapshot。
func FromSnapshot(snap *Snapshot) (*Ledger, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: 快照为空", model.ErrMalformedSnapshot)
	}
	if snap.Epsilon == nil {
		return nil, fmt.Errorf("%w: 缺少 epsilon", model.ErrMalformedSnapshot)
	}
	if snap.Backoff == nil {
		return nil, fmt.Errorf("%w: 缺少 backoff", model.ErrMalformedSnapshot)
	}
	if snap.CurrentIndex == nil {
		return nil, fmt.Errorf("%w: 缺少 current_index", model.ErrMalformedSnapshot)
	}

	l, err := New(Config{Epsilon: *snap.Epsilon, Backoff: *snap.Backoff, ExecutionLag: snap.ExecutionLag})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedSnapshot, err)
	}

	cur := *snap.CurrentIndex
	if cur < 0 {
		return nil, fmt.Errorf("%w: current_index=%d 不能为负数", model.ErrMalformedSnapshot, cur)
	}
	if snap.Suppressed < 0 {
		return nil, fmt.Errorf("%w: suppressed=%d 不能为负数", model.ErrMalformedSnapshot, snap.Suppressed)
	}
	l.currentIndex = cur
	l.suppressed = snap.Suppressed
	if snap.LastDecisionIndex != nil {
		last := *snap.LastDecisionIndex
		if last < 0 || last >= cur {
			return nil, fmt.Errorf("%w: last_decision_index=%d 越界", model.ErrMalformedSnapshot, last)
		}
		l.lastDecisionIndex = last
	}

	prev := int64(-1)
	for i := range snap.PendingDecisions {
		d := snap.PendingDecisions[i].Clone()
		if err := validatePending(&d, cur, l.cfg.ExecutionLag); err != nil {
			return nil, fmt.Errorf("%w: pending_decisions[%d]: %v", model.ErrMalformedSnapshot, i, err)
		}
		if d.Index <= prev {
			return nil, fmt.Errorf("%w: pending_decisions[%d] index 未严格递增", model.ErrMalformedSnapshot, i)
		}
		prev = d.Index
		l.pending = append(l.pending, &d)
	}
	// last_decision_index 必须覆盖全部未结算决策
	if prev >= 0 && (snap.LastDecisionIndex == nil || l.lastDecisionIndex < prev) {
		return nil, fmt.Errorf("%w: last_decision_index 缺失或早于未结算决策 index=%d", model.ErrMalformedSnapshot, prev)
	}

	l.trades = make([]model.ResolvedTrade, len(snap.ResolvedTrades))
	copy(l.trades, snap.ResolvedTrades)
	return l, nil
}

func validatePending(d *model.Decision, cur int64, lag bool) error {
	if d.Direction == 0 || math.IsNaN(d.Direction) || math.IsInf(d.Direction, 0) {
		return fmt.Errorf("direction=%v 非法", d.Direction)
	}
	if d.Horizon <= 0 {
		return fmt.Errorf("horizon=%d 必须为正", d.Horizon)
	}
	if d.Index < 0 || d.Index >= cur {
		return fmt.Errorf("index=%d 越界", d.Index)
	}
	if d.TargetIndex(lag) < cur {
		return fmt.Errorf("index=%d 已过结算步", d.Index)
	}
	if d.AnchorValue == nil {
		// 仅执行延迟模式下、上一步刚登记的决策允许尚无参考价
		if !lag || d.Index != cur-1 {
			return fmt.Errorf("index=%d 缺少 anchor_value", d.Index)
		}
	}
	return nil
}

// MarshalSnapshot 将账本状态编码为 JSON
func (l *Ledger) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(l.Snapshot())
}

// UnmarshalSnapshot 从 JSON 恢复账本
func UnmarshalSnapshot(data []byte) (*Ledger, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedSnapshot, err)
	}
	return FromSnapshot(&snap)
}
