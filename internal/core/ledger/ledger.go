// Package ledger 实现决策账本：记录非零方向性决策，到期结算并统计盈亏。
// 单写者状态机，不做 I/O，不加锁。
package ledger

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"attacker-evaluator/internal/core/model"
)

const (
	// DefaultEpsilon 默认交易成本
	DefaultEpsilon = 0.005
	// DefaultBackoff 默认两次非零决策的最小间隔
	DefaultBackoff = 1
)

// Config 账本参数
type Config struct {
	// Epsilon 每笔结算扣除的交易成本（>=0）
	Epsilon float64
	// Backoff 两次登记决策之间的最小步数
	Backoff int
	// ExecutionLag 执行延迟模式：参考价取决策后的下一个观测值，结算推迟一步
	ExecutionLag bool
}

// Ledger 决策账本（单条流）
type Ledger struct {
	cfg Config

	// currentIndex 下一次 Tick 的步序号
	currentIndex int64
	// lastDecisionIndex 最近一次登记决策的步序号，-1 表示尚无
	lastDecisionIndex int64
	// pending 待结算决策（按 Index 升序）
	pending []*model.Decision
	// trades 已结算交易（按结算顺序追加）
	trades []model.ResolvedTrade
	// suppressed 因 backoff 被抑制的非零决策数
	suppressed int64
}

// New 创建账本
// 参数 cfg: 账本参数；Epsilon<0 或 Backoff<0 返回错误
func New(cfg Config) (*Ledger, error) {
	if cfg.Epsilon < 0 || math.IsNaN(cfg.Epsilon) || math.IsInf(cfg.Epsilon, 0) {
		return nil, fmt.Errorf("epsilon 必须为非负有限值，当前值: %v", cfg.Epsilon)
	}
	if cfg.Backoff < 0 {
		return nil, fmt.Errorf("backoff 不能为负数，当前值: %d", cfg.Backoff)
	}
	return &Ledger{cfg: cfg, lastDecisionIndex: -1}, nil
}

// Tick 推进一步
// 参数 value: 当前观测值
// 参数 horizon: 决策结算步长；direction 为 0 时忽略
// 参数 direction: 决策方向，0 表示不决策
// 返回: 本步结算的交易（可能为空）；非法决策返回 model.ErrInvalidDecision 且状态不变
func (l *Ledger) Tick(value float64, horizon int, direction float64) ([]model.ResolvedTrade, error) {
	if err := validateDecision(horizon, direction); err != nil {
		return nil, err
	}

	idx := l.currentIndex

	if direction != 0 {
		if l.lastDecisionIndex < 0 || idx-l.lastDecisionIndex >= int64(l.cfg.Backoff) {
			d := &model.Decision{Index: idx, Horizon: horizon, Direction: direction}
			if !l.cfg.ExecutionLag {
				v := value
				d.AnchorValue = &v
			}
			l.pending = append(l.pending, d)
			l.lastDecisionIndex = idx
		} else {
			l.suppressed++
		}
	}

	// 执行延迟：上一步登记的决策以本步观测值作为参考价
	if l.cfg.ExecutionLag {
		for _, d := range l.pending {
			if d.Index == idx-1 && d.AnchorValue == nil {
				v := value
				d.AnchorValue = &v
			}
		}
	}

	resolved := l.resolve(idx, value)
	l.currentIndex++
	return resolved, nil
}

func validateDecision(horizon int, direction float64) error {
	if math.IsNaN(direction) || math.IsInf(direction, 0) {
		return fmt.Errorf("%w: direction=%v 不是有限值", model.ErrInvalidDecision, direction)
	}
	if horizon < 0 {
		return fmt.Errorf("%w: horizon=%d 不能为负数", model.ErrInvalidDecision, horizon)
	}
	if direction != 0 && horizon == 0 {
		return fmt.Errorf("%w: 非零决策必须给出正的 horizon", model.ErrInvalidDecision)
	}
	return nil
}

// resolve 结算目标步等于 idx 的决策
func (l *Ledger) resolve(idx int64, value float64) []model.ResolvedTrade {
	var out []model.ResolvedTrade
	kept := l.pending[:0]
	for _, d := range l.pending {
		if d.TargetIndex(l.cfg.ExecutionLag) != idx {
			kept = append(kept, d)
			continue
		}
		anchor := *d.AnchorValue
		trade := model.ResolvedTrade{
			DecisionIndex:   d.Index,
			ResolutionIndex: idx,
			Horizon:         d.Horizon,
			Direction:       d.Direction,
			AnchorValue:     anchor,
			ResolutionValue: value,
			PnL:             d.Sign()*(value-anchor) - l.cfg.Epsilon,
		}
		l.trades = append(l.trades, trade)
		out = append(out, trade)
	}
	for i := len(kept); i < len(l.pending); i++ {
		l.pending[i] = nil
	}
	l.pending = kept
	return out
}

// Reset 清空全部状态，参数保持不变
func (l *Ledger) Reset() {
	l.currentIndex = 0
	l.lastDecisionIndex = -1
	l.pending = nil
	l.trades = nil
	l.suppressed = 0
}

// Summary 汇总已结算交易
func (l *Ledger) Summary() model.Summary {
	out := model.Summary{
		CurrentIndex:         l.currentIndex,
		NumResolvedDecisions: int64(len(l.trades)),
	}
	n := len(l.trades)
	if n == 0 {
		return out
	}

	pnls := make([]float64, n)
	for i := range l.trades {
		t := &l.trades[i]
		pnls[i] = t.PnL
		if t.IsWin() {
			out.Wins++
		} else if t.IsLoss() {
			out.Losses++
		}
	}

	total, _ := stats.Sum(pnls)
	out.TotalProfit = total
	out.WinLossRatio = WinLossRatio(out.Wins, out.Losses)
	out.ProfitPerDecision = total / float64(n)

	if n >= 2 {
		std, _ := stats.StandardDeviationPopulation(pnls)
		r := standardize(out.ProfitPerDecision, std)
		out.StandardizedProfitPerDecision = &r
	}
	return out
}

// WinLossRatio 胜负比
// losses=0 时：wins>0 返回 +Inf，否则 0。
func WinLossRatio(wins, losses int64) model.Ratio {
	if losses == 0 {
		if wins > 0 {
			return model.Ratio(math.Inf(1))
		}
		return 0
	}
	return model.Ratio(float64(wins) / float64(losses))
}

func standardize(avg, std float64) model.Ratio {
	if std > 0 {
		return model.Ratio(avg / std)
	}
	switch {
	case avg > 0:
		return model.Ratio(math.Inf(1))
	case avg < 0:
		return model.Ratio(math.Inf(-1))
	default:
		return 0
	}
}

// Pending 待结算决策的拷贝（按 Index 升序）
func (l *Ledger) Pending() []model.Decision {
	out := make([]model.Decision, len(l.pending))
	for i, d := range l.pending {
		out[i] = d.Clone()
	}
	return out
}

// Trades 已结算交易的拷贝
func (l *Ledger) Trades() []model.ResolvedTrade {
	out := make([]model.ResolvedTrade, len(l.trades))
	copy(out, l.trades)
	return out
}

// CurrentIndex 下一次 Tick 的步序号
func (l *Ledger) CurrentIndex() int64 {
	return l.currentIndex
}

// Suppressed 因 backoff 被抑制的非零决策数
func (l *Ledger) Suppressed() int64 {
	return l.suppressed
}

// Config 账本参数
func (l *Ledger) Config() Config {
	return l.cfg
}

// Epsilon 交易成本
func (l *Ledger) Epsilon() float64 {
	return l.cfg.Epsilon
}

// Backoff 两次登记决策之间的最小步数
func (l *Ledger) Backoff() int {
	return l.cfg.Backoff
}

// ExecutionLag 是否为执行延迟模式
func (l *Ledger) ExecutionLag() bool {
	return l.cfg.ExecutionLag
}
