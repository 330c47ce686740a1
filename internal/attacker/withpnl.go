package attacker

import (
	"fmt"

	"attacker-evaluator/internal/core/ledger"
	"attacker-evaluator/internal/core/model"
)

// WithPnL 用账本直接为决策源的输出打分
type WithPnL struct {
	attacker Attacker
	ledger   *ledger.Ledger
}

// NewWithPnL 创建评估外壳
// 参数 a: 决策源
// 参数 cfg: 账本参数
func NewWithPnL(a Attacker, cfg ledger.Config) (*WithPnL, error) {
	l, err := ledger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("创建账本失败: %w", err)
	}
	return &WithPnL{attacker: a, ledger: l}, nil
}

// Step 推进一步：取决策源输出并交给账本
// 决策非法时返回 model.ErrInvalidDecision，账本与决策源状态不变。
func (w *WithPnL) Step(value float64, horizon int) (Outcome, error) {
	idx := w.ledger.CurrentIndex()
	prev, err := attackerState(w.attacker)
	if err != nil {
		return Outcome{Index: idx}, fmt.Errorf("导出决策源状态失败: %w", err)
	}
	decision := w.attacker.TickAndPredict(value, horizon)
	out, err := tickLedger(w.ledger, value, horizon, decision)
	out.Index = idx
	out.Signal = decision
	if err != nil {
		return out, rollback(w.attacker, prev, err)
	}
	return out, nil
}

// TickAndPredict 实现 Attacker，便于嵌套；打分错误时返回 0
func (w *WithPnL) TickAndPredict(value float64, horizon int) float64 {
	out, err := w.Step(value, horizon)
	if err != nil {
		return 0
	}
	return out.Decision
}

// Kind 外壳类型
func (w *WithPnL) Kind() string { return KindAttacker }

// Summary 当前账本汇总
func (w *WithPnL) Summary() model.Summary {
	return w.ledger.Summary()
}

// Ledger 内部账本
func (w *WithPnL) Ledger() *ledger.Ledger {
	return w.ledger
}

// Checkpoint 导出账本与决策源状态
func (w *WithPnL) Checkpoint() (*Checkpoint, error) {
	st, err := attackerState(w.attacker)
	if err != nil {
		return nil, fmt.Errorf("导出决策源状态失败: %w", err)
	}
	return &Checkpoint{Ledger: w.ledger.Snapshot(), Attacker: st}, nil
}

// Restore 从检查点恢复
func (w *WithPnL) Restore(cp *Checkpoint) error {
	if cp == nil || cp.Ledger == nil {
		return fmt.Errorf("%w: 检查点缺少 ledger", model.ErrMalformedSnapshot)
	}
	l, err := ledger.FromSnapshot(cp.Ledger)
	if err != nil {
		return err
	}
	if err := restoreAttacker(w.attacker, cp.Attacker); err != nil {
		return fmt.Errorf("恢复决策源状态失败: %w", err)
	}
	w.ledger = l
	return nil
}

// tickLedger 推进账本并整理本步结果
func tickLedger(l *ledger.Ledger, value float64, horizon int, decision float64) (Outcome, error) {
	out := Outcome{Decision: decision}
	before := l.Suppressed()
	resolved, err := l.Tick(value, horizon, decision)
	if err != nil {
		return out, err
	}
	out.Resolved = resolved
	if decision != 0 {
		out.Suppressed = l.Suppressed() > before
		out.Registered = !out.Suppressed
	}
	return out, nil
}
