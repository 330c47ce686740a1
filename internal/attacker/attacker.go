// Package attacker 定义外部决策源的能力契约，以及为其打分的评估外壳。
//
// 任何能根据 (value, horizon) 给出方向性决策的对象都是 Attacker；
// WithPnL 直接用账本为其决策打分，Calibrated 将其输出视为原始信号，
// 经校准后再交给账本。
package attacker

import (
	"encoding/json"
	"fmt"

	"attacker-evaluator/internal/core/calibrate"
	"attacker-evaluator/internal/core/ledger"
	"attacker-evaluator/internal/core/model"
)

// Attacker 外部决策源
// 每步观察一个值，返回决策（0 表示不行动，符号表示方向）或原始信号。
type Attacker interface {
	TickAndPredict(value float64, horizon int) float64
}

// Func 函数适配器
type Func func(value float64, horizon int) float64

// TickAndPredict 实现 Attacker
func (f Func) TickAndPredict(value float64, horizon int) float64 {
	return f(value, horizon)
}

// Stateful 可保存/恢复内部状态的决策源
type Stateful interface {
	MarshalState() (json.RawMessage, error)
	UnmarshalState(data json.RawMessage) error
}

// Outcome 单步评估结果
type Outcome struct {
	// Index 本步步序号
	Index int64
	// Signal 决策源原始输出
	Signal float64
	// Decision 交给账本的决策
	Decision float64
	// Registered 决策是否被账本登记
	Registered bool
	// Suppressed 决策是否因 backoff 被抑制
	Suppressed bool
	// GateReason 决策被 EV 过滤的原因，未过滤为空
	GateReason string
	// Resolved 本步结算的交易
	Resolved []model.ResolvedTrade
}

// 评估外壳类型，写入输出记录的 source 字段
const (
	KindAttacker   = "attacker"
	KindCalibrated = "calibrated"
)

// Harness 评估外壳：驱动决策源并为其打分
type Harness interface {
	// Kind 外壳类型: attacker 或 calibrated
	Kind() string
	// Step 推进一步
	Step(value float64, horizon int) (Outcome, error)
	// Summary 当前账本汇总
	Summary() model.Summary
	// Ledger 内部账本（只读使用）
	Ledger() *ledger.Ledger
	// Checkpoint 导出可恢复的完整状态
	Checkpoint() (*Checkpoint, error)
	// Restore 从检查点恢复，失败时状态不变
	Restore(cp *Checkpoint) error
}

// Checkpoint 评估外壳的完整状态
type Checkpoint struct {
	Ledger     *ledger.Snapshot    `json:"ledger"`
	Calibrator *calibrate.Snapshot `json:"calibrator,omitempty"`
	Attacker   json.RawMessage     `json:"attacker,omitempty"`
}

func attackerState(a Attacker) (json.RawMessage, error) {
	s, ok := a.(Stateful)
	if !ok {
		return nil, nil
	}
	return s.MarshalState()
}

func restoreAttacker(a Attacker, data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}
	s, ok := a.(Stateful)
	if !ok {
		return nil
	}
	return s.UnmarshalState(data)
}

// rollback 本步被拒绝时将决策源恢复到调用前的状态，返回原始错误
func rollback(a Attacker, prev json.RawMessage, cause error) error {
	if err := restoreAttacker(a, prev); err != nil {
		return fmt.Errorf("%w (回滚决策源失败: %v)", cause, err)
	}
	return cause
}
