package attacker

import (
	"fmt"
	"math"

	"attacker-evaluator/internal/core/calibrate"
	"attacker-evaluator/internal/core/ledger"
	"attacker-evaluator/internal/core/model"
	"attacker-evaluator/internal/stats/ev"
)

// CalibratedConfig 校准外壳参数
type CalibratedConfig struct {
	Ledger     ledger.Config
	Calibrator calibrate.Config
	// Cost 行动所需的最小学习收益
	Cost float64
	// EVGate 滚动 EV 为负时放弃行动
	EVGate bool
	// EVWindow 滚动 EV 窗口
	EVWindow int
	// EVMinSamples EV 过滤生效所需样本数
	EVMinSamples int
}

// Calibrated 将决策源输出视为原始信号，经校准器合成 {-1,0,1} 决策后打分
type Calibrated struct {
	attacker   Attacker
	calibrator *calibrate.Calibrator
	ledger     *ledger.Ledger
	ev         *ev.Calculator
	cfg        CalibratedConfig
}

// NewCalibrated 创建校准外壳
func NewCalibrated(a Attacker, cfg CalibratedConfig) (*Calibrated, error) {
	c, err := calibrate.New(cfg.Calibrator)
	if err != nil {
		return nil, fmt.Errorf("创建校准器失败: %w", err)
	}
	l, err := ledger.New(cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("创建账本失败: %w", err)
	}
	return &Calibrated{
		attacker:   a,
		calibrator: c,
		ledger:     l,
		ev:         ev.NewCalculator(cfg.EVWindow),
		cfg:        cfg,
	}, nil
}

// Step 推进一步
// 顺序：决策源输出原始信号 → 校准器 Tick → Predict(cost) → 可选 EV 过滤 → 账本 Tick
// 校准决策可能非零，horizon 必须为正。
// 本步被拒绝时决策源、校准器与账本均保持调用前的状态。
func (c *Calibrated) Step(value float64, horizon int) (Outcome, error) {
	idx := c.ledger.CurrentIndex()
	if horizon <= 0 {
		return Outcome{Index: idx}, fmt.Errorf("%w: horizon=%d 必须为正", model.ErrInvalidDecision, horizon)
	}
	prev, err := attackerState(c.attacker)
	if err != nil {
		return Outcome{Index: idx}, fmt.Errorf("导出决策源状态失败: %w", err)
	}
	signal := c.attacker.TickAndPredict(value, horizon)
	if math.IsNaN(signal) || math.IsInf(signal, 0) {
		return Outcome{Index: idx, Signal: signal}, rollback(c.attacker, prev,
			fmt.Errorf("%w: 原始信号 %v 不是有限值", model.ErrInvalidDecision, signal))
	}
	if err := c.calibrator.Tick(value, horizon, signal); err != nil {
		return Outcome{Index: idx, Signal: signal}, rollback(c.attacker, prev, err)
	}

	decision := float64(c.calibrator.Predict(c.cfg.Cost))
	reason := ""
	if c.cfg.EVGate {
		decision, reason = ev.ApplyGate(decision, c.ev.Stats(), int64(c.cfg.EVMinSamples))
	}

	out, err := tickLedger(c.ledger, value, horizon, decision)
	out.Index = idx
	out.Signal = signal
	out.GateReason = reason
	if err != nil {
		return out, err
	}
	c.ev.AddAll(out.Resolved, c.ledger.Epsilon())
	return out, nil
}

// TickAndPredict 实现 Attacker；打分错误时返回 0
func (c *Calibrated) TickAndPredict(value float64, horizon int) float64 {
	out, err := c.Step(value, horizon)
	if err != nil {
		return 0
	}
	return out.Decision
}

// Kind 外壳类型
func (c *Calibrated) Kind() string { return KindCalibrated }

// Summary 当前账本汇总
func (c *Calibrated) Summary() model.Summary {
	return c.ledger.Summary()
}

// Ledger 内部账本
func (c *Calibrated) Ledger() *ledger.Ledger {
	return c.ledger
}

// Calibrator 内部校准器
func (c *Calibrated) Calibrator() *calibrate.Calibrator {
	return c.calibrator
}

// EVStats 已结算交易的滚动 EV
func (c *Calibrated) EVStats() ev.EVStats {
	return c.ev.Stats()
}

// Checkpoint 导出账本、校准器与决策源状态
// 滚动 EV 窗口不在检查点中，恢复后由新结算交易重新累积。
func (c *Calibrated) Checkpoint() (*Checkpoint, error) {
	st, err := attackerState(c.attacker)
	if err != nil {
		return nil, fmt.Errorf("导出决策源状态失败: %w", err)
	}
	return &Checkpoint{
		Ledger:     c.ledger.Snapshot(),
		Calibrator: c.calibrator.Snapshot(),
		Attacker:   st,
	}, nil
}

// Restore 从检查点恢复
func (c *Calibrated) Restore(cp *Checkpoint) error {
	if cp == nil || cp.Ledger == nil || cp.Calibrator == nil {
		return fmt.Errorf("%w: 检查点缺少 ledger 或 calibrator", model.ErrMalformedSnapshot)
	}
	l, err := ledger.FromSnapshot(cp.Ledger)
	if err != nil {
		return err
	}
	cal, err := calibrate.FromSnapshot(cp.Calibrator)
	if err != nil {
		return err
	}
	if err := restoreAttacker(c.attacker, cp.Attacker); err != nil {
		return fmt.Errorf("恢复决策源状态失败: %w", err)
	}
	c.ledger = l
	c.calibrator = cal
	c.ev.Reset()
	return nil
}
