package attacker

import (
	"fmt"

	"attacker-evaluator/internal/config"
	"attacker-evaluator/internal/core/calibrate"
	"attacker-evaluator/internal/core/ledger"
)

// New 按配置创建决策源
func New(cfg config.AttackerConfig) (Attacker, error) {
	switch cfg.Kind {
	case config.AttackerMomentum:
		return NewMomentum(cfg.FastFading, cfg.SlowFading, cfg.Scale, cfg.Warmup)
	case config.AttackerMedian:
		if cfg.HistoryLen <= 0 {
			return nil, fmt.Errorf("history_len 必须为正数，当前值: %d", cfg.HistoryLen)
		}
		return NewMedianBreakout(cfg.HistoryLen, cfg.Margin), nil
	default:
		return nil, fmt.Errorf("未知的决策源类型: %s", cfg.Kind)
	}
}

// NewHarness 按配置创建评估外壳
// calibrator.enabled 为 true 时返回 Calibrated，否则返回 WithPnL。
func NewHarness(cfg *config.Config) (Harness, error) {
	a, err := New(cfg.Attacker)
	if err != nil {
		return nil, err
	}
	lcfg := ledger.Config{
		Epsilon:      cfg.Ledger.EpsilonValue(),
		Backoff:      cfg.Ledger.BackoffValue(),
		ExecutionLag: cfg.Ledger.ExecutionLag,
	}
	if !cfg.Calibrator.Enabled {
		return NewWithPnL(a, lcfg)
	}
	return NewCalibrated(a, CalibratedConfig{
		Ledger: lcfg,
		Calibrator: calibrate.Config{
			Thresholds:   cfg.Calibrator.Thresholds,
			FadingFactor: cfg.Calibrator.FadingFactor,
		},
		Cost:         cfg.Calibrator.Cost(),
		EVGate:       cfg.Calibrator.EVGate,
		EVWindow:     cfg.Calibrator.EVWindow,
		EVMinSamples: cfg.Calibrator.EVMinSamples,
	})
}
