// Package ev EV 计算器测试
package ev

import (
	"math"
	"testing"

	"attacker-evaluator/internal/core/model"
)

func TestCalculator_Empty(t *testing.T) {
	c := NewCalculator(10)
	stats := c.Stats()
	if stats.Count != 0 {
		t.Fatalf("Count=%d, want 0", stats.Count)
	}
	if stats.EV != 0 {
		t.Fatalf("EV=%f, want 0", stats.EV)
	}
}

func TestCalculator_EVFormula(t *testing.T) {
	c := NewCalculator(100)

	// 2 赢 1 输；fee=2
	c.Add(&model.ResolvedTrade{PnL: 8}, 2)
	c.Add(&model.ResolvedTrade{PnL: 18}, 2)
	c.Add(&model.ResolvedTrade{PnL: -17}, 2)

	stats := c.Stats()
	if stats.Count != 3 {
		t.Fatalf("Count=%d, want 3", stats.Count)
	}
	if stats.WinCount != 2 || stats.LossCount != 1 {
		t.Fatalf("WinCount=%d LossCount=%d, want 2/1", stats.WinCount, stats.LossCount)
	}

	// p=2/3, R=15, L=15, f=2 => EV=3
	if math.Abs(stats.EV-3.0) > 1e-9 {
		t.Fatalf("EV=%f, want 3", stats.EV)
	}
	if math.Abs(stats.PRequired-17.0/30.0) > 1e-9 {
		t.Fatalf("PRequired=%f, want %f", stats.PRequired, 17.0/30.0)
	}
	if math.Abs(stats.AvgNet-3.0) > 1e-9 {
		t.Fatalf("AvgNet=%f, want 3", stats.AvgNet)
	}
}

func TestCalculator_RollingWindow(t *testing.T) {
	c := NewCalculator(2)

	c.AddAll([]model.ResolvedTrade{{PnL: 8}, {PnL: -12}, {PnL: 18}}, 2)

	stats := c.Stats()
	if stats.Count != 2 {
		t.Fatalf("Count=%d, want 2", stats.Count)
	}
	// 窗口内应包含：loss(-10) 与 win(20)
	if stats.WinCount != 1 || stats.LossCount != 1 {
		t.Fatalf("WinCount=%d LossCount=%d, want 1/1", stats.WinCount, stats.LossCount)
	}
	if math.Abs(stats.AvgProfit-20.0) > 1e-9 {
		t.Fatalf("AvgProfit=%f, want 20", stats.AvgProfit)
	}
	if math.Abs(stats.AvgLoss-10.0) > 1e-9 {
		t.Fatalf("AvgLoss=%f, want 10", stats.AvgLoss)
	}
}

func TestCalculator_Reset(t *testing.T) {
	c := NewCalculator(3)
	c.Add(&model.ResolvedTrade{PnL: 1}, 0)
	c.Reset()
	if s := c.Stats(); s.Count != 0 || s.EV != 0 {
		t.Fatalf("Reset 后 stats=%+v", s)
	}
	c.Add(nil, 0)
	if s := c.Stats(); s.Count != 0 {
		t.Fatalf("nil 交易不应计入")
	}
}

func TestApplyGate(t *testing.T) {
	neg := EVStats{Count: 5, EV: -0.1}
	if d, reason := ApplyGate(1, neg, 5); d != 0 || reason != GateReasonNegativeEV {
		t.Fatalf("ApplyGate=%v/%q, want 0/ev_negative", d, reason)
	}
	if d, reason := ApplyGate(-1, neg, 6); d != -1 || reason != "" {
		t.Fatalf("样本不足时不应过滤: %v/%q", d, reason)
	}
	if d, _ := ApplyGate(1, EVStats{Count: 10, EV: 0.2}, 1); d != 1 {
		t.Fatalf("正 EV 不应过滤")
	}
	if d, reason := ApplyGate(0, neg, 1); d != 0 || reason != "" {
		t.Fatalf("零决策无需过滤")
	}
}
