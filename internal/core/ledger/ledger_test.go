// Package ledger 决策账本测试
package ledger

import (
	"errors"
	"math"
	"testing"

	"attacker-evaluator/internal/core/model"
)

func mustNew(t *testing.T, cfg Config) *Ledger {
	t.Helper()
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func mustTick(t *testing.T, l *Ledger, value float64, horizon int, direction float64) []model.ResolvedTrade {
	t.Helper()
	out, err := l.Tick(value, horizon, direction)
	if err != nil {
		t.Fatalf("Tick(%v,%d,%v): %v", value, horizon, direction, err)
	}
	return out
}

func TestLedger_LongResolvesNextStep(t *testing.T) {
	l := mustNew(t, Config{Epsilon: 0, Backoff: 1})

	if got := mustTick(t, l, 100, 1, 1); len(got) != 0 {
		t.Fatalf("resolved=%d on decision step, want 0", len(got))
	}
	got := mustTick(t, l, 110, 0, 0)
	if len(got) != 1 {
		t.Fatalf("resolved=%d, want 1", len(got))
	}
	if got[0].PnL != 10 {
		t.Fatalf("PnL=%v, want 10", got[0].PnL)
	}
	if got[0].DecisionIndex != 0 || got[0].ResolutionIndex != 1 {
		t.Fatalf("indices=%d/%d, want 0/1", got[0].DecisionIndex, got[0].ResolutionIndex)
	}
	if len(l.Pending()) != 0 {
		t.Fatalf("pending=%d, want 0", len(l.Pending()))
	}
}

func TestLedger_ShortWithEpsilon(t *testing.T) {
	l := mustNew(t, Config{Epsilon: 0.5, Backoff: 1})
	mustTick(t, l, 50, 2, -3)
	mustTick(t, l, 49, 0, 0)
	got := mustTick(t, l, 45, 0, 0)
	if len(got) != 1 {
		t.Fatalf("resolved=%d, want 1", len(got))
	}
	if !approx(got[0].PnL, 50-45-0.5, 1e-12) {
		t.Fatalf("PnL=%v, want 4.5", got[0].PnL)
	}
	if got[0].Direction != -3 {
		t.Fatalf("Direction=%v, want -3", got[0].Direction)
	}
}

func TestLedger_InvalidDecision(t *testing.T) {
	l := mustNew(t, Config{Epsilon: 0, Backoff: 1})
	mustTick(t, l, 1, 0, 0)

	cases := []struct {
		horizon   int
		direction float64
	}{
		{0, 1},
		{-1, 0},
		{3, math.NaN()},
		{3, math.Inf(1)},
	}
	for _, c := range cases {
		if _, err := l.Tick(2, c.horizon, c.direction); !errors.Is(err, model.ErrInvalidDecision) {
			t.Fatalf("Tick(h=%d,d=%v) err=%v, want ErrInvalidDecision", c.horizon, c.direction, err)
		}
	}
	if l.CurrentIndex() != 1 {
		t.Fatalf("CurrentIndex=%d, want 1（失败调用不得推进）", l.CurrentIndex())
	}
}

func TestLedger_BackoffSuppression(t *testing.T) {
	l := mustNew(t, Config{Epsilon: 0, Backoff: 3})
	for i := 0; i < 7; i++ {
		mustTick(t, l, float64(i), 10, 1)
	}
	pending := l.Pending()
	want := []int64{0, 3, 6}
	if len(pending) != len(want) {
		t.Fatalf("pending=%d, want %d", len(pending), len(want))
	}
	for i, d := range pending {
		if d.Index != want[i] {
			t.Fatalf("pending[%d].Index=%d, want %d", i, d.Index, want[i])
		}
	}
	if l.Suppressed() != 4 {
		t.Fatalf("Suppressed=%d, want 4", l.Suppressed())
	}
}

func TestLedger_ExecutionLag(t *testing.T) {
	l := mustNew(t, Config{Epsilon: 0, Backoff: 1, ExecutionLag: true})
	mustTick(t, l, 100, 2, 1)
	if p := l.Pending(); len(p) != 1 || p[0].Anchored() {
		t.Fatalf("决策步不应确定参考价: %+v", p)
	}

	mustTick(t, l, 103, 0, 0)
	p := l.Pending()
	if len(p) != 1 || !p[0].Anchored() || *p[0].AnchorValue != 103 {
		t.Fatalf("下一步应以 103 为参考价: %+v", p)
	}

	if got := mustTick(t, l, 104, 0, 0); len(got) != 0 {
		t.Fatalf("执行延迟模式下 i+h 不应结算")
	}
	got := mustTick(t, l, 110, 0, 0)
	if len(got) != 1 {
		t.Fatalf("resolved=%d, want 1 at i+h+1", len(got))
	}
	if got[0].ResolutionIndex != 3 || got[0].AnchorValue != 103 || got[0].PnL != 7 {
		t.Fatalf("trade=%+v, want resolution 3 anchor 103 pnl 7", got[0])
	}
}

func TestLedger_Summary(t *testing.T) {
	l := mustNew(t, Config{Epsilon: 0, Backoff: 1})

	s := l.Summary()
	if s.NumResolvedDecisions != 0 || s.StandardizedProfitPerDecision != nil {
		t.Fatalf("empty summary=%+v", s)
	}

	// +1 多头 10→12 (+2)，-1 空头 12→13 (-1)，+1 多头 13→13 (0)
	mustTick(t, l, 10, 1, 1)
	mustTick(t, l, 12, 1, -1)
	mustTick(t, l, 13, 1, 1)
	mustTick(t, l, 13, 0, 0)

	s = l.Summary()
	if s.CurrentIndex != 4 || s.NumResolvedDecisions != 3 {
		t.Fatalf("CurrentIndex=%d Num=%d, want 4/3", s.CurrentIndex, s.NumResolvedDecisions)
	}
	if s.Wins != 1 || s.Losses != 1 {
		t.Fatalf("Wins=%d Losses=%d, want 1/1（平局不计）", s.Wins, s.Losses)
	}
	if float64(s.WinLossRatio) != 1 {
		t.Fatalf("WinLossRatio=%v, want 1", s.WinLossRatio)
	}
	if !approx(s.TotalProfit, 1, 1e-12) || !approx(s.ProfitPerDecision, 1.0/3.0, 1e-12) {
		t.Fatalf("TotalProfit=%v ProfitPerDecision=%v", s.TotalProfit, s.ProfitPerDecision)
	}

	// 总体标准差: pnls={2,-1,0}, mean=1/3
	mean := 1.0 / 3.0
	std := math.Sqrt(((2-mean)*(2-mean) + (-1-mean)*(-1-mean) + mean*mean) / 3)
	if s.StandardizedProfitPerDecision == nil || !approx(float64(*s.StandardizedProfitPerDecision), mean/std, 1e-12) {
		t.Fatalf("StandardizedProfitPerDecision=%v, want %v", s.StandardizedProfitPerDecision, mean/std)
	}
}

func TestLedger_SummaryInfinities(t *testing.T) {
	l := mustNew(t, Config{Epsilon: 0, Backoff: 1})
	mustTick(t, l, 1, 1, 1)
	mustTick(t, l, 2, 1, 1)
	mustTick(t, l, 3, 0, 0)

	s := l.Summary()
	if !math.IsInf(float64(s.WinLossRatio), 1) {
		t.Fatalf("WinLossRatio=%v, want +Inf", s.WinLossRatio)
	}
	// 两笔收益相同，标准差为 0
	if s.StandardizedProfitPerDecision == nil || !math.IsInf(float64(*s.StandardizedProfitPerDecision), 1) {
		t.Fatalf("StandardizedProfitPerDecision=%v, want +Inf", s.StandardizedProfitPerDecision)
	}

	one := mustNew(t, Config{Epsilon: 0, Backoff: 1})
	mustTick(t, one, 1, 1, 1)
	mustTick(t, one, 0, 0, 0)
	if s := one.Summary(); s.StandardizedProfitPerDecision != nil {
		t.Fatalf("单笔结算不应给出标准化收益")
	}
}

func TestLedger_Reset(t *testing.T) {
	l := mustNew(t, Config{Epsilon: 0.1, Backoff: 2})
	mustTick(t, l, 1, 1, 1)
	mustTick(t, l, 2, 1, 1)
	mustTick(t, l, 3, 5, -1)
	l.Reset()

	if l.CurrentIndex() != 0 || len(l.Pending()) != 0 || len(l.Trades()) != 0 || l.Suppressed() != 0 {
		t.Fatalf("Reset 后状态未清空")
	}
	if l.Epsilon() != 0.1 || l.Config().Backoff != 2 {
		t.Fatalf("Reset 不应改变参数")
	}
	// 重置后首个决策不受 backoff 限制
	mustTick(t, l, 1, 1, 1)
	if len(l.Pending()) != 1 {
		t.Fatalf("pending=%d, want 1", len(l.Pending()))
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(Config{Epsilon: -1}); err == nil {
		t.Fatalf("负 epsilon 应返回错误")
	}
	if _, err := New(Config{Backoff: -1}); err == nil {
		t.Fatalf("负 backoff 应返回错误")
	}
}

func approx(a float64, b float64, eps float64) bool {
	return math.Abs(a-b) <= eps
}
