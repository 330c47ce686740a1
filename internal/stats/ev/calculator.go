// Package ev 实现已结算交易的期望值（EV）统计。
// EV = p × (R - f) + (1 - p) × (-L - f)
// p_required = (L + f) / (R + L)
package ev

import (
	"attacker-evaluator/internal/core/model"
)

type tradeSample struct {
	win   bool
	gross float64
	fee   float64
	net   float64
}

// EVStats EV 统计信息（滚动窗口）
type EVStats struct {
	// Count 样本数
	Count int64 `json:"count"`
	// WinCount 盈利样本数（净收益>0）
	WinCount int64 `json:"win_count"`
	// LossCount 非盈利样本数（净收益<=0）
	LossCount int64 `json:"loss_count"`

	// WinRate 胜率 p
	WinRate float64 `json:"win_rate"`
	// AvgProfit 平均盈利 R（扣费前）
	AvgProfit float64 `json:"avg_profit"`
	// AvgLoss 平均亏损 L（扣费前，绝对值）
	AvgLoss float64 `json:"avg_loss"`
	// Fee 平均交易成本 f
	Fee float64 `json:"fee"`
	// AvgNet 平均净收益
	AvgNet float64 `json:"avg_net"`

	// EV 期望值
	EV float64 `json:"ev"`
	// PRequired 盈亏平衡胜率 p_required
	PRequired float64 `json:"p_required"`
}

// Calculator EV 计算器（滚动窗口）
// 输入来自账本结算的交易，单写者。
type Calculator struct {
	// windowSize 滚动窗口大小
	windowSize int
	// buf 环形缓冲区
	buf []tradeSample
	// pos 写入位置
	pos int
	// full 是否已填满
	full bool

	// 维护滚动统计（O(1) 更新）
	count     int64
	winCount  int64
	lossCount int64
	sumWinR   float64
	sumLossL  float64
	sumFee    float64
	sumNet    float64
}

// NewCalculator 创建 EV 计算器
// 参数 windowSize: 滚动窗口大小（建议 1000）
func NewCalculator(windowSize int) *Calculator {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &Calculator{
		windowSize: windowSize,
		buf:        make([]tradeSample, windowSize),
	}
}

// Add 添加一笔已结算交易到滚动统计
// 参数 t: 已结算交易，PnL 为扣除成本后的净收益
// 参数 fee: 该笔交易扣除的成本（账本 epsilon）
func (c *Calculator) Add(t *model.ResolvedTrade, fee float64) {
	if t == nil {
		return
	}

	s := tradeSample{
		win:   t.PnL > 0,
		gross: t.PnL + fee,
		fee:   fee,
		net:   t.PnL,
	}

	// 若环已满，移除旧样本对统计的贡献
	if c.full {
		old := c.buf[c.pos]
		c.count--
		if old.win {
			c.winCount--
			c.sumWinR -= old.gross
		} else {
			c.lossCount--
			c.sumLossL -= abs(old.gross)
		}
		c.sumFee -= old.fee
		c.sumNet -= old.net
	}

	c.buf[c.pos] = s
	c.pos++
	if c.pos >= c.windowSize {
		c.pos = 0
		c.full = true
	}

	c.count++
	if s.win {
		c.winCount++
		c.sumWinR += s.gross
	} else {
		c.lossCount++
		c.sumLossL += abs(s.gross)
	}
	c.sumFee += s.fee
	c.sumNet += s.net
}

// AddAll 批量添加
func (c *Calculator) AddAll(trades []model.ResolvedTrade, fee float64) {
	for i := range trades {
		c.Add(&trades[i], fee)
	}
}

// Stats 返回滚动窗口统计
func (c *Calculator) Stats() EVStats {
	out := EVStats{
		Count:     c.count,
		WinCount:  c.winCount,
		LossCount: c.lossCount,
	}
	if c.count <= 0 {
		return out
	}

	out.WinRate = float64(c.winCount) / float64(c.count)
	out.Fee = c.sumFee / float64(c.count)
	out.AvgNet = c.sumNet / float64(c.count)

	if c.winCount > 0 {
		out.AvgProfit = c.sumWinR / float64(c.winCount)
	}
	if c.lossCount > 0 {
		out.AvgLoss = c.sumLossL / float64(c.lossCount)
	}

	// EV = p × (R - f) + (1 - p) × (-L - f)
	p := out.WinRate
	R := out.AvgProfit
	L := out.AvgLoss
	f := out.Fee
	out.EV = p*(R-f) + (1-p)*(-L-f)

	// p_required = (L + f) / (R + L)
	den := R + L
	if den > 0 {
		out.PRequired = (L + f) / den
	} else {
		out.PRequired = 1
	}

	return out
}

// Reset 清空窗口
func (c *Calculator) Reset() {
	*c = Calculator{windowSize: c.windowSize, buf: make([]tradeSample, c.windowSize)}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
