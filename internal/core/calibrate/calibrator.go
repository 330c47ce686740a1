// Package calibrate 实现信号校准：将任意实值信号标准化，
// 并按阈值/方向学习“越过阈值即行动”的历史平均收益，据此合成 {-1,0,1} 决策。
package calibrate

import (
	"fmt"
	"math"
	"sort"

	"attacker-evaluator/internal/core/model"
	"attacker-evaluator/internal/stats/moment"
)

// DefaultFadingFactor 默认衰减因子
const DefaultFadingFactor = 0.01

// DefaultThresholds 默认阈值
func DefaultThresholds() []float64 {
	return []float64{1, 2, 3}
}

// Config 校准器参数
type Config struct {
	// Thresholds 标准化信号阈值（>=0），为空时使用 {1,2,3}
	Thresholds []float64
	// FadingFactor 信号统计与收益均值的衰减因子，(0,1)
	FadingFactor float64
}

// bucket 阈值桶：(threshold, side) 的待结算穿越事件与收益均值
type bucket struct {
	threshold float64
	side      model.Side
	pending   []model.PendingSignal
	payoff    *moment.Moment
}

// Calibrator 信号校准器（单条流）
type Calibrator struct {
	thresholds   []float64
	fadingFactor float64

	// signal 原始信号的均值/方差估计
	signal *moment.Moment
	// buckets 按阈值升序、同阈值 positive 在前排列
	buckets []*bucket

	currentIndex int64
	// standardized 最近一次 Tick 的标准化信号
	standardized float64
}

// New 创建校准器
func New(cfg Config) (*Calibrator, error) {
	thresholds, err := normalizeThresholds(cfg.Thresholds)
	if err != nil {
		return nil, err
	}
	ff := cfg.FadingFactor
	if ff == 0 {
		ff = DefaultFadingFactor
	}
	if !(ff > 0 && ff < 1) {
		return nil, fmt.Errorf("fading_factor 必须在 (0,1) 内，当前值: %v", cfg.FadingFactor)
	}

	c := &Calibrator{
		thresholds:   thresholds,
		fadingFactor: ff,
		signal:       moment.NewVariance(ff),
	}
	for _, t := range thresholds {
		c.buckets = append(c.buckets,
			&bucket{threshold: t, side: model.SidePositive, payoff: moment.NewMean(ff)},
			&bucket{threshold: t, side: model.SideNegative, payoff: moment.NewMean(ff)},
		)
	}
	return c, nil
}

// normalizeThresholds 校验、去重并升序排列
func normalizeThresholds(in []float64) ([]float64, error) {
	if len(in) == 0 {
		return DefaultThresholds(), nil
	}
	out := make([]float64, 0, len(in))
	seen := make(map[float64]bool, len(in))
	for _, t := range in {
		if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("阈值必须为非负有限值，当前值: %v", t)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Float64s(out)
	return out, nil
}

// Tick 推进一步
// 参数 value: 当前观测值
// 参数 horizon: 穿越事件的结算步长（>=0）
// 参数 rawSignal: 原始信号
func (c *Calibrator) Tick(value float64, horizon int, rawSignal float64) error {
	if horizon < 0 {
		return fmt.Errorf("%w: horizon=%d 不能为负数", model.ErrInvalidDecision, horizon)
	}
	if math.IsNaN(rawSignal) || math.IsInf(rawSignal, 0) {
		return fmt.Errorf("%w: 原始信号 %v 不是有限值", model.ErrInvalidDecision, rawSignal)
	}

	// 标准化使用不含当前点的统计量
	z := c.Standardize(rawSignal)

	idx := c.currentIndex
	for _, b := range c.buckets {
		if b.crossed(z) {
			b.pending = append(b.pending, model.PendingSignal{StartIndex: idx, AnchorValue: value, Horizon: horizon})
		}
	}

	for _, b := range c.buckets {
		b.resolve(idx, value)
	}

	c.signal.Update(rawSignal)
	c.standardized = z
	c.currentIndex++
	return nil
}

// Standardize 用当前统计量标准化信号；方差为 0 时分母取 1
// 尚无样本时均值未定义，返回 0。
func (c *Calibrator) Standardize(rawSignal float64) float64 {
	if !c.signal.Seeded() {
		return 0
	}
	std := 1.0
	if v := c.signal.Variance(); v > 0 {
		std = math.Sqrt(v)
	}
	return (rawSignal - c.signal.Mean()) / std
}

func (b *bucket) crossed(z float64) bool {
	if b.side == model.SidePositive {
		return z > b.threshold
	}
	return z < -b.threshold
}

// resolve 结算已满 horizon 的穿越事件，收益计入均值估计
func (b *bucket) resolve(idx int64, value float64) {
	kept := b.pending[:0]
	for _, p := range b.pending {
		if idx-p.StartIndex >= int64(p.Horizon) {
			b.payoff.Update(p.Payoff(b.side, value))
			continue
		}
		kept = append(kept, p)
	}
	b.pending = kept
}

// Predict 合成校准后的决策
// 在当前被越过的 (threshold, side) 中取学习收益最大者（严格更大才替换，
// 故并列时阈值小者、同阈值 positive 优先）；若其收益大于 costThreshold，
// positive 返回 1，negative 返回 -1，否则返回 0。
func (c *Calibrator) Predict(costThreshold float64) int {
	var best *bucket
	bestPayoff := 0.0
	for _, b := range c.buckets {
		if !b.crossed(c.standardized) {
			continue
		}
		p := b.payoff.Mean()
		if best == nil || p > bestPayoff {
			best = b
			bestPayoff = p
		}
	}
	if best == nil || !(bestPayoff > costThreshold) {
		return 0
	}
	return int(best.side.Direction())
}

// StandardizedSignal 最近一次 Tick 的标准化信号
func (c *Calibrator) StandardizedSignal() float64 {
	return c.standardized
}

// CurrentIndex 下一次 Tick 的步序号
func (c *Calibrator) CurrentIndex() int64 {
	return c.currentIndex
}

// Thresholds 阈值（升序拷贝）
func (c *Calibrator) Thresholds() []float64 {
	out := make([]float64, len(c.thresholds))
	copy(out, c.thresholds)
	return out
}

// FadingFactor 衰减因子
func (c *Calibrator) FadingFactor() float64 {
	return c.fadingFactor
}

// SignalMean 原始信号均值估计
func (c *Calibrator) SignalMean() float64 {
	return c.signal.Mean()
}

// SignalVariance 原始信号方差估计
func (c *Calibrator) SignalVariance() float64 {
	return c.signal.Variance()
}
