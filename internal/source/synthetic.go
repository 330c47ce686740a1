package source

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"attacker-evaluator/internal/config"
	"attacker-evaluator/internal/core/model"
)

// Regime 合成数据的行情状态
type Regime int

const (
	// RegimeMomentum 增量与上一步同向延续
	RegimeMomentum Regime = iota
	// RegimeBounce 增量与上一步反向回弹
	RegimeBounce
)

// String 状态名
func (r Regime) String() string {
	if r == RegimeBounce {
		return "bounce"
	}
	return "momentum"
}

// startValue 合成序列初始值
const startValue = 100.0

// Generator 单条合成序列
// 增量: d[t] = k × d[t-1] + N(0, noise)，动量状态 k=+momentum，回弹状态 k=-bounce；
// 每步以 regime_change_prob 的概率切换状态。相同种子产生相同序列。
type Generator struct {
	cfg    config.SyntheticConfig
	noise  distuv.Normal
	flip   distuv.Bernoulli
	regime Regime
	last   float64
	value  float64
}

// NewGenerator 创建合成序列生成器
// 参数 cfg: 合成参数
// 参数 stream: 流序号，与 seed 一起决定随机源
func NewGenerator(cfg config.SyntheticConfig, stream int) *Generator {
	src := rand.NewPCG(cfg.Seed, uint64(stream)+1)
	return &Generator{
		cfg:   cfg,
		noise: distuv.Normal{Mu: 0, Sigma: cfg.NoiseLevel, Src: src},
		flip:  distuv.Bernoulli{P: cfg.RegimeChangeProb, Src: src},
		value: startValue,
	}
}

// Regime 当前状态
func (g *Generator) Regime() Regime {
	return g.regime
}

// Next 生成下一个值
func (g *Generator) Next() float64 {
	if g.flip.Rand() == 1 {
		if g.regime == RegimeMomentum {
			g.regime = RegimeBounce
		} else {
			g.regime = RegimeMomentum
		}
	}
	k := g.cfg.MomentumStrength
	if g.regime == RegimeBounce {
		k = -g.cfg.BounceStrength
	}
	d := k*g.last + g.noise.Rand()
	g.last = d
	g.value += d
	return g.value
}

// SyntheticSource 合成数据源
// 多条流轮流推送，每条流 n 个点。
type SyntheticSource struct {
	cfg config.SyntheticConfig
}

// NewSyntheticSource 创建合成数据源
func NewSyntheticSource(cfg config.SyntheticConfig) *SyntheticSource {
	return &SyntheticSource{cfg: cfg}
}

// Name 数据源名称
func (s *SyntheticSource) Name() string { return "synthetic" }

// SyntheticStreamName 第 i 条合成流的标识
func SyntheticStreamName(i int) string {
	return fmt.Sprintf("synthetic-%d", i)
}

// Run 生成全部数据点
func (s *SyntheticSource) Run(ctx context.Context, out chan<- model.Point) error {
	gens := make([]*Generator, s.cfg.Streams)
	for i := range gens {
		gens[i] = NewGenerator(s.cfg, i)
	}
	for n := 0; n < s.cfg.N; n++ {
		for i, g := range gens {
			p := model.Point{Stream: SyntheticStreamName(i), Index: int64(n), Value: g.Next()}
			if err := emit(ctx, out, p); err != nil {
				return err
			}
		}
	}
	return nil
}
