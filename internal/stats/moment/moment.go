// Package moment 实现带衰减因子的流式均值/方差估计。
// 权重随样本数自增长（weight_sum → 1/fading_factor），首个样本不会主导早期估计。
package moment

import (
	"fmt"
	"math"

	"attacker-evaluator/internal/core/model"
)

// Moment 衰减加权的流式统计量
// 单写者，不加锁；调用方负责串行化。
type Moment struct {
	// fadingFactor 衰减因子（0-1），越大越偏重近期样本
	fadingFactor float64
	// withVariance 是否同时维护方差
	withVariance bool

	// seeded 是否已收到首个样本
	seeded   bool
	mean     float64
	variance float64
	// weightSum 有效权重和，首样本后为 1，极限为 1/fadingFactor
	weightSum float64
	// count 样本总数
	count int64
}

// State 可序列化的统计状态
// Mean/Variance 在首个样本前为 nil。
type State struct {
	FadingFactor *float64 `json:"fading_factor" yaml:"fading_factor"`
	WithVariance bool     `json:"with_variance" yaml:"with_variance"`
	Mean         *float64 `json:"mean" yaml:"mean"`
	Variance     *float64 `json:"variance" yaml:"variance"`
	WeightSum    float64  `json:"weight_sum" yaml:"weight_sum"`
	Count        int64    `json:"count" yaml:"count"`
}

// NewMean 创建仅维护均值的估计器
// 参数 fadingFactor: 衰减因子，应在 (0,1) 内（由配置层校验）
func NewMean(fadingFactor float64) *Moment {
	return &Moment{fadingFactor: fadingFactor}
}

// NewVariance 创建同时维护均值与方差的估计器
func NewVariance(fadingFactor float64) *Moment {
	return &Moment{fadingFactor: fadingFactor, withVariance: true}
}

// Update 加入一个样本
// 首个样本: mean=x, variance=0, weight_sum=1
// 其后: weight=(1-f)·weight_sum; mean'=(weight·mean+x)/(weight+1)
//
//	variance'=(weight·variance+(x-mean)·(x-mean'))/(weight+1)
func (m *Moment) Update(x float64) {
	m.count++
	if !m.seeded {
		m.seeded = true
		m.mean = x
		m.variance = 0
		m.weightSum = 1
		return
	}

	weight := (1 - m.fadingFactor) * m.weightSum
	prev := m.mean
	m.mean = (weight*m.mean + x) / (weight + 1)
	if m.withVariance {
		deviation := x - prev
		m.variance = (weight*m.variance + deviation*(x-m.mean)) / (weight + 1)
	}
	m.weightSum = weight + 1
}

// Mean 当前均值，首个样本前返回 0
func (m *Moment) Mean() float64 {
	if !m.seeded {
		return 0
	}
	return m.mean
}

// Variance 当前方差，首个样本前或未维护方差时返回 0
func (m *Moment) Variance() float64 {
	if !m.seeded || !m.withVariance {
		return 0
	}
	return m.variance
}

// Std 当前标准差
func (m *Moment) Std() float64 {
	return math.Sqrt(m.Variance())
}

// WeightSum 当前有效权重和
func (m *Moment) WeightSum() float64 {
	return m.weightSum
}

// Count 已加入的样本数
func (m *Moment) Count() int64 {
	return m.count
}

// Seeded 是否已收到样本
func (m *Moment) Seeded() bool {
	return m.seeded
}

// FadingFactor 衰减因子
func (m *Moment) FadingFactor() float64 {
	return m.fadingFactor
}

// State 导出当前状态
func (m *Moment) State() State {
	ff := m.fadingFactor
	st := State{
		FadingFactor: &ff,
		WithVariance: m.withVariance,
		WeightSum:    m.weightSum,
		Count:        m.count,
	}
	if m.seeded {
		mean := m.mean
		st.Mean = &mean
		if m.withVariance {
			v := m.variance
			st.Variance = &v
		}
	}
	return st
}

// FromState 从状态恢复估计器
// 缺少 fading_factor 或取值越界时返回 model.ErrMalformedSnapshot。
func FromState(st State) (*Moment, error) {
	if st.FadingFactor == nil {
		return nil, fmt.Errorf("%w: moment 缺少 fading_factor", model.ErrMalformedSnapshot)
	}
	ff := *st.FadingFactor
	if !(ff > 0 && ff < 1) {
		return nil, fmt.Errorf("%w: moment fading_factor=%v 不在 (0,1) 内", model.ErrMalformedSnapshot, ff)
	}

	m := &Moment{fadingFactor: ff, withVariance: st.WithVariance, count: st.Count}
	if st.Mean == nil {
		return m, nil
	}
	if st.WeightSum < 1 {
		return nil, fmt.Errorf("%w: moment weight_sum=%v 小于 1", model.ErrMalformedSnapshot, st.WeightSum)
	}
	m.seeded = true
	m.mean = *st.Mean
	m.weightSum = st.WeightSum
	if st.Variance != nil {
		m.variance = *st.Variance
	}
	return m, nil
}
