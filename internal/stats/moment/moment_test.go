// Package moment 流式统计测试
package moment

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"attacker-evaluator/internal/core/model"
)

func TestMoment_Empty(t *testing.T) {
	m := NewVariance(0.1)
	if m.Mean() != 0 || m.Variance() != 0 {
		t.Fatalf("Mean=%v Variance=%v, want 0/0", m.Mean(), m.Variance())
	}
	if m.Seeded() {
		t.Fatalf("Seeded=true, want false")
	}
}

func TestMoment_FirstSample(t *testing.T) {
	m := NewVariance(0.3)
	m.Update(7)
	if m.Mean() != 7 || m.Variance() != 0 || m.WeightSum() != 1 {
		t.Fatalf("Mean=%v Variance=%v WeightSum=%v, want 7/0/1", m.Mean(), m.Variance(), m.WeightSum())
	}
}

func TestMoment_MeanSequence(t *testing.T) {
	m := NewMean(0.5)
	want := []float64{1, 5.0 / 3.0, 17.0 / 7.0, 49.0 / 15.0, 129.0 / 31.0}
	for i, x := range []float64{1, 2, 3, 4, 5} {
		m.Update(x)
		if math.Abs(m.Mean()-want[i]) > 1e-6 {
			t.Fatalf("step %d: Mean=%v, want %v", i, m.Mean(), want[i])
		}
	}
}

func TestMoment_VarianceRecurrence(t *testing.T) {
	ff := 0.2
	m := NewVariance(ff)
	xs := []float64{3, -1, 4, 1, -5, 9, 2, 6}

	var mean, variance, ws float64
	for i, x := range xs {
		m.Update(x)
		if i == 0 {
			mean, variance, ws = x, 0, 1
		} else {
			w := (1 - ff) * ws
			prev := mean
			mean = (w*mean + x) / (w + 1)
			variance = (w*variance + (x-prev)*(x-mean)) / (w + 1)
			ws = w + 1
		}
		if !approx(m.Mean(), mean, 1e-12) || !approx(m.Variance(), variance, 1e-12) {
			t.Fatalf("step %d: Mean=%v Variance=%v, want %v/%v", i, m.Mean(), m.Variance(), mean, variance)
		}
	}
}

func TestMoment_MeanOnlyHasNoVariance(t *testing.T) {
	m := NewMean(0.5)
	m.Update(1)
	m.Update(10)
	if m.Variance() != 0 {
		t.Fatalf("Variance=%v, want 0", m.Variance())
	}
}

func TestMoment_StateRoundTrip(t *testing.T) {
	m := NewVariance(0.05)
	for _, x := range []float64{1, 4, 2, 8} {
		m.Update(x)
	}
	restored, err := FromState(m.State())
	if err != nil {
		t.Fatalf("FromState: %v", err)
	}
	m.Update(3)
	restored.Update(3)
	if m.Mean() != restored.Mean() || m.Variance() != restored.Variance() || m.WeightSum() != restored.WeightSum() {
		t.Fatalf("restored diverged: %+v vs %+v", m.State(), restored.State())
	}
}

func TestMoment_FromStateMalformed(t *testing.T) {
	if _, err := FromState(State{}); !errors.Is(err, model.ErrMalformedSnapshot) {
		t.Fatalf("err=%v, want ErrMalformedSnapshot", err)
	}
	bad := 1.5
	if _, err := FromState(State{FadingFactor: &bad}); !errors.Is(err, model.ErrMalformedSnapshot) {
		t.Fatalf("err=%v, want ErrMalformedSnapshot", err)
	}
}

// 属性: 权重和严格递增且不超过 1/f
func TestMoment_WeightSum_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("weight_sum 严格递增且不超过 1/f", prop.ForAll(
		func(ff float64, xs []float64) bool {
			m := NewVariance(ff)
			prev := 0.0
			for _, x := range xs {
				m.Update(x)
				ws := m.WeightSum()
				if ws <= prev || ws > 1/ff+1e-9 {
					return false
				}
				prev = ws
			}
			return true
		},
		gen.Float64Range(0.01, 0.99),
		gen.SliceOfN(50, gen.Float64Range(-1000, 1000)),
	))

	properties.Property("方差非负，均值位于样本范围内", prop.ForAll(
		func(ff float64, xs []float64) bool {
			m := NewVariance(ff)
			lo, hi := math.Inf(1), math.Inf(-1)
			for _, x := range xs {
				m.Update(x)
				lo = math.Min(lo, x)
				hi = math.Max(hi, x)
				if m.Variance() < -1e-9 {
					return false
				}
				if m.Mean() < lo-1e-9 || m.Mean() > hi+1e-9 {
					return false
				}
			}
			return true
		},
		gen.Float64Range(0.01, 0.99),
		gen.SliceOfN(30, gen.Float64Range(-1000, 1000)),
	))

	properties.TestingRun(t)
}

func approx(a float64, b float64, eps float64) bool {
	return math.Abs(a-b) <= eps
}
