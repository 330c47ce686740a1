// Package latency 实现数据源的到达时延测量和统计。
// 时延定义为本地到达时间与数据点事件时间之差，每条流维护独立的滚动窗口。
package latency

import (
	"sort"
	"sync"

	"attacker-evaluator/internal/core/model"
)

// LatencyStats 时延统计快照（滚动窗口）
// 单位：毫秒。
type LatencyStats struct {
	// Stream 流标识，合计时为空
	Stream string `json:"stream,omitempty"`
	// Count 样本总数（累计）
	Count int64 `json:"count"`

	// P50Ms P50 时延（毫秒）
	P50Ms float64 `json:"p50_ms"`
	// P90Ms P90 时延（毫秒）
	P90Ms float64 `json:"p90_ms"`
	// P99Ms P99 时延（毫秒）
	P99Ms float64 `json:"p99_ms"`
}

type rollingWindow struct {
	size  int
	buf   []int64
	pos   int
	count int64
	full  bool

	mu sync.Mutex
}

func newRollingWindow(size int) *rollingWindow {
	return &rollingWindow{size: size, buf: make([]int64, 0, size)}
}

func (w *rollingWindow) add(v int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.count++
	if w.size <= 0 {
		return
	}

	if !w.full {
		w.buf = append(w.buf, v)
		if len(w.buf) == w.size {
			w.full = true
			w.pos = 0
		}
		return
	}

	w.buf[w.pos] = v
	w.pos++
	if w.pos >= w.size {
		w.pos = 0
	}
}

func (w *rollingWindow) snapshotQuantiles(qs ...float64) (count int64, values []int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	count = w.count
	if len(w.buf) == 0 {
		return count, make([]int64, len(qs))
	}

	tmp := make([]int64, len(w.buf))
	copy(tmp, w.buf)
	sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })

	values = make([]int64, len(qs))
	n := len(tmp)
	for i, q := range qs {
		if q <= 0 {
			values[i] = tmp[0]
			continue
		}
		if q >= 1 {
			values[i] = tmp[n-1]
			continue
		}
		idx := int(float64(n-1) * q)
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		values[i] = tmp[idx]
	}
	return count, values
}

// Tracker 时延追踪器
// 为每条流与全部流合计维护独立的滚动窗口统计，可并发调用。
type Tracker struct {
	windowSize int

	mu      sync.Mutex
	streams map[string]*rollingWindow
	all     *rollingWindow
}

// NewTracker 创建时延追踪器
// 参数 windowSize: 滚动窗口大小（建议 10000），用于 P50/P90/P99。
func NewTracker(windowSize int) *Tracker {
	return &Tracker{
		windowSize: windowSize,
		streams:    make(map[string]*rollingWindow),
		all:        newRollingWindow(windowSize),
	}
}

// Add 基于数据点更新统计
// 时延定义：lag_ns = ArrivedAtNs - EventTimeNs；缺少事件时间或到达时间的点不记录。
// 返回: 是否记录
func (t *Tracker) Add(p *model.Point) bool {
	if p == nil {
		return false
	}
	if p.EventTimeNs <= 0 || p.ArrivedAtNs <= 0 {
		return false
	}
	lagNs := p.ArrivedAtNs - p.EventTimeNs

	t.all.add(lagNs)
	t.window(p.Stream).add(lagNs)
	return true
}

func (t *Tracker) window(stream string) *rollingWindow {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.streams[stream]
	if !ok {
		w = newRollingWindow(t.windowSize)
		t.streams[stream] = w
	}
	return w
}

// Stats 获取指定流的统计快照
func (t *Tracker) Stats(stream string) LatencyStats {
	t.mu.Lock()
	w, ok := t.streams[stream]
	t.mu.Unlock()
	if !ok {
		return LatencyStats{Stream: stream}
	}
	out := stats(w)
	out.Stream = stream
	return out
}

// Overall 全部流合计的统计快照
func (t *Tracker) Overall() LatencyStats {
	return stats(t.all)
}

func stats(w *rollingWindow) LatencyStats {
	count, qs := w.snapshotQuantiles(0.50, 0.90, 0.99)
	return LatencyStats{
		Count: count,
		P50Ms: float64(qs[0]) / 1_000_000.0,
		P90Ms: float64(qs[1]) / 1_000_000.0,
		P99Ms: float64(qs[2]) / 1_000_000.0,
	}
}
