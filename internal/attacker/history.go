package attacker

import (
	"fmt"

	"attacker-evaluator/internal/core/model"
)

// History 固定长度的最近观测值环形缓冲区
type History struct {
	buf  []float64
	pos  int
	full bool
}

// HistoryState 可序列化的历史状态（按时间顺序）
type HistoryState struct {
	Capacity int       `json:"capacity"`
	Values   []float64 `json:"values"`
}

// NewHistory 创建历史缓冲区
// 参数 capacity: 容量，<=0 时为 1
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{buf: make([]float64, capacity)}
}

// Push 追加观测值，满时覆盖最旧的值
func (h *History) Push(v float64) {
	h.buf[h.pos] = v
	h.pos++
	if h.pos >= len(h.buf) {
		h.pos = 0
		h.full = true
	}
}

// Len 当前值个数
func (h *History) Len() int {
	if h.full {
		return len(h.buf)
	}
	return h.pos
}

// Cap 容量
func (h *History) Cap() int {
	return len(h.buf)
}

// Full 是否已填满
func (h *History) Full() bool {
	return h.full
}

// Values 全部值（从旧到新）
func (h *History) Values() []float64 {
	return h.Recent(h.Len())
}

// Recent 最近 n 个值（从旧到新），n 超过现有数量时返回全部
func (h *History) Recent(n int) []float64 {
	size := h.Len()
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	start := h.pos - n
	if start < 0 {
		start += len(h.buf)
	}
	for i := 0; i < n; i++ {
		out[i] = h.buf[(start+i)%len(h.buf)]
	}
	return out
}

// Last 最新的值
func (h *History) Last() (float64, bool) {
	if h.Len() == 0 {
		return 0, false
	}
	i := h.pos - 1
	if i < 0 {
		i = len(h.buf) - 1
	}
	return h.buf[i], true
}

// State 导出状态
func (h *History) State() HistoryState {
	return HistoryState{Capacity: len(h.buf), Values: h.Values()}
}

// HistoryFromState 从状态恢复
func HistoryFromState(st HistoryState) (*History, error) {
	if st.Capacity <= 0 {
		return nil, fmt.Errorf("%w: history capacity=%d 必须为正", model.ErrMalformedSnapshot, st.Capacity)
	}
	if len(st.Values) > st.Capacity {
		return nil, fmt.Errorf("%w: history 值个数 %d 超过容量 %d", model.ErrMalformedSnapshot, len(st.Values), st.Capacity)
	}
	h := NewHistory(st.Capacity)
	for _, v := range st.Values {
		h.Push(v)
	}
	return h, nil
}
