// Package store 维护每条数据流独立的评估外壳。
// 使用单写者模式避免锁和竞态条件。
package store

import (
	"fmt"
	"sort"

	"attacker-evaluator/internal/attacker"
	"attacker-evaluator/internal/core/model"
	"attacker-evaluator/internal/stats/summary"
)

// Factory 为新出现的流创建评估外壳
type Factory func(stream string) (attacker.Harness, error)

// Entry 单条流的状态
type Entry struct {
	// Stream 流标识
	Stream string
	// Harness 评估外壳
	Harness attacker.Harness
	// Last 最近一次处理的数据点
	Last model.Point
}

// Store 按流缓存评估外壳（单写者）
// 注意：本结构体默认由主循环单 goroutine 写入；若要跨 goroutine 读，请通过消息或拷贝传递快照。
type Store struct {
	factory Factory
	// entries 按流标识缓存
	entries map[string]*Entry
}

// New 创建新的评估外壳缓存
func New(factory Factory) *Store {
	return &Store{
		factory: factory,
		entries: make(map[string]*Entry),
	}
}

// Get 获取指定流的状态，可能为 nil
func (s *Store) Get(stream string) *Entry {
	return s.entries[stream]
}

// GetOrCreate 获取指定流的状态，不存在时用 Factory 创建
func (s *Store) GetOrCreate(stream string) (*Entry, error) {
	if e, ok := s.entries[stream]; ok {
		return e, nil
	}
	h, err := s.factory(stream)
	if err != nil {
		return nil, fmt.Errorf("创建流 %s 的评估外壳失败: %w", stream, err)
	}
	e := &Entry{Stream: stream, Harness: h}
	s.entries[stream] = e
	return e, nil
}

// Put 放入已有的评估外壳（如从检查点恢复）
func (s *Store) Put(stream string, h attacker.Harness) {
	s.entries[stream] = &Entry{Stream: stream, Harness: h}
}

// Update 将数据点交给对应流的评估外壳
// 参数 p: 数据点
// 参数 horizon: 决策结算步长
func (s *Store) Update(p *model.Point, horizon int) (attacker.Outcome, error) {
	if p == nil || p.Stream == "" {
		return attacker.Outcome{}, fmt.Errorf("数据点缺少流标识")
	}
	e, err := s.GetOrCreate(p.Stream)
	if err != nil {
		return attacker.Outcome{}, err
	}
	out, err := e.Harness.Step(p.Value, horizon)
	if err != nil {
		return out, fmt.Errorf("流 %s 第 %d 步: %w", p.Stream, out.Index, err)
	}
	e.Last = *p
	return out, nil
}

// Streams 已知的流标识（升序）
func (s *Store) Streams() []string {
	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len 流数量
func (s *Store) Len() int {
	return len(s.entries)
}

// Summaries 每条流的汇总
func (s *Store) Summaries() map[string]model.Summary {
	out := make(map[string]model.Summary, len(s.entries))
	for k, e := range s.entries {
		out[k] = e.Harness.Summary()
	}
	return out
}

// Total 全部流的合计
func (s *Store) Total() model.Summary {
	items := make([]*model.Summary, 0, len(s.entries))
	for _, k := range s.Streams() {
		sm := s.entries[k].Harness.Summary()
		items = append(items, &sm)
	}
	return summary.Total(items...)
}
