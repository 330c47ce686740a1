package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"attacker-evaluator/internal/attacker"
	"attacker-evaluator/internal/config"
	"attacker-evaluator/internal/core/model"
	"attacker-evaluator/internal/core/store"
	"attacker-evaluator/internal/metrics"
	"attacker-evaluator/internal/output/jsonl"
	"attacker-evaluator/internal/source"
	"attacker-evaluator/internal/stats/latency"
)

// totalStream 汇总记录中全部流合计的流标识
const totalStream = "*"

// latencyInterval 时延指标刷新间隔
const latencyInterval = 5 * time.Second

type runOptions struct {
	// resume 从检查点恢复
	resume bool
	// skipSeen 跳过检查点中已处理的步（仅回放；实时流的序号每次从 0 开始）
	skipSeen bool
}

// runner 单次评估运行
// 主循环单 goroutine 处理全部数据点。
type runner struct {
	cfg    *config.Config
	logger *zap.Logger
	opts   runOptions
	runID  string

	src     source.Source
	store   *store.Store
	metrics *metrics.Metrics
	reg     *prometheus.Registry
	latency *latency.Tracker

	trades    *jsonl.Writer
	summaries *jsonl.Writer

	// restored 从检查点恢复的流
	restored map[string]bool
	// skipped 因已处理而跳过的点数
	skipped int64
}

func newRunner(cfg *config.Config, logger *zap.Logger, opts runOptions) (*runner, error) {
	src, err := source.New(&cfg.Stream, logger)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	r := &runner{
		cfg:      cfg,
		logger:   logger,
		opts:     opts,
		runID:    uuid.NewString(),
		src:      src,
		metrics:  metrics.New(reg),
		reg:      reg,
		latency:  latency.NewTracker(10000),
		restored: make(map[string]bool),
	}
	r.store = store.New(r.newHarness)
	return r, nil
}

// newHarness 为新出现的流创建评估外壳，--resume 时尝试从检查点恢复
func (r *runner) newHarness(stream string) (attacker.Harness, error) {
	h, err := attacker.NewHarness(r.cfg)
	if err != nil {
		return nil, err
	}
	if !r.opts.resume {
		return h, nil
	}
	path := jsonl.CheckpointPath(r.cfg.Output.Dir, stream)
	var cp attacker.Checkpoint
	if err := jsonl.ReadJSONFile(path, &cp); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Info("无检查点，从头开始", zap.String("stream", stream))
			return h, nil
		}
		return nil, err
	}
	if err := h.Restore(&cp); err != nil {
		return nil, fmt.Errorf("恢复检查点 %s 失败: %w", path, err)
	}
	r.restored[stream] = true
	r.logger.Info("已从检查点恢复",
		zap.String("stream", stream),
		zap.Int64("current_index", h.Ledger().CurrentIndex()),
	)
	return h, nil
}

func (r *runner) openWriters() error {
	out := r.cfg.Output
	var err error
	if out.TradesEnabled {
		r.trades, err = jsonl.NewWriter(filepath.Join(out.Dir, "trades.jsonl"), out.BufferSize, r.logger)
		if err != nil {
			return fmt.Errorf("创建 trades writer 失败: %w", err)
		}
	}
	if out.SummaryEnabled {
		r.summaries, err = jsonl.NewWriter(filepath.Join(out.Dir, "summaries.jsonl"), out.BufferSize, r.logger)
		if err != nil {
			return fmt.Errorf("创建 summaries writer 失败: %w", err)
		}
	}
	return nil
}

func (r *runner) closeWriters() {
	for _, w := range []*jsonl.Writer{r.trades, r.summaries} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			r.logger.Warn("关闭输出文件失败", zap.String("path", w.Path()), zap.Error(err))
		}
	}
}

// run 运行直到数据源耗尽或 ctx 取消
func (r *runner) run(ctx context.Context) error {
	r.logger.Info("评估开始",
		zap.String("run_id", r.runID),
		zap.String("source", r.src.Name()),
		zap.Int("horizon", r.cfg.Stream.Horizon),
		zap.Bool("calibrated", r.cfg.Calibrator.Enabled),
	)
	if err := r.openWriters(); err != nil {
		return err
	}
	defer r.closeWriters()

	if r.cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, r.cfg.Metrics.Addr, r.reg, r.logger); err != nil {
				r.logger.Error("指标服务退出", zap.Error(err))
			}
		}()
	}

	srcCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	points := make(chan model.Point, r.cfg.Output.BufferSize)
	srcErr := make(chan error, 1)
	go func() {
		defer close(points)
		srcErr <- r.src.Run(srcCtx, points)
	}()

	loopErr := r.loop(ctx, points)
	if loopErr != nil {
		cancel()
		for range points {
		}
	}
	err := <-srcErr
	if err != nil && !errors.Is(err, context.Canceled) {
		loopErr = errors.Join(loopErr, fmt.Errorf("数据源 %s 退出: %w", r.src.Name(), err))
	}

	r.finish()
	return loopErr
}

// loop 消费数据点直到通道关闭
func (r *runner) loop(ctx context.Context, points <-chan model.Point) error {
	ticker := time.NewTicker(latencyInterval)
	defer ticker.Stop()
	for {
		select {
		case p, ok := <-points:
			if !ok {
				return nil
			}
			if err := r.handle(&p); err != nil {
				return err
			}
		case <-ticker.C:
			r.publishLatency()
		case <-ctx.Done():
			// 排空已投递的点后退出
			for p := range points {
				if err := r.handle(&p); err != nil {
					return err
				}
			}
			return nil
		}
	}
}

// handle 处理单个数据点
func (r *runner) handle(p *model.Point) error {
	if !p.IsValid() {
		r.logger.Warn("丢弃无效数据点", zap.String("stream", p.Stream), zap.Int64("index", p.Index))
		return nil
	}
	e, err := r.store.GetOrCreate(p.Stream)
	if err != nil {
		return err
	}
	if r.opts.skipSeen && r.restored[p.Stream] && p.Index < e.Harness.Ledger().CurrentIndex() {
		r.skipped++
		return nil
	}
	r.latency.Add(p)

	out, err := r.store.Update(p, r.cfg.Stream.Horizon)
	if err != nil {
		return err
	}
	sum := e.Harness.Summary()
	r.metrics.Observe(p.Stream, out, sum)

	if out.Suppressed {
		r.logger.Debug("决策被 backoff 抑制", zap.String("stream", p.Stream), zap.Int64("index", out.Index))
	}
	if r.trades != nil {
		for i := range out.Resolved {
			if err := r.trades.Write(out.Resolved[i].ToRecord(r.runID, p.Stream, e.Harness.Kind())); err != nil {
				return err
			}
		}
	}
	if every := r.cfg.Output.SummaryEvery; every > 0 && (out.Index+1)%int64(every) == 0 {
		r.writeSummary(p.Stream, e.Harness, sum)
	}
	return nil
}

func (r *runner) publishLatency() {
	for _, s := range r.store.Streams() {
		r.metrics.ObserveLatency(r.latency.Stats(s))
	}
	overall := r.latency.Overall()
	overall.Stream = totalStream
	r.metrics.ObserveLatency(overall)
}

func (r *runner) writeSummary(stream string, h attacker.Harness, sum model.Summary) {
	if r.summaries == nil {
		return
	}
	rec := model.SummaryRecord{
		RunID:      r.runID,
		Stream:     stream,
		Source:     h.Kind(),
		Suppressed: h.Ledger().Suppressed(),
		Summary:    sum,
	}
	if err := r.summaries.Write(rec); err != nil {
		r.logger.Warn("写入汇总失败", zap.Error(err))
	}
}

// finish 写出最终汇总与检查点
func (r *runner) finish() {
	r.publishLatency()

	var suppressed int64
	kind := attacker.KindAttacker
	for _, s := range r.store.Streams() {
		e := r.store.Get(s)
		kind = e.Harness.Kind()
		suppressed += e.Harness.Ledger().Suppressed()
		r.writeSummary(s, e.Harness, e.Harness.Summary())
		if r.cfg.Output.SnapshotEnabled {
			r.saveCheckpoint(s, e.Harness)
		}
	}

	total := r.store.Total()
	if r.summaries != nil && r.store.Len() > 0 {
		if err := r.summaries.Write(model.SummaryRecord{
			RunID:      r.runID,
			Stream:     totalStream,
			Source:     kind,
			Suppressed: suppressed,
			Summary:    total,
		}); err != nil {
			r.logger.Warn("写入汇总失败", zap.Error(err))
		}
	}

	r.logger.Info("评估结束",
		zap.String("run_id", r.runID),
		zap.Int("streams", r.store.Len()),
		zap.Int64("steps", total.CurrentIndex),
		zap.Int64("resolved", total.NumResolvedDecisions),
		zap.Float64("total_profit", total.TotalProfit),
		zap.Int64("suppressed", suppressed),
		zap.Int64("skipped", r.skipped),
	)
}

func (r *runner) saveCheckpoint(stream string, h attacker.Harness) {
	cp, err := h.Checkpoint()
	if err != nil {
		r.logger.Error("导出检查点失败", zap.String("stream", stream), zap.Error(err))
		return
	}
	path := jsonl.CheckpointPath(r.cfg.Output.Dir, stream)
	if err := jsonl.WriteJSONFile(path, cp); err != nil {
		r.logger.Error("写入检查点失败", zap.String("path", path), zap.Error(err))
		return
	}
	r.logger.Debug("检查点已写入", zap.String("path", path))
}
