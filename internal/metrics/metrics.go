// Package metrics 导出评估过程的 Prometheus 指标。
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"attacker-evaluator/internal/attacker"
	"attacker-evaluator/internal/core/model"
	"attacker-evaluator/internal/stats/latency"
)

const namespace = "evaluator"

// Metrics 评估器指标集合
type Metrics struct {
	// Ticks 每条流处理的步数
	Ticks *prometheus.CounterVec
	// Decisions 登记的非零决策，side=long|short
	Decisions *prometheus.CounterVec
	// Suppressed 因 backoff 被抑制的决策
	Suppressed *prometheus.CounterVec
	// Gated 被 EV 过滤的决策
	Gated *prometheus.CounterVec
	// Resolved 结算的交易，outcome=win|loss|flat
	Resolved *prometheus.CounterVec
	// RealizedPnL 累计已实现收益
	RealizedPnL *prometheus.GaugeVec
	// FeedLatency 数据延迟分位数（毫秒）
	FeedLatency *prometheus.GaugeVec
}

// New 创建并注册指标
// 参数 reg: 注册器，测试中传入独立的 prometheus.NewRegistry()
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Number of stream steps processed.",
		}, []string{"stream"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Number of registered non-zero decisions.",
		}, []string{"stream", "side"}),
		Suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_total",
			Help:      "Number of decisions suppressed by backoff.",
		}, []string{"stream"}),
		Gated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gated_total",
			Help:      "Number of decisions dropped by the EV gate.",
		}, []string{"stream", "reason"}),
		Resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolved_total",
			Help:      "Number of resolved trades by outcome.",
		}, []string{"stream", "outcome"}),
		RealizedPnL: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realized_pnl",
			Help:      "Cumulative realized profit per stream.",
		}, []string{"stream"}),
		FeedLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_latency_ms",
			Help:      "Feed latency from event time to arrival, in milliseconds.",
		}, []string{"stream", "quantile"}),
	}
	if reg != nil {
		reg.MustRegister(m.Ticks, m.Decisions, m.Suppressed, m.Gated, m.Resolved, m.RealizedPnL, m.FeedLatency)
	}
	return m
}

// Observe 记录一步的结果
// 参数 sum: 本步之后该流的账本汇总
func (m *Metrics) Observe(stream string, out attacker.Outcome, sum model.Summary) {
	m.Ticks.WithLabelValues(stream).Inc()
	if out.Registered {
		side := "long"
		if out.Decision < 0 {
			side = "short"
		}
		m.Decisions.WithLabelValues(stream, side).Inc()
	}
	if out.Suppressed {
		m.Suppressed.WithLabelValues(stream).Inc()
	}
	if out.GateReason != "" {
		m.Gated.WithLabelValues(stream, out.GateReason).Inc()
	}
	for i := range out.Resolved {
		m.Resolved.WithLabelValues(stream, out.Resolved[i].Outcome()).Inc()
	}
	m.RealizedPnL.WithLabelValues(stream).Set(sum.TotalProfit)
}

// ObserveLatency 记录数据延迟分位数
func (m *Metrics) ObserveLatency(s latency.LatencyStats) {
	if s.Count == 0 {
		return
	}
	m.FeedLatency.WithLabelValues(s.Stream, "p50").Set(s.P50Ms)
	m.FeedLatency.WithLabelValues(s.Stream, "p90").Set(s.P90Ms)
	m.FeedLatency.WithLabelValues(s.Stream, "p99").Set(s.P99Ms)
}

// Serve 在 addr 上提供 /metrics，ctx 取消时优雅关闭
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("指标服务已启动", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("指标服务异常退出: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("关闭指标服务失败: %w", err)
	}
	return nil
}
