package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"attacker-evaluator/internal/attacker"
	"attacker-evaluator/internal/core/model"
	"attacker-evaluator/internal/stats/latency"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe("a", attacker.Outcome{Decision: 1, Registered: true}, model.Summary{})
	m.Observe("a", attacker.Outcome{Decision: -1, Suppressed: true}, model.Summary{})
	m.Observe("a", attacker.Outcome{GateReason: "ev_negative"}, model.Summary{})
	m.Observe("a", attacker.Outcome{
		Decision:   -1,
		Registered: true,
		Resolved:   []model.ResolvedTrade{{PnL: 2}, {PnL: -1}, {PnL: 0}},
	}, model.Summary{TotalProfit: 1})

	assert.Equal(t, 4.0, testutil.ToFloat64(m.Ticks.WithLabelValues("a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("a", "long")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("a", "short")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Suppressed.WithLabelValues("a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Gated.WithLabelValues("a", "ev_negative")))
	for _, outcome := range []string{"win", "loss", "flat"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolved.WithLabelValues("a", outcome)), outcome)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RealizedPnL.WithLabelValues("a")))

	n, err := testutil.GatherAndCount(reg, "evaluator_ticks_total", "evaluator_resolved_total")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestObserveLatency(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveLatency(latency.LatencyStats{Stream: "a"})
	assert.Equal(t, 0, testutil.CollectAndCount(m.FeedLatency))

	m.ObserveLatency(latency.LatencyStats{Stream: "a", Count: 3, P50Ms: 1, P90Ms: 2, P99Ms: 3})
	assert.Equal(t, 3, testutil.CollectAndCount(m.FeedLatency))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FeedLatency.WithLabelValues("a", "p90")))
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Ticks.WithLabelValues("s").Inc()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, addr, reg, zap.NewNop()) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, strings.Contains(body, `evaluator_ticks_total{stream="s"} 1`))

	cancel()
	assert.NoError(t, <-errCh)
}
