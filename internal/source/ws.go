package source

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"attacker-evaluator/internal/config"
	"attacker-evaluator/internal/core/model"
	"attacker-evaluator/internal/util/backoff"
	"attacker-evaluator/internal/util/timeutil"
)

// WSSource WebSocket 推送数据源
// 心跳机制: 文本 ping/pong；断线后按指数退避重连，流内序号跨连接连续。
type WSSource struct {
	cfg    *config.WSConfig
	logger *zap.Logger
	// backoff 重连退避
	backoff *backoff.Backoff
	codec  Codec
	// filter 只保留的 substream，为空表示全部
	filter map[string]struct{}
	seq    sequencer

	// lastPingSentNs 上次发送 ping 的时间（纳秒）
	lastPingSentNs atomic.Int64
	// lastPongRecvNs 上次收到 pong 的时间（纳秒）
	lastPongRecvNs atomic.Int64
	// reconnects 重连次数
	reconnects atomic.Int64
	// parseErrors 解析失败的消息数
	parseErrors atomic.Int64
}

// subscribeRequest 订阅请求
type subscribeRequest struct {
	Action       string   `json:"action"`
	SubstreamIDs []string `json:"substream_ids"`
}

// wsBatch 批量推送消息
type wsBatch struct {
	Points []wsPoint `json:"points"`
}

type wsPoint struct {
	SubstreamID string   `json:"substream_id"`
	Value       *float64 `json:"value"`
	// Ts 事件时间，秒/毫秒/微秒/纳秒均可
	Ts float64 `json:"ts"`
}

// NewWSSource 创建 WebSocket 数据源
func NewWSSource(cfg *config.WSConfig, logger *zap.Logger) (*WSSource, error) {
	codec, err := NewCodec(cfg.Format)
	if err != nil {
		return nil, err
	}
	s := &WSSource{
		cfg:     cfg,
		logger:  logger.Named("ws"),
		backoff: backoff.NewDefault(),
		codec:   codec,
		seq:     make(sequencer),
	}
	if len(cfg.SubstreamIDs) > 0 {
		s.filter = make(map[string]struct{}, len(cfg.SubstreamIDs))
		for _, id := range cfg.SubstreamIDs {
			s.filter[id] = struct{}{}
		}
	}
	return s, nil
}

// Name 数据源名称
func (s *WSSource) Name() string { return "ws" }

// Reconnects 重连次数
func (s *WSSource) Reconnects() int64 { return s.reconnects.Load() }

// ParseErrors 解析失败的消息数
func (s *WSSource) ParseErrors() int64 { return s.parseErrors.Load() }

// Run 连接并持续读取，直到 ctx 取消
func (s *WSSource) Run(ctx context.Context, out chan<- model.Point) error {
	for {
		conn, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("连接失败", zap.Error(err))
			if err := s.backoff.Wait(ctx); err != nil {
				return err
			}
			continue
		}

		err = s.session(ctx, conn, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.reconnects.Add(1)
		s.logger.Warn("连接中断，准备重连", zap.Error(err), zap.Int("attempt", s.backoff.Attempt()))
		if err := s.backoff.Wait(ctx); err != nil {
			return err
		}
	}
}

// connect 建立 WebSocket 连接
func (s *WSSource) connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("User-Agent", "attacker-evaluator/1.0")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("连接 WebSocket 失败: %w", err)
	}
	s.backoff.Reset()
	s.logger.Info("WebSocket 连接成功", zap.String("url", s.cfg.URL))
	return conn, nil
}

// session 处理一次连接的生命周期，连接断开时返回
func (s *WSSource) session(ctx context.Context, conn *websocket.Conn, out chan<- model.Point) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// gorilla/websocket 不允许并发多写者
	var writeMu sync.Mutex
	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { conn.Close() }) }
	defer closeConn()

	req, err := s.codec.Subscribe(s.cfg.SubstreamIDs)
	if err != nil {
		return fmt.Errorf("序列化订阅请求失败: %w", err)
	}
	if req != nil {
		if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
			return fmt.Errorf("发送订阅请求失败: %w", err)
		}
	}

	s.lastPingSentNs.Store(0)
	s.lastPongRecvNs.Store(0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.heartbeatLoop(sessCtx, conn, &writeMu, closeConn)
	}()
	// ctx 取消时关闭连接以打断阻塞的读
	go func() {
		<-sessCtx.Done()
		closeConn()
	}()
	defer wg.Wait()
	defer cancel()

	readTimeout := time.Duration(s.cfg.ReadTimeoutMs) * time.Millisecond
	for {
		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("读取消息失败: %w", err)
		}
		nowNs := timeutil.NowNano()

		if IsPong(data) {
			s.lastPongRecvNs.Store(nowNs)
			continue
		}

		points, err := s.codec.Decode(data)
		if err != nil {
			s.parseErrors.Add(1)
			s.logger.Debug("解析消息失败", zap.Error(err), zap.ByteString("data", truncate(data, 200)))
			continue
		}
		for _, p := range points {
			if s.filter != nil {
				if _, ok := s.filter[p.Stream]; !ok {
					continue
				}
			}
			p.Index = s.seq.next(p.Stream)
			p.ArrivedAtNs = nowNs
			if err := emit(ctx, out, p); err != nil {
				return err
			}
		}
	}
}

// heartbeatLoop 定期发送 ping，超时未收到 pong 时关闭连接
func (s *WSSource) heartbeatLoop(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex, closeConn func()) {
	if s.cfg.PingIntervalMs <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(s.cfg.PingIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// 上一次 ping 是否按期返回
		lastPing := s.lastPingSentNs.Load()
		lastPong := s.lastPongRecvNs.Load()
		if lastPing > 0 && lastPong < lastPing &&
			timeutil.NowNano()-lastPing > timeutil.MsToNano(int64(s.cfg.PongTimeoutMs)) {
			s.logger.Warn("心跳超时，触发重连")
			closeConn()
			return
		}

		writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
		writeMu.Unlock()
		if err != nil {
			s.logger.Warn("发送 ping 失败", zap.Error(err))
			continue
		}
		if lastPing == 0 || lastPong >= lastPing {
			s.lastPingSentNs.Store(timeutil.NowNano())
		}
	}
}

// IsPong 判断是否为 pong 消息
func IsPong(data []byte) bool {
	return string(data) == "pong"
}

// ParseBatch 解析批量推送消息
// 缺少 substream_id 或 value 非有限值时返回错误，整批丢弃。
func ParseBatch(data []byte) ([]model.Point, error) {
	var b wsBatch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("解析 JSON 失败: %w", err)
	}
	out := make([]model.Point, 0, len(b.Points))
	for i, p := range b.Points {
		if p.SubstreamID == "" {
			return nil, fmt.Errorf("points[%d]: 缺少 substream_id", i)
		}
		if p.Value == nil || math.IsNaN(*p.Value) || math.IsInf(*p.Value, 0) {
			return nil, fmt.Errorf("points[%d]: value 无效", i)
		}
		out = append(out, model.Point{
			Stream:      p.SubstreamID,
			Value:       *p.Value,
			EventTimeNs: timeutil.ToUnixNano(p.Ts),
		})
	}
	return out, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
