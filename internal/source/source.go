// Package source 实现上游数据源：本地 CSV 文件、远程编号 CSV 文件、WebSocket 推送与合成数据。
// 每个数据源按流内顺序推送 model.Point，耗尽后返回。
package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"attacker-evaluator/internal/config"
	"attacker-evaluator/internal/core/model"
)

// Source 上游数据源
type Source interface {
	// Name 数据源名称，用于日志
	Name() string
	// Run 持续向 out 推送数据点，数据耗尽或 ctx 取消时返回
	// out 由调用方负责关闭。
	Run(ctx context.Context, out chan<- model.Point) error
}

// New 按配置创建数据源
// 参数 cfg: 流配置（已通过验证）
// 参数 logger: 日志记录器
func New(cfg *config.StreamConfig, logger *zap.Logger) (Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Source {
	case config.SourceFile:
		return NewFileSource(cfg.Paths, logger), nil
	case config.SourceRemote:
		return NewRemoteSource(cfg.URLTemplate, cfg.StreamIDs, cfg.MaxFiles, cfg.TimeoutMs, logger), nil
	case config.SourceWS:
		return NewWSSource(&cfg.WS, logger)
	case config.SourceSynthetic:
		return NewSyntheticSource(cfg.Synthetic), nil
	default:
		return nil, fmt.Errorf("未知数据源: %s", cfg.Source)
	}
}

// emit 投递数据点，ctx 取消时返回错误
func emit(ctx context.Context, out chan<- model.Point, p model.Point) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- p:
		return nil
	}
}

// sequencer 为每条流分配连续的 Index
type sequencer map[string]int64

func (s sequencer) next(stream string) int64 {
	i := s[stream]
	s[stream] = i + 1
	return i
}
