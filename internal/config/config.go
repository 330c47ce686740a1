// Package config 负责加载和验证 YAML 配置文件。
// 提供评估器所需的全部配置项，包括账本参数、校准器参数、数据源与输出设置。
package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// 数据源类型
const (
	SourceFile      = "file"
	SourceRemote    = "remote"
	SourceWS        = "ws"
	SourceSynthetic = "synthetic"
)

// WebSocket 消息格式
const (
	// WSFormatBatch {"points":[{"substream_id","value","ts"}]}
	WSFormatBatch = "batch"
	// WSFormatOKXBooks5 OKX books5 深度推送，取买一卖一中间价
	WSFormatOKXBooks5 = "okx_books5"
)

// 攻击者类型
const (
	AttackerMomentum = "momentum"
	AttackerMedian   = "median"
)

// 环境变量覆盖项
const (
	EnvLogLevel = "EVALUATOR_LOG_LEVEL"
	EnvConfig   = "EVALUATOR_CONFIG"
)

// Config 应用配置根结构
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Ledger 决策账本配置
	Ledger LedgerConfig `yaml:"ledger"`
	// Calibrator 信号校准配置
	Calibrator CalibratorConfig `yaml:"calibrator"`
	// Attacker 决策源配置
	Attacker AttackerConfig `yaml:"attacker"`
	// Stream 数据流配置
	Stream StreamConfig `yaml:"stream"`
	// Output 输出配置
	Output OutputConfig `yaml:"output"`
	// Metrics 指标端点配置
	Metrics MetricsConfig `yaml:"metrics"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// LedgerConfig 决策账本配置
type LedgerConfig struct {
	// Epsilon 每笔结算扣除的交易成本
	Epsilon *float64 `yaml:"epsilon"`
	// Backoff 两次非零决策的最小间隔（步）
	Backoff *int `yaml:"backoff"`
	// ExecutionLag 执行延迟模式
	ExecutionLag bool `yaml:"execution_lag"`
}

// CalibratorConfig 信号校准配置
type CalibratorConfig struct {
	// Enabled 是否用校准后的决策替代原始决策
	Enabled bool `yaml:"enabled"`
	// Thresholds 标准化信号阈值
	Thresholds []float64 `yaml:"thresholds"`
	// FadingFactor 衰减因子 (0,1)
	FadingFactor float64 `yaml:"fading_factor"`
	// CostThreshold 行动所需的最小学习收益，未配置时等于 ledger.epsilon
	CostThreshold *float64 `yaml:"cost_threshold"`
	// EVGate 是否在滚动 EV 为负时放弃行动
	EVGate bool `yaml:"ev_gate"`
	// EVWindow 滚动 EV 窗口大小
	EVWindow int `yaml:"ev_window"`
	// EVMinSamples EV 过滤生效所需的最少样本数
	EVMinSamples int `yaml:"ev_min_samples"`
}

// AttackerConfig 决策源配置
type AttackerConfig struct {
	// Kind 决策源类型: momentum, median
	Kind string `yaml:"kind"`
	// FastFading 快速均值衰减因子（momentum）
	FastFading float64 `yaml:"fast_fading"`
	// SlowFading 慢速均值衰减因子（momentum）
	SlowFading float64 `yaml:"slow_fading"`
	// Scale 信号放大系数（momentum）
	Scale float64 `yaml:"scale"`
	// Warmup 输出信号前的最少样本数（momentum）
	Warmup int `yaml:"warmup"`
	// HistoryLen 历史窗口长度（median）
	HistoryLen int `yaml:"history_len"`
	// Margin 偏离中位数的触发幅度（median）
	Margin float64 `yaml:"margin"`
}

// StreamConfig 数据流配置
type StreamConfig struct {
	// Horizon 决策结算步长
	Horizon int `yaml:"horizon"`
	// Source 数据源: file, remote, ws, synthetic
	Source string `yaml:"source"`
	// Paths 本地 CSV 文件（file），每个文件一条流，流名取文件名
	Paths []string `yaml:"paths"`
	// URLTemplate 远程文件地址模板，支持 {stream} 与 {file} 占位符（remote）
	URLTemplate string `yaml:"url_template"`
	// StreamIDs 远程流标识（remote）
	StreamIDs []string `yaml:"stream_ids"`
	// MaxFiles 每条远程流最多读取的文件数，0 表示直到 404
	MaxFiles int `yaml:"max_files"`
	// TimeoutMs HTTP 请求超时（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
	// WS WebSocket 数据源配置
	WS WSConfig `yaml:"ws"`
	// Synthetic 合成数据源配置
	Synthetic SyntheticConfig `yaml:"synthetic"`
}

// WSConfig WebSocket 数据源配置
type WSConfig struct {
	// URL WebSocket 连接地址
	URL string `yaml:"url"`
	// Format 消息格式: batch | okx_books5
	Format string `yaml:"format"`
	// SubstreamIDs 订阅的子流，为空表示全部
	SubstreamIDs []string `yaml:"substream_ids"`
	// PingIntervalMs 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// PongTimeoutMs 心跳响应超时（毫秒）
	PongTimeoutMs int `yaml:"pong_timeout_ms"`
	// ReadTimeoutMs 读取超时（毫秒）
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
}

// SyntheticConfig 合成动量行情配置
type SyntheticConfig struct {
	// Streams 生成的流数量
	Streams int `yaml:"streams"`
	// N 每条流的点数
	N int `yaml:"n"`
	// Seed 随机种子
	Seed uint64 `yaml:"seed"`
	// RegimeChangeProb 每步切换状态的概率
	RegimeChangeProb float64 `yaml:"regime_change_prob"`
	// MomentumStrength 动量状态下的漂移强度
	MomentumStrength float64 `yaml:"momentum_strength"`
	// BounceStrength 均值回归状态下的回拉强度
	BounceStrength float64 `yaml:"bounce_strength"`
	// NoiseLevel 高斯噪声标准差
	NoiseLevel float64 `yaml:"noise_level"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// TradesEnabled 是否输出 trades.jsonl
	TradesEnabled bool `yaml:"trades_enabled"`
	// SummaryEnabled 是否输出 summaries.jsonl
	SummaryEnabled bool `yaml:"summary_enabled"`
	// SnapshotEnabled 是否在退出时写出每条流的快照
	SnapshotEnabled bool `yaml:"snapshot_enabled"`
	// SummaryEvery 每隔多少步输出一次汇总，0 表示只在结束时输出
	SummaryEvery int `yaml:"summary_every"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// MetricsConfig 指标端点配置
type MetricsConfig struct {
	// Addr Prometheus 监听地址，为空表示不启动 HTTP 端点
	Addr string `yaml:"addr"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容，应用环境变量覆盖与默认值后验证
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return &cfg, nil
}

// applyEnv 环境变量覆盖
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.App.LogLevel = v
	}
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "attacker-evaluator"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	if c.Ledger.Epsilon == nil {
		eps := 0.005
		c.Ledger.Epsilon = &eps
	}
	if c.Ledger.Backoff == nil {
		backoff := 1
		c.Ledger.Backoff = &backoff
	}

	if len(c.Calibrator.Thresholds) == 0 {
		c.Calibrator.Thresholds = []float64{1, 2, 3}
	}
	if c.Calibrator.FadingFactor == 0 {
		c.Calibrator.FadingFactor = 0.01
	}
	if c.Calibrator.CostThreshold == nil {
		cost := *c.Ledger.Epsilon
		c.Calibrator.CostThreshold = &cost
	}
	if c.Calibrator.EVWindow == 0 {
		c.Calibrator.EVWindow = 1000
	}
	if c.Calibrator.EVMinSamples == 0 {
		c.Calibrator.EVMinSamples = 30
	}

	if c.Attacker.Kind == "" {
		c.Attacker.Kind = AttackerMomentum
	}
	if c.Attacker.FastFading == 0 {
		c.Attacker.FastFading = 0.2
	}
	if c.Attacker.SlowFading == 0 {
		c.Attacker.SlowFading = 0.02
	}
	if c.Attacker.Scale == 0 {
		c.Attacker.Scale = 1
	}
	if c.Attacker.Warmup == 0 {
		c.Attacker.Warmup = 10
	}
	if c.Attacker.HistoryLen == 0 {
		c.Attacker.HistoryLen = 200
	}
	if c.Attacker.Margin == 0 {
		c.Attacker.Margin = 1
	}

	if c.Stream.Horizon == 0 {
		c.Stream.Horizon = 10
	}
	if c.Stream.Source == "" {
		c.Stream.Source = SourceSynthetic
	}
	if c.Stream.TimeoutMs == 0 {
		c.Stream.TimeoutMs = 10000 // 10 秒
	}
	if c.Stream.WS.Format == "" {
		c.Stream.WS.Format = WSFormatBatch
	}
	if c.Stream.WS.PingIntervalMs == 0 {
		c.Stream.WS.PingIntervalMs = 25000 // 25 秒
	}
	if c.Stream.WS.PongTimeoutMs == 0 {
		c.Stream.WS.PongTimeoutMs = 10000 // 10 秒
	}
	if c.Stream.WS.ReadTimeoutMs == 0 {
		c.Stream.WS.ReadTimeoutMs = 30000 // 30 秒
	}
	syn := &c.Stream.Synthetic
	if syn.Streams == 0 {
		syn.Streams = 1
	}
	if syn.N == 0 {
		syn.N = 10000
	}
	if syn.RegimeChangeProb == 0 {
		syn.RegimeChangeProb = 0.01
	}
	if syn.MomentumStrength == 0 {
		syn.MomentumStrength = 0.05
	}
	if syn.BounceStrength == 0 {
		syn.BounceStrength = 0.1
	}
	if syn.NoiseLevel == 0 {
		syn.NoiseLevel = 1
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围，所有问题合并为一个错误返回
func (c *Config) Validate() error {
	var errs []string

	// 账本
	if c.Ledger.Epsilon != nil && !isNonNegativeFinite(*c.Ledger.Epsilon) {
		errs = append(errs, fmt.Sprintf("ledger.epsilon: 交易成本必须为非负有限值，当前值: %v", *c.Ledger.Epsilon))
	}
	if c.Ledger.Backoff != nil && *c.Ledger.Backoff < 0 {
		errs = append(errs, fmt.Sprintf("ledger.backoff: 不能为负数，当前值: %d", *c.Ledger.Backoff))
	}

	// 校准器
	for i, t := range c.Calibrator.Thresholds {
		if !isNonNegativeFinite(t) {
			errs = append(errs, fmt.Sprintf("calibrator.thresholds[%d]: 阈值必须为非负有限值，当前值: %v", i, t))
		}
	}
	if err := validateFading(c.Calibrator.FadingFactor, "calibrator.fading_factor"); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Calibrator.CostThreshold != nil && (math.IsNaN(*c.Calibrator.CostThreshold) || math.IsInf(*c.Calibrator.CostThreshold, 0)) {
		errs = append(errs, "calibrator.cost_threshold: 必须为有限值")
	}
	if c.Calibrator.EVWindow < 0 {
		errs = append(errs, "calibrator.ev_window: 不能为负数")
	}
	if c.Calibrator.EVMinSamples < 0 {
		errs = append(errs, "calibrator.ev_min_samples: 不能为负数")
	}

	// 决策源
	switch c.Attacker.Kind {
	case AttackerMomentum:
		if err := validateFading(c.Attacker.FastFading, "attacker.fast_fading"); err != nil {
			errs = append(errs, err.Error())
		}
		if err := validateFading(c.Attacker.SlowFading, "attacker.slow_fading"); err != nil {
			errs = append(errs, err.Error())
		}
		if c.Attacker.Warmup < 0 {
			errs = append(errs, "attacker.warmup: 不能为负数")
		}
	case AttackerMedian:
		if c.Attacker.HistoryLen <= 0 {
			errs = append(errs, "attacker.history_len: 必须为正数")
		}
		if c.Attacker.Margin < 0 {
			errs = append(errs, "attacker.margin: 不能为负数")
		}
	default:
		errs = append(errs, fmt.Sprintf("attacker.kind: 无效的类型 '%s'，有效值: momentum, median", c.Attacker.Kind))
	}

	// 数据流
	if c.Stream.Horizon <= 0 {
		errs = append(errs, "stream.horizon: 结算步长必须为正数")
	}
	switch c.Stream.Source {
	case SourceFile:
		if len(c.Stream.Paths) == 0 {
			errs = append(errs, "stream.paths: file 数据源至少需要一个文件")
		}
	case SourceRemote:
		if c.Stream.URLTemplate == "" {
			errs = append(errs, "stream.url_template: remote 数据源地址模板不能为空")
		} else if !strings.Contains(c.Stream.URLTemplate, "{file}") {
			errs = append(errs, "stream.url_template: 缺少 {file} 占位符")
		}
		if len(c.Stream.StreamIDs) == 0 {
			errs = append(errs, "stream.stream_ids: remote 数据源至少需要一条流")
		}
	case SourceWS:
		if c.Stream.WS.URL == "" {
			errs = append(errs, "stream.ws.url: WebSocket 地址不能为空")
		}
		switch c.Stream.WS.Format {
		case WSFormatBatch:
		case WSFormatOKXBooks5:
			if len(c.Stream.WS.SubstreamIDs) == 0 {
				errs = append(errs, "stream.ws.substream_ids: okx_books5 格式需要指定 instId")
			}
		default:
			errs = append(errs, fmt.Sprintf("stream.ws.format: 未知消息格式: %s", c.Stream.WS.Format))
		}
	case SourceSynthetic:
		syn := c.Stream.Synthetic
		if syn.Streams <= 0 || syn.N <= 0 {
			errs = append(errs, "stream.synthetic: streams 与 n 必须为正数")
		}
		if syn.RegimeChangeProb < 0 || syn.RegimeChangeProb > 1 {
			errs = append(errs, "stream.synthetic.regime_change_prob: 必须在 0-1 之间")
		}
		if syn.NoiseLevel < 0 {
			errs = append(errs, "stream.synthetic.noise_level: 不能为负数")
		}
	default:
		errs = append(errs, fmt.Sprintf("stream.source: 无效的数据源 '%s'，有效值: file, remote, ws, synthetic", c.Stream.Source))
	}
	if c.Stream.MaxFiles < 0 {
		errs = append(errs, "stream.max_files: 不能为负数")
	}

	// 输出
	if c.Output.SummaryEvery < 0 {
		errs = append(errs, "output.summary_every: 不能为负数")
	}
	if c.Output.BufferSize < 0 {
		errs = append(errs, "output.buffer_size: 不能为负数")
	}

	// 验证日志级别
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// validateFading 验证衰减因子范围 (0,1)
func validateFading(v float64, field string) error {
	if !(v > 0 && v < 1) {
		return fmt.Errorf("%s: 衰减因子必须在 (0,1) 内，当前值: %v", field, v)
	}
	return nil
}

func isNonNegativeFinite(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

// EpsilonValue 交易成本（已应用默认值）
func (c *LedgerConfig) EpsilonValue() float64 {
	if c.Epsilon == nil {
		return 0.005
	}
	return *c.Epsilon
}

// BackoffValue 决策间隔（已应用默认值）
func (c *LedgerConfig) BackoffValue() int {
	if c.Backoff == nil {
		return 1
	}
	return *c.Backoff
}

// Cost 校准器行动成本（已应用默认值）
func (c *CalibratorConfig) Cost() float64 {
	if c.CostThreshold == nil {
		return 0
	}
	return *c.CostThreshold
}
