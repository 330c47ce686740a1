// Package config 配置模块测试
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// createValidConfig 创建一个通过验证的配置（已应用默认值）
func createValidConfig() *Config {
	cfg := &Config{
		Stream: StreamConfig{Source: SourceSynthetic},
	}
	cfg.setDefaults()
	return cfg
}

// TestConfigValidation_Fading 测试衰减因子范围验证
// 属性: 衰减因子在 (0,1) 外应验证失败
func TestConfigValidation_Fading(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("衰减因子大于等于1应验证失败", prop.ForAll(
		func(f float64) bool {
			cfg := createValidConfig()
			cfg.Calibrator.FadingFactor = f
			return cfg.Validate() != nil
		},
		gen.Float64Range(1, 1000),
	))

	properties.Property("衰减因子为负应验证失败", prop.ForAll(
		func(f float64) bool {
			cfg := createValidConfig()
			cfg.Attacker.FastFading = f
			return cfg.Validate() != nil
		},
		gen.Float64Range(-1000, -0.0001),
	))

	properties.Property("衰减因子在 (0,1) 内应通过验证", prop.ForAll(
		func(f float64) bool {
			cfg := createValidConfig()
			cfg.Calibrator.FadingFactor = f
			cfg.Attacker.FastFading = f
			cfg.Attacker.SlowFading = f
			return cfg.Validate() == nil
		},
		gen.Float64Range(0.0001, 0.9999),
	))

	properties.TestingRun(t)
}

// TestConfigValidation_LedgerParams 测试账本参数验证
func TestConfigValidation_LedgerParams(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("负交易成本应验证失败", prop.ForAll(
		func(eps float64) bool {
			cfg := createValidConfig()
			cfg.Ledger.Epsilon = &eps
			return cfg.Validate() != nil
		},
		gen.Float64Range(-1000, -0.0001),
	))

	properties.Property("负 backoff 应验证失败", prop.ForAll(
		func(b int) bool {
			cfg := createValidConfig()
			cfg.Ledger.Backoff = &b
			return cfg.Validate() != nil
		},
		gen.IntRange(-1000, -1),
	))

	properties.Property("非正 horizon 应验证失败", prop.ForAll(
		func(h int) bool {
			cfg := createValidConfig()
			cfg.Stream.Horizon = h
			return cfg.Validate() != nil
		},
		gen.IntRange(-1000, 0),
	))

	properties.TestingRun(t)
}

// TestConfigValidation_ValidConfig 测试默认配置可通过验证
func TestConfigValidation_ValidConfig(t *testing.T) {
	cfg := createValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("默认配置应通过验证: %v", err)
	}
	if cfg.Ledger.EpsilonValue() != 0.005 || cfg.Ledger.BackoffValue() != 1 {
		t.Errorf("ledger 默认值 = %v/%d, want 0.005/1", cfg.Ledger.EpsilonValue(), cfg.Ledger.BackoffValue())
	}
	if cfg.Calibrator.Cost() != 0.005 {
		t.Errorf("Calibrator.Cost() = %v, want 0.005（默认等于 epsilon）", cfg.Calibrator.Cost())
	}
}

// TestConfigValidation_Sources 测试各数据源的必填项
func TestConfigValidation_Sources(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"file 缺少路径", func(c *Config) { c.Stream.Source = SourceFile }, "stream.paths"},
		{"remote 缺少模板", func(c *Config) { c.Stream.Source = SourceRemote; c.Stream.StreamIDs = []string{"a"} }, "stream.url_template"},
		{"remote 模板缺少 {file}", func(c *Config) {
			c.Stream.Source = SourceRemote
			c.Stream.URLTemplate = "https://example.com/{stream}.csv"
			c.Stream.StreamIDs = []string{"a"}
		}, "{file}"},
		{"ws 缺少地址", func(c *Config) { c.Stream.Source = SourceWS }, "stream.ws.url"},
		{"ws 未知格式", func(c *Config) {
			c.Stream.Source = SourceWS
			c.Stream.WS.URL = "wss://example.com"
			c.Stream.WS.Format = "protobuf"
		}, "stream.ws.format"},
		{"okx 缺少 instId", func(c *Config) {
			c.Stream.Source = SourceWS
			c.Stream.WS.URL = "wss://example.com"
			c.Stream.WS.Format = WSFormatOKXBooks5
		}, "stream.ws.substream_ids"},
		{"未知数据源", func(c *Config) { c.Stream.Source = "kafka" }, "stream.source"},
		{"未知决策源", func(c *Config) { c.Attacker.Kind = "oracle" }, "attacker.kind"},
		{"负阈值", func(c *Config) { c.Calibrator.Thresholds = []float64{1, -2} }, "calibrator.thresholds[1]"},
		{"无效日志级别", func(c *Config) { c.App.LogLevel = "trace" }, "app.log_level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := createValidConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("应返回错误")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("错误信息 %q 应包含 %q", err.Error(), tc.field)
			}
		})
	}
}

// TestConfigValidation_Aggregated 测试多个错误合并返回
func TestConfigValidation_Aggregated(t *testing.T) {
	cfg := createValidConfig()
	cfg.Stream.Horizon = -1
	cfg.App.LogLevel = "verbose"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("应返回错误")
	}
	msg := err.Error()
	if !strings.Contains(msg, "stream.horizon") || !strings.Contains(msg, "app.log_level") {
		t.Errorf("错误信息应同时包含两个字段: %s", msg)
	}
}

// TestLoad_ValidFile 测试加载有效配置文件
func TestLoad_ValidFile(t *testing.T) {
	content := `
app:
  name: test-evaluator
  log_level: debug

ledger:
  epsilon: 0
  backoff: 3
  execution_lag: true

calibrator:
  enabled: true
  thresholds: [0.5, 1.5]
  fading_factor: 0.05
  ev_gate: true

attacker:
  kind: median
  history_len: 50
  margin: 0.5

stream:
  horizon: 5
  source: remote
  url_template: https://example.com/{stream}/{file}.csv
  stream_ids: [a, b]

output:
  dir: ./out
  trades_enabled: true
  summary_enabled: true
  snapshot_enabled: true
`
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.App.Name != "test-evaluator" {
		t.Errorf("App.Name = %s, want test-evaluator", cfg.App.Name)
	}
	// 显式配置的 0 不应被默认值覆盖
	if cfg.Ledger.EpsilonValue() != 0 {
		t.Errorf("Ledger.Epsilon = %v, want 0", cfg.Ledger.EpsilonValue())
	}
	if cfg.Ledger.BackoffValue() != 3 || !cfg.Ledger.ExecutionLag {
		t.Errorf("Ledger = %+v", cfg.Ledger)
	}
	if cfg.Calibrator.Cost() != 0 {
		t.Errorf("Calibrator.Cost() = %v, want 0", cfg.Calibrator.Cost())
	}
	if len(cfg.Stream.StreamIDs) != 2 || cfg.Stream.Horizon != 5 {
		t.Errorf("Stream = %+v", cfg.Stream)
	}
	if cfg.Calibrator.EVWindow != 1000 {
		t.Errorf("Calibrator.EVWindow = %d, want 1000", cfg.Calibrator.EVWindow)
	}
}

// TestLoad_EnvOverride 测试环境变量覆盖日志级别
func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	cfg, err := Parse([]byte("app:\n  log_level: debug\n"))
	if err != nil {
		t.Fatalf("解析配置失败: %v", err)
	}
	if cfg.App.LogLevel != "warn" {
		t.Errorf("App.LogLevel = %s, want warn", cfg.App.LogLevel)
	}
}

// TestLoad_InvalidFile 测试加载无效文件
func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("加载不存在的文件应返回错误")
	}
}

// TestLoad_InvalidYAML 测试加载无效 YAML
func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "invalid.yaml")
	if err := os.WriteFile(tmpFile, []byte("invalid: yaml: content:"), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}

	_, err := Load(tmpFile)
	if err == nil {
		t.Error("加载无效 YAML 应返回错误")
	}
}
