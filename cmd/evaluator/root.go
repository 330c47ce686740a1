package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"attacker-evaluator/internal/attacker"
	"attacker-evaluator/internal/config"
	"attacker-evaluator/internal/core/calibrate"
	"attacker-evaluator/internal/core/ledger"
	"attacker-evaluator/internal/output/jsonl"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "evaluator",
		Short:         "逐点评估决策源的收益表现",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("加载 %s 失败: %w", opts.envFile, err)
			}
			if !cmd.Flags().Changed("config") {
				if v := os.Getenv(config.EnvConfig); v != "" {
					opts.configPath = v
				}
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "配置文件路径（也可用 "+config.EnvConfig+" 指定）")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "环境变量文件，不存在时忽略")

	cmd.AddCommand(newReplayCmd(opts), newLiveCmd(opts), newInspectCmd())
	return cmd
}

func newReplayCmd(opts *rootOptions) *cobra.Command {
	var (
		resume bool
		source string
		paths  []string
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "回放本地文件、远程文件或合成数据",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if source != "" {
				cfg.Stream.Source = source
			}
			if len(paths) > 0 {
				cfg.Stream.Paths = paths
			}
			if cfg.Stream.Source == config.SourceWS {
				return fmt.Errorf("replay 不支持 ws 数据源，请使用 live 子命令")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return execute(cmd.Context(), cfg, runOptions{resume: resume, skipSeen: true})
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "从输出目录中的检查点继续")
	cmd.Flags().StringVar(&source, "source", "", "覆盖 stream.source（file|remote|synthetic）")
	cmd.Flags().StringSliceVar(&paths, "paths", nil, "覆盖 stream.paths")
	return cmd
}

func newLiveCmd(opts *rootOptions) *cobra.Command {
	var (
		resume bool
		url    string
	)
	cmd := &cobra.Command{
		Use:   "live",
		Short: "通过 WebSocket 实时评估",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			cfg.Stream.Source = config.SourceWS
			if url != "" {
				cfg.Stream.WS.URL = url
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return execute(cmd.Context(), cfg, runOptions{resume: resume})
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "从输出目录中的检查点恢复状态")
	cmd.Flags().StringVar(&url, "url", "", "覆盖 stream.ws.url")
	return cmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <snapshot.json>",
		Short: "打印检查点的账本汇总",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cp attacker.Checkpoint
			if err := jsonl.ReadJSONFile(args[0], &cp); err != nil {
				return err
			}
			if cp.Ledger == nil {
				return fmt.Errorf("检查点缺少 ledger: %s", args[0])
			}
			l, err := ledger.FromSnapshot(cp.Ledger)
			if err != nil {
				return err
			}
			report := map[string]any{
				"summary":    l.Summary(),
				"pending":    len(l.Pending()),
				"suppressed": l.Suppressed(),
			}
			if cp.Calibrator != nil {
				cal, err := calibrate.FromSnapshot(cp.Calibrator)
				if err != nil {
					return err
				}
				report["buckets"] = cal.Buckets()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

// execute 建立信号上下文后运行评估
func execute(parent context.Context, cfg *config.Config, opts runOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.App.LogLevel)
	defer func() { _ = logger.Sync() }()

	r, err := newRunner(cfg, logger, opts)
	if err != nil {
		return err
	}
	return r.run(ctx)
}
