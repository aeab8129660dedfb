package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"yqhp/tts-engine/internal/config"
	"yqhp/tts-engine/internal/engine"
	"yqhp/tts-engine/internal/scheduler"
	"yqhp/tts-engine/internal/sink"
	"yqhp/tts-engine/internal/variant"
	"yqhp/tts-engine/pkg/logger"
	"yqhp/tts-engine/pkg/metrics"
	"yqhp/tts-engine/pkg/types"
)

var (
	// run 命令的 flags
	runScript string
	runVoices string
	runOut    string
)

// runCmd 是 run 子命令
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "渲染一份脚本并写出音频文件",
	Long: `读取脚本和角色配置，按渲染路径分组、按长度排序并划分子批次，
逐批调用执行器渲染，输出为按行号命名的 WAV 文件。`,
	Example: `  # 基本执行
  tts-engine run --script script.yaml --voices voices.yaml --out ./audio

  # 指定配置文件
  tts-engine run --config engine.yaml --script script.yaml --voices voices.yaml --out ./audio`,
	RunE: runScriptCmd,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runScript, "script", "", "脚本文件路径 (必填)")
	runCmd.Flags().StringVar(&runVoices, "voices", "", "角色配置文件路径 (必填)")
	runCmd.Flags().StringVar(&runOut, "out", "./output", "音频输出目录")
	_ = runCmd.MarkFlagRequired("script")
	_ = runCmd.MarkFlagRequired("voices")
}

func runScriptCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	script, err := config.LoadScript(runScript)
	if err != nil {
		return err
	}
	voices, err := config.LoadVoices(runVoices)
	if err != nil {
		return err
	}

	wavSink, err := sink.NewWAVSink(runOut, "")
	if err != nil {
		return err
	}

	reg := metrics.NewEngineRegistry()
	provider := engine.NewHTTPProvider(cfg.Engine)

	sched := scheduler.New(cfg.Batching, cfg.Engine, provider, voices, scheduler.Options{
		Prober:  provider,
		Sink:    wavSink,
		Metrics: reg,
		OnProgress: func(completed, failed, total int) {
			fmt.Printf("\rprogress: %d/%d done, %d failed", completed+failed, total, failed)
		},
		VariantConfig: variant.Config{Metrics: reg},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	items, preFailed := script.BuildItems(voices)
	start := time.Now()
	result, err := sched.Submit(ctx, items)
	fmt.Println()
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	for _, f := range preFailed {
		result.Fail(f.Index, f.Message)
	}

	printSummary(result, time.Since(start), reg)
	logger.Sync()
	if len(result.Failed) > 0 {
		os.Exit(1)
	}
	return nil
}

func printSummary(result *types.BatchResult, elapsed time.Duration, reg *metrics.Registry) {
	fmt.Printf("\nrendered %d/%d lines in %s\n",
		len(result.Completed), result.Total(), elapsed.Round(time.Millisecond))

	for _, f := range result.Failed {
		fmt.Printf("  line %d failed: %s\n", f.Index, f.Message)
	}

	report := reg.Report(elapsed.Seconds())
	if audio, ok := report[metrics.AudioSecondsName]; ok && audio["count"] > 0 {
		fmt.Printf("audio generated: %.1fs (%.2fx realtime)\n",
			audio["count"], audio["count"]/elapsed.Seconds())
	}
}
