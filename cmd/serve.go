package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/tts-engine/api/rest"
	"yqhp/tts-engine/internal/config"
	"yqhp/tts-engine/internal/engine"
	"yqhp/tts-engine/internal/scheduler"
	"yqhp/tts-engine/internal/sink"
	"yqhp/tts-engine/internal/variant"
	"yqhp/tts-engine/pkg/logger"
	"yqhp/tts-engine/pkg/metrics"
)

var (
	// serve 命令的 flags
	serveVoices string
	serveOut    string
)

// serveCmd 是 serve 子命令
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "以 REST 服务方式运行渲染引擎",
	Long: `启动 REST API 服务，接收渲染请求并串行执行。
所有提交共享同一把生成锁，同一时刻最多一个子批次在执行。`,
	Example: `  tts-engine serve --voices voices.yaml --out ./audio
  tts-engine serve --config engine.yaml --voices voices.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveVoices, "voices", "", "角色配置文件路径 (必填)")
	serveCmd.Flags().StringVar(&serveOut, "out", "./output", "音频输出目录")
	_ = serveCmd.MarkFlagRequired("voices")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	voices, err := config.LoadVoices(serveVoices)
	if err != nil {
		return err
	}
	wavSink, err := sink.NewWAVSink(serveOut, "")
	if err != nil {
		return err
	}

	reg := metrics.NewEngineRegistry()
	provider := engine.NewHTTPProvider(cfg.Engine)
	sched := scheduler.New(cfg.Batching, cfg.Engine, provider, voices, scheduler.Options{
		Prober:        provider,
		Sink:          wavSink,
		Metrics:       reg,
		VariantConfig: variant.Config{Metrics: reg},
	})

	server := rest.NewServer(cfg.Server, sched, voices, wavSink, reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf(Banner+"\n", Version)
	logger.Info("server starting",
		zap.String("address", cfg.Server.Address),
		zap.String("engine_url", cfg.Engine.URL),
	)

	err = server.StartWithContext(ctx)
	logger.Sync()
	return err
}
