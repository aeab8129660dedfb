// Package main 提供 tts-engine CLI 的命令实现
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"yqhp/tts-engine/internal/config"
	"yqhp/tts-engine/pkg/logger"
)

const (
	// Version 是当前版本号
	Version = "0.1.0"
	// Banner 是启动时显示的 ASCII 艺术
	Banner = `
   _____ _____ _____   TTS Engine %s
  |_   _|_   _/ ____|
    | |   | || (___    batched speech
    | |   | | \___ \   rendering core
    |_|   |_| |____/
`
)

var (
	// 全局配置
	cfgFile string
	debug   bool
)

// rootCmd 是根命令
var rootCmd = &cobra.Command{
	Use:   "tts-engine",
	Short: "批量语音合成调度引擎",
	Long: `tts-engine 是一个面向生成式语音合成的批量调度引擎，
负责资源预算估算、子批次划分、共享上下文缓存和执行器变体管理。`,
	Version: Version,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// 全局 flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "启用调试日志")

	// 禁用默认的 completion 命令
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// 自定义版本模板
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")
}

// loadConfig 加载配置文件并初始化日志
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader = loader.WithConfigPath(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logCfg := &logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}
	if debug {
		logCfg.Level = "debug"
	}
	logger.Init(logCfg)
	return cfg, nil
}
