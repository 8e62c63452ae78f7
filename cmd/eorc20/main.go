package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"eorc20-indexer/internal/api"
	"eorc20-indexer/internal/collector"
	"eorc20-indexer/internal/config"
	"eorc20-indexer/internal/decoder"
	"eorc20-indexer/internal/feed"
	"eorc20-indexer/internal/logging"
	"eorc20-indexer/internal/output"
	"eorc20-indexer/internal/progress"
	"eorc20-indexer/internal/shutdown"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// 停机超时
const shutdownTimeout = 30 * time.Second

var (
	version = "dev"

	configFile    string
	verbose       bool
	resetProgress bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "eorc20",
		Short:         "EORC-20 铭文索引器",
		Long:          `从 EOS EVM 区块流中提取 EORC-20 铭文操作，按区块写入存储并保存游标`,
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "配置文件路径（为空时使用默认配置与环境变量）")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "详细输出")
	rootCmd.Flags().BoolVar(&resetProgress, "reset-progress", false, "重置游标，从区块流起点重新开始")

	progressCmd := &cobra.Command{
		Use:   "progress",
		Short: "查看已保存的游标",
		RunE:  showProgress,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("eorc20 %s\n", version)
		},
	}

	rootCmd.AddCommand(progressCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置，创建日志器
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if cfg.Logging == nil {
		cfg.Logging = logging.DefaultLogConfig()
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	manager, err := progress.NewManager(cfg.Progress.DBPath, logger)
	if err != nil {
		return fmt.Errorf("创建进度管理器失败: %w", err)
	}
	if resetProgress {
		logger.Info("重置游标...")
		if err := manager.Reset(); err != nil {
			manager.Close()
			return fmt.Errorf("重置游标失败: %w", err)
		}
	}

	outputter, err := output.NewOutput(runCtx, cfg.Output, logger)
	if err != nil {
		manager.Close()
		return fmt.Errorf("创建输出器失败: %w", err)
	}

	blockFeed, err := feed.NewFeed(runCtx, cfg.Feed, logger)
	if err != nil {
		outputter.Close()
		manager.Close()
		return fmt.Errorf("创建区块流失败: %w", err)
	}

	col, err := collector.NewCollector(cfg.Chain, collector.Dependencies{
		Feed:     blockFeed,
		Output:   outputter,
		Store:    manager,
		Resolver: decoder.NewSignatureResolver(cfg.Chain.ChainID),
	}, logger)
	if err != nil {
		blockFeed.Close()
		outputter.Close()
		manager.Close()
		return err
	}

	gs := shutdown.NewGracefulShutdown(shutdownTimeout, logger)
	runDone := make(chan struct{})

	gs.RegisterShutdownFunc("停止接收新区块", func(ctx context.Context) error {
		cancelRun()
		return nil
	}, shutdown.OrderStopAcceptingRequests)
	gs.RegisterShutdownFunc("等待当前区块完成", func(ctx context.Context) error {
		select {
		case <-runDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, shutdown.OrderWaitForActiveRequests)

	if cfg.API != nil && cfg.API.Enabled {
		server := api.NewServer(cfg, col, manager, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Errorf("API服务器异常退出: %v", err)
			}
		}()
		gs.RegisterShutdownFunc("关闭API服务器", server.Stop, shutdown.OrderStopAcceptingRequests)
	}

	gs.RegisterShutdownFunc("关闭输出器", func(ctx context.Context) error {
		return outputter.Close()
	}, shutdown.OrderFlushProducers)
	gs.RegisterShutdownFunc("关闭区块流", func(ctx context.Context) error {
		return blockFeed.Close()
	}, shutdown.OrderCloseConnections)
	gs.RegisterShutdownFunc("关闭进度存储", func(ctx context.Context) error {
		return manager.Close()
	}, shutdown.OrderCleanupResources)

	gs.Start()

	logger.Infof("开始索引，区块流: %s，输出: %s", cfg.Feed.Type, cfg.Output.Format)
	runErr := col.Run(runCtx)
	close(runDone)
	if stderrors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	stats := col.GetStats()
	gs.Shutdown()

	logger.WithFields(logrus.Fields{
		"blocks":       stats["blocks_processed"],
		"inscriptions": stats["inscriptions"],
		"skipped":      stats["skipped_actions"],
	}).Info("索引器已停止")

	if runErr != nil {
		return runErr
	}
	if errs := gs.Errors(); len(errs) > 0 {
		return fmt.Errorf("停机过程中发生 %d 个错误: %w", len(errs), stderrors.Join(errs...))
	}
	return nil
}

// showProgress 显示已保存的游标
func showProgress(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	logger.SetLevel(logrus.WarnLevel)

	manager, err := progress.NewManager(cfg.Progress.DBPath, logger)
	if err != nil {
		return fmt.Errorf("打开进度存储失败: %w", err)
	}
	defer manager.Close()

	stats := manager.GetStats()
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Println("索引进度")
	fmt.Println(strings.Repeat("=", 50))
	if _, ok := stats["cursor"]; !ok {
		fmt.Println("尚未保存任何游标")
	}
	for _, key := range keys {
		fmt.Printf("%-20s: %v\n", key, stats[key])
	}
	return nil
}
