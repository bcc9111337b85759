package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iabetor/tgfeed/internal/config"
	"github.com/iabetor/tgfeed/internal/database"
	"github.com/iabetor/tgfeed/internal/logger"
	"github.com/iabetor/tgfeed/internal/monitor"
	"github.com/iabetor/tgfeed/internal/rss"
	"github.com/iabetor/tgfeed/internal/telegram"
)

func main() {
	configPath := flag.String("config", "configs/tgfeed.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] tgfeed 启动中 (log_level=%s)", cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Errorf("[main] 打开数据库失败: %v", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Errorf("[main] 数据库迁移失败: %v", err)
		os.Exit(1)
	}

	client, err := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.APIBase, cfg.Telegram.Proxy)
	if err != nil {
		logger.Errorf("[main] 创建 Telegram 客户端失败: %v", err)
		os.Exit(1)
	}

	// 启动时验证令牌
	startupCtx, startupCancel := context.WithTimeout(ctx, 15*time.Second)
	username, err := client.GetMe(startupCtx)
	startupCancel()
	if err != nil {
		logger.Errorf("[main] 验证 Bot 令牌失败: %v", err)
		os.Exit(1)
	}
	logger.Infof("[main] 以 @%s 身份运行", username)

	telegraph := telegram.NewTelegraph(cfg.Telegraph.Token, cfg.Telegraph.AuthorName, cfg.Telegraph.AuthorURL)
	if telegraph == nil {
		logger.Info("[main] 未配置 Telegraph，长文将降级为链接消息")
	}

	fetcher := rss.NewFetcher(0)
	sender := telegram.NewSender(client)
	m := monitor.New(db, fetcher, sender, telegraph, cfg)
	m.Run(ctx)

	logger.Info("[main] tgfeed 已停止")
}
