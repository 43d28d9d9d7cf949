package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"

	"kartnet/internal/config"
	"kartnet/internal/server"
	"kartnet/pkg/logger"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		logger.Log.Warn(err)
	}
	logger.Init()

	cfg, err := config.LoadServer(os.Args[1:])
	if err != nil {
		logger.Log.Fatalf("配置错误: %v", err)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			logger.Log.Warnf("Sentry 初始化失败: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if cfg.StatsViewAddr != "" {
		// 必须在 statsview.New() 之前设置
		viewer.SetConfiguration(viewer.WithTheme(viewer.ThemeWesteros), viewer.WithAddr(cfg.StatsViewAddr))
		mgr := statsview.New()
		go mgr.Start()
		defer mgr.Stop()
		logger.Log.Infof("运行时统计: http://%s/debug/statsview", cfg.StatsViewAddr)
	}

	gameServer := server.NewGameServer(cfg)

	// 启动服务器（在新的 goroutine 中）
	go func() {
		if err := gameServer.Start(); err != nil {
			logger.Log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	logger.Log.Info("========================================")
	logger.Log.Info("  Kart 联机服务器")
	logger.Log.Info("========================================")
	logger.Log.Infof("监听地址: %s (%s)", cfg.Addr, cfg.Proto)
	logger.Log.Infof("单房间最大玩家数: %d", cfg.MaxPlayers)
	logger.Log.Infof("服务器 TPS: %d", cfg.TickRate)
	logger.Log.Infof("本机 AI 车: %v", cfg.HostBot)
	logger.Log.Info("按 Ctrl+C 停止服务器")

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	gameServer.Shutdown()
	logger.Log.Info("服务器已关闭，再见！")
}
