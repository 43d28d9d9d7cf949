package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hajimehoshi/ebiten/v2"

	"kartnet/internal/client"
	"kartnet/internal/config"
	"kartnet/pkg/ai"
	"kartnet/pkg/core"
	"kartnet/pkg/logger"
	"kartnet/pkg/protocol"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		logger.Log.Warn(err)
	}
	logger.Init()

	cfg, err := config.LoadClient(os.Args[1:])
	if err != nil {
		logger.Log.Fatalf("配置错误: %v", err)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			logger.Log.Warnf("Sentry 初始化失败: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
		defer sentry.Recover()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	network := client.NewNetworkClient(cfg)
	join, err := network.Connect(ctx)
	if err != nil {
		logger.Log.Fatalf("加入失败: %v", err)
	}
	defer network.Close()

	if cfg.Headless {
		runHeadless(ctx, cfg, network, join)
		return
	}

	input := &client.KeyboardInput{Scheme: client.ControlWASD}
	racer := client.NewRacer(cfg, network, join, input)

	ebiten.SetWindowSize(client.ScreenWidth, client.ScreenHeight)
	ebiten.SetWindowTitle("Kart - " + cfg.Name + " [" + input.Scheme.String() + "]")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeDisabled)
	ebiten.SetTPS(racer.TickRate())

	if err := ebiten.RunGame(client.NewGame(racer)); err != nil && !errors.Is(err, ebiten.Termination) {
		logger.Log.Errorf("游戏退出: %v", err)
	}
}

// runHeadless 由 AI 驾驶，用于压测和联调
func runHeadless(ctx context.Context, cfg config.Client, network *client.NetworkClient, join *protocol.JoinResponse) {
	tickRate := int(join.TickRate)
	if tickRate <= 0 {
		tickRate = cfg.TickRate
	}
	driver := ai.NewDriver(ai.DefaultDriverConfig(tickRate), core.DefaultTrack())
	racer := client.NewRacer(cfg, network, join, driver)
	driver.SetVehicle(racer.Kart())

	logger.Log.WithField("player", join.PlayerID).Info("无界面模式启动")
	if err := client.RunHeadless(ctx, racer); err != nil {
		logger.Log.Errorf("连接断开: %v", err)
	}
}
