package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"kartnet/pkg/core"
	"kartnet/pkg/logger"
)

// Server 服务器配置
type Server struct {
	Addr          string
	Proto         string // tcp / kcp / ws
	TickRate      int
	BufferSize    int
	MaxPlayers    int
	GapWait       int  // 缺失输入最多等待的 tick 数
	HostBot       bool // 默认房间是否生成一辆服务器本机驱动的车
	SentryDSN     string
	StatsViewAddr string
}

// Client 客户端配置
type Client struct {
	Addr               string
	Proto              string
	Name               string
	Room               string
	Headless           bool
	TickRate           int
	BufferSize         int
	MaxCatchUp         int
	InputSendWindow    int
	ReconcileThreshold float64
	ReconcileCooldown  float64
	SentryDSN          string
}

// LoadEnv 加载 .env 文件，文件不存在不算错误
func LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("加载环境变量失败: %w", err)
	}
	logger.Log.Debug("已加载 .env")
	return nil
}

// LoadServer 环境变量给出默认值，命令行参数覆盖
func LoadServer(args []string) (Server, error) {
	cfg := Server{
		Addr:          envString("KART_ADDR", ":8080"),
		Proto:         envString("KART_PROTO", "tcp"),
		TickRate:      envInt("KART_TICK_RATE", core.DefaultTickRate),
		BufferSize:    envInt("KART_BUFFER_SIZE", core.DefaultBufferSize),
		MaxPlayers:    envInt("KART_MAX_PLAYERS", 8),
		GapWait:       envInt("KART_GAP_WAIT", 3),
		HostBot:       envBool("KART_HOST_BOT", false),
		SentryDSN:     os.Getenv("SENTRY_DSN"),
		StatsViewAddr: os.Getenv("STATSVIEW_ADDR"),
	}

	fset := flag.NewFlagSet("server", flag.ContinueOnError)
	fset.StringVar(&cfg.Addr, "addr", cfg.Addr, "服务器监听地址")
	fset.StringVar(&cfg.Proto, "proto", cfg.Proto, "传输协议 (tcp/kcp/ws)")
	fset.IntVar(&cfg.TickRate, "tick-rate", cfg.TickRate, "模拟频率 (Hz)")
	fset.IntVar(&cfg.BufferSize, "buffer", cfg.BufferSize, "历史缓冲容量")
	fset.IntVar(&cfg.MaxPlayers, "max-players", cfg.MaxPlayers, "单房间最大玩家数")
	fset.IntVar(&cfg.GapWait, "gap-wait", cfg.GapWait, "缺失输入等待的 tick 数")
	fset.BoolVar(&cfg.HostBot, "host-bot", cfg.HostBot, "默认房间生成本机 AI 车")
	fset.StringVar(&cfg.StatsViewAddr, "statsview", cfg.StatsViewAddr, "运行时统计页面地址，空表示关闭")
	if err := fset.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (c Server) validate() error {
	if err := validateProto(c.Proto); err != nil {
		return err
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("tick rate 必须为正数: %d", c.TickRate)
	}
	if c.MaxPlayers <= 0 {
		return fmt.Errorf("最大玩家数必须为正数: %d", c.MaxPlayers)
	}
	return nil
}

// LoadClient 环境变量给出默认值，命令行参数覆盖
func LoadClient(args []string) (Client, error) {
	cfg := Client{
		Addr:               envString("KART_ADDR", "127.0.0.1:8080"),
		Proto:              envString("KART_PROTO", "tcp"),
		Name:               envString("KART_NAME", "player"),
		Room:               envString("KART_ROOM", ""),
		TickRate:           envInt("KART_TICK_RATE", core.DefaultTickRate),
		BufferSize:         envInt("KART_BUFFER_SIZE", core.DefaultBufferSize),
		MaxCatchUp:         envInt("KART_MAX_CATCHUP", core.DefaultMaxCatchUp),
		InputSendWindow:    envInt("KART_INPUT_WINDOW", 8),
		ReconcileThreshold: envFloat("KART_RECONCILE_THRESHOLD", core.DefaultReconcileThreshold),
		ReconcileCooldown:  envFloat("KART_RECONCILE_COOLDOWN", core.DefaultReconcileCooldown),
		SentryDSN:          os.Getenv("SENTRY_DSN"),
	}

	fset := flag.NewFlagSet("client", flag.ContinueOnError)
	fset.StringVar(&cfg.Addr, "addr", cfg.Addr, "服务器地址")
	fset.StringVar(&cfg.Proto, "proto", cfg.Proto, "传输协议 (tcp/kcp/ws)")
	fset.StringVar(&cfg.Name, "name", cfg.Name, "玩家名")
	fset.StringVar(&cfg.Room, "room", cfg.Room, "房间 ID，空表示默认房间")
	fset.BoolVar(&cfg.Headless, "headless", cfg.Headless, "无界面模式，由 AI 驾驶")
	fset.IntVar(&cfg.MaxCatchUp, "max-catchup", cfg.MaxCatchUp, "单帧最多补跑的 tick 数")
	fset.IntVar(&cfg.InputSendWindow, "input-window", cfg.InputSendWindow, "每次重发的输入数")
	fset.Float64Var(&cfg.ReconcileThreshold, "threshold", cfg.ReconcileThreshold, "纠错位置误差阈值")
	fset.Float64Var(&cfg.ReconcileCooldown, "cooldown", cfg.ReconcileCooldown, "纠错冷却时间（秒）")
	if err := fset.Parse(args); err != nil {
		return cfg, err
	}
	if err := validateProto(cfg.Proto); err != nil {
		return cfg, err
	}
	if cfg.InputSendWindow <= 0 {
		cfg.InputSendWindow = 1
	}
	return cfg, nil
}

func validateProto(proto string) error {
	switch proto {
	case "tcp", "kcp", "ws":
		return nil
	}
	return fmt.Errorf("不支持的协议: %s", proto)
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Log.Warnf("环境变量 %s=%q 不是整数，使用默认值 %d", key, v, def)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Log.Warnf("环境变量 %s=%q 不是数字，使用默认值 %v", key, v, def)
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
