package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log 全局日志实例，未调用 Init 时也可直接使用（测试中即如此）
var Log = logrus.New()

// Init 根据环境变量配置全局日志，main 启动时调用一次
func Init() {
	// 日志级别，默认 info，调试时设为 debug
	logLevel, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		logLevel = "info"
	}
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)

	// json 用于生产采集，text 便于本地开发
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		Log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
	}

	Log.SetOutput(os.Stdout)
}
