package client

import "time"

// ===== 远端车辆插值配置（客户端专用）=====
const (
	// 插值缓冲延迟（毫秒）：远端车辆渲染时间滞后于收到的时间
	// 值越大越平滑，但延迟感越强；通常 100ms 是较好的折中
	DefaultInterpolationDelayMs int64 = 100
	MinInterpolationDelayMs     int64 = 50
	MaxInterpolationDelayMs     int64 = 300

	// 插值缓冲区大小：存储最近 N 个状态快照
	InterpolationBufferSize = 30

	// 航位推测最大时长（毫秒）：超过此时间未收到新状态则停止推测
	DeadReckoningMaxMs int64 = 250
)

// ===== 连接配置 =====
const (
	JoinTimeout  = 10 * time.Second
	PingInterval = time.Second

	// 收到的状态更新排队上限，渲染线程跟不上时丢弃
	stateQueueSize = 256
	sendQueueSize  = 256
)
