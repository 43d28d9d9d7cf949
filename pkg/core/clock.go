package core

import (
	"math"
	"time"
)

// FixedStepClock 把真实流逝时间换算成固定步长的 tick
// currentTick 只在 ShouldTick 中前进，时钟是它唯一的写入者
type FixedStepClock struct {
	tickRate    int
	interval    float64
	accumulated float64
	currentTick Tick
}

// NewFixedStepClock 创建时钟，tickRate 非法时回退到默认值
func NewFixedStepClock(tickRate int) *FixedStepClock {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	return &FixedStepClock{
		tickRate: tickRate,
		interval: 1.0 / float64(tickRate),
	}
}

// Update 累加真实流逝时间（秒），负值忽略
func (c *FixedStepClock) Update(deltaSeconds float64) {
	if deltaSeconds <= 0 {
		return
	}
	c.accumulated += deltaSeconds
}

// ShouldTick 在循环中调用：每返回一次 true 消耗一个步长并推进 tick
func (c *FixedStepClock) ShouldTick() bool {
	// 留一点余量，避免 0.1+0.2 这类浮点累加误差吞掉一个 tick
	if c.accumulated+1e-9 < c.interval {
		return false
	}
	c.accumulated -= c.interval
	if c.accumulated < 0 {
		c.accumulated = 0
	}
	c.currentTick++
	return true
}

// DropBacklog 丢弃积压的整步时间，只保留不足一步的余数
// 调用方限制补帧数量后使用，返回丢弃的 tick 数
func (c *FixedStepClock) DropBacklog() int {
	if c.accumulated < c.interval {
		return 0
	}
	dropped := math.Floor(c.accumulated/c.interval + 1e-9)
	c.accumulated -= dropped * c.interval
	if c.accumulated < 0 {
		c.accumulated = 0
	}
	return int(dropped)
}

// CurrentTick 当前 tick
func (c *FixedStepClock) CurrentTick() Tick {
	return c.currentTick
}

// SetTick 对齐到服务器下发的 tick（仅在加入会话时使用）
func (c *FixedStepClock) SetTick(tick Tick) {
	c.currentTick = tick
	c.accumulated = 0
}

// TickRate 每秒 tick 数
func (c *FixedStepClock) TickRate() int {
	return c.tickRate
}

// MinTimeBetweenTicks 单个 tick 的时长（秒）
func (c *FixedStepClock) MinTimeBetweenTicks() float64 {
	return c.interval
}

// TickInterval 单个 tick 的时长，用于驱动 time.Ticker
func (c *FixedStepClock) TickInterval() time.Duration {
	return time.Duration(c.interval * float64(time.Second))
}

// Accumulated 尚未消耗的时间（秒）
func (c *FixedStepClock) Accumulated() float64 {
	return c.accumulated
}
