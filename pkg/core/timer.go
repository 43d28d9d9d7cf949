package core

// CountdownTimer 简单倒计时，由调用方按步长推进，不依赖真实时钟
type CountdownTimer struct {
	duration  float64
	remaining float64
	running   bool

	OnStart func()
	OnStop  func()
}

// NewCountdownTimer 创建倒计时（秒）
func NewCountdownTimer(duration float64) *CountdownTimer {
	return &CountdownTimer{duration: duration}
}

// Start 从头开始倒计时
func (t *CountdownTimer) Start() {
	t.remaining = t.duration
	if t.running {
		return
	}
	t.running = true
	if t.OnStart != nil {
		t.OnStart()
	}
}

// Stop 立即停止
func (t *CountdownTimer) Stop() {
	if !t.running {
		return
	}
	t.running = false
	t.remaining = 0
	if t.OnStop != nil {
		t.OnStop()
	}
}

// Tick 推进 dt 秒，到时自动停止
func (t *CountdownTimer) Tick(dt float64) {
	if !t.running {
		return
	}
	t.remaining -= dt
	if t.remaining <= 1e-9 {
		t.Stop()
	}
}

// IsRunning 是否仍在倒计时
func (t *CountdownTimer) IsRunning() bool {
	return t.running
}

// Remaining 剩余秒数
func (t *CountdownTimer) Remaining() float64 {
	return t.remaining
}

// Progress 剩余比例，1 表示刚开始，0 表示已结束
func (t *CountdownTimer) Progress() float64 {
	if t.duration <= 0 || !t.running {
		return 0
	}
	return t.remaining / t.duration
}
