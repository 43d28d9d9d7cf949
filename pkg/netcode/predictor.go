package netcode

import (
	"time"

	"go.uber.org/atomic"

	"kartnet/pkg/core"
)

// Sender 把输入发往服务器，必须立即返回，不能阻塞 tick 循环
type Sender interface {
	SendInput(input core.InputPayload)
}

// SenderFunc 函数适配器
type SenderFunc func(input core.InputPayload)

func (f SenderFunc) SendInput(input core.InputPayload) { f(input) }

// PredictorConfig 预测器参数
type PredictorConfig struct {
	OwnerID            uint64
	TickRate           int
	BufferSize         int
	MaxCatchUpTicks    int
	ReconcileThreshold float32
	ReconcileCooldown  float64
}

// DefaultPredictorConfig 默认参数
func DefaultPredictorConfig(ownerID uint64) PredictorConfig {
	return PredictorConfig{
		OwnerID:            ownerID,
		TickRate:           core.DefaultTickRate,
		BufferSize:         core.DefaultBufferSize,
		MaxCatchUpTicks:    core.DefaultMaxCatchUp,
		ReconcileThreshold: core.DefaultReconcileThreshold,
		ReconcileCooldown:  core.DefaultReconcileCooldown,
	}
}

// PredictorStats 预测统计
type PredictorStats struct {
	Ticks          uint64
	DroppedTicks   uint64
	StatesReceived uint64
	StatesDropped  uint64
	LastRoundTrip  float32
	Reconcile      ReconcileStats
	State          ReconcileState
}

// Predictor 车主一侧的预测器，每个连接一份，持有时钟、历史缓冲与纠错器
//
// Advance/Tick 只在 tick 循环里调用；OnServerState 只在网络接收协程里调用。
// 两者之间只通过 LatestSlot 交换数据。
type Predictor struct {
	cfg      PredictorConfig
	clock    *core.FixedStepClock
	dt       float32
	vehicle  core.Vehicle
	movement core.Movement
	source   core.InputSource
	sender   Sender
	now      func() time.Time

	inputs     *core.RingBuffer[core.InputPayload]
	states     *core.RingBuffer[core.StatePayload]
	reconciler *Reconciler

	latest         *LatestSlot[core.StatePayload]
	newestReceived *atomic.Int64
	statesReceived *atomic.Uint64
	statesDropped  *atomic.Uint64

	ticks         uint64
	droppedTicks  uint64
	lastRoundTrip float32
}

// NewPredictor 创建预测器
func NewPredictor(cfg PredictorConfig, vehicle core.Vehicle, movement core.Movement,
	source core.InputSource, sender Sender) *Predictor {
	if cfg.TickRate <= 0 {
		cfg.TickRate = core.DefaultTickRate
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = core.DefaultBufferSize
	}
	if cfg.MaxCatchUpTicks <= 0 {
		cfg.MaxCatchUpTicks = core.DefaultMaxCatchUp
	}

	inputs := core.NewRingBuffer[core.InputPayload](cfg.BufferSize)
	states := core.NewRingBuffer[core.StatePayload](cfg.BufferSize)

	p := &Predictor{
		cfg:            cfg,
		clock:          core.NewFixedStepClock(cfg.TickRate),
		dt:             float32(1.0 / float64(cfg.TickRate)),
		vehicle:        vehicle,
		movement:       movement,
		source:         source,
		sender:         sender,
		now:            time.Now,
		inputs:         inputs,
		states:         states,
		latest:         NewLatestSlot[core.StatePayload](),
		newestReceived: atomic.NewInt64(-1),
		statesReceived: atomic.NewUint64(0),
		statesDropped:  atomic.NewUint64(0),
	}
	p.reconciler = NewReconciler(ReconcilerConfig{
		OwnerID:   cfg.OwnerID,
		Threshold: cfg.ReconcileThreshold,
		Cooldown:  cfg.ReconcileCooldown,
		TickRate:  cfg.TickRate,
	}, vehicle, movement, inputs, states)
	return p
}

// SetClock 替换时间源（测试用）
func (p *Predictor) SetClock(now func() time.Time) {
	p.now = now
}

// SyncTick 加入会话时与服务器 tick 对齐
func (p *Predictor) SyncTick(tick core.Tick) {
	p.clock.SetTick(tick)
}

// Advance 累加真实时间并跑完所有到期的 tick，返回本次运行的 tick 数
// 单帧补跑超过上限时丢弃积压，防止越追越慢
func (p *Predictor) Advance(realDelta float64) int {
	p.clock.Update(realDelta)

	ran := 0
	for ran < p.cfg.MaxCatchUpTicks && p.clock.ShouldTick() {
		p.step()
		ran++
	}
	if ran == p.cfg.MaxCatchUpTicks {
		p.droppedTicks += uint64(p.clock.DropBacklog())
	}
	return ran
}

// Tick 不经过时钟累加，直接推进一个 tick
func (p *Predictor) Tick() {
	p.clock.Update(p.clock.MinTimeBetweenTicks())
	if p.clock.ShouldTick() {
		p.step()
	}
}

// step 单个 tick 的流程，顺序不能调换：
// 先入缓冲再发送，保证发送丢失时本地仍有副本可重放；
// 先预测再纠错，保证刚模拟的 tick 可用于比较。
func (p *Predictor) step() {
	tick := p.clock.CurrentTick()

	input := core.CaptureInput(tick, p.cfg.OwnerID, p.source, p.vehicle, p.now().UnixMilli())
	p.inputs.Add(input, tick)

	if p.sender != nil {
		p.sender.SendInput(input)
	}

	pose := p.movement.Step(p.vehicle.GetPose(), input, p.dt)
	p.vehicle.SetPose(pose)
	p.states.Add(core.StateFromPose(tick, p.cfg.OwnerID, pose), tick)

	p.reconciler.Advance(p.clock.MinTimeBetweenTicks())
	p.reconcile(tick)

	p.ticks++
}

func (p *Predictor) reconcile(currentTick core.Tick) {
	server, ok := p.latest.Take()
	if !ok {
		return
	}
	p.lastRoundTrip = server.RoundTripMs
	p.reconciler.Reconcile(server, currentTick)
}

// OnServerState 网络接收协程调用：只保留比已收到的更新的本车状态
func (p *Predictor) OnServerState(state core.StatePayload) bool {
	if state.OwnerID != p.cfg.OwnerID {
		return false
	}
	p.statesReceived.Inc()
	if int64(state.Tick) <= p.newestReceived.Load() {
		p.statesDropped.Inc()
		return false
	}
	p.newestReceived.Store(int64(state.Tick))
	p.latest.Offer(state)
	return true
}

// CurrentTick 当前模拟到的 tick
func (p *Predictor) CurrentTick() core.Tick {
	return p.clock.CurrentTick()
}

// Predicted 读取某个 tick 的预测状态（带检查）
func (p *Predictor) Predicted(tick core.Tick) (core.StatePayload, bool) {
	return p.states.Lookup(tick)
}

// Input 读取某个 tick 的已缓冲输入（带检查）
func (p *Predictor) Input(tick core.Tick) (core.InputPayload, bool) {
	return p.inputs.Lookup(tick)
}

// Reconciler 纠错器
func (p *Predictor) Reconciler() *Reconciler {
	return p.reconciler
}

// Vehicle 本车
func (p *Predictor) Vehicle() core.Vehicle {
	return p.vehicle
}

// Stats 统计快照
func (p *Predictor) Stats() PredictorStats {
	return PredictorStats{
		Ticks:          p.ticks,
		DroppedTicks:   p.droppedTicks,
		StatesReceived: p.statesReceived.Load(),
		StatesDropped:  p.statesDropped.Load(),
		LastRoundTrip:  p.lastRoundTrip,
		Reconcile:      p.reconciler.Stats(),
		State:          p.reconciler.State(),
	}
}
