package netcode

import (
	"github.com/sirupsen/logrus"

	"kartnet/pkg/core"
	"kartnet/pkg/logger"
)

// ReconcileState 纠错状态机
type ReconcileState int

const (
	StateConverged  ReconcileState = iota // 预测与权威一致
	StateCorrecting                       // 刚回滚重放过，冷却中
)

func (s ReconcileState) String() string {
	switch s {
	case StateConverged:
		return "converged"
	case StateCorrecting:
		return "correcting"
	}
	return "unknown"
}

// Outcome 一次权威状态处理的结果
type Outcome int

const (
	OutcomeIgnored   Outcome = iota // 旧的或重复的权威状态
	OutcomeCooldown                 // 冷却中，只记账
	OutcomeStale                    // 本地历史里已没有该 tick 的预测
	OutcomeAccepted                 // 误差在阈值内
	OutcomeCorrected                // 已回滚并重放
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeCooldown:
		return "cooldown"
	case OutcomeStale:
		return "stale"
	case OutcomeAccepted:
		return "accepted"
	case OutcomeCorrected:
		return "corrected"
	}
	return "unknown"
}

// ReconcilerConfig 纠错参数
type ReconcilerConfig struct {
	OwnerID   uint64
	Threshold float32 // 位置误差阈值
	Cooldown  float64 // 纠错后的冷却时间（秒）
	TickRate  int
}

// ReconcileStats 纠错统计
type ReconcileStats struct {
	Processed      uint64
	Accepted       uint64
	Corrected      uint64
	DuringCooldown uint64
	Stale          uint64
	Ignored        uint64
	ReplayedTicks  uint64
	MissingInputs  uint64
	LastError      float32
	LastCorrection core.Tick
}

// Reconciler 比较权威状态与本地预测，误差过大时回滚到权威状态并重放输入
// 只在 tick 循环里调用，不做并发保护
type Reconciler struct {
	cfg      ReconcilerConfig
	dt       float32
	vehicle  core.Vehicle
	movement core.Movement
	inputs   *core.RingBuffer[core.InputPayload]
	states   *core.RingBuffer[core.StatePayload]

	cooldown *core.CountdownTimer
	state    ReconcileState

	lastProcessed core.Tick
	hasProcessed  bool

	stats ReconcileStats
}

// NewReconciler 创建纠错器，缓冲区由预测器持有并共享进来
func NewReconciler(cfg ReconcilerConfig, vehicle core.Vehicle, movement core.Movement,
	inputs *core.RingBuffer[core.InputPayload], states *core.RingBuffer[core.StatePayload]) *Reconciler {
	if cfg.TickRate <= 0 {
		cfg.TickRate = core.DefaultTickRate
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = core.DefaultReconcileThreshold
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}

	r := &Reconciler{
		cfg:      cfg,
		dt:       float32(1.0 / float64(cfg.TickRate)),
		vehicle:  vehicle,
		movement: movement,
		inputs:   inputs,
		states:   states,
		cooldown: core.NewCountdownTimer(cfg.Cooldown),
		state:    StateConverged,
	}
	r.cooldown.OnStop = func() { r.state = StateConverged }
	return r
}

// Advance 推进冷却计时，每个 tick 调用一次
func (r *Reconciler) Advance(dt float64) {
	r.cooldown.Tick(dt)
}

// ShouldReconcile 是否满足处理条件：tick 比上次新，且不在冷却中
func (r *Reconciler) ShouldReconcile(server core.StatePayload) bool {
	return r.isNewer(server.Tick) && !r.cooldown.IsRunning()
}

func (r *Reconciler) isNewer(tick core.Tick) bool {
	return !r.hasProcessed || tick > r.lastProcessed
}

// Reconcile 处理一条权威状态，currentTick 是客户端已经模拟到的 tick
func (r *Reconciler) Reconcile(server core.StatePayload, currentTick core.Tick) Outcome {
	if !r.isNewer(server.Tick) {
		r.stats.Ignored++
		return OutcomeIgnored
	}

	if r.cooldown.IsRunning() {
		r.markProcessed(server.Tick)
		r.stats.DuringCooldown++
		return OutcomeCooldown
	}

	predicted, ok := r.states.Lookup(server.Tick)
	if !ok || server.Tick > currentTick {
		r.markProcessed(server.Tick)
		r.stats.Stale++
		logger.Log.WithFields(logrus.Fields{
			"owner":   r.cfg.OwnerID,
			"tick":    server.Tick,
			"current": currentTick,
		}).Debug("权威状态对应的预测已不在历史中")
		return OutcomeStale
	}

	posErr := predicted.Position.Sub(server.Position).Len()
	r.stats.LastError = posErr

	if posErr <= r.cfg.Threshold {
		r.markProcessed(server.Tick)
		r.stats.Accepted++
		return OutcomeAccepted
	}

	replayed := r.rewind(server, currentTick)
	r.cooldown.Start()
	r.state = StateCorrecting
	r.markProcessed(server.Tick)
	r.stats.Corrected++
	r.stats.LastCorrection = server.Tick

	if logger.Log.IsLevelEnabled(logrus.DebugLevel) {
		logger.Log.WithFields(logrus.Fields{
			"owner":    r.cfg.OwnerID,
			"tick":     server.Tick,
			"current":  currentTick,
			"error":    posErr,
			"replayed": replayed,
			"checksum": r.checksum(server.Tick, currentTick),
		}).Debug("预测偏差超过阈值，回滚重放")
	}
	return OutcomeCorrected
}

// rewind 回到权威状态，然后用缓冲的输入重放到 currentTick
func (r *Reconciler) rewind(server core.StatePayload, currentTick core.Tick) int {
	authoritative := server.Pose()
	r.vehicle.SetPose(authoritative)

	base := server
	base.OwnerID = r.cfg.OwnerID
	r.states.Add(base, server.Tick)

	pose := authoritative
	replayed := 0
	for t := server.Tick + 1; t <= currentTick; t++ {
		input, ok := r.inputs.Lookup(t)
		if !ok {
			// 理论上不会发生：输入与状态缓冲容量相同
			r.stats.MissingInputs++
			input = core.InputPayload{Tick: t, OwnerID: r.cfg.OwnerID}
		}
		pose = r.movement.Step(pose, input, r.dt)
		r.states.Add(core.StateFromPose(t, r.cfg.OwnerID, pose), t)
		replayed++
	}
	r.vehicle.SetPose(pose)

	r.stats.ReplayedTicks += uint64(replayed)
	return replayed
}

func (r *Reconciler) markProcessed(tick core.Tick) {
	r.lastProcessed = tick
	r.hasProcessed = true
	r.stats.Processed++
}

func (r *Reconciler) checksum(from, to core.Tick) uint64 {
	states := make([]core.StatePayload, 0, int(to-from)+1)
	for t := from; t <= to; t++ {
		if s, ok := r.states.Lookup(t); ok {
			states = append(states, s)
		}
	}
	return core.Checksum(states)
}

// State 当前状态
func (r *Reconciler) State() ReconcileState {
	return r.state
}

// LastProcessed 最近处理过的权威 tick
func (r *Reconciler) LastProcessed() (core.Tick, bool) {
	return r.lastProcessed, r.hasProcessed
}

// CooldownActive 冷却是否进行中
func (r *Reconciler) CooldownActive() bool {
	return r.cooldown.IsRunning()
}

// Stats 统计快照
func (r *Reconciler) Stats() ReconcileStats {
	return r.stats
}

// Reset 断线重连时清空记账
func (r *Reconciler) Reset() {
	r.cooldown.Stop()
	r.state = StateConverged
	r.hasProcessed = false
	r.lastProcessed = 0
	r.stats = ReconcileStats{}
}
