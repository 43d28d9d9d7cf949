package netcode

import (
	"fmt"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/sirupsen/logrus"

	"kartnet/pkg/core"
	"kartnet/pkg/logger"
)

// Broadcaster 把权威状态发给所有关心的观察者（至少包括车主）
type Broadcaster interface {
	BroadcastState(state core.StatePayload)
}

// BroadcastFunc 函数适配器
type BroadcastFunc func(state core.StatePayload)

func (f BroadcastFunc) BroadcastState(state core.StatePayload) { f(state) }

// SimulatorConfig 服务器模拟参数
type SimulatorConfig struct {
	TickRate   int
	BufferSize int
	// LateInputWindow 输入 tick 与服务器 tick 的最大允许偏差，超出视为过期或异常
	LateInputWindow int
	// MaxInputsPerTick 队列积压时单个 tick 每个玩家最多应用的输入数
	MaxInputsPerTick int
	// CatchUpBacklog 队列长度超过该值时才允许一个 tick 应用多条输入
	CatchUpBacklog int
	MaxQueue       int
	// GapWait 缺失输入时最多等待的服务器 tick 数
	GapWait int
}

// DefaultSimulatorConfig 默认参数
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		TickRate:         core.DefaultTickRate,
		BufferSize:       core.DefaultBufferSize,
		LateInputWindow:  core.DefaultBufferSize,
		MaxInputsPerTick: 2,
		CatchUpBacklog:   4,
		MaxQueue:         256,
		GapWait:          3,
	}
}

// SimulatorStats 服务器模拟统计
type SimulatorStats struct {
	Steps         uint64
	Broadcasts    uint64
	LateInputs    uint64
	FutureInputs  uint64
	Duplicates    uint64
	QueueFull     uint64
	Stalls        uint64
	SkippedInputs uint64
	Entities      int
}

type entity struct {
	ownerID   uint64
	kart      *core.Kart
	authority Authority
	history   *core.RingBuffer[core.StatePayload]
	lastState core.StatePayload
	hasState  bool
}

// Simulator 服务器端权威模拟
// 不是并发安全的，只能由房间的单个协程驱动
type Simulator struct {
	cfg         SimulatorConfig
	dt          float32
	movement    core.Movement
	broadcaster Broadcaster
	now         func() time.Time

	tick     core.Tick
	entities *orderedmap.OrderedMap[uint64, *entity]
	stats    SimulatorStats
}

// NewSimulator 创建模拟器
func NewSimulator(cfg SimulatorConfig, movement core.Movement, broadcaster Broadcaster, now func() time.Time) *Simulator {
	def := DefaultSimulatorConfig()
	if cfg.TickRate <= 0 {
		cfg.TickRate = def.TickRate
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.MaxInputsPerTick <= 0 {
		cfg.MaxInputsPerTick = 1
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = def.MaxQueue
	}
	if now == nil {
		now = time.Now
	}
	return &Simulator{
		cfg:         cfg,
		dt:          float32(1.0 / float64(cfg.TickRate)),
		movement:    movement,
		broadcaster: broadcaster,
		now:         now,
		entities:    orderedmap.NewOrderedMap[uint64, *entity](),
	}
}

// Spawn 生成实体并确定它的权威来源，之后不会再改变
func (s *Simulator) Spawn(ownerID uint64, pose core.Pose, authority Authority) (*core.Kart, error) {
	if _, exists := s.entities.Get(ownerID); exists {
		return nil, fmt.Errorf("生成实体 %d: %w", ownerID, ErrEntityExists)
	}
	if authority == nil {
		authority = NewRemoteAuthority(s.cfg.MaxQueue, s.cfg.GapWait)
	}

	kart := core.NewKart(ownerID, pose)
	if local, ok := authority.(*LocalAuthority); ok {
		local.bindVehicle(kart)
	}

	s.entities.Set(ownerID, &entity{
		ownerID:   ownerID,
		kart:      kart,
		authority: authority,
		history:   core.NewRingBuffer[core.StatePayload](s.cfg.BufferSize),
	})

	logger.Log.WithFields(logrus.Fields{
		"owner": ownerID,
		"local": authority.Local(),
	}).Info("生成实体")
	return kart, nil
}

// Despawn 移除实体，丢弃它的全部缓冲与队列
func (s *Simulator) Despawn(ownerID uint64) bool {
	return s.entities.Delete(ownerID)
}

// EnqueueInput 网络收到的输入入队（由房间协程调用）
func (s *Simulator) EnqueueInput(input core.InputPayload) error {
	e, ok := s.entities.Get(input.OwnerID)
	if !ok {
		return ErrUnknownEntity
	}
	remote, ok := e.authority.(*RemoteAuthority)
	if !ok {
		return ErrLocalAuthority
	}

	if window := core.Tick(s.cfg.LateInputWindow); window > 0 {
		if input.Tick < s.tick-window {
			s.stats.LateInputs++
			return ErrLateInput
		}
		if input.Tick > s.tick+window {
			s.stats.FutureInputs++
			return ErrFutureInput
		}
	}

	err := remote.Enqueue(input)
	switch err {
	case nil:
	case ErrLateInput:
		s.stats.LateInputs++
	case ErrDuplicateInput:
		s.stats.Duplicates++
	case ErrInputQueueFull:
		s.stats.QueueFull++
	}
	return err
}

// EnqueueBatch 批量入队，返回成功入队的数量
// 客户端每次会重发最近若干条输入，大部分重复是正常现象
func (s *Simulator) EnqueueBatch(ownerID uint64, inputs []core.InputPayload) (int, error) {
	accepted := 0
	for _, in := range inputs {
		if in.OwnerID != ownerID {
			return accepted, ErrOwnerMismatch
		}
		err := s.EnqueueInput(in)
		switch err {
		case nil:
			accepted++
		case ErrUnknownEntity, ErrLocalAuthority:
			return accepted, err
		}
	}
	return accepted, nil
}

// Tick 推进一个服务器 tick：按加入顺序遍历实体，各自应用输入、存档、广播
func (s *Simulator) Tick(serverTick core.Tick) int {
	s.tick = serverTick
	produced := 0

	for el := s.entities.Front(); el != nil; el = el.Next() {
		e := el.Value
		budget := 1
		if remote, ok := e.authority.(*RemoteAuthority); ok && remote.Pending() > s.cfg.CatchUpBacklog {
			budget = s.cfg.MaxInputsPerTick
		}

		for i := 0; i < budget; i++ {
			input, ok := e.authority.Next(serverTick)
			if !ok {
				break
			}
			s.apply(e, input)
			produced++
		}
	}
	return produced
}

func (s *Simulator) apply(e *entity, input core.InputPayload) {
	var rtt float32
	if !e.authority.Local() {
		rtt = float32(s.now().UnixMilli() - input.CaptureTimestamp)
		if rtt < 0 {
			rtt = 0
		}
	}

	pose := s.movement.Step(e.kart.GetPose(), input, s.dt)
	e.kart.SetPose(pose)

	state := core.StateFromPose(input.Tick, e.ownerID, pose)
	state.RoundTripMs = rtt
	e.history.Add(state, input.Tick)
	e.lastState = state
	e.hasState = true
	s.stats.Steps++

	if s.broadcaster != nil {
		s.broadcaster.BroadcastState(state)
		s.stats.Broadcasts++
	}
}

// State 读取某个实体在某 tick 的权威状态（带检查）
func (s *Simulator) State(ownerID uint64, tick core.Tick) (core.StatePayload, bool) {
	e, ok := s.entities.Get(ownerID)
	if !ok {
		return core.StatePayload{}, false
	}
	return e.history.Lookup(tick)
}

// LatestState 实体最近一次的权威状态
func (s *Simulator) LatestState(ownerID uint64) (core.StatePayload, bool) {
	e, ok := s.entities.Get(ownerID)
	if !ok || !e.hasState {
		return core.StatePayload{}, false
	}
	return e.lastState, true
}

// Snapshot 所有实体最近的权威状态，按加入顺序
func (s *Simulator) Snapshot() []core.StatePayload {
	out := make([]core.StatePayload, 0, s.entities.Len())
	for el := s.entities.Front(); el != nil; el = el.Next() {
		e := el.Value
		if e.hasState {
			out = append(out, e.lastState)
			continue
		}
		out = append(out, core.StateFromPose(s.tick, e.ownerID, e.kart.GetPose()))
	}
	return out
}

// Kart 取得实体的车辆
func (s *Simulator) Kart(ownerID uint64) (*core.Kart, bool) {
	e, ok := s.entities.Get(ownerID)
	if !ok {
		return nil, false
	}
	return e.kart, true
}

// Owners 按加入顺序列出实体
func (s *Simulator) Owners() []uint64 {
	return s.entities.Keys()
}

// CurrentTick 最近一次 Tick 的服务器 tick
func (s *Simulator) CurrentTick() core.Tick {
	return s.tick
}

// Stats 统计快照
func (s *Simulator) Stats() SimulatorStats {
	stats := s.stats
	stats.Entities = s.entities.Len()
	for el := s.entities.Front(); el != nil; el = el.Next() {
		if remote, ok := el.Value.authority.(*RemoteAuthority); ok {
			stalls, skipped := remote.Gaps()
			stats.Stalls += stalls
			stats.SkippedInputs += skipped
		}
	}
	return stats
}
