package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"kartnet/pkg/ai"
	"kartnet/pkg/core"
	"kartnet/pkg/logger"
	"kartnet/pkg/netcode"
	"kartnet/pkg/protocol"
)

// ReconnectGrace 断线后车辆保留的时间，期间可凭 Token 接回
const ReconnectGrace = 10 * time.Second

var (
	ErrRoomClosed = errors.New("房间已关闭")
	ErrRoomFull   = errors.New("房间已满")
)

// RoomConfig 房间参数
type RoomConfig struct {
	TickRate   int
	BufferSize int
	MaxPlayers int
	MaxCatchUp int
	GapWait    int
	HostBot    bool
}

// RoomStats 房间统计信息
type RoomStats struct {
	PlayerCount int
	Tick        core.Tick
	Simulation  netcode.SimulatorStats
}

// Room 一个房间一个协程：模拟器、时钟和连接表只在 Run 里访问
type Room struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	cfg    RoomConfig
	track  *core.Track
	now    func() time.Time

	clock *core.FixedStepClock
	sim   *netcode.Simulator

	sessions     map[uint64]Session
	disconnected map[uint64]time.Time // 断线时刻，超过 ReconnectGrace 后移除车辆
	slots        map[uint64]int
	pending      []core.StatePayload
	hostID       uint64

	joinCh  chan joinRequest
	inputCh chan InputEvent
	leaveCh chan leaveRequest
	statsCh chan chan RoomStats

	players   *atomic.Int32
	tick      *atomic.Int32
	idleSince *atomic.Time
	done      chan struct{}
}

type joinRequest struct {
	session   Session
	playerID  uint64
	name      string
	reconnect bool
	respCh    chan error
}

type leaveRequest struct {
	playerID uint64
	session  Session
}

func NewRoom(parent context.Context, id string, cfg RoomConfig) *Room {
	ctx, cancel := context.WithCancel(parent)
	if cfg.TickRate <= 0 {
		cfg.TickRate = core.DefaultTickRate
	}
	if cfg.MaxCatchUp <= 0 {
		cfg.MaxCatchUp = core.DefaultMaxCatchUp
	}
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = 8
	}

	r := &Room{
		id:           id,
		ctx:          ctx,
		cancel:       cancel,
		cfg:          cfg,
		track:        core.DefaultTrack(),
		now:          time.Now,
		clock:        core.NewFixedStepClock(cfg.TickRate),
		sessions:     make(map[uint64]Session),
		disconnected: make(map[uint64]time.Time),
		slots:        make(map[uint64]int),
		joinCh:       make(chan joinRequest),
		inputCh:      make(chan InputEvent, 256),
		leaveCh:      make(chan leaveRequest, 64),
		statsCh:      make(chan chan RoomStats),
		players:      atomic.NewInt32(0),
		tick:         atomic.NewInt32(0),
		idleSince:    atomic.NewTime(time.Now()),
		done:         make(chan struct{}),
	}

	simCfg := netcode.DefaultSimulatorConfig()
	simCfg.TickRate = cfg.TickRate
	if cfg.BufferSize > 0 {
		simCfg.BufferSize = cfg.BufferSize
		simCfg.LateInputWindow = cfg.BufferSize
	}
	simCfg.GapWait = cfg.GapWait
	r.sim = netcode.NewSimulator(simCfg, core.NewKartModel(), netcode.BroadcastFunc(r.collect), func() time.Time { return r.now() })
	return r
}

// SpawnHostBot 生成一辆由服务器本机 AI 驾驶的车，必须在 Run 之前调用
func (r *Room) SpawnHostBot(playerID uint64) error {
	driver := ai.NewDriver(ai.DefaultDriverConfig(r.cfg.TickRate), r.track)
	authority := netcode.NewLocalAuthority(playerID, driver, nil, r.now)
	kart, err := r.sim.Spawn(playerID, r.track.SpawnPose(r.slotFor(playerID)), authority)
	if err != nil {
		return err
	}
	driver.SetVehicle(kart)
	r.hostID = playerID
	r.log().WithField("player", playerID).Info("生成本机 AI 车")
	return nil
}

func (r *Room) log() *logrus.Entry {
	return logger.Log.WithField("room", r.id)
}

func (r *Room) Run(wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(r.done)
	defer r.recoverPanic()

	ticker := time.NewTicker(r.clock.TickInterval())
	defer ticker.Stop()

	r.log().Infof("房间循环启动: %d TPS", r.cfg.TickRate)

	last := r.now()
	for {
		select {
		case <-r.ctx.Done():
			r.closeAllSessions()
			r.log().Info("房间循环停止")
			return

		case req := <-r.joinCh:
			req.respCh <- r.handleJoin(req)

		case ev := <-r.inputCh:
			r.handleInput(ev)

		case req := <-r.leaveCh:
			r.handleLeave(req)

		case respCh := <-r.statsCh:
			respCh <- r.stats()

		case <-ticker.C:
			now := r.now()
			r.advance(now.Sub(last).Seconds())
			last = now
		}
	}
}

// recoverPanic 房间协程崩溃时上报 Sentry，只关闭这个房间
func (r *Room) recoverPanic() {
	err := recover()
	if err == nil {
		return
	}
	r.log().Errorf("房间循环崩溃: %v", err)

	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("room", r.id)
		scope.SetTag("tick", fmt.Sprint(r.tick.Load()))
	})
	hub.Recover(err)
	hub.Flush(2 * time.Second)

	r.cancel()
	r.closeAllSessions()
}

func (r *Room) Shutdown() {
	r.cancel()
}

// Done 房间协程退出后关闭
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) Join(session Session, playerID uint64, name string, reconnect bool) error {
	respCh := make(chan error, 1)

	select {
	case <-r.ctx.Done():
		return ErrRoomClosed
	case r.joinCh <- joinRequest{session: session, playerID: playerID, name: name, reconnect: reconnect, respCh: respCh}:
	}

	select {
	case <-r.ctx.Done():
		return ErrRoomClosed
	case err := <-respCh:
		return err
	}
}

func (r *Room) EnqueueInput(ev InputEvent) {
	select {
	case <-r.ctx.Done():
	case r.inputCh <- ev:
	}
}

func (r *Room) Leave(playerID uint64, session Session) {
	select {
	case <-r.ctx.Done():
	case r.leaveCh <- leaveRequest{playerID: playerID, session: session}:
	}
}

// Stats 在房间协程里取统计快照
func (r *Room) Stats() (RoomStats, error) {
	respCh := make(chan RoomStats, 1)
	select {
	case <-r.ctx.Done():
		return RoomStats{}, ErrRoomClosed
	case r.statsCh <- respCh:
	}
	select {
	case <-r.ctx.Done():
		return RoomStats{}, ErrRoomClosed
	case s := <-respCh:
		return s, nil
	}
}

// PlayerCount 在线玩家数（不含断线保留中的车和本机 AI）
func (r *Room) PlayerCount() int {
	return int(r.players.Load())
}

// CurrentTick 最近模拟的服务器 tick
func (r *Room) CurrentTick() core.Tick {
	return core.Tick(r.tick.Load())
}

// IdleSince 房间最后一次变空的时间
func (r *Room) IdleSince() time.Time {
	return r.idleSince.Load()
}

// advance 按真实经过的时间推进固定步长时钟，单次最多补跑 MaxCatchUp 个 tick
func (r *Room) advance(delta float64) {
	r.clock.Update(delta)

	ran := 0
	for ran < r.cfg.MaxCatchUp && r.clock.ShouldTick() {
		r.step(r.clock.CurrentTick())
		ran++
	}
	if ran == r.cfg.MaxCatchUp {
		if dropped := r.clock.DropBacklog(); dropped > 0 {
			r.log().Warnf("模拟落后，丢弃 %d 个 tick", dropped)
		}
	}
}

func (r *Room) step(tick core.Tick) {
	r.sim.Tick(tick)
	r.tick.Store(int32(tick))

	if len(r.pending) > 0 {
		r.broadcast(encode(protocol.NewStateUpdatePacket(tick, r.pending)))
		r.pending = r.pending[:0]
	}

	r.expireDisconnected()
}

// collect 模拟器每产出一个权威状态调用一次，同一 tick 的状态合并成一个包
func (r *Room) collect(state core.StatePayload) {
	r.pending = append(r.pending, state)
}

func (r *Room) handleJoin(req joinRequest) error {
	playerID := req.playerID
	log := r.log().WithFields(logrus.Fields{"player": playerID, "name": req.name})

	if old, ok := r.sessions[playerID]; ok {
		// 同一玩家的新连接顶替旧连接
		old.CloseWithoutNotify()
		delete(r.sessions, playerID)
		r.players.Dec()
	}

	_, exists := r.sim.Kart(playerID)
	if !exists {
		if len(r.sessions) >= r.cfg.MaxPlayers {
			return fmt.Errorf("%w (%d/%d)", ErrRoomFull, len(r.sessions), r.cfg.MaxPlayers)
		}
		if _, err := r.sim.Spawn(playerID, r.track.SpawnPose(r.slotFor(playerID)), nil); err != nil {
			return err
		}
	}
	delete(r.disconnected, playerID)

	token, err := GenerateSessionToken(playerID, r.id)
	if err != nil {
		if !exists {
			r.sim.Despawn(playerID)
		}
		return fmt.Errorf("生成会话 Token 失败: %w", err)
	}

	spawn, ok := r.sim.LatestState(playerID)
	if !ok {
		kart, _ := r.sim.Kart(playerID)
		spawn = core.StateFromPose(r.clock.CurrentTick(), playerID, kart.GetPose())
	}

	resp := &protocol.JoinResponse{
		Success:      true,
		PlayerID:     playerID,
		TickRate:     int32(r.cfg.TickRate),
		ServerTick:   r.clock.CurrentTick(),
		SessionToken: token,
		RoomID:       r.id,
		Spawn:        spawn,
	}
	session := req.session
	session.Bind(playerID, r.id)
	if err := session.Send(encode(protocol.NewJoinResponsePacket(resp))); err != nil {
		session.Bind(0, "")
		if !exists {
			r.sim.Despawn(playerID)
		}
		return fmt.Errorf("发送加入响应失败: %w", err)
	}

	r.sessions[playerID] = session
	r.players.Inc()

	// 新玩家先拿到其他车的当前状态
	if snapshot := r.sim.Snapshot(); len(snapshot) > 0 {
		_ = session.Send(encode(protocol.NewStateUpdatePacket(r.clock.CurrentTick(), snapshot)))
	}

	log.WithFields(logrus.Fields{
		"reconnect": req.reconnect,
		"restored":  exists,
		"tick":      r.clock.CurrentTick(),
		"players":   len(r.sessions),
	}).Info("玩家加入")
	return nil
}

func (r *Room) handleInput(ev InputEvent) {
	if _, ok := r.sessions[ev.PlayerID]; !ok {
		return
	}

	// 输入归属以连接为准
	for i := range ev.Inputs {
		ev.Inputs[i].OwnerID = ev.PlayerID
	}
	accepted, err := r.sim.EnqueueBatch(ev.PlayerID, ev.Inputs)
	if err != nil {
		r.log().WithFields(logrus.Fields{
			"player":   ev.PlayerID,
			"accepted": accepted,
		}).Debugf("输入入队失败: %v", err)
	}
}

func (r *Room) handleLeave(req leaveRequest) {
	current, ok := r.sessions[req.playerID]
	if !ok || (req.session != nil && current != req.session) {
		return
	}

	delete(r.sessions, req.playerID)
	r.players.Dec()
	r.disconnected[req.playerID] = r.now()
	if len(r.sessions) == 0 {
		r.idleSince.Store(r.now())
	}

	r.log().WithFields(logrus.Fields{
		"player":  req.playerID,
		"players": len(r.sessions),
	}).Info("玩家断开，保留车辆等待重连")
}

func (r *Room) expireDisconnected() {
	if len(r.disconnected) == 0 {
		return
	}
	now := r.now()
	for playerID, at := range r.disconnected {
		if now.Sub(at) < ReconnectGrace {
			continue
		}
		delete(r.disconnected, playerID)
		delete(r.slots, playerID)
		r.sim.Despawn(playerID)
		r.broadcast(encode(protocol.NewPlayerLeavePacket(playerID)))
		r.log().WithField("player", playerID).Info("玩家离开")
	}
}

// slotFor 为玩家分配最小的空闲起跑位
func (r *Room) slotFor(playerID uint64) int {
	if slot, ok := r.slots[playerID]; ok {
		return slot
	}
	used := make(map[int]bool, len(r.slots))
	for _, s := range r.slots {
		used[s] = true
	}
	slot := 0
	for used[slot] {
		slot++
	}
	r.slots[playerID] = slot
	return slot
}

func (r *Room) broadcast(data []byte) {
	for playerID, s := range r.sessions {
		if err := s.Send(data); err != nil {
			r.log().WithField("player", playerID).Debugf("发送失败: %v", err)
		}
	}
}

func (r *Room) stats() RoomStats {
	return RoomStats{
		PlayerCount: len(r.sessions),
		Tick:        r.clock.CurrentTick(),
		Simulation:  r.sim.Stats(),
	}
}

func (r *Room) closeAllSessions() {
	for _, s := range r.sessions {
		s.CloseWithoutNotify()
	}
	r.sessions = make(map[uint64]Session)
	r.players.Store(0)
}
