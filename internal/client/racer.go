package client

import (
	"time"

	"kartnet/internal/config"
	"kartnet/pkg/core"
	"kartnet/pkg/netcode"
	"kartnet/pkg/protocol"
)

// Racer 本地车手：本车、预测器和网络连接
// Advance 只能在一个协程里调用（ebiten 的 Update 或无界面模式的 ticker）
type Racer struct {
	network   *NetworkClient
	predictor *netcode.Predictor
	kart      *core.Kart
	track     *core.Track
	tickRate  int
}

// NewRacer 按加入响应创建本车并与服务器 tick 对齐
// source 需要读车辆姿态时（比如 AI），在创建后用 Kart() 绑定
func NewRacer(cfg config.Client, network *NetworkClient, join *protocol.JoinResponse, source core.InputSource) *Racer {
	tickRate := int(join.TickRate)
	if tickRate <= 0 {
		tickRate = cfg.TickRate
	}

	predCfg := netcode.DefaultPredictorConfig(join.PlayerID)
	predCfg.TickRate = tickRate
	if cfg.BufferSize > 0 {
		predCfg.BufferSize = cfg.BufferSize
	}
	if cfg.MaxCatchUp > 0 {
		predCfg.MaxCatchUpTicks = cfg.MaxCatchUp
	}
	if cfg.ReconcileThreshold > 0 {
		predCfg.ReconcileThreshold = float32(cfg.ReconcileThreshold)
	}
	if cfg.ReconcileCooldown >= 0 {
		predCfg.ReconcileCooldown = cfg.ReconcileCooldown
	}

	r := &Racer{
		network:  network,
		kart:     core.NewKart(join.PlayerID, join.Spawn.Pose()),
		track:    core.DefaultTrack(),
		tickRate: tickRate,
	}
	r.predictor = netcode.NewPredictor(predCfg, r.kart, core.NewKartModel(), source, network)
	r.predictor.SyncTick(join.ServerTick)
	network.SetLocalSink(r.predictor)
	return r
}

// Advance 喂入真实经过的时间
func (r *Racer) Advance(elapsed time.Duration) int {
	return r.predictor.Advance(elapsed.Seconds())
}

// Kart 本车
func (r *Racer) Kart() *core.Kart {
	return r.kart
}

func (r *Racer) Track() *core.Track {
	return r.track
}

func (r *Racer) Predictor() *netcode.Predictor {
	return r.predictor
}

func (r *Racer) Network() *NetworkClient {
	return r.network
}

func (r *Racer) TickRate() int {
	return r.tickRate
}

// Stats 预测统计快照，只能在 tick 循环所在协程读取
func (r *Racer) Stats() netcode.PredictorStats {
	return r.predictor.Stats()
}
