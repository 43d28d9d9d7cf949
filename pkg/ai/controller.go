package ai

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"kartnet/pkg/ai/bt"
	"kartnet/pkg/core"
)

// Driver 沿赛道路点行驶的 AI 车手，实现 core.InputSource
// 每个 tick 调用一次 Sample
type Driver struct {
	mu      sync.Mutex
	config  DriverConfig
	vehicle core.Vehicle

	blackboard Blackboard
	tree       bt.Node[*Blackboard]
}

// NewDriver 创建车手，vehicle 可以稍后通过 SetVehicle 绑定
func NewDriver(config DriverConfig, track *core.Track) *Driver {
	if config.TickRate <= 0 {
		config.TickRate = core.DefaultTickRate
	}
	d := &Driver{config: config}

	d.blackboard = Blackboard{
		Config: &d.config,
		Track:  track,
		Drift:  core.NewCountdownTimer(config.TimeToDrift),
		Dt:     float32(1.0 / float64(config.TickRate)),
		// 起跑时朝第二个路点开
		WaypointIndex: track.Next(0),
		CornerIndex:   track.Next(0),
	}

	d.tree = &bt.Sequence[*Blackboard]{Children: []bt.Node[*Blackboard]{
		&bt.Action[*Blackboard]{Do: actAdvanceWaypoint},
		&bt.Action[*Blackboard]{Do: actUpdateCorner},
		&bt.Action[*Blackboard]{Do: actThrottle},
		&bt.Selector[*Blackboard]{Children: []bt.Node[*Blackboard]{
			&bt.Sequence[*Blackboard]{Children: []bt.Node[*Blackboard]{
				&bt.Condition[*Blackboard]{Check: condSpinning},
				&bt.Action[*Blackboard]{Do: actCounterSteer},
			}},
			&bt.Action[*Blackboard]{Do: actSteerToWaypoint},
		}},
	}}
	return d
}

// SetVehicle 绑定要驾驶的车
func (d *Driver) SetVehicle(v core.Vehicle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vehicle = v
}

// Sample 推进漂移计时并决策一次
func (d *Driver) Sample() mgl32.Vec2 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vehicle == nil || len(d.blackboard.Track.Waypoints) == 0 {
		return mgl32.Vec2{}
	}

	d.blackboard.Drift.Tick(float64(d.blackboard.Dt))
	d.blackboard.ResetFrame(d.vehicle.GetPose())
	_ = d.tree.Tick(&d.blackboard)
	return d.blackboard.Move
}

// Waypoint 当前目标路点序号
func (d *Driver) Waypoint() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blackboard.WaypointIndex
}

// CounterSteered 最近一次决策是否在反打方向
func (d *Driver) CounterSteered() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blackboard.CounterSteered
}

// Drifting 是否处于漂移降速中
func (d *Driver) Drifting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blackboard.Drift.IsRunning()
}
