package ai

import (
	"github.com/chewxy/math32"

	"kartnet/pkg/ai/bt"
)

// actAdvanceWaypoint 到达当前路点后切到下一个
func actAdvanceWaypoint(bb *Blackboard) bt.Status {
	target := bb.Track.Waypoints[bb.WaypointIndex]
	if target.Sub(bb.Pose.Position).Len() < bb.Config.ProximityThreshold {
		bb.WaypointIndex = bb.Track.Next(bb.WaypointIndex)
	}
	return bt.StatusSuccess
}

// actUpdateCorner 进入弯道更新范围后，把下一个弯道设为当前路点
func actUpdateCorner(bb *Blackboard) bt.Status {
	corner := bb.Track.Waypoints[bb.CornerIndex]
	if corner.Sub(bb.Pose.Position).Len() < bb.Config.UpdateCornerRange {
		bb.CornerIndex = bb.WaypointIndex
	}
	return bt.StatusSuccess
}

// actThrottle 接近弯道时开始漂移，漂移期间降低油门
func actThrottle(bb *Blackboard) bt.Status {
	corner := bb.Track.Waypoints[bb.CornerIndex]
	if corner.Sub(bb.Pose.Position).Len() < bb.Config.BrakeRange && !bb.Drift.IsRunning() {
		bb.Drift.Start()
	}
	if bb.Drift.IsRunning() {
		bb.Move[1] = bb.Config.SpeedWhileDrifting
	} else {
		bb.Move[1] = 1
	}
	return bt.StatusSuccess
}

func condSpinning(bb *Blackboard) bool {
	return math32.Abs(bb.YawRate) > bb.Config.SpinThreshold
}

// actCounterSteer 打滑时反打方向
func actCounterSteer(bb *Blackboard) bt.Status {
	bb.Move[0] = -sign(bb.YawRate)
	bb.CounterSteered = true
	return bt.StatusSuccess
}

// actSteerToWaypoint 按目标方向与车头的夹角转向，死区内回正
func actSteerToWaypoint(bb *Blackboard) bt.Status {
	to := bb.Track.Waypoints[bb.WaypointIndex].Sub(bb.Pose.Position)
	if to.Len() < 1e-4 {
		bb.Move[0] = 0
		return bt.StatusSuccess
	}
	forward := bb.Pose.Forward()
	current := math32.Atan2(forward[0], forward[2])
	desired := math32.Atan2(to[0], to[2])

	switch turn := DeltaAngle(current, desired); {
	case turn > bb.Config.SteerDeadZone:
		bb.Move[0] = 1
	case turn < -bb.Config.SteerDeadZone:
		bb.Move[0] = -1
	default:
		bb.Move[0] = 0
	}
	return bt.StatusSuccess
}

// DeltaAngle 从 from 转到 to 的最短有符号角度，范围 (-π, π]
func DeltaAngle(from, to float32) float32 {
	d := math32.Mod(to-from, 2*math32.Pi)
	if d > math32.Pi {
		d -= 2 * math32.Pi
	} else if d <= -math32.Pi {
		d += 2 * math32.Pi
	}
	return d
}

func sign(v float32) float32 {
	if v < 0 {
		return -1
	}
	return 1
}
