package ai

import (
	"github.com/go-gl/mathgl/mgl32"

	"kartnet/pkg/core"
)

// Blackboard 每次采样时行为树读写的数据
type Blackboard struct {
	Config *DriverConfig
	Track  *core.Track
	Drift  *core.CountdownTimer

	Pose core.Pose
	Dt   float32

	WaypointIndex int
	CornerIndex   int

	YawRate float32

	Move           mgl32.Vec2
	CounterSteered bool
}

// ResetFrame 写入本帧姿态，清空输出
func (bb *Blackboard) ResetFrame(pose core.Pose) {
	bb.Pose = pose
	bb.Move = mgl32.Vec2{}
	bb.CounterSteered = false
	bb.YawRate = pose.AngularVelocity[1]
}
