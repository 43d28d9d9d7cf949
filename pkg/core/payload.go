package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Tick 固定步长模拟的节拍序号，单调递增，会话内不复用
type Tick int32

// InputPayload 一个 tick 内车主采集到的输入（客户端 -> 服务器）
type InputPayload struct {
	Tick             Tick
	CaptureTimestamp int64 // 采集时刻（毫秒）
	OwnerID          uint64
	Move             mgl32.Vec2 // 每轴范围 [-1, 1]
	ObservedPosition mgl32.Vec3 // 采集时车辆所在位置
}

// StatePayload 某个实体在某个 tick 的模拟结果（预测或权威）
type StatePayload struct {
	Tick            Tick
	OwnerID         uint64
	Position        mgl32.Vec3
	Rotation        mgl32.Quat
	Velocity        mgl32.Vec3
	AngularVelocity mgl32.Vec3
	RoundTripMs     float32 // 服务器测得的往返估计
}

// StateFromPose 用姿态构造状态
func StateFromPose(tick Tick, ownerID uint64, pose Pose) StatePayload {
	return StatePayload{
		Tick:            tick,
		OwnerID:         ownerID,
		Position:        pose.Position,
		Rotation:        pose.Rotation,
		Velocity:        pose.Velocity,
		AngularVelocity: pose.AngularVelocity,
	}
}

// Pose 取出状态中的姿态部分
func (s StatePayload) Pose() Pose {
	return Pose{
		Position:        s.Position,
		Rotation:        s.Rotation,
		Velocity:        s.Velocity,
		AngularVelocity: s.AngularVelocity,
	}
}

// ClampMove 把输入向量每个轴限制在 [-1, 1]
func ClampMove(move mgl32.Vec2) mgl32.Vec2 {
	return mgl32.Vec2{
		mgl32.Clamp(move[0], -1, 1),
		mgl32.Clamp(move[1], -1, 1),
	}
}
