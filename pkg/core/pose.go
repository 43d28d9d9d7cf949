package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Pose 车辆的物理姿态（纯数据）
type Pose struct {
	Position        mgl32.Vec3
	Rotation        mgl32.Quat
	Velocity        mgl32.Vec3
	AngularVelocity mgl32.Vec3
}

// NewPose 在指定位置创建静止姿态，朝向为单位四元数
func NewPose(position mgl32.Vec3) Pose {
	return Pose{
		Position: position,
		Rotation: mgl32.QuatIdent(),
	}
}

// Distance 返回两个姿态的位置距离
func (p Pose) Distance(other Pose) float32 {
	return p.Position.Sub(other.Position).Len()
}

// ApproxEqual 判断两个姿态是否在给定误差内一致
func (p Pose) ApproxEqual(other Pose, epsilon float32) bool {
	return p.Position.ApproxEqualThreshold(other.Position, epsilon) &&
		p.Rotation.ApproxEqualThreshold(other.Rotation, epsilon) &&
		p.Velocity.ApproxEqualThreshold(other.Velocity, epsilon) &&
		p.AngularVelocity.ApproxEqualThreshold(other.AngularVelocity, epsilon)
}

// Forward 车头朝向（+Z 经旋转后的方向）
func (p Pose) Forward() mgl32.Vec3 {
	return p.Rotation.Rotate(mgl32.Vec3{0, 0, 1})
}
