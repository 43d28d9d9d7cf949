package core

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

var worldUp = mgl32.Vec3{0, 1, 0}

// KartModel 确定性的卡丁车运动学模型
// 只在 XZ 平面上运动，偏航由转向输入和当前速度决定
type KartModel struct {
	MaxSpeed          float32
	SpeedRatio        float32
	Acceleration      float32
	EngineBraking     float32
	BrakeMultiplier   float32
	LowSpeedStop      float32
	InputSnap         float32
	MaxSteerRate      float32
	ReverseSteerScale float32
	LowSpeedTurn      float32
}

// NewKartModel 使用默认调校参数
func NewKartModel() *KartModel {
	return &KartModel{
		MaxSpeed:          KartMaxSpeed,
		SpeedRatio:        KartSpeedRatio,
		Acceleration:      KartMotorAcceleration,
		EngineBraking:     KartEngineBraking,
		BrakeMultiplier:   KartBrakeMultiplier,
		LowSpeedStop:      KartLowSpeedStop,
		InputSnap:         KartInputSnap,
		MaxSteerRate:      KartMaxSteerRate,
		ReverseSteerScale: KartReverseSteerScale,
		LowSpeedTurn:      KartLowSpeedTurn,
	}
}

// MaxReverseSpeed 倒车最大速度
func (m *KartModel) MaxReverseSpeed() float32 {
	return m.MaxSpeed / m.SpeedRatio
}

// Step 推进一个步长
func (m *KartModel) Step(pose Pose, input InputPayload, dt float32) Pose {
	move := ClampMove(input.Move)
	throttle := m.adjustInput(move[1])
	steer := m.adjustInput(move[0])

	yaw := Yaw(pose.Rotation)
	forward := mgl32.Vec3{math32.Sin(yaw), 0, math32.Cos(yaw)}

	// 带符号的前向速度，侧向分量直接丢弃
	speed := pose.Velocity.Dot(forward)
	if math32.Abs(speed) < m.LowSpeedStop {
		speed = 0
	}

	speed = m.accelerate(speed, throttle, dt)

	// 转向：低速时转向能力线性衰减，倒车时方向相反且幅度减小
	turnFactor := mgl32.Clamp(math32.Abs(speed)/m.LowSpeedTurn, 0, 1)
	direction := float32(1)
	steerScale := float32(1)
	if speed < 0 {
		direction = -1
		steerScale = m.ReverseSteerScale
	}
	yawRate := steer * m.MaxSteerRate * turnFactor * steerScale * direction
	yaw += yawRate * dt

	rotation := mgl32.QuatRotate(yaw, worldUp)
	heading := mgl32.Vec3{math32.Sin(yaw), 0, math32.Cos(yaw)}
	velocity := heading.Mul(speed)

	return Pose{
		Position:        pose.Position.Add(velocity.Mul(dt)),
		Rotation:        rotation,
		Velocity:        velocity,
		AngularVelocity: mgl32.Vec3{0, yawRate, 0},
	}
}

func (m *KartModel) accelerate(speed, throttle, dt float32) float32 {
	if math32.Abs(throttle) < 0.1 {
		// 发动机制动，减到 0 为止不反向
		decel := m.EngineBraking * (math32.Abs(speed) / m.MaxSpeed) / m.SpeedRatio * dt
		if math32.Abs(speed) <= decel {
			return 0
		}
		return speed - math32.Copysign(decel, speed)
	}

	target := m.targetSpeed(throttle, speed)
	accel := m.Acceleration * throttle
	braking := throttle < 0 && speed > 0
	if braking {
		accel *= m.BrakeMultiplier * m.SpeedRatio / 2
	}

	if braking || math32.Abs(speed) < math32.Abs(target) {
		speed += accel * dt
		if !braking && math32.Abs(speed) > math32.Abs(target) {
			speed = target
		}
	}

	return mgl32.Clamp(speed, -m.MaxReverseSpeed(), m.MaxSpeed)
}

func (m *KartModel) targetSpeed(throttle, speed float32) float32 {
	switch {
	case throttle < 0 && speed > 0:
		return throttle * m.MaxSpeed * m.BrakeMultiplier * m.SpeedRatio / 2
	case throttle < 0:
		return throttle * m.MaxSpeed / m.SpeedRatio
	default:
		return throttle * m.MaxSpeed
	}
}

func (m *KartModel) adjustInput(v float32) float32 {
	switch {
	case v >= m.InputSnap:
		return 1
	case v <= -m.InputSnap:
		return -1
	default:
		return v
	}
}

// Yaw 从旋转中取出绕 Y 轴的偏航角
func Yaw(rotation mgl32.Quat) float32 {
	f := rotation.Rotate(mgl32.Vec3{0, 0, 1})
	return math32.Atan2(f[0], f[2])
}
