package ai

import (
	"github.com/chewxy/math32"

	"kartnet/pkg/core"
)

// DriverConfig AI 车手参数，距离单位与赛道一致
type DriverConfig struct {
	// ProximityThreshold 与当前路点小于该距离即切到下一个路点
	ProximityThreshold float32
	// UpdateCornerRange 接近弯道标记点时把弯道更新为当前路点
	UpdateCornerRange float32
	// BrakeRange 距弯道小于该距离开始漂移（降低油门）
	BrakeRange float32
	// SpeedWhileDrifting 漂移期间的油门
	SpeedWhileDrifting float32
	// TimeToDrift 单次漂移持续时间（秒）
	TimeToDrift float64
	// SteerDeadZone 目标方向偏差在该角度内不转向（弧度）
	SteerDeadZone float32
	// SpinThreshold 偏航角速度超过该值视为失控打滑，反打方向（弧度/秒）
	SpinThreshold float32
	// TickRate 采样频率，用于推进漂移计时和估算角速度
	TickRate int
}

// DefaultDriverConfig 默认参数
func DefaultDriverConfig(tickRate int) DriverConfig {
	if tickRate <= 0 {
		tickRate = core.DefaultTickRate
	}
	return DriverConfig{
		ProximityThreshold: 12,
		UpdateCornerRange:  25,
		BrakeRange:         30,
		SpeedWhileDrifting: 0.5,
		TimeToDrift:        0.5,
		SteerDeadZone:      5 * math32.Pi / 180,
		// 高于车辆模型的最大转向速度，只有外力导致的旋转会触发
		SpinThreshold: math32.Pi,
		TickRate:      tickRate,
	}
}
