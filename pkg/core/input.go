package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// InputSource 每个 tick 采样一次的输入源（键盘、AI、测试脚本）
type InputSource interface {
	Sample() mgl32.Vec2
}

// InputFunc 函数适配器
type InputFunc func() mgl32.Vec2

func (f InputFunc) Sample() mgl32.Vec2 {
	return f()
}

// ConstantInput 始终返回同一个输入
type ConstantInput mgl32.Vec2

func (c ConstantInput) Sample() mgl32.Vec2 {
	return mgl32.Vec2(c)
}

// ScriptedInput 按顺序回放一段输入，用完后保持最后一个
type ScriptedInput struct {
	Moves []mgl32.Vec2
	next  int
}

func (s *ScriptedInput) Sample() mgl32.Vec2 {
	if len(s.Moves) == 0 {
		return mgl32.Vec2{}
	}
	if s.next >= len(s.Moves) {
		return s.Moves[len(s.Moves)-1]
	}
	m := s.Moves[s.next]
	s.next++
	return m
}

// CaptureInput 采集一个 tick 的输入：采样、限幅，并记录 tick、时间、车主和当前位置
func CaptureInput(tick Tick, ownerID uint64, src InputSource, vehicle Vehicle, nowMs int64) InputPayload {
	var move mgl32.Vec2
	if src != nil {
		move = ClampMove(src.Sample())
	}
	var observed mgl32.Vec3
	if vehicle != nil {
		observed = vehicle.GetPose().Position
	}
	return InputPayload{
		Tick:             tick,
		CaptureTimestamp: nowMs,
		OwnerID:          ownerID,
		Move:             move,
		ObservedPosition: observed,
	}
}
