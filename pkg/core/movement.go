package core

import "sync"

// Movement 车辆运动模型：给定起始姿态和输入，推进 dt 秒
// 实现必须是确定性的，回滚重放依赖这一点
type Movement interface {
	Step(pose Pose, input InputPayload, dt float32) Pose
}

// MovementFunc 函数适配器
type MovementFunc func(pose Pose, input InputPayload, dt float32) Pose

func (f MovementFunc) Step(pose Pose, input InputPayload, dt float32) Pose {
	return f(pose, input, dt)
}

// Vehicle 可读写姿态的活动实体
type Vehicle interface {
	GetPose() Pose
	SetPose(pose Pose)
}

// Kart 场景里的一辆车
// 渲染线程读取、模拟线程写入，所以加锁
type Kart struct {
	ID uint64

	mu   sync.RWMutex
	pose Pose
}

// NewKart 创建车辆
func NewKart(id uint64, pose Pose) *Kart {
	return &Kart{ID: id, pose: pose}
}

func (k *Kart) GetPose() Pose {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.pose
}

func (k *Kart) SetPose(pose Pose) {
	k.mu.Lock()
	k.pose = pose
	k.mu.Unlock()
}
