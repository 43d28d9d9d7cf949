package client

import (
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"kartnet/pkg/core"
)

// stateSnapshot 远端车辆状态快照（客户端插值缓冲）
type stateSnapshot struct {
	timestamp int64
	state     core.StatePayload
}

// RemoteSmoother 远端车辆插值与航位推测
// 远端车辆不做预测，只按收到的权威状态平滑显示
type RemoteSmoother struct {
	buffer               []stateSnapshot
	interpolationDelayMs int64 // 当前插值延迟（可动态调整）
}

// NewRemoteSmoother 创建插值缓冲器
func NewRemoteSmoother() *RemoteSmoother {
	return &RemoteSmoother{
		buffer:               make([]stateSnapshot, 0, InterpolationBufferSize),
		interpolationDelayMs: DefaultInterpolationDelayMs,
	}
}

// SetInterpolationDelay 设置插值延迟（毫秒）
func (s *RemoteSmoother) SetInterpolationDelay(delayMs int64) {
	if delayMs < MinInterpolationDelayMs {
		delayMs = MinInterpolationDelayMs
	}
	if delayMs > MaxInterpolationDelayMs {
		delayMs = MaxInterpolationDelayMs
	}
	s.interpolationDelayMs = delayMs
}

// GetInterpolationDelay 获取当前插值延迟（毫秒）
func (s *RemoteSmoother) GetInterpolationDelay() int64 {
	return s.interpolationDelayMs
}

// AddStateSnapshot 添加状态快照，tick 不比最新快照新的直接丢弃
func (s *RemoteSmoother) AddStateSnapshot(timestamp int64, state core.StatePayload) bool {
	if n := len(s.buffer); n > 0 && state.Tick <= s.buffer[n-1].state.Tick {
		return false
	}

	s.buffer = append(s.buffer, stateSnapshot{timestamp: timestamp, state: state})
	if len(s.buffer) > InterpolationBufferSize {
		s.buffer = s.buffer[1:]
	}
	return true
}

// Sample 取渲染时刻的姿态
func (s *RemoteSmoother) Sample(nowMs int64) (core.Pose, bool) {
	if len(s.buffer) == 0 {
		return core.Pose{}, false
	}

	renderTime := nowMs - s.interpolationDelayMs

	// 在缓冲区中找到 renderTime 两侧的快照
	for i := 0; i < len(s.buffer)-1; i++ {
		prev, next := s.buffer[i], s.buffer[i+1]
		if prev.timestamp <= renderTime && next.timestamp >= renderTime {
			s.cleanupOldSnapshots(renderTime)
			total := float32(next.timestamp - prev.timestamp)
			if total <= 0 {
				return next.state.Pose(), true
			}
			return lerpPose(prev.state.Pose(), next.state.Pose(), float32(renderTime-prev.timestamp)/total), true
		}
	}

	first := s.buffer[0]
	if renderTime < first.timestamp {
		return first.state.Pose(), true
	}

	// 缓冲区不足或渲染时间超出范围，使用航位推测
	last := s.buffer[len(s.buffer)-1]
	pose := last.state.Pose()
	elapsed := renderTime - last.timestamp
	if elapsed > DeadReckoningMaxMs {
		elapsed = DeadReckoningMaxMs
	}
	pose.Position = pose.Position.Add(pose.Velocity.Mul(float32(elapsed) / 1000))
	s.cleanupOldSnapshots(renderTime)
	return pose, true
}

// Latest 最近收到的权威状态
func (s *RemoteSmoother) Latest() (core.StatePayload, bool) {
	if len(s.buffer) == 0 {
		return core.StatePayload{}, false
	}
	return s.buffer[len(s.buffer)-1].state, true
}

func (s *RemoteSmoother) cleanupOldSnapshots(renderTime int64) {
	// 找到最后一个 <= renderTime 的快照索引
	cutoff := -1
	for i := 0; i < len(s.buffer); i++ {
		if s.buffer[i].timestamp <= renderTime {
			cutoff = i
		} else {
			break
		}
	}

	// 保留 cutoff 及之后的快照（cutoff 用于插值的 prev）
	if cutoff > 0 {
		s.buffer = s.buffer[cutoff:]
	}
}

func lerpPose(a, b core.Pose, t float32) core.Pose {
	return core.Pose{
		Position:        lerpVec3(a.Position, b.Position, t),
		Rotation:        mgl32.QuatSlerp(a.Rotation, b.Rotation, t),
		Velocity:        lerpVec3(a.Velocity, b.Velocity, t),
		AngularVelocity: lerpVec3(a.AngularVelocity, b.AngularVelocity, t),
	}
}

func lerpVec3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// RemoteKarts 所有远端车辆的插值缓冲
// 网络接收协程写入，渲染线程读取
type RemoteKarts struct {
	mu       sync.Mutex
	smoother map[uint64]*RemoteSmoother
	delayMs  int64
}

func NewRemoteKarts() *RemoteKarts {
	return &RemoteKarts{
		smoother: make(map[uint64]*RemoteSmoother),
		delayMs:  DefaultInterpolationDelayMs,
	}
}

// Add 记录一个远端权威状态
func (r *RemoteKarts) Add(nowMs int64, state core.StatePayload) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.smoother[state.OwnerID]
	if !ok {
		s = NewRemoteSmoother()
		s.SetInterpolationDelay(r.delayMs)
		r.smoother[state.OwnerID] = s
	}
	return s.AddStateSnapshot(nowMs, state)
}

// Remove 车辆离开
func (r *RemoteKarts) Remove(ownerID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.smoother, ownerID)
}

// SetInterpolationDelay 按当前往返时延调整所有车辆的插值延迟
func (r *RemoteKarts) SetInterpolationDelay(delayMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delayMs = delayMs
	for _, s := range r.smoother {
		s.SetInterpolationDelay(delayMs)
	}
}

// RemotePose 一辆远端车的显示姿态
type RemotePose struct {
	OwnerID uint64
	Pose    core.Pose
}

// Sample 取所有远端车辆在 nowMs 的显示姿态，按车主排序
func (r *RemoteKarts) Sample(nowMs int64) []RemotePose {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RemotePose, 0, len(r.smoother))
	for owner, s := range r.smoother {
		if pose, ok := s.Sample(nowMs); ok {
			out = append(out, RemotePose{OwnerID: owner, Pose: pose})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out
}

// Len 远端车辆数
func (r *RemoteKarts) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.smoother)
}
