package netcode

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"kartnet/pkg/core"
)

// linearModel 每个 tick 沿输入方向移动固定距离，便于手算期望值
var linearModel = core.MovementFunc(func(pose core.Pose, input core.InputPayload, dt float32) core.Pose {
	step := mgl32.Vec3{input.Move[0], 0, input.Move[1]}.Mul(60 * dt)
	pose.Position = pose.Position.Add(step)
	pose.Velocity = step.Mul(1 / dt)
	return pose
})

type recordingSender struct {
	sent []core.InputPayload
}

func (s *recordingSender) SendInput(input core.InputPayload) {
	s.sent = append(s.sent, input)
}

type recordingBroadcaster struct {
	states []core.StatePayload
}

func (b *recordingBroadcaster) BroadcastState(state core.StatePayload) {
	b.states = append(b.states, state)
}

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
