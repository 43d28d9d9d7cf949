package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDT = float32(1.0 / 60)

func runModel(m Movement, start Pose, moves []mgl32.Vec2) []Pose {
	out := make([]Pose, 0, len(moves))
	pose := start
	for i, mv := range moves {
		pose = m.Step(pose, InputPayload{Tick: Tick(i), Move: mv}, testDT)
		out = append(out, pose)
	}
	return out
}

func TestKartModelIsDeterministic(t *testing.T) {
	m := NewKartModel()
	moves := make([]mgl32.Vec2, 240)
	for i := range moves {
		moves[i] = mgl32.Vec2{float32(i%7-3) / 3, float32(i%5-1) / 2}
	}
	start := NewPose(mgl32.Vec3{1, 0, 2})

	a := runModel(m, start, moves)
	b := runModel(m, start, moves)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i], b[i], "step %d", i)
	}
}

func TestKartModelAcceleratesForward(t *testing.T) {
	m := NewKartModel()
	poses := runModel(m, NewPose(mgl32.Vec3{}), repeatMove(mgl32.Vec2{0, 1}, 60))
	last := poses[len(poses)-1]

	assert.Greater(t, last.Position.Z(), float32(0))
	assert.InDelta(t, 0, last.Position.X(), 1e-4)
	assert.InDelta(t, KartMotorAcceleration, last.Velocity.Z(), 0.5)
}

func TestKartModelCapsReverseSpeed(t *testing.T) {
	m := NewKartModel()
	poses := runModel(m, NewPose(mgl32.Vec3{}), repeatMove(mgl32.Vec2{0, -1}, 600))
	last := poses[len(poses)-1]

	assert.InDelta(t, -m.MaxReverseSpeed(), last.Velocity.Z(), 1e-3)
}

func TestKartModelEngineBrakingStops(t *testing.T) {
	m := NewKartModel()
	start := NewPose(mgl32.Vec3{})
	start.Velocity = mgl32.Vec3{0, 0, 0.15}
	next := m.Step(start, InputPayload{}, testDT)
	assert.Equal(t, mgl32.Vec3{}, next.Velocity)

	start.Velocity = mgl32.Vec3{0, 0, 30}
	next = m.Step(start, InputPayload{}, testDT)
	assert.Less(t, next.Velocity.Z(), float32(30))
	assert.Greater(t, next.Velocity.Z(), float32(29))
}

func TestKartModelSteersOnlyWhenMoving(t *testing.T) {
	m := NewKartModel()
	still := m.Step(NewPose(mgl32.Vec3{}), InputPayload{Move: mgl32.Vec2{1, 0}}, testDT)
	assert.Zero(t, still.AngularVelocity.Y())

	moving := NewPose(mgl32.Vec3{})
	moving.Velocity = mgl32.Vec3{0, 0, 40}
	turned := m.Step(moving, InputPayload{Move: mgl32.Vec2{1, 1}}, testDT)
	assert.InDelta(t, KartMaxSteerRate, turned.AngularVelocity.Y(), 1e-5)
	assert.Greater(t, Yaw(turned.Rotation), float32(0))
}

func TestClampMove(t *testing.T) {
	assert.Equal(t, mgl32.Vec2{1, -1}, ClampMove(mgl32.Vec2{3, -8}))
	assert.Equal(t, mgl32.Vec2{0.5, -0.25}, ClampMove(mgl32.Vec2{0.5, -0.25}))
}

func repeatMove(mv mgl32.Vec2, n int) []mgl32.Vec2 {
	out := make([]mgl32.Vec2, n)
	for i := range out {
		out[i] = mv
	}
	return out
}
