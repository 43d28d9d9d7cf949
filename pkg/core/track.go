package core

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Track 赛道：闭合的路点环和起跑格
type Track struct {
	Waypoints []mgl32.Vec3
	// 起跑线在第一个路点，车头朝向第二个路点
	GridSpacing float32
	Bounds      [2]mgl32.Vec2 // XZ 平面上的包围盒 (min, max)
}

// NewOvalTrack 以原点为中心的椭圆赛道，路点按行驶方向排列
func NewOvalTrack(radiusX, radiusZ float32, points int) *Track {
	if points < 3 {
		points = 3
	}
	t := &Track{
		Waypoints:   make([]mgl32.Vec3, points),
		GridSpacing: 6,
	}
	for i := range t.Waypoints {
		a := 2 * math32.Pi * float32(i) / float32(points)
		t.Waypoints[i] = mgl32.Vec3{radiusX * math32.Cos(a), 0, radiusZ * math32.Sin(a)}
	}
	margin := t.GridSpacing * 4
	t.Bounds = [2]mgl32.Vec2{
		{-radiusX - margin, -radiusZ - margin},
		{radiusX + margin, radiusZ + margin},
	}
	return t
}

// DefaultTrack 默认赛道
func DefaultTrack() *Track {
	return NewOvalTrack(120, 80, 16)
}

// Heading 起跑方向的偏航角
func (t *Track) Heading() float32 {
	d := t.Waypoints[1].Sub(t.Waypoints[0])
	return math32.Atan2(d[0], d[2])
}

// SpawnPose 第 slot 个起跑位：两列交错排在起跑线后方
func (t *Track) SpawnPose(slot int) Pose {
	if slot < 0 {
		slot = 0
	}
	yaw := t.Heading()
	rotation := mgl32.QuatRotate(yaw, mgl32.Vec3{0, 1, 0})
	forward := rotation.Rotate(mgl32.Vec3{0, 0, 1})
	right := mgl32.Vec3{forward[2], 0, -forward[0]}

	lateral := (float32(slot%2) - 0.5) * t.GridSpacing
	row := float32(slot / 2)

	pose := NewPose(t.Waypoints[0].
		Add(right.Mul(lateral)).
		Sub(forward.Mul(row * t.GridSpacing)))
	pose.Rotation = rotation
	return pose
}

// Next 路点环上 i 的下一个序号
func (t *Track) Next(i int) int {
	return (i + 1) % len(t.Waypoints)
}
