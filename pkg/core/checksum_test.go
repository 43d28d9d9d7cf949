package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestChecksumDetectsDivergence(t *testing.T) {
	states := []StatePayload{
		StateFromPose(1, 7, NewPose(mgl32.Vec3{1, 2, 3})),
		StateFromPose(2, 7, NewPose(mgl32.Vec3{1, 2, 4})),
	}
	base := Checksum(states)

	same := append([]StatePayload(nil), states...)
	same[1].RoundTripMs = 120
	assert.Equal(t, base, Checksum(same), "rtt is not part of the fingerprint")

	moved := append([]StatePayload(nil), states...)
	moved[1].Position[2] += 0.001
	assert.NotEqual(t, base, Checksum(moved))

	assert.Equal(t, Checksum(nil), Checksum([]StatePayload{}))
}

func TestStatePoseRoundTrip(t *testing.T) {
	pose := Pose{
		Position:        mgl32.Vec3{1, 2, 3},
		Rotation:        mgl32.QuatRotate(0.3, mgl32.Vec3{0, 1, 0}),
		Velocity:        mgl32.Vec3{4, 5, 6},
		AngularVelocity: mgl32.Vec3{0, 0.5, 0},
	}
	s := StateFromPose(42, 9, pose)
	assert.Equal(t, Tick(42), s.Tick)
	assert.Equal(t, uint64(9), s.OwnerID)
	assert.Equal(t, pose, s.Pose())
	assert.InDelta(t, 0, pose.Distance(s.Pose()), 1e-9)
}
