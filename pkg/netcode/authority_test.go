package netcode

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kartnet/pkg/core"
)

func remoteInput(tick core.Tick) core.InputPayload {
	return core.InputPayload{Tick: tick, OwnerID: testOwner, Move: mgl32.Vec2{0, 1}}
}

func drain(a Authority, serverTick core.Tick) []core.Tick {
	var ticks []core.Tick
	for {
		in, ok := a.Next(serverTick)
		if !ok {
			return ticks
		}
		ticks = append(ticks, in.Tick)
	}
}

func TestRemoteAuthorityOrdersByTick(t *testing.T) {
	a := NewRemoteAuthority(16, 0)
	for _, tick := range []core.Tick{4, 1, 3, 2} {
		require.NoError(t, a.Enqueue(remoteInput(tick)))
	}
	assert.Equal(t, 4, a.Pending())
	assert.Equal(t, []core.Tick{1, 2, 3, 4}, drain(a, 0))

	last, ok := a.LastApplied()
	assert.True(t, ok)
	assert.Equal(t, core.Tick(4), last)
}

func TestRemoteAuthorityRejects(t *testing.T) {
	a := NewRemoteAuthority(2, 0)
	require.NoError(t, a.Enqueue(remoteInput(5)))
	assert.ErrorIs(t, a.Enqueue(remoteInput(5)), ErrDuplicateInput)
	require.NoError(t, a.Enqueue(remoteInput(6)))
	assert.ErrorIs(t, a.Enqueue(remoteInput(7)), ErrInputQueueFull)

	drain(a, 0)
	assert.ErrorIs(t, a.Enqueue(remoteInput(6)), ErrLateInput)
	assert.ErrorIs(t, a.Enqueue(remoteInput(2)), ErrLateInput)
	assert.NoError(t, a.Enqueue(remoteInput(7)))
}

func TestRemoteAuthorityWaitsForGap(t *testing.T) {
	a := NewRemoteAuthority(16, 2)
	require.NoError(t, a.Enqueue(remoteInput(1)))
	assert.Equal(t, []core.Tick{1}, drain(a, 1))

	require.NoError(t, a.Enqueue(remoteInput(4)))
	_, ok := a.Next(2)
	assert.False(t, ok)

	// 缺失的 tick 在等待期内补到
	require.NoError(t, a.Enqueue(remoteInput(2)))
	in, ok := a.Next(3)
	require.True(t, ok)
	assert.Equal(t, core.Tick(2), in.Tick)

	// tick 3 再也不来：等满 2 次后跳过
	_, ok = a.Next(4)
	assert.False(t, ok)
	_, ok = a.Next(5)
	assert.False(t, ok)
	in, ok = a.Next(6)
	require.True(t, ok)
	assert.Equal(t, core.Tick(4), in.Tick)

	stalls, skipped := a.Gaps()
	assert.Equal(t, uint64(3), stalls)
	assert.Equal(t, uint64(1), skipped)
}

func TestRemoteAuthorityWithoutWaitSkipsImmediately(t *testing.T) {
	a := NewRemoteAuthority(16, 0)
	require.NoError(t, a.Enqueue(remoteInput(1)))
	require.NoError(t, a.Enqueue(remoteInput(5)))
	assert.Equal(t, []core.Tick{1, 5}, drain(a, 0))

	_, skipped := a.Gaps()
	assert.Equal(t, uint64(3), skipped)
}

func TestLocalAuthorityCapturesEachServerTick(t *testing.T) {
	clock := newFakeClock()
	kart := core.NewKart(testOwner, core.NewPose(mgl32.Vec3{3, 0, 4}))
	a := NewLocalAuthority(testOwner, core.ConstantInput{2, -0.5}, kart, clock.Now)

	assert.True(t, a.Local())
	in, ok := a.Next(42)
	require.True(t, ok)
	assert.Equal(t, core.Tick(42), in.Tick)
	assert.Equal(t, testOwner, in.OwnerID)
	assert.Equal(t, mgl32.Vec2{1, -0.5}, in.Move)
	assert.Equal(t, mgl32.Vec3{3, 0, 4}, in.ObservedPosition)
	assert.Equal(t, clock.Now().UnixMilli(), in.CaptureTimestamp)
}
