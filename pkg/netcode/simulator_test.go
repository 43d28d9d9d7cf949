package netcode

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kartnet/pkg/core"
)

func newTestSimulator(t *testing.T, cfg SimulatorConfig) (*Simulator, *recordingBroadcaster, *fakeClock) {
	t.Helper()
	b := &recordingBroadcaster{}
	clock := newFakeClock()
	return NewSimulator(cfg, linearModel, b, clock.Now), b, clock
}

func broadcastTicks(b *recordingBroadcaster) []core.Tick {
	ticks := make([]core.Tick, 0, len(b.states))
	for _, s := range b.states {
		ticks = append(ticks, s.Tick)
	}
	return ticks
}

func TestSimulatorAppliesInputsInTickOrder(t *testing.T) {
	sim, b, _ := newTestSimulator(t, DefaultSimulatorConfig())
	_, err := sim.Spawn(testOwner, core.NewPose(mgl32.Vec3{}), nil)
	require.NoError(t, err)

	for _, tick := range []core.Tick{3, 1, 2} {
		require.NoError(t, sim.EnqueueInput(remoteInput(tick)))
	}
	for tick := core.Tick(1); tick <= 3; tick++ {
		assert.Equal(t, 1, sim.Tick(tick))
	}

	assert.Equal(t, []core.Tick{1, 2, 3}, broadcastTicks(b))
	st, ok := sim.State(testOwner, 3)
	require.True(t, ok)
	assert.InDelta(t, 3, st.Position.Z(), 1e-5)

	latest, ok := sim.LatestState(testOwner)
	require.True(t, ok)
	assert.Equal(t, st, latest)
	assert.Equal(t, uint64(3), sim.Stats().Steps)
}

func TestSimulatorDiscardsLateDuplicateAndFutureInputs(t *testing.T) {
	cfg := DefaultSimulatorConfig()
	cfg.LateInputWindow = 10
	sim, b, _ := newTestSimulator(t, cfg)
	_, err := sim.Spawn(testOwner, core.NewPose(mgl32.Vec3{}), nil)
	require.NoError(t, err)

	require.NoError(t, sim.EnqueueInput(remoteInput(1)))
	assert.ErrorIs(t, sim.EnqueueInput(remoteInput(1)), ErrDuplicateInput)
	assert.ErrorIs(t, sim.EnqueueInput(remoteInput(11)), ErrFutureInput)
	sim.Tick(1)

	assert.ErrorIs(t, sim.EnqueueInput(remoteInput(1)), ErrLateInput)

	sim.Tick(30)
	assert.ErrorIs(t, sim.EnqueueInput(remoteInput(19)), ErrLateInput)

	stats := sim.Stats()
	assert.Equal(t, uint64(1), stats.Duplicates)
	assert.Equal(t, uint64(1), stats.FutureInputs)
	assert.Equal(t, uint64(2), stats.LateInputs)
	assert.Len(t, b.states, 1)
}

func TestSimulatorUnknownEntity(t *testing.T) {
	sim, _, _ := newTestSimulator(t, DefaultSimulatorConfig())
	assert.ErrorIs(t, sim.EnqueueInput(remoteInput(1)), ErrUnknownEntity)
	_, ok := sim.State(testOwner, 1)
	assert.False(t, ok)
}

func TestSimulatorSpawnTwiceFails(t *testing.T) {
	sim, _, _ := newTestSimulator(t, DefaultSimulatorConfig())
	_, err := sim.Spawn(testOwner, core.NewPose(mgl32.Vec3{}), nil)
	require.NoError(t, err)
	_, err = sim.Spawn(testOwner, core.NewPose(mgl32.Vec3{}), nil)
	assert.ErrorIs(t, err, ErrEntityExists)
}

func TestSimulatorLocalAuthorityStepsOncePerTick(t *testing.T) {
	sim, b, clock := newTestSimulator(t, DefaultSimulatorConfig())
	host := NewLocalAuthority(testOwner, core.ConstantInput{1, 0}, nil, clock.Now)
	kart, err := sim.Spawn(testOwner, core.NewPose(mgl32.Vec3{}), host)
	require.NoError(t, err)

	// 本地权威的车不接受网络输入，避免同一 tick 被推进两次
	assert.ErrorIs(t, sim.EnqueueInput(remoteInput(5)), ErrLocalAuthority)

	for tick := core.Tick(5); tick < 10; tick++ {
		assert.Equal(t, 1, sim.Tick(tick))
	}
	assert.InDelta(t, 5, kart.GetPose().Position.X(), 1e-4)
	assert.Equal(t, []core.Tick{5, 6, 7, 8, 9}, broadcastTicks(b))
	for _, s := range b.states {
		assert.Zero(t, s.RoundTripMs)
	}
}

func TestSimulatorStampsRoundTrip(t *testing.T) {
	sim, b, clock := newTestSimulator(t, DefaultSimulatorConfig())
	_, err := sim.Spawn(testOwner, core.NewPose(mgl32.Vec3{}), nil)
	require.NoError(t, err)

	in := remoteInput(1)
	in.CaptureTimestamp = clock.Now().UnixMilli()
	require.NoError(t, sim.EnqueueInput(in))
	clock.Advance(40 * time.Millisecond)

	sim.Tick(1)
	require.Len(t, b.states, 1)
	assert.Equal(t, float32(40), b.states[0].RoundTripMs)
	assert.Equal(t, testOwner, b.states[0].OwnerID)
}

func TestSimulatorStallsThenSkipsMissingInput(t *testing.T) {
	cfg := DefaultSimulatorConfig()
	cfg.GapWait = 2
	sim, b, _ := newTestSimulator(t, cfg)
	_, err := sim.Spawn(testOwner, core.NewPose(mgl32.Vec3{}), nil)
	require.NoError(t, err)

	require.NoError(t, sim.EnqueueInput(remoteInput(1)))
	require.NoError(t, sim.EnqueueInput(remoteInput(3)))

	assert.Equal(t, 1, sim.Tick(1))
	assert.Equal(t, 0, sim.Tick(2))
	assert.Equal(t, 0, sim.Tick(3))
	assert.Equal(t, 1, sim.Tick(4))

	assert.Equal(t, []core.Tick{1, 3}, broadcastTicks(b))
	stats := sim.Stats()
	assert.Equal(t, uint64(2), stats.Stalls)
	assert.Equal(t, uint64(1), stats.SkippedInputs)
}

func TestSimulatorCatchUpBudget(t *testing.T) {
	cfg := DefaultSimulatorConfig()
	cfg.CatchUpBacklog = 4
	cfg.MaxInputsPerTick = 2
	sim, _, _ := newTestSimulator(t, cfg)
	_, err := sim.Spawn(testOwner, core.NewPose(mgl32.Vec3{}), nil)
	require.NoError(t, err)

	for tick := core.Tick(1); tick <= 10; tick++ {
		require.NoError(t, sim.EnqueueInput(remoteInput(tick)))
	}

	var produced []int
	for tick := core.Tick(1); tick <= 7; tick++ {
		produced = append(produced, sim.Tick(tick))
	}
	// 10 -> 8 -> 6 -> 4，之后每 tick 一条
	assert.Equal(t, []int{2, 2, 2, 1, 1, 1, 1}, produced)
}

func TestSimulatorDespawn(t *testing.T) {
	sim, b, _ := newTestSimulator(t, DefaultSimulatorConfig())
	for _, owner := range []uint64{3, 1, 2} {
		_, err := sim.Spawn(owner, core.NewPose(mgl32.Vec3{float32(owner), 0, 0}), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, []uint64{3, 1, 2}, sim.Owners())

	require.NoError(t, sim.EnqueueInput(core.InputPayload{Tick: 1, OwnerID: 1}))
	assert.True(t, sim.Despawn(1))
	assert.False(t, sim.Despawn(1))

	assert.Equal(t, 0, sim.Tick(1))
	assert.Empty(t, b.states)
	assert.Equal(t, []uint64{3, 2}, sim.Owners())
	assert.ErrorIs(t, sim.EnqueueInput(core.InputPayload{Tick: 2, OwnerID: 1}), ErrUnknownEntity)

	snap := sim.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, uint64(3), snap[0].OwnerID)
	assert.Equal(t, float32(3), snap[0].Position.X())
	assert.Equal(t, 2, sim.Stats().Entities)
}

func TestSimulatorEnqueueBatch(t *testing.T) {
	sim, _, _ := newTestSimulator(t, DefaultSimulatorConfig())
	_, err := sim.Spawn(testOwner, core.NewPose(mgl32.Vec3{}), nil)
	require.NoError(t, err)

	batch := []core.InputPayload{remoteInput(1), remoteInput(2), remoteInput(3)}
	n, err := sim.EnqueueBatch(testOwner, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// 重发窗口里的旧输入被静默丢弃
	n, err = sim.EnqueueBatch(testOwner, append(batch, remoteInput(4)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	other := remoteInput(5)
	other.OwnerID = testOwner + 1
	_, err = sim.EnqueueBatch(testOwner, []core.InputPayload{other})
	assert.ErrorIs(t, err, ErrOwnerMismatch)
}
