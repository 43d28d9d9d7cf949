package netcode

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kartnet/pkg/core"
)

const testOwner = uint64(7)

func newTestPredictor(t *testing.T, movement core.Movement) (*Predictor, *recordingSender, *core.Kart) {
	t.Helper()
	cfg := DefaultPredictorConfig(testOwner)
	cfg.ReconcileThreshold = 10
	kart := core.NewKart(testOwner, core.NewPose(mgl32.Vec3{}))
	sender := &recordingSender{}
	p := NewPredictor(cfg, kart, movement, core.ConstantInput{0, 1}, sender)
	clock := newFakeClock()
	p.SetClock(clock.Now)
	return p, sender, kart
}

func snapshotStates(p *Predictor, from, to core.Tick) []core.StatePayload {
	out := make([]core.StatePayload, 0, int(to-from)+1)
	for tick := from; tick <= to; tick++ {
		s, _ := p.Predicted(tick)
		out = append(out, s)
	}
	return out
}

// replayFrom 从权威状态开始用已缓冲输入从头重放，作为期望值
func replayFrom(p *Predictor, movement core.Movement, server core.StatePayload, to core.Tick) []core.StatePayload {
	out := []core.StatePayload{server}
	pose := server.Pose()
	for tick := server.Tick + 1; tick <= to; tick++ {
		in, _ := p.Input(tick)
		pose = movement.Step(pose, in, float32(1.0/60))
		out = append(out, core.StateFromPose(tick, testOwner, pose))
	}
	return out
}

func TestPredictorTickOrder(t *testing.T) {
	var order []string
	kart := core.NewKart(testOwner, core.NewPose(mgl32.Vec3{}))

	var p *Predictor
	sender := SenderFunc(func(in core.InputPayload) {
		_, buffered := p.Input(in.Tick)
		assert.True(t, buffered, "input must be buffered before it is sent")
		order = append(order, "send")
	})
	movement := core.MovementFunc(func(pose core.Pose, in core.InputPayload, dt float32) core.Pose {
		order = append(order, "step")
		return linearModel(pose, in, dt)
	})
	p = NewPredictor(DefaultPredictorConfig(testOwner), kart, movement, core.ConstantInput{0, 1}, sender)

	p.Tick()
	assert.Equal(t, []string{"send", "step"}, order)
	assert.Equal(t, core.Tick(1), p.CurrentTick())

	in, ok := p.Input(1)
	require.True(t, ok)
	assert.Equal(t, testOwner, in.OwnerID)
	assert.Equal(t, mgl32.Vec2{0, 1}, in.Move)

	st, ok := p.Predicted(1)
	require.True(t, ok)
	assert.Equal(t, kart.GetPose().Position, st.Position)
}

func TestPredictorAdvanceCapsCatchUp(t *testing.T) {
	p, sender, _ := newTestPredictor(t, linearModel)

	ran := p.Advance(1.0) // 60 个 tick 到期，只跑上限个
	assert.Equal(t, core.DefaultMaxCatchUp, ran)
	assert.Len(t, sender.sent, core.DefaultMaxCatchUp)
	assert.InDelta(t, 60-core.DefaultMaxCatchUp, p.Stats().DroppedTicks, 1)

	assert.Equal(t, 0, p.Advance(0.001))
}

func TestPredictorEndToEndCorrection(t *testing.T) {
	p, sender, kart := newTestPredictor(t, linearModel)
	p.SyncTick(99)

	for i := 0; i < 10; i++ {
		p.Tick()
	}
	require.Equal(t, core.Tick(109), p.CurrentTick())
	assert.Len(t, sender.sent, 10)

	p100, ok := p.Predicted(100)
	require.True(t, ok)

	q100 := p100
	q100.Position = p100.Position.Add(mgl32.Vec3{12, 0, 0})
	q100.RoundTripMs = 50
	require.True(t, p.OnServerState(q100))

	p.Tick() // tick 110：先预测，再纠错
	require.Equal(t, core.Tick(110), p.CurrentTick())

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Reconcile.Corrected)
	assert.Equal(t, uint64(10), stats.Reconcile.ReplayedTicks)
	assert.Equal(t, StateCorrecting, stats.State)
	assert.True(t, p.Reconciler().CooldownActive())
	assert.InDelta(t, 12, stats.Reconcile.LastError, 1e-4)
	assert.InDelta(t, 50, stats.LastRoundTrip, 1e-6)

	expected := replayFrom(p, linearModel, q100, 110)
	assert.Equal(t, expected, snapshotStates(p, 100, 110))
	assert.Equal(t, expected[len(expected)-1].Pose(), kart.GetPose())

	// 冷却期间 tick 101 的权威状态只记账
	q101, _ := p.Predicted(101)
	q101.Position = q101.Position.Add(mgl32.Vec3{0, 0, 50})
	require.True(t, p.OnServerState(q101))
	p.Tick()

	stats = p.Stats()
	assert.Equal(t, uint64(1), stats.Reconcile.Corrected)
	assert.Equal(t, uint64(1), stats.Reconcile.DuringCooldown)
	last, _ := p.Reconciler().LastProcessed()
	assert.Equal(t, core.Tick(101), last)
}

func TestPredictorDropsOutOfOrderServerStates(t *testing.T) {
	p, _, _ := newTestPredictor(t, linearModel)
	for i := 0; i < 5; i++ {
		p.Tick()
	}

	s4, _ := p.Predicted(4)
	s2, _ := p.Predicted(2)
	assert.True(t, p.OnServerState(s4))
	assert.False(t, p.OnServerState(s2))
	assert.False(t, p.OnServerState(s4))

	other := s4
	other.OwnerID = testOwner + 1
	other.Tick = 5
	assert.False(t, p.OnServerState(other))

	p.Tick()
	stats := p.Stats()
	assert.Equal(t, uint64(3), stats.StatesReceived)
	assert.Equal(t, uint64(2), stats.StatesDropped)
	assert.Equal(t, uint64(1), stats.Reconcile.Accepted)
}

func TestPredictorWithKartModelReplayMatchesServer(t *testing.T) {
	model := core.NewKartModel()
	p, sender, kart := newTestPredictor(t, model)

	// 服务器用同样的模型和同样的输入模拟，但起点偏了 15 米
	server := NewSimulator(DefaultSimulatorConfig(), model, nil, nil)
	_, err := server.Spawn(testOwner, core.NewPose(mgl32.Vec3{15, 0, 0}), nil)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		p.Tick()
	}
	for i, in := range sender.sent[:5] {
		require.NoError(t, server.EnqueueInput(in))
		server.Tick(core.Tick(i + 1))
	}
	auth, ok := server.State(testOwner, 5)
	require.True(t, ok)

	p.OnServerState(auth)
	p.Tick()

	require.Equal(t, uint64(1), p.Stats().Reconcile.Corrected)

	// 继续把剩余输入喂给服务器，客户端的重放结果应与服务器逐 tick 一致
	for i, in := range sender.sent[5:21] {
		require.NoError(t, server.EnqueueInput(in))
		server.Tick(core.Tick(i + 6))
	}
	for tick := core.Tick(5); tick <= 21; tick++ {
		want, ok := server.State(testOwner, tick)
		require.True(t, ok, "server tick %d", tick)
		got, ok := p.Predicted(tick)
		require.True(t, ok, "client tick %d", tick)
		assert.True(t, want.Pose().ApproxEqual(got.Pose(), 1e-4), "tick %d", tick)
	}
	assert.InDelta(t, 0, kart.GetPose().Distance(mustState(t, server, 21).Pose()), 1e-4)
}

func mustState(t *testing.T, s *Simulator, tick core.Tick) core.StatePayload {
	t.Helper()
	st, ok := s.State(testOwner, tick)
	require.True(t, ok)
	return st
}
