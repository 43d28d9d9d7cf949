package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countTicks(c *FixedStepClock) int {
	n := 0
	for c.ShouldTick() {
		n++
	}
	return n
}

func TestClockTickAccountingIndependentOfChunking(t *testing.T) {
	const rate = 60
	const total = 2.5 // 秒

	chunkings := map[string][]float64{
		"one shot": {total},
		"frames":   repeat(1.0/144, int(total*144)),
		"uneven":   {0.001, 0.5, 0.0333, 0.9, 0.3, 0.7657},
		"tiny":     repeat(0.0005, int(total/0.0005)),
	}

	for name, deltas := range chunkings {
		t.Run(name, func(t *testing.T) {
			c := NewFixedStepClock(rate)
			sum := 0.0
			ticks := 0
			for _, dt := range deltas {
				sum += dt
				c.Update(dt)
				ticks += countTicks(c)
			}
			expected := int(math.Floor(sum * rate))
			assert.InDelta(t, expected, ticks, 1)
			assert.Equal(t, Tick(ticks), c.CurrentTick())
			assert.Less(t, c.Accumulated(), c.MinTimeBetweenTicks())
		})
	}
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestClockZeroOneOrManyTicksPerUpdate(t *testing.T) {
	c := NewFixedStepClock(60)
	assert.InDelta(t, 1.0/60, c.MinTimeBetweenTicks(), 1e-12)

	c.Update(0.005)
	assert.Equal(t, 0, countTicks(c))

	c.Update(0.012)
	assert.Equal(t, 1, countTicks(c))

	c.Update(0.1)
	assert.Equal(t, 6, countTicks(c))
	assert.Equal(t, Tick(7), c.CurrentTick())
}

func TestClockIgnoresNegativeDelta(t *testing.T) {
	c := NewFixedStepClock(30)
	c.Update(-1)
	assert.False(t, c.ShouldTick())
	assert.Zero(t, c.Accumulated())
}

func TestClockDropBacklogKeepsRemainder(t *testing.T) {
	c := NewFixedStepClock(10)
	c.Update(1.05)
	require.True(t, c.ShouldTick())
	dropped := c.DropBacklog()
	assert.Equal(t, 9, dropped)
	assert.InDelta(t, 0.05, c.Accumulated(), 1e-9)
	assert.Equal(t, Tick(1), c.CurrentTick())
}

func TestClockSetTickAligns(t *testing.T) {
	c := NewFixedStepClock(0)
	assert.Equal(t, DefaultTickRate, c.TickRate())
	c.Update(0.01)
	c.SetTick(500)
	assert.Zero(t, c.Accumulated())
	c.Update(c.MinTimeBetweenTicks())
	require.True(t, c.ShouldTick())
	assert.Equal(t, Tick(501), c.CurrentTick())
}
