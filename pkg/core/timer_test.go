package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountdownTimer(t *testing.T) {
	var started, stopped int
	timer := NewCountdownTimer(0.1)
	timer.OnStart = func() { started++ }
	timer.OnStop = func() { stopped++ }

	assert.False(t, timer.IsRunning())
	timer.Tick(1)
	assert.Equal(t, 0, stopped)

	timer.Start()
	assert.True(t, timer.IsRunning())
	assert.InDelta(t, 1.0, timer.Progress(), 1e-9)

	for i := 0; i < 5; i++ {
		timer.Tick(1.0 / 60)
	}
	assert.True(t, timer.IsRunning())

	timer.Tick(1.0 / 60)
	assert.False(t, timer.IsRunning())
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, stopped)
}

func TestCountdownTimerRestartWhileRunning(t *testing.T) {
	started := 0
	timer := NewCountdownTimer(1)
	timer.OnStart = func() { started++ }
	timer.Start()
	timer.Tick(0.9)
	timer.Start()
	assert.InDelta(t, 1.0, timer.Remaining(), 1e-9)
	assert.Equal(t, 1, started)

	timer.Stop()
	assert.False(t, timer.IsRunning())
	assert.Zero(t, timer.Progress())
}
