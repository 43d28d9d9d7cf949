package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferCapacityRoundsToPowerOfTwo(t *testing.T) {
	assert.Equal(t, 1024, NewRingBuffer[int](1000).Capacity())
	assert.Equal(t, 1024, NewRingBuffer[int](1024).Capacity())
	assert.Equal(t, 1, NewRingBuffer[int](1).Capacity())
	assert.Equal(t, DefaultBufferSize, NewRingBuffer[int](0).Capacity())
}

func TestRingBufferAddressing(t *testing.T) {
	b := NewRingBuffer[string](8)
	ticks := []Tick{3, 4, 5, 9, 10, 100}
	for _, tick := range ticks {
		b.Add(string(rune('a'+tick%26)), tick)
	}
	// 9 和 1 同槽，10 和 2 同槽，100 和 4 同槽：4 已被覆盖
	for _, tick := range []Tick{3, 5, 9, 10, 100} {
		assert.Equal(t, string(rune('a'+tick%26)), b.Get(tick), "tick %d", tick)
	}
	assert.Equal(t, b.Get(100), b.Get(4))
}

func TestRingBufferGetReturnsStaleSlotSilently(t *testing.T) {
	b := NewRingBuffer[int](4)
	b.Add(1, 1)
	b.Add(5, 5)
	// tick 1 早于 5-4，Get 不做检查，返回覆盖后的值
	assert.Equal(t, 5, b.Get(1))

	_, ok := b.Lookup(1)
	assert.False(t, ok)
	v, ok := b.Lookup(5)
	require.True(t, ok)
	assert.Equal(t, 5, v)
}

func TestRingBufferLookupUnwrittenSlot(t *testing.T) {
	b := NewRingBuffer[StatePayload](16)
	_, ok := b.Lookup(0)
	assert.False(t, ok)

	b.Add(StatePayload{Tick: 0}, 0)
	_, ok = b.Lookup(0)
	assert.True(t, ok)

	b.Reset()
	_, ok = b.Lookup(0)
	assert.False(t, ok)
}
