package netcode

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestSlotKeepsNewestValue(t *testing.T) {
	s := NewLatestSlot[int]()
	_, ok := s.Take()
	assert.False(t, ok)

	s.Offer(1)
	s.Offer(2)
	s.Offer(3)

	v, ok := s.Take()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = s.Take()
	assert.False(t, ok)
}

func TestLatestSlotSingleWriterSingleReader(t *testing.T) {
	s := NewLatestSlot[int]()
	const n = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			s.Offer(i)
		}
	}()

	last := 0
	for last < n {
		if v, ok := s.Take(); ok {
			require.Greater(t, v, last, "values must arrive in increasing order")
			last = v
		}
	}
	wg.Wait()
}
