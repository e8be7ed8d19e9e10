package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_StartsBeforeFirstFrame(t *testing.T) {
	assert.Equal(t, int64(0), NewClock().Current())
	assert.Equal(t, int64(100), NewClockAt(100).Current(), "resumed clock keeps its frame")
}

func TestClock_NextAdvancesOneFrame(t *testing.T) {
	c := NewClock()

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
	assert.Equal(t, int64(2), c.Current(), "Current must not advance")
}

func TestClock_ConcurrentReads(t *testing.T) {
	c := NewClock()
	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = c.Current()
			}
		}()
	}
	for range 50 {
		c.Next()
	}
	wg.Wait()

	assert.Equal(t, int64(50), c.Current())
}
