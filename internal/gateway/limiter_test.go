package gateway

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlobalLimiter_AcquireRelease(t *testing.T) {
	limiter := NewGlobalLimiter(3)

	assert.True(t, limiter.TryAcquire())
	assert.True(t, limiter.TryAcquire())
	assert.True(t, limiter.TryAcquire())
	assert.Equal(t, int64(3), limiter.Current())

	assert.False(t, limiter.TryAcquire())

	limiter.Release()
	assert.Equal(t, int64(2), limiter.Current())
	assert.True(t, limiter.TryAcquire())
}

func TestGlobalLimiter_ZeroMaxDisablesCap(t *testing.T) {
	limiter := NewGlobalLimiter(0)

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.TryAcquire())
	}
}

func TestGlobalLimiter_ConcurrentAcquire(t *testing.T) {
	limiter := NewGlobalLimiter(50)

	var wg sync.WaitGroup
	acquired := make(chan struct{}, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.TryAcquire() {
				acquired <- struct{}{}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, len(acquired))
	assert.Equal(t, int64(50), limiter.Current())
}
