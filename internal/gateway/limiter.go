package gateway

import "sync/atomic"

// GlobalLimiter caps the process-wide connection count with a lock-free
// compare-and-swap loop.
type GlobalLimiter struct {
	current atomic.Int64
	max     int64
}

// NewGlobalLimiter creates a limiter allowing at most max concurrent
// connections. max <= 0 disables the cap.
func NewGlobalLimiter(max int64) *GlobalLimiter {
	return &GlobalLimiter{max: max}
}

// TryAcquire reserves a connection slot, returning false when the cap is
// reached.
func (l *GlobalLimiter) TryAcquire() bool {
	for {
		current := l.current.Load()
		if l.max > 0 && current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release frees a previously acquired slot.
func (l *GlobalLimiter) Release() {
	if l.current.Add(-1) < 0 {
		l.current.Store(0)
	}
}

// Current returns the number of held slots.
func (l *GlobalLimiter) Current() int64 {
	return l.current.Load()
}
