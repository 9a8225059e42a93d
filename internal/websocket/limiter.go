package websocket

import "sync/atomic"

// connLimiter caps total concurrent clients across all rooms so one instance
// cannot be driven past its configured connection budget. CAS loop instead of
// a plain Add so a reject never overshoots the cap.
type connLimiter struct {
	current atomic.Int64
	max     int64
}

// newConnLimiter builds a limiter; max <= 0 disables the cap.
func newConnLimiter(max int64) *connLimiter {
	return &connLimiter{max: max}
}

// acquire claims a slot, reporting false at capacity.
func (l *connLimiter) acquire() bool {
	if l.max <= 0 {
		l.current.Add(1)
		return true
	}
	for {
		cur := l.current.Load()
		if cur >= l.max {
			return false
		}
		if l.current.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (l *connLimiter) release() {
	l.current.Add(-1)
}

func (l *connLimiter) count() int64 {
	return l.current.Load()
}
