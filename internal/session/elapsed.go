package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ElapsedTicker derives elapsed session time from the authoritative start
// timestamp on every tick. It is never accumulated incrementally, so the
// value stays correct across process suspension and resume.
type ElapsedTicker struct {
	clock    clockwork.Clock
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewElapsedTicker(clock clockwork.Clock, interval time.Duration) *ElapsedTicker {
	if interval <= 0 {
		interval = time.Second
	}
	return &ElapsedTicker{
		clock:    clock,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Run emits the elapsed seconds since start immediately and then on every
// tick until Stop is called or ctx is cancelled.
func (t *ElapsedTicker) Run(ctx context.Context, start time.Time, onTick func(elapsedSeconds int)) {
	onTick(t.elapsed(start))

	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			onTick(t.elapsed(start))
		case <-t.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop terminates the loop. Safe to call more than once.
func (t *ElapsedTicker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *ElapsedTicker) elapsed(start time.Time) int {
	return int(t.clock.Now().Sub(start) / time.Second)
}
