package focus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/metrics"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/platform/retry"
)

// WriteFunc persists a focus ref to the backing store.
type WriteFunc func(ctx context.Context, ref uuid.UUID) error

// AsyncWriter is the outbound focus write queue. Writes are fire-and-forget:
// local state already reflects the change before the write is attempted, and
// a failed write is logged and lost, never surfaced to the UI. The retry
// policy is injectable; the default is retry.NoRetries.
type AsyncWriter struct {
	write  WriteFunc
	policy retry.Policy
	wg     sync.WaitGroup
}

func NewAsyncWriter(write WriteFunc, policy retry.Policy) *AsyncWriter {
	if policy.MaxAttempts < 1 {
		policy = retry.NoRetries()
	}
	return &AsyncWriter{write: write, policy: policy}
}

// EnqueueWrite issues the write on its own goroutine and returns
// immediately.
func (w *AsyncWriter) EnqueueWrite(ref uuid.UUID) {
	metrics.FocusWritesTotal.Inc()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		err := retry.DoVoid(context.Background(), w.policy, retry.RetryAll, func() error {
			return w.write(context.Background(), ref)
		})
		if err != nil {
			metrics.FocusWriteFailuresTotal.Inc()
			slog.Warn("Focus write lost", "ref", ref.String(), "error", err)
		}
	}()
}

// Wait blocks until all in-flight writes finish. Used in tests and during
// shutdown.
func (w *AsyncWriter) Wait() {
	w.wg.Wait()
}
