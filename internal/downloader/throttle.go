package downloader

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// throttle bounds concurrent transfers with a weighted semaphore. Each
// rate-limit response permanently reserves one unit, shrinking the
// effective pool down to a floor of one transfer at a time. Capacity is
// never given back within a run; the remote's limits do not reset that
// fast.
type throttle struct {
	sem *semaphore.Weighted

	mu       sync.Mutex
	capacity int64
	reserved int64
	pending  int64
}

func newThrottle(workers int) *throttle {
	return &throttle{
		sem:      semaphore.NewWeighted(int64(workers)),
		capacity: int64(workers),
	}
}

func (t *throttle) acquire(ctx context.Context) error {
	return t.sem.Acquire(ctx, 1)
}

func (t *throttle) release() {
	t.mu.Lock()
	if t.pending > 0 {
		t.pending--
		t.reserved++
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.sem.Release(1)
}

// slowDown removes one unit of concurrency, keeping at least one. When
// every unit is held by an in-flight transfer the reservation is deferred
// and taken out of the next release instead of being dropped.
func (t *throttle) slowDown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.capacity-t.reserved-t.pending <= 1 {
		return
	}
	if t.sem.TryAcquire(1) {
		t.reserved++
	} else {
		t.pending++
	}
	slog.Info("rate limited, reducing concurrency", "effective", t.capacity-t.reserved-t.pending)
}

// effective returns the current concurrency limit, for visibility.
func (t *throttle) effective() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capacity - t.reserved - t.pending
}
