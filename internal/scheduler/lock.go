package scheduler

import "sync/atomic"

// indexLock provides non-blocking lock semantics using atomic operations.
// One lock exists per resource; a job that fails to acquire it backs off and
// retries instead of interleaving with the job that holds it.
type indexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
func (l *indexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock. Must only be called by the goroutine that
// successfully acquired it.
func (l *indexLock) Release() {
	l.state.Store(0)
}
