package engine

import "sync/atomic"

// ownerLatch enforces the single-owner rule: every mutating session entry
// point acquires the latch for its duration, so a second goroutine calling
// into the same session concurrently is detected rather than silently
// interleaved. This is a fail-fast usage check, not a synchronisation
// primitive - the overlapping call is rejected, never queued.
type ownerLatch struct {
	busy atomic.Bool
}

// acquire takes the latch. Returns false when another caller holds it.
func (l *ownerLatch) acquire() bool {
	return l.busy.CompareAndSwap(false, true)
}

// release frees the latch.
func (l *ownerLatch) release() {
	l.busy.Store(false)
}
