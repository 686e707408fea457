package engine

import "sync/atomic"

// Sequence is the monotonic registration counter for pending actions.
//
// Every action is stamped with a strictly increasing seq number at
// registration. Within one execution class and one constraint position the
// queue drains actions in seq order, so flushes are deterministic and two
// actions never compare equal.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations),
// though the session's ownership latch means only one goroutine normally
// calls Next().
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next sequence number and increments the counter.
// Calls are linearizable - each call returns a unique, increasing value.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
