package engine

import (
	"sync"

	"github.com/google/uuid"
)

// UIDGenerator produces session uids. The uid tags every staging row a
// unit of work stages and appears in ownership and cleanup errors, so
// concurrent units sharing one staging table stay distinguishable.
type UIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session uids.
//
// UUIDv7 embeds a timestamp in the most significant bits, making uids
// sortable by session creation time, which is helpful when reading logs
// and leftover staging rows.
//
// Uses github.com/google/uuid package for RFC 4122 compliant UUIDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Format: "550e8400-e29b-41d4-a716-446655440000" (36 characters)
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined session uids for testing.
//
// This enables deterministic test execution and golden trace comparison:
// tests provide a known sequence of uids and verify exact statement output.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu   sync.Mutex
	uids []string
	idx  int
}

// NewFixedGenerator creates a generator that returns uids in order.
//
// Example:
//
//	gen := NewFixedGenerator("uow-1", "uow-2")
//	gen.Generate() // "uow-1"
//	gen.Generate() // "uow-2"
//	gen.Generate() // panic: all uids exhausted
func NewFixedGenerator(uids ...string) *FixedGenerator {
	return &FixedGenerator{uids: uids}
}

// Generate returns the next predetermined uid.
// Thread-safe: uses mutex to protect index access.
//
// Panics if all uids have been consumed. This is a fail-fast approach to
// catch test misconfiguration (test opened more sessions than expected).
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.uids) {
		panic("FixedGenerator: all uids exhausted")
	}
	uid := g.uids[g.idx]
	g.idx++
	return uid
}
