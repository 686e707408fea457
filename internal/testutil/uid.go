package testutil

// FixedUIDGenerator generates the same session uid every time.
//
// This enables deterministic test execution and golden trace comparison.
// The same scenario with the same FixedUIDGenerator produces byte-identical
// statement traces.
//
// Unlike engine.FixedGenerator which returns uids in sequence, this
// generator always returns the same uid. This is useful for scenarios where
// every staging row should carry the same session tag.
//
// Thread-safety: FixedUIDGenerator is stateless and safe for concurrent use.
type FixedUIDGenerator struct {
	uid string
}

// NewFixedUIDGenerator creates a new fixed session uid generator.
//
// The uid is typically set in the scenario YAML:
//
//	session_uid: "test-uow-00000000-0000-0000-0000-000000000001"
//
// If uid is empty, Generate() returns "test-uow-default".
func NewFixedUIDGenerator(uid string) *FixedUIDGenerator {
	if uid == "" {
		uid = "test-uow-default"
	}
	return &FixedUIDGenerator{uid: uid}
}

// Generate returns the fixed session uid.
//
// Implements engine.UIDGenerator interface.
func (g *FixedUIDGenerator) Generate() string {
	return g.uid
}
