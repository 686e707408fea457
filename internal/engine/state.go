package engine

import (
	"fmt"

	"github.com/stratumdb/stratum/internal/meta"
)

// snapshotState copies an entity's state slice. Actions work on their own
// snapshot so caller mutations after registration do not leak into queued
// statements.
func snapshotState(e *Entity) []any {
	state := make([]any, len(e.State))
	copy(state, e.State)
	return state
}

// stateValue resolves one state slot to the value its column receives.
// Basic slots pass through; to-one slots dereference to the target's
// identifier, which is nil while the target is transient or the slot was
// nullified.
func stateValue(p *meta.Property, v any) (any, error) {
	if p.Kind != meta.KindToOne {
		return v, nil
	}
	switch ref := v.(type) {
	case nil:
		return nil, nil
	case *Entity:
		if ref == nil {
			return nil, nil
		}
		return ref.ID, nil
	default:
		return nil, fmt.Errorf("property %s: to-one slot holds %T, want *Entity", p.Name, v)
	}
}

// nextVersion computes the successor of an optimistic-lock version value.
func nextVersion(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n + 1, nil
	case int:
		return int64(n) + 1, nil
	default:
		return nil, fmt.Errorf("unsupported version type %T", v)
	}
}
