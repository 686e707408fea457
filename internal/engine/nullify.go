package engine

import (
	"log/slog"

	"github.com/stratumdb/stratum/internal/meta"
)

// nullifiedRef records one association slot cleared because its target was
// transient at execution time, so the original reference can be re-attached
// once the owning entity is managed.
type nullifiedRef struct {
	slot     int
	original *Entity
}

// nullifyTransientReferences clears every to-one slot whose target is not
// yet managed by this unit of work, collecting the cleared references for
// restoration after the entity becomes managed.
//
// Idempotent: the action records that nullification ran and later calls
// return without touching the state again. Both the execute path and the
// make-managed path call this, whichever runs first does the work. Clearing
// unresolved references is what lets both members of a reference cycle
// insert: the first row goes in with a null association and the live
// reference survives in memory.
func (a *insertAction) nullifyTransientReferences() {
	if a.referencesNullified {
		return
	}
	for i := range a.mapping.Properties {
		p := &a.mapping.Properties[i]
		if p.Kind != meta.KindToOne {
			continue
		}
		ref, ok := a.state[i].(*Entity)
		if !ok || ref == nil {
			continue
		}
		if a.session.isTransient(ref) {
			a.nullified = append(a.nullified, nullifiedRef{slot: i, original: ref})
			a.state[i] = nil
			slog.Debug("nullified transient reference",
				"session", a.session.uid,
				"entity", a.entity.String(),
				"property", p.Name,
				"target", ref.String())
		}
	}
	if a.phase == statePending {
		a.phase = stateNullified
	}
	a.referencesNullified = true
}

// restoreNullifiedReferences re-attaches the original references recorded
// during nullification. Runs after the entity is registered as managed; the
// restored values live in the managed state snapshot only, the store still
// holds null until a later update writes the resolved key.
func (a *insertAction) restoreNullifiedReferences() {
	for _, ref := range a.nullified {
		a.state[ref.slot] = ref.original
	}
	a.nullified = nil
}

// checkNullability verifies that no non-nullable column is about to receive
// null, after transient references were cleared. Violations surface as
// usage errors before any statement is sent, not as store errors after.
func (a *insertAction) checkNullability() error {
	for i := range a.mapping.Properties {
		p := &a.mapping.Properties[i]
		if p.Nullable {
			continue
		}
		v, err := stateValue(p, a.state[i])
		if err != nil {
			return err
		}
		if v == nil {
			return NewPreflightNullError(a.session.uid, a.mapping.Name, p.Name)
		}
	}
	return nil
}
