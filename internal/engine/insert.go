package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/internal/sqlast"
)

// actionState tracks an insert action through its lifecycle. States only
// advance: Pending -> Nullified -> Executed -> Managed.
type actionState int

const (
	statePending actionState = iota
	stateNullified
	stateExecuted
	stateManaged
)

func (s actionState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateNullified:
		return "nullified"
	case stateExecuted:
		return "executed"
	case stateManaged:
		return "managed"
	default:
		return "unknown"
	}
}

// insertAction writes one entity instance: one INSERT per mapped table in
// write order (hierarchy root first), then registers the instance in the
// persistence context.
//
// Store-generated identifiers are captured from the root-table insert and
// flow into the remaining tables of the hierarchy and into every dependent
// action that resolves this instance later in the drain; dependents see the
// real generated key because to-one slots hold the instance, not a copied
// value.
type insertAction struct {
	session *Session
	mapping *meta.Entity
	entity  *Entity
	state   []any
	early   bool // identity insert executed at registration time

	position int
	seq      int64

	phase               actionState
	referencesNullified bool
	nullified           []nullifiedRef
}

func newInsertAction(s *Session, mapping *meta.Entity, e *Entity) *insertAction {
	return &insertAction{
		session:  s,
		mapping:  mapping,
		entity:   e,
		state:    snapshotState(e),
		early:    mapping.IDStrategy == meta.IDIdentity,
		position: s.reg.EntityPosition(mapping),
		seq:      s.seq.Next(),
	}
}

func (a *insertAction) kind() ActionKind { return ActionInsert }

func (a *insertAction) sortKey() sortKey { return sortKey{position: a.position, seq: a.seq} }

func (a *insertAction) String() string {
	return fmt.Sprintf("insert %s", a.entity)
}

// execute runs the full insert protocol: nullify transient references,
// seed the version slot, pre-flight nullability, send one INSERT per table
// root-first, then make the entity managed.
func (a *insertAction) execute(ctx context.Context) error {
	a.nullifyTransientReferences()
	a.seedVersion()
	if err := a.checkNullability(); err != nil {
		return err
	}

	generated := a.mapping.IDStrategy == meta.IDIdentity
	if !generated && a.entity.ID == nil {
		return NewIdentityUnavailableError(a.session.uid, a.mapping.Name,
			"assigned identifier was never set")
	}

	for i := range a.mapping.Tables {
		t := &a.mapping.Tables[i]
		root := i == 0
		stmt, err := a.insertStatement(t, !(root && generated))
		if err != nil {
			return err
		}
		if root && generated {
			key, err := a.session.execInsertReturningKey(ctx, stmt)
			if err != nil {
				return err
			}
			a.entity.ID = key
			slog.Debug("captured generated key",
				"session", a.session.uid, "entity", a.entity.String())
			continue
		}
		if _, err := a.session.execMutation(ctx, stmt); err != nil {
			return err
		}
	}

	a.phase = stateExecuted
	a.makeEntityManaged()
	return nil
}

// insertStatement builds the INSERT for one table of the hierarchy. The
// identifier column is omitted on the root table of a store-generated
// insert; every other table receives the by-then-known key.
func (a *insertAction) insertStatement(t *meta.Table, withID bool) (sqlast.Insert, error) {
	var cols []string
	var vals []sqlast.Operand
	if withID {
		cols = append(cols, a.mapping.IDColumn)
		vals = append(vals, sqlast.Literal{Value: a.entity.ID})
	}
	for i := range a.mapping.Properties {
		p := &a.mapping.Properties[i]
		if a.mapping.OwningTable(p) != t.Name {
			continue
		}
		v, err := stateValue(p, a.state[i])
		if err != nil {
			return sqlast.Insert{}, err
		}
		cols = append(cols, p.Column)
		vals = append(vals, sqlast.Literal{Value: v})
	}
	return sqlast.Insert{Table: t.Name, Columns: cols, Values: vals}, nil
}

// seedVersion initialises an empty version slot to zero so the first write
// carries a defined version.
func (a *insertAction) seedVersion() {
	if vi := a.mapping.VersionIndex(); vi >= 0 && a.state[vi] == nil {
		a.state[vi] = int64(0)
	}
}

// makeEntityManaged registers the instance in the persistence context and
// re-attaches nullified references. Nullification is re-requested first so
// the protocol holds even on paths that reach managed without executing;
// the idempotency flag makes it a no-op after execute.
func (a *insertAction) makeEntityManaged() {
	a.nullifyTransientReferences()
	var version any
	if vi := a.mapping.VersionIndex(); vi >= 0 {
		version = a.state[vi]
	}
	a.session.pc.AddEntity(a.entity, a.state, version, LockWrite)
	a.restoreNullifiedReferences()
	a.phase = stateManaged
}
