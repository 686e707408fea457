package engine

import (
	"context"
	"fmt"

	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/internal/sqlast"
)

// updateAction rewrites a managed entity's rows from a state snapshot
// taken at registration: one UPDATE per owning table, each restricted to
// the entity's key. Versioned entities additionally guard the
// version-owning table and bump the version by one. The guard value is
// resolved when the action runs, not when it is queued, so an earlier
// update of the same instance in the same flush moves the guard forward.
// A guarded statement that matches no row means another writer got there
// first and the action fails with a stale-state error.
type updateAction struct {
	session *Session
	mapping *meta.Entity
	entity  *Entity
	state   []any

	// oldVersion and newVersion are working state for one execution,
	// filled in from the persistence context entry at drain time.
	oldVersion any
	newVersion any

	position int
	seq      int64
}

func newUpdateAction(s *Session, mapping *meta.Entity, e *Entity) *updateAction {
	return &updateAction{
		session:  s,
		mapping:  mapping,
		entity:   e,
		state:    snapshotState(e),
		position: s.reg.EntityPosition(mapping),
		seq:      s.seq.Next(),
	}
}

func (a *updateAction) kind() ActionKind { return ActionUpdate }

func (a *updateAction) sortKey() sortKey { return sortKey{position: a.position, seq: a.seq} }

func (a *updateAction) String() string {
	return fmt.Sprintf("update %s", a.entity)
}

func (a *updateAction) execute(ctx context.Context) error {
	entry, ok := a.session.pc.EntryFor(a.entity)
	if !ok {
		// Registration verified managed state; losing it mid-drain is a
		// pipeline defect.
		panic(fmt.Sprintf("update executed for unmanaged entity %s", a.entity))
	}

	versionTable := ""
	if vi := a.mapping.VersionIndex(); vi >= 0 {
		versionTable = a.mapping.OwningTable(&a.mapping.Properties[vi])
		a.oldVersion = entry.Version
		next, err := nextVersion(entry.Version)
		if err != nil {
			return fmt.Errorf("update %s: %w", a.entity, err)
		}
		a.newVersion = next
		a.state[vi] = next
	}

	for i := range a.mapping.Tables {
		t := &a.mapping.Tables[i]
		stmt, guarded, err := a.updateStatement(t, versionTable)
		if err != nil {
			return err
		}
		if len(stmt.Assignments) == 0 {
			continue
		}
		n, err := a.session.execMutation(ctx, stmt)
		if err != nil {
			return err
		}
		if n == 0 {
			detail := fmt.Sprintf("update of %s matched no row in %s", a.entity, t.Name)
			if guarded {
				detail = fmt.Sprintf("version guard rejected update of %s in %s", a.entity, t.Name)
			}
			return NewStaleStateError(a.session.uid, a.mapping.Name, detail)
		}
	}

	entry.State = a.state
	entry.Version = a.newVersion
	entry.LockMode = LockWrite
	return nil
}

// updateStatement builds the UPDATE for one owning table. Returns whether
// the statement carries the optimistic-lock guard.
func (a *updateAction) updateStatement(t *meta.Table, versionTable string) (sqlast.Update, bool, error) {
	var assigns []sqlast.Assignment
	for i := range a.mapping.Properties {
		p := &a.mapping.Properties[i]
		if a.mapping.OwningTable(p) != t.Name {
			continue
		}
		v, err := stateValue(p, a.state[i])
		if err != nil {
			return sqlast.Update{}, false, err
		}
		assigns = append(assigns, sqlast.Assignment{
			Column:  p.Column,
			Operand: sqlast.Literal{Value: v},
		})
	}

	where := []sqlast.Predicate{
		sqlast.Comparison{
			Column:  sqlast.Col(a.mapping.IDColumn),
			Op:      sqlast.OpEq,
			Operand: sqlast.Literal{Value: a.entity.ID},
		},
	}
	guarded := false
	if a.oldVersion != nil && t.Name == versionTable {
		vi := a.mapping.VersionIndex()
		where = append(where, sqlast.Comparison{
			Column:  sqlast.Col(a.mapping.Properties[vi].Column),
			Op:      sqlast.OpEq,
			Operand: sqlast.Literal{Value: a.oldVersion},
		})
		guarded = true
	}

	return sqlast.Update{
		Table:       t.Name,
		Assignments: assigns,
		Where:       sqlast.And{Predicates: where},
	}, guarded, nil
}
