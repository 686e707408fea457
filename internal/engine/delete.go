package engine

import (
	"context"
	"fmt"

	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/internal/sqlast"
)

// deleteAction removes a managed entity's rows: one DELETE per mapped
// table in reverse write order, so subtype tables empty before the
// hierarchy root they reference. Versioned entities guard the delete on
// the version-owning table with the version managed when the action runs,
// so an update queued ahead of the delete guards with the bumped version.
// After the rows are gone the instance is evicted from the persistence
// context.
type deleteAction struct {
	session *Session
	mapping *meta.Entity
	entity  *Entity

	position int
	seq      int64
}

func newDeleteAction(s *Session, mapping *meta.Entity, e *Entity) *deleteAction {
	return &deleteAction{
		session:  s,
		mapping:  mapping,
		entity:   e,
		position: s.reg.EntityPosition(mapping),
		seq:      s.seq.Next(),
	}
}

func (a *deleteAction) kind() ActionKind { return ActionDelete }

func (a *deleteAction) sortKey() sortKey { return sortKey{position: a.position, seq: a.seq} }

func (a *deleteAction) String() string {
	return fmt.Sprintf("delete %s", a.entity)
}

func (a *deleteAction) execute(ctx context.Context) error {
	entry, ok := a.session.pc.EntryFor(a.entity)
	if !ok {
		// Registration verified managed state; losing it mid-drain is a
		// pipeline defect.
		panic(fmt.Sprintf("delete executed for unmanaged entity %s", a.entity))
	}

	versionTable := ""
	if vi := a.mapping.VersionIndex(); vi >= 0 {
		versionTable = a.mapping.OwningTable(&a.mapping.Properties[vi])
	}

	for i := len(a.mapping.Tables) - 1; i >= 0; i-- {
		t := &a.mapping.Tables[i]
		where := []sqlast.Predicate{
			sqlast.Comparison{
				Column:  sqlast.Col(a.mapping.IDColumn),
				Op:      sqlast.OpEq,
				Operand: sqlast.Literal{Value: a.entity.ID},
			},
		}
		guarded := false
		if entry.Version != nil && t.Name == versionTable {
			vi := a.mapping.VersionIndex()
			where = append(where, sqlast.Comparison{
				Column:  sqlast.Col(a.mapping.Properties[vi].Column),
				Op:      sqlast.OpEq,
				Operand: sqlast.Literal{Value: entry.Version},
			})
			guarded = true
		}

		stmt := sqlast.Delete{Table: t.Name, Where: sqlast.And{Predicates: where}}
		n, err := a.session.execMutation(ctx, stmt)
		if err != nil {
			return err
		}
		if n == 0 {
			detail := fmt.Sprintf("delete of %s matched no row in %s", a.entity, t.Name)
			if guarded {
				detail = fmt.Sprintf("version guard rejected delete of %s in %s", a.entity, t.Name)
			}
			return NewStaleStateError(a.session.uid, a.mapping.Name, detail)
		}
	}

	a.session.pc.RemoveEntity(a.entity)
	return nil
}

// collectionRemoval empties one collection side table for one owner: a
// single DELETE restricted to the owner's key. Scheduled ahead of entity
// deletes so side rows never outlive a removed owner, and also available
// standalone for callers clearing a collection without removing the owner.
type collectionRemoval struct {
	session *Session
	mapping *meta.Entity
	coll    *meta.Collection
	entity  *Entity

	position int
	seq      int64
}

func newCollectionRemoval(s *Session, mapping *meta.Entity, coll *meta.Collection, e *Entity) *collectionRemoval {
	return &collectionRemoval{
		session:  s,
		mapping:  mapping,
		coll:     coll,
		entity:   e,
		position: s.reg.TablePosition(coll.Table),
		seq:      s.seq.Next(),
	}
}

func (a *collectionRemoval) kind() ActionKind { return ActionCollectionRemoval }

func (a *collectionRemoval) sortKey() sortKey { return sortKey{position: a.position, seq: a.seq} }

func (a *collectionRemoval) String() string {
	return fmt.Sprintf("collection-removal %s.%s", a.entity, a.coll.Name)
}

func (a *collectionRemoval) execute(ctx context.Context) error {
	stmt := sqlast.Delete{
		Table: a.coll.Table,
		Where: sqlast.Comparison{
			Column:  sqlast.Col(a.coll.KeyColumn),
			Op:      sqlast.OpEq,
			Operand: sqlast.Literal{Value: a.entity.ID},
		},
	}
	// An empty collection deletes zero rows; that is not a failure.
	_, err := a.session.execMutation(ctx, stmt)
	return err
}
