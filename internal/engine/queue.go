package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// actionQueue holds the pending actions of one unit of work, segregated by
// kind. Registration order is preserved per kind; the drain order is
// established by sortActions just before execution.
//
// The queue is unbounded so a large object graph can register arbitrarily
// many actions between flushes without blocking.
//
// Not safe for concurrent use: the session's ownership latch guarantees a
// single caller, so the queue carries no locking of its own.
type actionQueue struct {
	inserts  []*insertAction
	updates  []*updateAction
	removals []*collectionRemoval
	deletes  []*deleteAction
}

func newActionQueue() *actionQueue {
	return &actionQueue{}
}

func (q *actionQueue) addInsert(a *insertAction) { q.inserts = append(q.inserts, a) }
func (q *actionQueue) addUpdate(a *updateAction) { q.updates = append(q.updates, a) }
func (q *actionQueue) addDelete(a *deleteAction) { q.deletes = append(q.deletes, a) }

// addRemoval queues a collection removal unless an equivalent one is
// already pending. An explicit collection clear followed by the owner's
// removal schedules the same side-table delete twice; one statement
// covers both.
func (q *actionQueue) addRemoval(a *collectionRemoval) {
	for _, r := range q.removals {
		if r.entity == a.entity && r.coll.Table == a.coll.Table {
			return
		}
	}
	q.removals = append(q.removals, a)
}

// hasDelete reports whether a delete is already pending for the instance.
func (q *actionQueue) hasDelete(e *Entity) bool {
	for _, d := range q.deletes {
		if d.entity == e {
			return true
		}
	}
	return false
}

// size returns the number of pending actions across all kinds.
func (q *actionQueue) size() int {
	return len(q.inserts) + len(q.updates) + len(q.removals) + len(q.deletes)
}

// sortActions orders each kind for the drain. Inserts and updates walk
// constraint positions ascending so referenced rows exist before rows that
// reference them; collection removals and deletes walk them descending so
// referencing rows disappear first. The registration sequence breaks ties,
// which is also what serialises the members of a reference cycle.
func (q *actionQueue) sortActions() {
	sort.SliceStable(q.inserts, func(i, j int) bool {
		return q.inserts[i].sortKey().less(q.inserts[j].sortKey())
	})
	sort.SliceStable(q.updates, func(i, j int) bool {
		return q.updates[i].sortKey().less(q.updates[j].sortKey())
	})
	sort.SliceStable(q.removals, func(i, j int) bool {
		return q.removals[i].sortKey().lessReversed(q.removals[j].sortKey())
	})
	sort.SliceStable(q.deletes, func(i, j int) bool {
		return q.deletes[i].sortKey().lessReversed(q.deletes[j].sortKey())
	})
}

// executeActions drains the queue sequentially: all inserts, then updates,
// then collection removals, then entity deletes. The first failure stops
// the drain immediately; actions already executed keep their effects and
// the remainder is never attempted. Cancellation is honoured between
// actions, never inside one.
func (q *actionQueue) executeActions(ctx context.Context) error {
	for _, batch := range [][]action{
		asActions(q.inserts),
		asActions(q.updates),
		asActions(q.removals),
		asActions(q.deletes),
	} {
		for _, a := range batch {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("flush interrupted before %s: %w", a, err)
			}
			slog.Debug("executing action", "action", a.String(), "kind", a.kind().String())
			if err := a.execute(ctx); err != nil {
				return fmt.Errorf("%s: %w", a, err)
			}
		}
	}
	return nil
}

// clear empties every kind. Called after a drain, successful or not:
// failed flushes discard the remaining actions rather than retry them.
func (q *actionQueue) clear() {
	q.inserts = nil
	q.updates = nil
	q.removals = nil
	q.deletes = nil
}

// asActions widens a concrete action slice to the capability interface.
func asActions[T action](list []T) []action {
	out := make([]action, len(list))
	for i, a := range list {
		out[i] = a
	}
	return out
}
