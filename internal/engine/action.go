package engine

import "context"

// ActionKind identifies the mutation a pending action performs. The kind
// doubles as the execution class: the queue drains all inserts, then all
// updates, then all collection removals, then all entity deletes.
type ActionKind int

const (
	ActionInsert ActionKind = iota
	ActionUpdate
	ActionCollectionRemoval
	ActionDelete
)

func (k ActionKind) String() string {
	switch k {
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	case ActionCollectionRemoval:
		return "collection-removal"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// action is the capability surface the queue drains through. Concrete
// kinds (insertAction, updateAction, deleteAction, collectionRemoval)
// implement it; the queue never inspects their internals.
type action interface {
	kind() ActionKind
	// execute renders and sends the action's statements. Runs at most
	// once per action.
	execute(ctx context.Context) error
	// sortKey orders the action inside its execution class.
	sortKey() sortKey
	String() string
}

// sortKey orders actions within one execution class: first by the
// constraint position of the target's primary table, then by registration
// sequence. Insert-class actions walk positions ascending (parents first);
// delete-class and collection-removal actions walk them descending
// (children first). The registration sequence breaks ties so equal-position
// actions, including members of a reference cycle, drain in the order they
// were queued.
type sortKey struct {
	position int
	seq      int64
}

// less compares two keys with ascending position order.
func (k sortKey) less(o sortKey) bool {
	if k.position != o.position {
		return k.position < o.position
	}
	return k.seq < o.seq
}

// lessReversed compares two keys with descending position order.
func (k sortKey) lessReversed(o sortKey) bool {
	if k.position != o.position {
		return k.position > o.position
	}
	return k.seq < o.seq
}
