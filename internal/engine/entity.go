package engine

import "fmt"

// Entity is one in-memory entity instance tracked by a unit of work. The
// state slice is ordered to match the mapping's property list; slots for
// to-one associations hold a *Entity reference (or nil), never a raw key
// value. ID is nil until assigned by the caller or generated by the store.
type Entity struct {
	// Name is the mapped entity name.
	Name string

	// ID is the identifier value. Must be comparable; nil means the
	// identifier is not yet known.
	ID any

	// State is the property-ordered value snapshot. The session copies it
	// at registration time; later caller mutations do not affect queued
	// actions.
	State []any
}

// NewEntity creates an entity instance. Pass a nil id for entities whose
// identifier is generated by the store.
func NewEntity(name string, id any, state []any) *Entity {
	return &Entity{Name: name, ID: id, State: state}
}

// String renders the instance as name#id for logs and error messages.
func (e *Entity) String() string {
	if e.ID == nil {
		return e.Name + "#(transient)"
	}
	return fmt.Sprintf("%s#%v", e.Name, e.ID)
}

// EntityKey uniquely identifies a managed entity within one unit of work.
type EntityKey struct {
	EntityName string
	ID         any
}

func (k EntityKey) String() string {
	return fmt.Sprintf("%s#%v", k.EntityName, k.ID)
}

// LockMode records the lock level a managed entity was registered with.
type LockMode int

const (
	// LockNone is the default read lock level.
	LockNone LockMode = iota
	// LockWrite marks an entity whose row this unit of work has written.
	LockWrite
)

func (m LockMode) String() string {
	if m == LockWrite {
		return "write"
	}
	return "none"
}
