package engine

import "fmt"

// ManagedEntity is the persistence context's record of one managed
// instance: the instance itself, the state snapshot the pipeline last
// wrote (or loaded), the optimistic-lock version, and the lock mode.
type ManagedEntity struct {
	Entity   *Entity
	State    []any
	Version  any
	LockMode LockMode
}

// PersistenceContext tracks the entities a unit of work manages, keyed by
// (entity name, id). An entity is transient exactly when it is absent
// here; the transient-reference nullifier consults this to classify
// association targets.
//
// Not safe for concurrent use. The session's ownership latch serializes
// access.
type PersistenceContext struct {
	entries map[EntityKey]*ManagedEntity
	keys    map[*Entity]EntityKey
}

func newPersistenceContext() *PersistenceContext {
	return &PersistenceContext{
		entries: make(map[EntityKey]*ManagedEntity),
		keys:    make(map[*Entity]EntityKey),
	}
}

// AddEntity registers an instance as managed. Registering the same
// instance or the same key twice is a programming error in the pipeline
// and panics: every insert action must transition its entity to managed
// exactly once.
func (pc *PersistenceContext) AddEntity(e *Entity, state []any, version any, mode LockMode) {
	key := EntityKey{EntityName: e.Name, ID: e.ID}
	if _, dup := pc.entries[key]; dup {
		panic(fmt.Sprintf("persistence context: duplicate registration for %s", key))
	}
	if _, dup := pc.keys[e]; dup {
		panic(fmt.Sprintf("persistence context: instance %s registered twice", e))
	}
	pc.entries[key] = &ManagedEntity{Entity: e, State: state, Version: version, LockMode: mode}
	pc.keys[e] = key
}

// ContainsEntity reports whether the instance is managed.
func (pc *PersistenceContext) ContainsEntity(e *Entity) bool {
	_, ok := pc.keys[e]
	return ok
}

// EntityByKey returns the managed instance registered under the key.
func (pc *PersistenceContext) EntityByKey(key EntityKey) (*Entity, bool) {
	entry, ok := pc.entries[key]
	if !ok {
		return nil, false
	}
	return entry.Entity, true
}

// Entry returns the full managed record for the key.
func (pc *PersistenceContext) Entry(key EntityKey) (*ManagedEntity, bool) {
	entry, ok := pc.entries[key]
	return entry, ok
}

// EntryFor returns the managed record for the instance.
func (pc *PersistenceContext) EntryFor(e *Entity) (*ManagedEntity, bool) {
	key, ok := pc.keys[e]
	if !ok {
		return nil, false
	}
	return pc.entries[key], true
}

// RemoveEntity evicts an instance after its row has been deleted. Removing
// an unmanaged instance is a no-op.
func (pc *PersistenceContext) RemoveEntity(e *Entity) {
	key, ok := pc.keys[e]
	if !ok {
		return
	}
	delete(pc.entries, key)
	delete(pc.keys, e)
}

// Size returns the number of managed entities.
func (pc *PersistenceContext) Size() int {
	return len(pc.entries)
}

// Clear evicts everything. Called when the session closes.
func (pc *PersistenceContext) Clear() {
	pc.entries = make(map[EntityKey]*ManagedEntity)
	pc.keys = make(map[*Entity]EntityKey)
}
