package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stratumdb/stratum/internal/exec"
	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/internal/sqlast"
	"github.com/stratumdb/stratum/internal/sqlgen"
)

// Session is one unit of work: it queues entity mutations as pending
// actions and writes them to the store on Flush in dependency-safe order.
//
// A session is owned by one caller at a time. Every mutating entry point
// takes the ownership latch for its duration; a concurrent call from a
// second goroutine fails fast with a SESSION_OWNERSHIP error instead of
// interleaving. This is single-owner enforcement, not synchronisation -
// share nothing, or hand the session off between goroutines with the
// usual happens-before edge.
//
// Lifecycle:
//   - Persist queues an insert (store-generated identifiers execute
//     immediately so the key is available to the caller)
//   - Update / Remove / RemoveCollection queue their action kinds
//   - Flush drains the queue: inserts, updates, collection removals,
//     entity deletes, stopping at the first failure
//   - Close discards pending state; the session cannot be reused
type Session struct {
	uid    string
	reg    *meta.Registry
	ex     exec.Executor
	ren    *sqlgen.Renderer
	pc     *PersistenceContext
	queue  *actionQueue
	seq    *Sequence
	uidGen UIDGenerator

	// pendingInserts tracks instances queued for insert but not yet
	// managed, so a repeated Persist is a no-op instead of a duplicate
	// registration.
	pendingInserts map[*Entity]bool

	latch  ownerLatch
	closed bool
}

// SessionOption allows configuration of session parameters.
type SessionOption func(*Session)

// WithUIDGenerator overrides the session uid source. Tests pass a
// FixedGenerator for deterministic uids in golden traces.
func WithUIDGenerator(g UIDGenerator) SessionOption {
	return func(s *Session) {
		s.uidGen = g
	}
}

// NewSession creates a unit of work over the given mapping registry and
// statement executor.
func NewSession(reg *meta.Registry, ex exec.Executor, opts ...SessionOption) *Session {
	s := &Session{
		reg:            reg,
		ex:             ex,
		ren:            sqlgen.NewRenderer(),
		pc:             newPersistenceContext(),
		queue:          newActionQueue(),
		seq:            NewSequence(),
		uidGen:         UUIDv7Generator{},
		pendingInserts: make(map[*Entity]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.uid = s.uidGen.Generate()
	slog.Debug("session opened", "session", s.uid)
	return s
}

// UID returns the session uid. Staging rows written on behalf of this unit
// of work are tagged with it.
func (s *Session) UID() string {
	return s.uid
}

// PersistenceContext exposes the managed-entity registry. Owner-only, like
// every other session surface.
func (s *Session) PersistenceContext() *PersistenceContext {
	return s.pc
}

// Pending returns the number of queued actions. Owner-only.
func (s *Session) Pending() int {
	return s.queue.size()
}

// Persist schedules an insert for a transient instance. Instances of
// entities with store-generated identifiers execute immediately - the
// generated key is set on the instance before Persist returns, and the
// instance is managed from that point on. Assigned-identifier instances
// are queued until the next Flush. Persisting an instance that is already
// managed or already queued is a no-op.
func (s *Session) Persist(ctx context.Context, e *Entity) error {
	if !s.latch.acquire() {
		return NewOwnershipError(s.uid)
	}
	defer s.latch.release()
	if s.closed {
		return NewClosedError(s.uid)
	}

	mapping, err := s.mappingFor(e)
	if err != nil {
		return err
	}
	if s.pc.ContainsEntity(e) || s.pendingInserts[e] {
		return nil
	}
	if mapping.IDStrategy == meta.IDAssigned && e.ID == nil {
		return NewIdentityUnavailableError(s.uid, mapping.Name,
			"assigned identifier must be set before persist")
	}

	a := newInsertAction(s, mapping, e)
	if a.early {
		// Store-generated key: the row must exist before the key does.
		if err := a.execute(ctx); err != nil {
			return err
		}
		slog.Debug("early insert executed",
			"session", s.uid, "entity", e.String(), "seq", a.seq)
		return nil
	}

	s.queue.addInsert(a)
	s.pendingInserts[e] = true
	slog.Debug("insert queued", "session", s.uid, "entity", e.String(), "seq", a.seq)
	return nil
}

// Update schedules a rewrite of a managed instance's rows from its current
// state. Versioned entities bump their version and guard the statement
// with the previous one.
func (s *Session) Update(e *Entity) error {
	if !s.latch.acquire() {
		return NewOwnershipError(s.uid)
	}
	defer s.latch.release()
	if s.closed {
		return NewClosedError(s.uid)
	}

	mapping, err := s.mappingFor(e)
	if err != nil {
		return err
	}
	if !s.pc.ContainsEntity(e) {
		return NewDetachedEntityError(s.uid, mapping.Name,
			"update requires a managed instance")
	}

	a := newUpdateAction(s, mapping, e)
	s.queue.addUpdate(a)
	slog.Debug("update queued", "session", s.uid, "entity", e.String(), "seq", a.seq)
	return nil
}

// Remove schedules deletion of a managed instance. Collection side tables
// mapped by the entity are scheduled for removal as well; the drain order
// empties them before the entity rows they reference. Removing an instance
// whose delete is already pending is a no-op.
func (s *Session) Remove(e *Entity) error {
	if !s.latch.acquire() {
		return NewOwnershipError(s.uid)
	}
	defer s.latch.release()
	if s.closed {
		return NewClosedError(s.uid)
	}

	mapping, err := s.mappingFor(e)
	if err != nil {
		return err
	}
	if !s.pc.ContainsEntity(e) {
		return NewDetachedEntityError(s.uid, mapping.Name,
			"remove requires a managed instance")
	}
	if s.queue.hasDelete(e) {
		return nil
	}

	for i := range mapping.Collections {
		r := newCollectionRemoval(s, mapping, &mapping.Collections[i], e)
		s.queue.addRemoval(r)
	}
	a := newDeleteAction(s, mapping, e)
	s.queue.addDelete(a)
	slog.Debug("delete queued", "session", s.uid, "entity", e.String(), "seq", a.seq)
	return nil
}

// RemoveCollection schedules removal of every element row of one named
// collection without removing the owner.
func (s *Session) RemoveCollection(e *Entity, collection string) error {
	if !s.latch.acquire() {
		return NewOwnershipError(s.uid)
	}
	defer s.latch.release()
	if s.closed {
		return NewClosedError(s.uid)
	}

	mapping, err := s.mappingFor(e)
	if err != nil {
		return err
	}
	if !s.pc.ContainsEntity(e) {
		return NewDetachedEntityError(s.uid, mapping.Name,
			"collection removal requires a managed owner")
	}

	var coll *meta.Collection
	for i := range mapping.Collections {
		if mapping.Collections[i].Name == collection {
			coll = &mapping.Collections[i]
			break
		}
	}
	if coll == nil {
		return &PipelineError{
			Code:       ErrCodeUnknownEntity,
			Detail:     fmt.Sprintf("no collection %q mapped", collection),
			EntityName: mapping.Name,
			SessionUID: s.uid,
		}
	}

	r := newCollectionRemoval(s, mapping, coll, e)
	s.queue.addRemoval(r)
	slog.Debug("collection removal queued",
		"session", s.uid, "entity", e.String(), "collection", coll.Name, "seq", r.seq)
	return nil
}

// Flush drains the action queue against the store. Actions execute
// sequentially in class order - inserts, updates, collection removals,
// entity deletes - and within a class in constraint order. The first
// failure stops the drain; completed actions keep their effects and the
// remaining actions are discarded, so exactly one error surfaces per
// failed flush.
func (s *Session) Flush(ctx context.Context) error {
	if !s.latch.acquire() {
		return NewOwnershipError(s.uid)
	}
	defer s.latch.release()
	if s.closed {
		return NewClosedError(s.uid)
	}

	if s.queue.size() == 0 {
		return nil
	}

	slog.Debug("flush draining",
		"session", s.uid,
		"inserts", len(s.queue.inserts),
		"updates", len(s.queue.updates),
		"removals", len(s.queue.removals),
		"deletes", len(s.queue.deletes))

	s.queue.sortActions()
	err := s.queue.executeActions(ctx)
	s.queue.clear()
	s.pendingInserts = make(map[*Entity]bool)

	if err != nil {
		slog.Error("flush failed", "session", s.uid, "error", err)
		return err
	}
	slog.Debug("flush complete", "session", s.uid, "managed", s.pc.Size())
	return nil
}

// Close discards pending actions and managed state. Idempotent; the
// session rejects further use.
func (s *Session) Close() error {
	if !s.latch.acquire() {
		return NewOwnershipError(s.uid)
	}
	defer s.latch.release()
	if s.closed {
		return nil
	}

	dropped := s.queue.size()
	s.queue.clear()
	s.pc.Clear()
	s.pendingInserts = nil
	s.closed = true
	slog.Debug("session closed", "session", s.uid, "dropped_actions", dropped)
	return nil
}

// mappingFor resolves an instance's entity mapping. Unmapped names and
// abstract entities are usage errors.
func (s *Session) mappingFor(e *Entity) (*meta.Entity, error) {
	mapping, ok := s.reg.Entity(e.Name)
	if !ok {
		return nil, NewUnknownEntityError(s.uid, e.Name)
	}
	if mapping.Abstract {
		return nil, &PipelineError{
			Code:       ErrCodeUnknownEntity,
			Detail:     "abstract entity cannot be instantiated",
			EntityName: mapping.Name,
			SessionUID: s.uid,
		}
	}
	if len(e.State) != len(mapping.Properties) {
		return nil, &PipelineError{
			Code:       ErrCodeUnknownEntity,
			Detail:     fmt.Sprintf("state has %d slots, mapping declares %d properties", len(e.State), len(mapping.Properties)),
			EntityName: mapping.Name,
			SessionUID: s.uid,
		}
	}
	return mapping, nil
}

// isTransient reports whether a referenced instance has no managed row in
// this unit of work. Queued-but-unexecuted inserts leave their target
// transient until the drain reaches them.
func (s *Session) isTransient(ref *Entity) bool {
	return !s.pc.ContainsEntity(ref)
}

// execMutation renders and executes one statement, classifying failures.
func (s *Session) execMutation(ctx context.Context, stmt sqlast.Statement) (int64, error) {
	sqlText, args, err := s.ren.RenderStatement(stmt)
	if err != nil {
		return 0, err
	}
	n, err := s.ex.ExecMutation(ctx, sqlText, args)
	if err != nil {
		return 0, FromStatementError(s.uid, err)
	}
	return n, nil
}

// execInsertReturningKey renders and executes an insert, returning the
// store-generated key.
func (s *Session) execInsertReturningKey(ctx context.Context, stmt sqlast.Statement) (int64, error) {
	sqlText, args, err := s.ren.RenderStatement(stmt)
	if err != nil {
		return 0, err
	}
	key, err := s.ex.ExecInsertReturningKey(ctx, sqlText, args)
	if err != nil {
		return 0, FromStatementError(s.uid, err)
	}
	return key, nil
}
