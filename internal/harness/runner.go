package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stratumdb/stratum/internal/engine"
	"github.com/stratumdb/stratum/internal/exec"
	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/internal/mutation"
	"github.com/stratumdb/stratum/internal/sqlast"
	"github.com/stratumdb/stratum/internal/testutil"
)

// Run executes a scenario and returns its result. The store, session, and
// recorder are created fresh per run.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext executes a scenario under the given context.
//
// The returned error reports harness and authoring failures: unloadable
// mappings, failing setup SQL, steps that reference unknown aliases or
// properties. Outcome failures are recorded on the result instead: a step
// that errors unexpectedly, an expectation that does not hold, a failing
// assertion. Assertions are evaluated even when a step already failed.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	reg, err := loadMappings(scenario.Mappings)
	if err != nil {
		return nil, err
	}

	db, err := exec.OpenDB(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	for _, stmt := range reg.SchemaSQL() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("schema statement failed: %w", err)
		}
	}
	// Setup seeds rows directly, outside the recorded pipeline trace.
	for i, stmt := range scenario.Setup {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	rec := testutil.Wrap(exec.NewSQLExecutor(db))
	session := engine.NewSession(reg, rec,
		engine.WithUIDGenerator(testutil.NewFixedUIDGenerator(scenario.SessionUID)))
	defer session.Close()

	result := NewResult()
	result.UID = session.UID()

	run := &runState{
		reg:     reg,
		rec:     rec,
		session: session,
		aliases: make(map[string]*engine.Entity),
	}
	if err := run.executeSteps(ctx, scenario, result); err != nil {
		return nil, err
	}

	for _, s := range rec.Statements() {
		result.Trace = append(result.Trace, TraceStatement{SQL: s.SQL, Args: s.Args})
	}

	actx := &AssertionContext{DB: db, Ctx: ctx}
	for _, failure := range EvaluateAssertions(scenario.Assertions, result.Trace, actx) {
		result.AddError(failure)
	}
	return result, nil
}

// loadMappings loads every mapping document and builds one registry.
func loadMappings(paths []string) (*meta.Registry, error) {
	var entities []*meta.Entity
	for _, path := range paths {
		loaded, err := meta.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load mapping %s: %w", path, err)
		}
		entities = append(entities, loaded...)
	}
	reg, verrs := meta.NewRegistry(entities)
	if len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, ve := range verrs {
			msgs[i] = ve.Error()
		}
		return nil, fmt.Errorf("invalid mappings: %s", strings.Join(msgs, "; "))
	}
	return reg, nil
}

// runState carries the live objects of one scenario execution.
type runState struct {
	reg     *meta.Registry
	rec     *testutil.RecordingExecutor
	session *engine.Session
	aliases map[string]*engine.Entity
}

// mismatchError marks an expectation failure. It is recorded on the result
// and ends the step sequence instead of aborting the run.
type mismatchError struct{ msg string }

func (e *mismatchError) Error() string { return e.msg }

func mismatchf(format string, args ...any) error {
	return &mismatchError{msg: fmt.Sprintf(format, args...)}
}

// executeSteps drives the scenario's steps in order. The sequence ends at
// the first expectation mismatch and after any step that surfaced a
// pipeline error, expected or not.
func (r *runState) executeSteps(ctx context.Context, scenario *Scenario, result *Result) error {
	for i := range scenario.Steps {
		step := &scenario.Steps[i]
		err := r.dispatch(ctx, step)

		var mm *mismatchError
		if errors.As(err, &mm) {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Op, mm.msg))
			return nil
		}
		if err != nil {
			if _, ok := engine.AsPipelineError(err); !ok {
				return fmt.Errorf("steps[%d] %s: %w", i, step.Op, err)
			}
		}

		msg, last := checkOutcome(step, err)
		if msg != "" {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Op, msg))
			return nil
		}
		if last {
			return nil
		}
	}
	return nil
}

// checkOutcome compares a step's pipeline outcome against its expectation.
// The message is empty when the expectation held; last reports that the
// sequence must end because a pipeline error surfaced.
func checkOutcome(step *Step, err error) (msg string, last bool) {
	if step.ExpectError == "" {
		if err == nil {
			return "", false
		}
		return fmt.Sprintf("unexpected error: %v", err), true
	}

	if err == nil {
		return fmt.Sprintf("expected %s error, completed without error", step.ExpectError), true
	}
	pe, _ := engine.AsPipelineError(err)
	if want := pipelineErrorCodes[step.ExpectError]; pe.Code != want {
		return fmt.Sprintf("expected %s error, got %s: %v", step.ExpectError, pe.Code, err), true
	}
	return "", true
}

// dispatch routes one step to its handler.
func (r *runState) dispatch(ctx context.Context, step *Step) error {
	switch step.Op {
	case StepPersist:
		return r.stepPersist(ctx, step)
	case StepUpdate:
		return r.stepUpdate(step)
	case StepRemove:
		return r.stepRemove(step)
	case StepRemoveCollection:
		return r.stepRemoveCollection(step)
	case StepFlush:
		return r.session.Flush(ctx)
	case StepBulkDelete:
		return r.stepBulkDelete(ctx, step)
	case StepBulkUpdate:
		return r.stepBulkUpdate(ctx, step)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

// stepPersist builds an instance from the step's values and schedules its
// insert. The alias binds only when the persist succeeds.
func (r *runState) stepPersist(ctx context.Context, step *Step) error {
	state, err := r.buildState(step.Entity, step.Values)
	if err != nil {
		return err
	}
	e := engine.NewEntity(step.Entity, normalizeValue(step.ID), state)
	if err := r.session.Persist(ctx, e); err != nil {
		return err
	}
	if step.As != "" {
		r.aliases[step.As] = e
	}
	return nil
}

// stepUpdate applies the step's values to the aliased instance and
// schedules its rewrite. Without values the instance is rewritten as-is.
func (r *runState) stepUpdate(step *Step) error {
	e, err := r.lookupTarget(step.Target)
	if err != nil {
		return err
	}
	mapping, ok := r.reg.Entity(e.Name)
	if !ok {
		return fmt.Errorf("unknown entity %q", e.Name)
	}
	if err := r.applyValues(mapping, e.State, step.Values); err != nil {
		return err
	}
	return r.session.Update(e)
}

func (r *runState) stepRemove(step *Step) error {
	e, err := r.lookupTarget(step.Target)
	if err != nil {
		return err
	}
	return r.session.Remove(e)
}

func (r *runState) stepRemoveCollection(step *Step) error {
	e, err := r.lookupTarget(step.Target)
	if err != nil {
		return err
	}
	return r.session.RemoveCollection(e, step.Collection)
}

// stepBulkDelete runs a set-oriented delete through the mutation planner.
// Statements land on the shared recorder, so they appear in the trace
// interleaved with session statements in true execution order.
func (r *runState) stepBulkDelete(ctx context.Context, step *Step) error {
	where, err := parseStepFilter(step.Filter)
	if err != nil {
		return err
	}
	del := mutation.NewDeleteExecutor(r.reg, r.rec, r.session.UID())
	n, err := del.Execute(ctx, mutation.DeleteRequest{Entity: step.Entity, Where: where})
	if err != nil {
		return err
	}
	return checkCount(step, n)
}

func (r *runState) stepBulkUpdate(ctx context.Context, step *Step) error {
	where, err := parseStepFilter(step.Filter)
	if err != nil {
		return err
	}
	upd := mutation.NewUpdateExecutor(r.reg, r.rec, r.session.UID())
	n, err := upd.Execute(ctx, mutation.UpdateRequest{
		Entity: step.Entity,
		Set:    sortedAssignments(step.Set),
		Where:  where,
	})
	if err != nil {
		return err
	}
	return checkCount(step, n)
}

// buildState produces the property-ordered state slice for an entity from
// the step's named values. Unset properties stay nil.
func (r *runState) buildState(entityName string, values map[string]any) ([]any, error) {
	mapping, ok := r.reg.Entity(entityName)
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", entityName)
	}
	state := make([]any, len(mapping.Properties))
	if err := r.applyValues(mapping, state, values); err != nil {
		return nil, err
	}
	return state, nil
}

// applyValues writes named values into a property-ordered state slice.
func (r *runState) applyValues(mapping *meta.Entity, state []any, values map[string]any) error {
	for name, raw := range values {
		_, idx := mapping.Property(name)
		if idx < 0 {
			return fmt.Errorf("entity %s has no property %q", mapping.Name, name)
		}
		v, err := r.resolveValue(raw)
		if err != nil {
			return err
		}
		state[idx] = v
	}
	return nil
}

// resolveValue maps step values to pipeline values. Strings of the form
// "$alias" resolve to the instance bound under that alias, so to-one
// slots carry a live reference.
func (r *runState) resolveValue(raw any) (any, error) {
	if s, ok := raw.(string); ok && strings.HasPrefix(s, "$") {
		target, ok := r.aliases[strings.TrimPrefix(s, "$")]
		if !ok {
			return nil, fmt.Errorf("no entity bound to %q", s)
		}
		return target, nil
	}
	return normalizeValue(raw), nil
}

// lookupTarget resolves a step's target alias to its bound instance. The
// leading "$" is optional.
func (r *runState) lookupTarget(target string) (*engine.Entity, error) {
	e, ok := r.aliases[strings.TrimPrefix(target, "$")]
	if !ok {
		return nil, fmt.Errorf("no entity bound to %q", target)
	}
	return e, nil
}

// parseStepFilter parses a step's textual filter. Empty means
// unrestricted.
func parseStepFilter(filter string) (sqlast.Predicate, error) {
	if filter == "" {
		return nil, nil
	}
	where, err := sqlast.ParseFilter(filter)
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	return where, nil
}

// sortedAssignments converts the step's set map into assignments in sorted
// property order, keeping rendered statements deterministic.
func sortedAssignments(set map[string]any) []mutation.Assignment {
	props := make([]string, 0, len(set))
	for p := range set {
		props = append(props, p)
	}
	sort.Strings(props)
	out := make([]mutation.Assignment, len(props))
	for i, p := range props {
		out[i] = mutation.Assignment{Property: p, Value: normalizeValue(set[p])}
	}
	return out
}

// checkCount compares a bulk step's affected count with its expectation.
func checkCount(step *Step, n int64) error {
	if step.ExpectCount != nil && *step.ExpectCount != n {
		return mismatchf("expected %d affected rows, got %d", *step.ExpectCount, n)
	}
	return nil
}

// normalizeValue widens integer scalars the YAML decoder produces to
// int64, matching what the store driver hands back.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	default:
		return v
	}
}
