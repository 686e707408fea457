package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stratumdb/stratum/internal/engine"
)

// Scenario defines one pipeline scenario: the mappings it runs against,
// the steps it drives through a session, and the assertions that must
// hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named
	// after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Mappings lists paths to mapping documents to load.
	// Paths are relative to the scenario file location.
	Mappings []string `yaml:"mappings"`

	// SessionUID is an optional fixed session uid for deterministic
	// traces. If empty, the default test uid is used.
	SessionUID string `yaml:"session_uid,omitempty"`

	// Setup contains raw SQL statements run against the fresh store
	// before the session opens. Setup statements do not appear in the
	// trace.
	Setup []string `yaml:"setup,omitempty"`

	// Steps contains the pipeline operations to drive.
	Steps []Step `yaml:"steps"`

	// Assertions validate the statement trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one pipeline operation of a scenario.
type Step struct {
	// Op selects the operation: persist, update, remove,
	// remove_collection, flush, bulk_delete, or bulk_update.
	Op string `yaml:"op"`

	// Entity names the target mapping (persist, bulk_delete, bulk_update).
	Entity string `yaml:"entity,omitempty"`

	// As binds the persisted instance to an alias for later steps.
	As string `yaml:"as,omitempty"`

	// ID is the assigned identifier for persist. Omitted for entities
	// with store-generated identifiers.
	ID any `yaml:"id,omitempty"`

	// Values maps property names to values (persist, update). A value of
	// the form "$alias" references a previously persisted instance.
	Values map[string]any `yaml:"values,omitempty"`

	// Target names the alias the step operates on (update, remove,
	// remove_collection).
	Target string `yaml:"target,omitempty"`

	// Collection names the collection to clear (remove_collection).
	Collection string `yaml:"collection,omitempty"`

	// Filter is the textual restriction of a bulk step. Empty matches
	// every row.
	Filter string `yaml:"filter,omitempty"`

	// Set maps property names to values for bulk_update. Assignments are
	// applied in sorted property order for deterministic statements.
	Set map[string]any `yaml:"set,omitempty"`

	// ExpectCount is the exact affected-entity count a bulk step must
	// report.
	ExpectCount *int64 `yaml:"expect_count,omitempty"`

	// ExpectError names the pipeline error code this step must fail
	// with, in lower-case form, e.g. "unique_violation" or "stale_state".
	// Empty means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the statement trace or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "statement_contains": a statement with the SQL fragment exists
	// - "statement_order": fragments first appear in the given order
	// - "statement_count": exact statement count, total or by fragment
	// - "row_count": exact number of rows matching where
	// - "final_state": one row matches where and carries expected values
	Type string `yaml:"type"`

	// Contains is the SQL fragment (statement_contains, and optionally
	// statement_count).
	Contains string `yaml:"contains,omitempty"`

	// Args is the exact argument list the matching statement must carry
	// (statement_contains). Nil matches any arguments.
	Args []any `yaml:"args,omitempty"`

	// Statements are SQL fragments expected in order (statement_order).
	Statements []string `yaml:"statements,omitempty"`

	// Count is the expected number of statements (statement_count).
	Count int `yaml:"count,omitempty"`

	// Table is the state table name (row_count, final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies column filters (row_count, final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Rows is the expected row count (row_count).
	Rows *int `yaml:"rows,omitempty"`

	// Expect contains expected column values (final_state).
	// Subset match - only specified columns are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Step operation constants.
const (
	StepPersist          = "persist"
	StepUpdate           = "update"
	StepRemove           = "remove"
	StepRemoveCollection = "remove_collection"
	StepFlush            = "flush"
	StepBulkDelete       = "bulk_delete"
	StepBulkUpdate       = "bulk_update"
)

// Assertion type constants.
const (
	AssertStatementContains = "statement_contains"
	AssertStatementOrder    = "statement_order"
	AssertStatementCount    = "statement_count"
	AssertRowCount          = "row_count"
	AssertFinalState        = "final_state"
)

// pipelineErrorCodes maps the scenario spelling of an expected error to
// the pipeline error code it must classify as.
var pipelineErrorCodes = map[string]engine.ErrorCode{
	"unique_violation":      engine.ErrCodeUniqueViolation,
	"not_null_violation":    engine.ErrCodeNotNullViolation,
	"foreign_key_violation": engine.ErrCodeForeignKeyViolation,
	"constraint_violation":  engine.ErrCodeConstraintViolation,
	"connectivity":          engine.ErrCodeConnectivity,
	"execution_failed":      engine.ErrCodeExecution,
	"session_ownership":     engine.ErrCodeSessionOwnership,
	"session_closed":        engine.ErrCodeSessionClosed,
	"unknown_entity":        engine.ErrCodeUnknownEntity,
	"detached_entity":       engine.ErrCodeDetachedEntity,
	"preflight_null":        engine.ErrCodePreflightNull,
	"staging_config":        engine.ErrCodeStagingConfig,
	"identity_unavailable":  engine.ErrCodeIdentityUnavailable,
	"stale_state":           engine.ErrCodeStaleState,
	"cleanup_failure":       engine.ErrCodeCleanupFailure,
}

// knownErrorNames returns the accepted expect_error spellings, sorted.
func knownErrorNames() []string {
	names := make([]string, 0, len(pipelineErrorCodes))
	for name := range pipelineErrorCodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, "")
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving mapping paths relative to the provided base path. This is
// how scenario files reference their mapping documents portably.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, mappingPath := range scenario.Mappings {
		if !filepath.IsAbs(mappingPath) && basePath != "" {
			scenario.Mappings[i] = filepath.Join(basePath, mappingPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Mappings) == 0 {
		return fmt.Errorf("mappings list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, mappingPath := range s.Mappings {
		if _, err := os.Stat(mappingPath); os.IsNotExist(err) {
			return fmt.Errorf("mapping file not found: %s", mappingPath)
		}
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateStep validates a single step based on its operation.
func validateStep(index int, step *Step) error {
	switch step.Op {
	case StepPersist:
		if step.Entity == "" {
			return fmt.Errorf("steps[%d]: entity is required for persist", index)
		}
	case StepUpdate:
		if step.Target == "" {
			return fmt.Errorf("steps[%d]: target is required for update", index)
		}
	case StepRemove:
		if step.Target == "" {
			return fmt.Errorf("steps[%d]: target is required for remove", index)
		}
	case StepRemoveCollection:
		if step.Target == "" {
			return fmt.Errorf("steps[%d]: target is required for remove_collection", index)
		}
		if step.Collection == "" {
			return fmt.Errorf("steps[%d]: collection is required for remove_collection", index)
		}
	case StepFlush:
		// No required fields.
	case StepBulkDelete:
		if step.Entity == "" {
			return fmt.Errorf("steps[%d]: entity is required for bulk_delete", index)
		}
	case StepBulkUpdate:
		if step.Entity == "" {
			return fmt.Errorf("steps[%d]: entity is required for bulk_update", index)
		}
		if len(step.Set) == 0 {
			return fmt.Errorf("steps[%d]: set is required for bulk_update", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}

	if step.ExpectCount != nil && step.Op != StepBulkDelete && step.Op != StepBulkUpdate {
		return fmt.Errorf("steps[%d]: expect_count only applies to bulk steps", index)
	}
	if step.ExpectError != "" {
		if _, ok := pipelineErrorCodes[step.ExpectError]; !ok {
			return fmt.Errorf("steps[%d]: unknown expect_error %q (known: %s)",
				index, step.ExpectError, strings.Join(knownErrorNames(), ", "))
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStatementContains:
		if a.Contains == "" {
			return fmt.Errorf("assertions[%d]: contains is required for statement_contains", index)
		}
	case AssertStatementOrder:
		if len(a.Statements) == 0 {
			return fmt.Errorf("assertions[%d]: statements list is required for statement_order", index)
		}
	case AssertStatementCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for statement_count", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Rows == nil {
			return fmt.Errorf("assertions[%d]: rows is required for row_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
