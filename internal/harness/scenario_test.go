package harness

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioMappingYAML = `entities:
  - name: Widget
    id_property: id
    id_column: id
    id_type: INTEGER
    tables:
      - name: widgets
        columns:
          - {name: id, type: INTEGER, primary_key: true}
          - {name: label, type: TEXT, nullable: true}
    properties:
      - {name: label, column: label, nullable: true}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// validScenario builds a scenario that passes validation, referencing a
// real mapping file so the path check holds.
func validScenario(mappingPath string) *Scenario {
	rows := 1
	return &Scenario{
		Name:        "widget_roundtrip",
		Description: "persist one widget and flush",
		Mappings:    []string{mappingPath},
		Steps: []Step{
			{Op: StepPersist, Entity: "Widget", ID: 1, Values: map[string]any{"label": "a"}},
			{Op: StepFlush},
		},
		Assertions: []Assertion{
			{Type: AssertRowCount, Table: "widgets", Rows: &rows},
		},
	}
}

func TestLoadScenario_Valid(t *testing.T) {
	dir := t.TempDir()
	mapping := writeFile(t, dir, "widget.yaml", scenarioMappingYAML)

	path := writeFile(t, dir, "scenario.yaml", `name: widget_roundtrip
description: persist one widget and flush
mappings:
  - `+mapping+`
session_uid: uow-w-1
setup:
  - INSERT INTO widgets (id, label) VALUES (9, 'seed')
steps:
  - op: persist
    entity: Widget
    id: 1
    values:
      label: a
  - op: flush
assertions:
  - type: row_count
    table: widgets
    rows: 2
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "widget_roundtrip", s.Name)
	assert.Equal(t, "uow-w-1", s.SessionUID)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, StepPersist, s.Steps[0].Op)
	assert.Equal(t, 1, s.Steps[0].ID)
	require.Len(t, s.Setup, 1)
	require.Len(t, s.Assertions, 1)
	require.NotNil(t, s.Assertions[0].Rows)
	assert.Equal(t, 2, *s.Assertions[0].Rows)
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "name: [unclosed\n")
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	mapping := writeFile(t, dir, "widget.yaml", scenarioMappingYAML)

	// "assertion" is a typo for "assertions"; strict decoding reports it.
	path := writeFile(t, dir, "typo.yaml", `name: typo
description: typo in a top-level key
mappings:
  - `+mapping+`
steps:
  - op: flush
assertion:
  - type: statement_count
    count: 0
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field assertion not found")
}

func TestLoadScenarioWithBasePath_ResolvesMappings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mappings"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scenarios"), 0o755))
	writeFile(t, filepath.Join(dir, "mappings"), "widget.yaml", scenarioMappingYAML)

	path := writeFile(t, filepath.Join(dir, "scenarios"), "rel.yaml", `name: rel
description: relative mapping reference
mappings:
  - ../mappings/widget.yaml
steps:
  - op: flush
assertions:
  - type: statement_count
    count: 0
`)

	s, err := LoadScenarioWithBasePath(path, filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "mappings", "widget.yaml"), s.Mappings[0])
}

func TestValidateScenario_RequiredFields(t *testing.T) {
	mapping := writeFile(t, t.TempDir(), "widget.yaml", scenarioMappingYAML)

	tests := []struct {
		name    string
		mutate  func(*Scenario)
		wantErr string
	}{
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"missing description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no mappings", func(s *Scenario) { s.Mappings = nil }, "mappings list is required"},
		{"no steps", func(s *Scenario) { s.Steps = nil }, "steps list is required"},
		{"no assertions", func(s *Scenario) { s.Assertions = nil }, "assertions list is required"},
		{"mapping not found", func(s *Scenario) { s.Mappings = []string{"/nonexistent/m.yaml"} }, "mapping file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validScenario(mapping)
			tt.mutate(s)
			err := validateScenario(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("valid passes", func(t *testing.T) {
		require.NoError(t, validateScenario(validScenario(mapping)))
	})
}

func TestValidateStep_Rules(t *testing.T) {
	count := int64(1)
	tests := []struct {
		name    string
		step    Step
		wantErr string
	}{
		{"missing op", Step{}, "op is required"},
		{"unknown op", Step{Op: "teleport"}, `unknown op "teleport"`},
		{"persist without entity", Step{Op: StepPersist}, "entity is required for persist"},
		{"update without target", Step{Op: StepUpdate}, "target is required for update"},
		{"remove without target", Step{Op: StepRemove}, "target is required for remove"},
		{"remove_collection without target", Step{Op: StepRemoveCollection, Collection: "tags"}, "target is required for remove_collection"},
		{"remove_collection without collection", Step{Op: StepRemoveCollection, Target: "$o"}, "collection is required for remove_collection"},
		{"bulk_delete without entity", Step{Op: StepBulkDelete}, "entity is required for bulk_delete"},
		{"bulk_update without entity", Step{Op: StepBulkUpdate, Set: map[string]any{"a": 1}}, "entity is required for bulk_update"},
		{"bulk_update without set", Step{Op: StepBulkUpdate, Entity: "Widget"}, "set is required for bulk_update"},
		{"expect_count on flush", Step{Op: StepFlush, ExpectCount: &count}, "expect_count only applies to bulk steps"},
		{"unknown expect_error", Step{Op: StepFlush, ExpectError: "heat_death"}, `unknown expect_error "heat_death"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateStep(0, &tt.step)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "steps[0]")
		})
	}

	t.Run("bulk step accepts expect_count", func(t *testing.T) {
		step := Step{Op: StepBulkDelete, Entity: "Widget", ExpectCount: &count}
		require.NoError(t, validateStep(0, &step))
	})
	t.Run("flush accepts expect_error", func(t *testing.T) {
		step := Step{Op: StepFlush, ExpectError: "stale_state"}
		require.NoError(t, validateStep(0, &step))
	})
}

func TestValidateAssertion_Rules(t *testing.T) {
	rows := 1
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"missing type", Assertion{}, "type is required"},
		{"unknown type", Assertion{Type: "vibes"}, `unknown assertion type "vibes"`},
		{"contains missing fragment", Assertion{Type: AssertStatementContains}, "contains is required"},
		{"order missing statements", Assertion{Type: AssertStatementOrder}, "statements list is required"},
		{"count negative", Assertion{Type: AssertStatementCount, Count: -1}, "count must be non-negative"},
		{"row_count missing table", Assertion{Type: AssertRowCount, Rows: &rows}, "table is required for row_count"},
		{"row_count missing rows", Assertion{Type: AssertRowCount, Table: "widgets"}, "rows is required for row_count"},
		{"final_state missing table", Assertion{Type: AssertFinalState, Expect: map[string]any{"a": 1}}, "table is required for final_state"},
		{"final_state missing expect", Assertion{Type: AssertFinalState, Table: "widgets"}, "expect is required for final_state"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAssertion(3, &tt.assertion)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "assertions[3]")
		})
	}

	t.Run("zero statement count is valid", func(t *testing.T) {
		a := Assertion{Type: AssertStatementCount, Count: 0}
		require.NoError(t, validateAssertion(0, &a))
	})
}

func TestKnownErrorNames_SortedAndComplete(t *testing.T) {
	names := knownErrorNames()
	assert.True(t, sort.StringsAreSorted(names))
	assert.Len(t, names, len(pipelineErrorCodes))
	assert.Contains(t, names, "unique_violation")
	assert.Contains(t, names, "stale_state")
}
