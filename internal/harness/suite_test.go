package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDir_AllCuratedScenarios(t *testing.T) {
	suite, err := RunDir(context.Background(), "testdata/scenarios", "")
	require.NoError(t, err)

	assert.Equal(t, 7, suite.Total)
	assert.Equal(t, 7, suite.Passed)
	assert.Equal(t, 0, suite.Failed)
	assert.Empty(t, suite.Failures)
}

func TestRunDir_Filter(t *testing.T) {
	suite, err := RunDir(context.Background(), "testdata/scenarios", "staged_*")
	require.NoError(t, err)

	assert.Equal(t, 2, suite.Total)
	assert.Equal(t, 2, suite.Passed)
}

func TestRunDir_FilterWithoutMatches(t *testing.T) {
	suite, err := RunDir(context.Background(), "testdata/scenarios", "zzz_*")
	require.NoError(t, err)
	assert.Equal(t, 0, suite.Total)
}

func TestRunDir_InvalidFilter(t *testing.T) {
	_, err := RunDir(context.Background(), "testdata/scenarios", "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid filter "["`)
}

func TestRunDir_MissingDir(t *testing.T) {
	_, err := RunDir(context.Background(), filepath.Join(t.TempDir(), "nowhere"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to scan")
}

func TestRunDir_SkipsSupportDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mappings"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	writeFile(t, filepath.Join(dir, "mappings"), "widget.yaml", scenarioMappingYAML)
	writeFile(t, filepath.Join(dir, "golden"), "stray.yaml", "not a scenario")

	writeFile(t, dir, "ok.yaml", `name: ok
description: one widget round trip
mappings:
  - mappings/widget.yaml
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
    rows: 1
`)

	suite, err := RunDir(context.Background(), dir, "")
	require.NoError(t, err)
	assert.Equal(t, 1, suite.Total, "support directories are not scanned for scenarios")
	assert.Equal(t, 1, suite.Passed)
}

func TestRunDir_AggregatesFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mappings"), 0o755))
	writeFile(t, filepath.Join(dir, "mappings"), "widget.yaml", scenarioMappingYAML)

	// Loads but fails: the statement count is wrong.
	writeFile(t, dir, "a_failing.yaml", `name: a_failing
description: assertion cannot hold
mappings:
  - mappings/widget.yaml
steps:
  - op: persist
    entity: Widget
    id: 1
    values:
      label: a
  - op: flush
assertions:
  - type: statement_count
    count: 99
`)
	// Does not load: required fields are missing.
	writeFile(t, dir, "b_invalid.yaml", `name: b_invalid
description: no steps or assertions
mappings:
  - mappings/widget.yaml
`)
	// Passes.
	writeFile(t, dir, "c_passing.yaml", `name: c_passing
description: one widget round trip
mappings:
  - mappings/widget.yaml
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
    rows: 1
`)

	suite, err := RunDir(context.Background(), dir, "")
	require.NoError(t, err)

	assert.Equal(t, 3, suite.Total)
	assert.Equal(t, 1, suite.Passed)
	assert.Equal(t, 2, suite.Failed)
	require.Len(t, suite.Failures, 2)

	assert.Equal(t, "a_failing", suite.Failures[0].Scenario)
	assert.Contains(t, suite.Failures[0].Error, "Assertion failed")
	assert.Equal(t, "b_invalid", suite.Failures[1].Scenario)
	assert.Contains(t, suite.Failures[1].Error, "failed to load scenario")
}
