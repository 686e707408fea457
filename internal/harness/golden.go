package harness

import (
	"bytes"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the golden-file shape of one scenario execution: the
// scenario name, the session uid it ran under, and every statement the
// pipeline issued, in order.
type TraceSnapshot struct {
	Scenario   string           `json:"scenario"`
	SessionUID string           `json:"session_uid"`
	Statements []TraceStatement `json:"statements"`
}

// marshalSnapshot renders a snapshot as indented JSON. HTML escaping is
// off so comparison operators in SQL stay readable in the golden files.
func marshalSnapshot(s TraceSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its statement trace
// against the golden file testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// The run result is returned so callers can assert on pass state and
// recorded failures beyond the trace bytes.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already-obtained result's trace against the
// named golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := marshalSnapshot(TraceSnapshot{
		Scenario:   name,
		SessionUID: result.UID,
		Statements: result.Trace,
	})
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
