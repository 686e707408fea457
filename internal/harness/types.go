package harness

// TraceStatement is one recorded pipeline statement: the rendered SQL and
// the argument values that accompanied it.
type TraceStatement struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success: every step matched its
	// expectation and every assertion held.
	Pass bool `json:"pass"`

	// UID is the session uid the scenario ran under. Staging rows and
	// golden snapshots carry it.
	UID string `json:"uid"`

	// Trace contains every statement the pipeline issued, in execution
	// order. Statements recorded before a failing operation stay in the
	// trace; setup statements never appear.
	Trace []TraceStatement `json:"trace"`

	// Errors contains step mismatches and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceStatement{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
