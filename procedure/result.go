package procedure

import "time"

// Status is the closed enumeration of step and run outcomes.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPartial Status = "partial"
	StatusSkipped Status = "skipped"
)

// StepResult is a tagged record produced by dispatching one step (§3).
type StepResult struct {
	Status        Status         `json:"status"`
	Data          any            `json:"data,omitempty"`
	Message       string         `json:"message,omitempty"`
	Error         string         `json:"error,omitempty"`
	ItemsProcessed int           `json:"items_processed,omitempty"`
	ItemsFailed   int            `json:"items_failed,omitempty"`
	DurationMS    int64          `json:"duration_ms,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`

	// Directive is populated only for flow-primitive steps; it tells the
	// Flow Controller which branch(es) to run next. Never set for ordinary
	// tool steps.
	Directive *FlowDirective `json:"directive,omitempty"`
}

// Success reports whether the step finished in a non-failing state.
func (r StepResult) Success() bool {
	return r.Status == StatusSuccess || r.Status == StatusPartial || r.Status == StatusSkipped
}

// Failed reports whether the step finished in a failing state.
func (r StepResult) Failed() bool { return r.Status == StatusFailed }

// SuccessResult builds a StepResult carrying data and an optional message.
func SuccessResult(data any, message string) StepResult {
	return StepResult{Status: StatusSuccess, Data: data, Message: message}
}

// FailedResult builds a StepResult describing a failure.
func FailedResult(message string, err error) StepResult {
	r := StepResult{Status: StatusFailed, Message: message}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// PartialResult builds a StepResult for a collection-mode tool that
// partially succeeded.
func PartialResult(data any, message string, itemsProcessed, itemsFailed int) StepResult {
	return StepResult{
		Status:         StatusPartial,
		Data:           data,
		Message:        message,
		ItemsProcessed: itemsProcessed,
		ItemsFailed:    itemsFailed,
	}
}

// SkippedResult builds a StepResult for a step whose condition was falsy.
func SkippedResult(message string) StepResult {
	return StepResult{Status: StatusSkipped, Message: message}
}

// FlowDirective is the structured return from a flow primitive telling the
// Flow Controller what to do next (§3, §4.6).
type FlowDirective struct {
	// BranchKey names the single branch to run (if_branch, switch_branch).
	BranchKey string `json:"branch_key,omitempty"`
	// BranchesToRun names the branches to run concurrently (parallel). An
	// empty, non-nil slice historically means "run every declared branch" —
	// the primitive itself has no knowledge of branch names, only the
	// executor does. RunAllBranches is set instead of relying on nil vs.
	// empty slice ambiguity.
	BranchesToRun  []string `json:"branches_to_run,omitempty"`
	RunAllBranches bool     `json:"-"`
	// ItemsToIterate holds the rendered collection a foreach step iterates.
	ItemsToIterate []any `json:"items_to_iterate,omitempty"`
	// SkippedIndices records foreach items whose per-iteration condition
	// was falsy (reserved for future per-item gating; the engine's foreach
	// has no implicit per-item condition today, only per-step conditions
	// inside the each branch).
	SkippedIndices []int `json:"skipped_indices,omitempty"`
}

// RunContext is the ephemeral, per-execution state (§3).
type RunContext struct {
	RunID  string
	Params map[string]any
	Steps  map[string]StepResult
	// LoopScope holds {item, item_index} bindings, present only inside a
	// foreach branch. Nil outside foreach.
	LoopScope map[string]any
	DryRun    bool
	OrgID     string
}

// NewRunContext constructs an empty context around params as given (nil
// becomes an empty map); declared parameter defaults are merged in by the
// Executor before it calls this.
func NewRunContext(runID string, params map[string]any, dryRun bool) *RunContext {
	if params == nil {
		params = map[string]any{}
	}
	return &RunContext{
		RunID:  runID,
		Params: params,
		Steps:  map[string]StepResult{},
		DryRun: dryRun,
	}
}

// Child returns a copy of the context suitable for a nested scope (a
// parallel branch or a foreach iteration): same Params and OrgID/DryRun, an
// independent Steps map seeded with the parent's visible entries, and the
// given loop scope. Mutating the child's Steps map never affects the
// parent's.
func (c *RunContext) Child(loopScope map[string]any) *RunContext {
	steps := make(map[string]StepResult, len(c.Steps))
	for k, v := range c.Steps {
		steps[k] = v
	}
	return &RunContext{
		RunID:     c.RunID,
		Params:    c.Params,
		Steps:     steps,
		LoopScope: loopScope,
		DryRun:    c.DryRun,
		OrgID:     c.OrgID,
	}
}

// Record is the top-level run record assembled by the Executor (§6).
type Record struct {
	RunID     string                `json:"run_id"`
	Status    Status                `json:"status"`
	StartedAt time.Time             `json:"started_at"`
	EndedAt   time.Time             `json:"ended_at"`
	Steps     map[string]StepResult `json:"steps"`
	Error     string                `json:"error,omitempty"`
}
