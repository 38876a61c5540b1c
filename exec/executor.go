// Package exec implements the Executor (C8): the top-level run loop that
// validates a procedure, walks its step tree through the Step Dispatcher and
// Flow Controller, and assembles the final run Record. Grounded on
// original_source/backend/app/cwr/execution/executor.py for the
// validate-then-run-then-record sequencing and on the teacher's
// runtime/agent/engine/temporal.Engine for the span-per-run /
// span-per-step instrumentation idiom (here reimplemented over the
// telemetry package instead of Temporal directly).
package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidlarrimore/curatore-v2-sub001/dispatch"
	"github.com/davidlarrimore/curatore-v2-sub001/flow"
	"github.com/davidlarrimore/curatore-v2-sub001/pack"
	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
	"github.com/davidlarrimore/curatore-v2-sub001/telemetry"
	"github.com/davidlarrimore/curatore-v2-sub001/toolerrors"
	"github.com/davidlarrimore/curatore-v2-sub001/validate"
)

// Executor runs validated procedures to completion.
type Executor struct {
	Validator *validate.Validator // optional; nil skips re-validation at run time
	Dispatch  *dispatch.Dispatcher
	Flow      *flow.Controller
	Store     RunStore

	// Profile, if non-nil, additionally gates every step's function against
	// the contract pack it resolves to, enforcing its exposure/category/
	// blocklist/side-effect rules at run time. This is the only place a pack
	// is checked: the validator resolves functions against the raw registry
	// and does not consult a profile.
	Profile *pack.Pack

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// New builds an Executor with no-op telemetry defaults.
func New(d *dispatch.Dispatcher, fc *flow.Controller, store RunStore) *Executor {
	return &Executor{
		Dispatch: d,
		Flow:     fc,
		Store:    store,
		Logger:   telemetry.NoopLogger{},
		Metrics:  telemetry.NoopMetrics{},
		Tracer:   telemetry.NoopTracer{},
	}
}

// Run validates def (if e.Validator is set), applies parameter defaults,
// executes every top-level step in order, and persists + returns the
// resulting Record. A validation failure never starts a run: it returns
// before any step executes.
func (e *Executor) Run(ctx context.Context, def *procedure.Definition, params map[string]any, dryRun bool) (*procedure.Record, error) {
	if e.Validator != nil {
		res := e.Validator.Validate(def)
		if !res.Valid {
			return nil, fmt.Errorf("exec: procedure %q failed validation with %d error(s)", def.Slug, res.ErrorCount)
		}
	}

	runID := uuid.NewString()
	ctx, span := e.Tracer.Start(ctx, "exec.run")
	defer span.End()

	merged := mergeParams(def, params)
	rc := procedure.NewRunContext(runID, merged, dryRun)

	rec := procedure.Record{
		RunID:     runID,
		StartedAt: time.Now(),
	}

	e.Logger.Info(ctx, "run started", "run_id", runID, "slug", def.Slug)

	status, err := e.runTopLevel(ctx, rc, def)
	rec.EndedAt = time.Now()
	rec.Steps = rc.Steps
	rec.Status = status
	if err != nil {
		rec.Error = err.Error()
		span.RecordError(err)
	}

	e.Metrics.IncCounter("procedure.run", 1, "status:"+string(status))
	e.Logger.Info(ctx, "run finished", "run_id", runID, "status", string(status))

	if e.Store != nil {
		if saveErr := e.Store.Save(ctx, rec); saveErr != nil {
			e.Logger.Error(ctx, "failed to persist run record", "run_id", runID, "error", saveErr.Error())
		}
	}

	return &rec, err
}

// runTopLevel wraps runSteps with cancellation translation: a context
// cancelled between step boundaries surfaces as a failed run carrying
// toolerrors.ErrRunCancelled's message rather than a bare context error.
func (e *Executor) runTopLevel(ctx context.Context, rc *procedure.RunContext, def *procedure.Definition) (procedure.Status, error) {
	run := e.runStepsFunc(def.EffectiveOnError())
	status, halted := run(ctx, rc, def.Steps)
	if ctx.Err() != nil {
		return procedure.StatusFailed, fmt.Errorf("%w: %w", toolerrors.ErrRunCancelled, ctx.Err())
	}
	if halted {
		return procedure.StatusFailed, nil
	}
	return status, nil
}

// runStepsFunc builds the recursive step-list runner used both at the top
// level and as the flow.RunFunc callback the Flow Controller invokes for
// each selected branch.
func (e *Executor) runStepsFunc(defaultOnError procedure.OnError) flow.RunFunc {
	var runSteps flow.RunFunc
	runSteps = func(ctx context.Context, rc *procedure.RunContext, steps []procedure.Step) (procedure.Status, bool) {
		overall := procedure.StatusSuccess

		for _, step := range steps {
			if ctx.Err() != nil {
				return procedure.StatusFailed, true
			}

			if e.Profile != nil && !e.Profile.Has(step.Function) {
				blocked := procedure.FailedResult(fmt.Sprintf("step %q: function %q is not available under the active profile", step.Name, step.Function), nil)
				if step.Name != "" {
					rc.Steps[step.Name] = blocked
				}
				return procedure.StatusFailed, true
			}

			outcome := e.Dispatch.Dispatch(ctx, rc, step, defaultOnError)
			result := outcome.Result
			if step.Name != "" {
				rc.Steps[step.Name] = result
			}

			if result.Status != procedure.StatusSkipped && result.Directive != nil {
				flowOutcome := e.Flow.Run(ctx, rc, step, result.Directive, runSteps)
				if step.Name != "" {
					merged := rc.Steps[step.Name]
					merged.Status = flowOutcome.Status
					merged.ItemsProcessed = flowOutcome.ItemsProcessed
					merged.ItemsFailed = flowOutcome.ItemsFailed
					if flowOutcome.Message != "" {
						merged.Message = flowOutcome.Message
					}
					rc.Steps[step.Name] = merged
				}
				if flowOutcome.Status == procedure.StatusFailed {
					overall = procedure.StatusPartial
				} else if flowOutcome.Status == procedure.StatusPartial && overall == procedure.StatusSuccess {
					overall = procedure.StatusPartial
				}
				if flowOutcome.Halted {
					return procedure.StatusFailed, true
				}
				continue
			}

			if outcome.Halt {
				return procedure.StatusFailed, true
			}
			if result.Status == procedure.StatusFailed && overall == procedure.StatusSuccess {
				overall = procedure.StatusPartial
			}
		}

		return overall, false
	}
	return runSteps
}

// mergeParams layers caller-supplied params over declared defaults, filling
// any declared parameter the caller omitted.
func mergeParams(def *procedure.Definition, params map[string]any) map[string]any {
	merged := make(map[string]any, len(params)+len(def.Parameters))
	for _, p := range def.Parameters {
		if p.HasDefault() {
			merged[p.Name] = p.Default
		}
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}
