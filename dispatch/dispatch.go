// Package dispatch implements the Step Dispatcher (C6): given one step and
// the run's current context, render its condition and params, invoke the
// named tool through the registry, and translate the outcome (including a
// panicking invoker) into a StepResult plus the on_error policy that governs
// what the Executor does next. Grounded on
// original_source/backend/app/cwr/execution/dispatcher.py for the
// condition-then-render-then-invoke ordering and the on_error precedence
// rule (step-level overrides procedure-level), and on the teacher's
// toolerrors chain for wrapping invoker errors (a recovered panic becomes a
// plain failed result).
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/davidlarrimore/curatore-v2-sub001/contracts"
	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
	"github.com/davidlarrimore/curatore-v2-sub001/telemetry"
	"github.com/davidlarrimore/curatore-v2-sub001/template"
	"github.com/davidlarrimore/curatore-v2-sub001/toolerrors"
)

// Dispatcher resolves and invokes one step at a time.
type Dispatcher struct {
	Registry *contracts.Registry
	Logger   telemetry.Logger
	Metrics  telemetry.Metrics
	Tracer   telemetry.Tracer
}

// New builds a Dispatcher, defaulting every telemetry dependency to its
// no-op implementation so callers may omit them in tests.
func New(r *contracts.Registry) *Dispatcher {
	return &Dispatcher{
		Registry: r,
		Logger:   telemetry.NoopLogger{},
		Metrics:  telemetry.NoopMetrics{},
		Tracer:   telemetry.NoopTracer{},
	}
}

// Outcome is the dispatcher's verdict on what the Executor should do after a
// step finishes, folding the step's own on_error (falling back to the
// procedure's) into a single decision.
type Outcome struct {
	Result procedure.StepResult
	// Halt reports whether the surrounding run must stop: true only when
	// the step failed and its effective on_error policy is "fail".
	Halt bool
}

// Dispatch renders step.Condition and step.Params against rc's current
// scope, invokes the named tool, and returns the resulting StepResult
// wrapped with the halt decision implied by effectiveOnError.
func (d *Dispatcher) Dispatch(ctx context.Context, rc *procedure.RunContext, step procedure.Step, effectiveOnError procedure.OnError) Outcome {
	start := time.Now()
	scope := template.NewScope(rc)

	if step.Condition != "" {
		condVal, err := template.Render(step.Condition, scope)
		if err != nil {
			return d.finish(step, procedure.FailedResult(
				fmt.Sprintf("step %q: failed to render condition: %s", step.Name, err),
				err,
			), effectiveOnError, start)
		}
		if !template.Truthy(condVal) {
			d.Logger.Info(ctx, "step skipped: condition is falsy", "step", step.Name)
			return Outcome{Result: procedure.SkippedResult(fmt.Sprintf("condition %q was falsy", step.Condition))}
		}
	}

	renderedParams, err := d.renderParams(step, scope)
	if err != nil {
		return d.finish(step, procedure.FailedResult(
			fmt.Sprintf("step %q: failed to render params: %s", step.Name, err),
			err,
		), effectiveOnError, start)
	}

	contract, invoker, ok := d.Registry.Get(step.Function)
	if !ok {
		err := toolerrors.NewWithCause(fmt.Sprintf("step %q: unknown function %q", step.Name, step.Function), toolerrors.ErrUnknownTool)
		return d.finish(step, procedure.FailedResult(err.Message, err), effectiveOnError, start)
	}

	_ = contract // schema already enforced by Phase F; invocation trusts it
	result := d.invoke(ctx, rc, step, invoker, renderedParams)
	return d.finish(step, result, effectiveOnError, start)
}

func (d *Dispatcher) renderParams(step procedure.Step, scope template.Scope) (map[string]any, error) {
	if len(step.Params) == 0 {
		return map[string]any{}, nil
	}
	rendered, err := template.RenderValue(map[string]any(step.Params), scope)
	if err != nil {
		return nil, err
	}
	out, _ := rendered.(map[string]any)
	return out, nil
}

// invoke calls the tool's Invoker, converting a panic into a failed
// StepResult (§4.5: the dispatcher is the boundary that contains a
// misbehaving tool) and an invocation error into a ToolError-wrapped
// failure.
func (d *Dispatcher) invoke(ctx context.Context, rc *procedure.RunContext, step procedure.Step, invoker contracts.Invoker, params map[string]any) (result procedure.StepResult) {
	defer func() {
		if r := recover(); r != nil {
			result = procedure.FailedResult(fmt.Sprintf("step %q: tool %q panicked: %v", step.Name, step.Function, r), nil)
		}
	}()

	ictx := contracts.InvocationContext{
		RunID:  rc.RunID,
		OrgID:  rc.OrgID,
		DryRun: rc.DryRun,
	}

	ctx, span := d.Tracer.Start(ctx, "dispatch.step")
	defer span.End()

	res, err := invoker.Invoke(ctx, ictx, params)
	if err != nil {
		te := toolerrors.NewWithCause(fmt.Sprintf("step %q: tool %q failed", step.Name, step.Function), err)
		span.RecordError(err)
		return procedure.FailedResult(te.Message, te)
	}
	return res
}

// finish stamps duration, records metrics, and applies the effective
// on_error policy to decide whether the run must halt (§4.5: fail halts;
// skip records the step as skipped and continue keeps it recorded as
// failed, and both let the run proceed).
func (d *Dispatcher) finish(step procedure.Step, result procedure.StepResult, effectiveOnError procedure.OnError, start time.Time) Outcome {
	result.DurationMS = time.Since(start).Milliseconds()

	if !result.Failed() {
		d.Metrics.IncCounter("procedure.step.success", 1, "function:"+step.Function)
		return Outcome{Result: result}
	}

	d.Metrics.IncCounter("procedure.step.failure", 1, "function:"+step.Function)

	policy := step.OnError
	if policy == "" {
		policy = effectiveOnError
	}
	if policy == "" {
		policy = procedure.OnErrorFail
	}

	switch policy {
	case procedure.OnErrorSkip:
		result.Status = procedure.StatusSkipped
		return Outcome{Result: result}
	case procedure.OnErrorContinue:
		return Outcome{Result: result}
	default: // fail
		return Outcome{Result: result, Halt: true}
	}
}
