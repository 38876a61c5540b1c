// Package flow implements the Flow Controller (C7): given a flow step's
// computed FlowDirective, decide which branch(es) of the step's declared
// Branches actually run, and how their run contexts relate to the parent's.
// Sequential primitives (if_branch, switch_branch) execute their chosen
// branch directly against the caller's RunContext; fan-out primitives
// (parallel, foreach) fork independent child contexts per §5's concurrency
// model. parallel merges its branches' results back deterministically;
// foreach iteration results are not merged into the caller's context and
// only their counts reach the Outcome. Grounded on
// original_source/backend/app/cwr/execution/flow_controller.py for the
// per-primitive dispatch table and on the teacher's
// features/model/middleware.AdaptiveRateLimiter for the x/time/rate pacing
// idiom, adapted here to bound parallel/foreach fan-out instead of LLM
// token budgets.
package flow

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
	"github.com/davidlarrimore/curatore-v2-sub001/telemetry"
)

// RunFunc runs one step list against rc, mutating rc.Steps as each step
// completes (the same contract the Executor's own step loop follows), and
// reports the aggregate status and whether a fail-policy halt occurred.
// Flow steps among the given list are expected to recurse back into the
// Executor, which is why RunFunc is supplied by the caller rather than
// owned by this package.
type RunFunc func(ctx context.Context, rc *procedure.RunContext, steps []procedure.Step) (status procedure.Status, halted bool)

// Controller resolves a step's FlowDirective against its declared branches.
type Controller struct {
	// DefaultMaxConcurrency bounds a parallel step's fan-out when the step
	// itself does not specify a positive max_concurrency. New sets it to
	// runtime.NumCPU(); zero or less leaves the fan-out bounded only by the
	// number of branches.
	DefaultMaxConcurrency int
	// Limiter, if non-nil, paces branch starts (parallel fan-out, foreach
	// iterations) the same way the teacher's AdaptiveRateLimiter paces
	// outbound model calls — useful when branches themselves call
	// rate-limited external services.
	Limiter *rate.Limiter

	Logger telemetry.Logger
}

// New builds a Controller with sensible defaults.
func New() *Controller {
	return &Controller{DefaultMaxConcurrency: runtime.NumCPU(), Logger: telemetry.NoopLogger{}}
}

// Outcome is the Flow Controller's verdict, folded into the flow step's own
// StepResult by the Executor.
type Outcome struct {
	Status         procedure.Status
	Message        string
	ItemsProcessed int
	ItemsFailed    int
	Halted         bool
}

// Run resolves step's directive and executes the implied branch(es) via run.
func (c *Controller) Run(ctx context.Context, rc *procedure.RunContext, step procedure.Step, directive *procedure.FlowDirective, run RunFunc) Outcome {
	if directive == nil {
		return Outcome{Status: procedure.StatusSkipped, Message: "flow step produced no directive"}
	}

	switch step.Function {
	case "if_branch", "switch_branch":
		return c.runSingleBranch(ctx, rc, step, directive, run)
	case "parallel":
		return c.runParallel(ctx, rc, step, directive, run)
	case "foreach":
		return c.runForeach(ctx, rc, step, directive, run)
	default:
		return Outcome{Status: procedure.StatusFailed, Message: fmt.Sprintf("flow: %q is not a flow primitive", step.Function)}
	}
}

// runSingleBranch executes the one branch named by directive.BranchKey
// directly against rc: if_branch/switch_branch never fork the run context,
// so steps declared after the flow step can see the chosen branch's results
// (§5).
func (c *Controller) runSingleBranch(ctx context.Context, rc *procedure.RunContext, step procedure.Step, directive *procedure.FlowDirective, run RunFunc) Outcome {
	branchSteps, ok := step.Branches[directive.BranchKey]
	if !ok {
		branchSteps, ok = step.Branches["default"]
	}
	if !ok {
		// No sub-steps execute, but the flow step itself is still a success
		// (spec.md §if_branch/switch_branch no-match behavior) — distinct
		// from a step skipped by a falsy `condition` template.
		return Outcome{Status: procedure.StatusSuccess, Message: fmt.Sprintf("no branch matched key %q and no default declared", directive.BranchKey)}
	}
	status, halted := run(ctx, rc, branchSteps)
	return Outcome{Status: status, Message: fmt.Sprintf("ran branch %q", directive.BranchKey), Halted: halted}
}

// runParallel forks one child RunContext per selected branch (every declared
// branch when directive.RunAllBranches is set, otherwise the explicit
// BranchesToRun list), runs them concurrently bounded by max_concurrency
// (the value the parallel tool recorded in the step's result Metadata,
// else DefaultMaxConcurrency), and, once every branch has finished, merges
// each child's new step results back into rc.
// Branches that reuse a step name another branch also used are merged in
// sorted-branch-name order — last writer wins, same as any other author
// error the validator does not catch across branch boundaries.
func (c *Controller) runParallel(ctx context.Context, rc *procedure.RunContext, step procedure.Step, directive *procedure.FlowDirective, run RunFunc) Outcome {
	names := directive.BranchesToRun
	if directive.RunAllBranches || len(names) == 0 {
		names = make([]string, 0, len(step.Branches))
		for k := range step.Branches {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	maxConcurrency := c.DefaultMaxConcurrency
	if res, ok := rc.Steps[step.Name]; ok {
		if n, ok := res.Metadata["max_concurrency"].(int); ok && n > 0 {
			maxConcurrency = n
		}
	}
	if maxConcurrency <= 0 {
		maxConcurrency = len(names)
	}
	if maxConcurrency > len(names) {
		maxConcurrency = len(names)
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	type branchOutcome struct {
		name   string
		status procedure.Status
		halted bool
		steps  map[string]procedure.StepResult
	}

	results := make([]branchOutcome, len(names))
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, name := range names {
		branchSteps, ok := step.Branches[name]
		if !ok {
			results[i] = branchOutcome{name: name, status: procedure.StatusSkipped}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, name string, branchSteps []procedure.Step) {
			defer wg.Done()
			defer func() { <-sem }()
			if c.Limiter != nil {
				_ = c.Limiter.Wait(ctx)
			}
			child := rc.Child(nil)
			status, halted := run(ctx, child, branchSteps)
			results[i] = branchOutcome{name: name, status: status, halted: halted, steps: child.Steps}
		}(i, name, branchSteps)
	}
	wg.Wait()

	anyFailed, anyHalted := false, false
	for _, r := range results {
		if r.steps != nil {
			mergeNewSteps(rc, r.steps)
		}
		if r.status == procedure.StatusFailed {
			anyFailed = true
		}
		if r.halted {
			anyHalted = true
		}
	}

	status := procedure.StatusSuccess
	if anyFailed {
		status = procedure.StatusPartial
	}
	return Outcome{
		Status:  status,
		Message: fmt.Sprintf("ran %d parallel branch(es)", len(names)),
		Halted:  anyHalted,
	}
}

// runForeach runs the each branch once per item in directive.ItemsToIterate,
// each against its own child RunContext with {item, item_index} bound in
// LoopScope (§5 "foreach iterations get fresh independent steps.* maps").
// Iterations run sequentially: per-iteration state commonly feeds the next
// iteration's side effects (e.g. accumulating notifications), and the
// engine has no declared ordering guarantee to give up by parallelizing.
func (c *Controller) runForeach(ctx context.Context, rc *procedure.RunContext, step procedure.Step, directive *procedure.FlowDirective, run RunFunc) Outcome {
	eachSteps, ok := step.Branches["each"]
	if !ok {
		return Outcome{Status: procedure.StatusFailed, Message: "foreach step has no each branch"}
	}

	processed, failed := 0, 0
	for i, item := range directive.ItemsToIterate {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				break
			}
		}
		child := rc.Child(map[string]any{"item": item, "item_index": i})
		status, halted := run(ctx, child, eachSteps)
		processed++
		if status == procedure.StatusFailed {
			failed++
		}
		if halted {
			return Outcome{
				Status:         procedure.StatusFailed,
				Message:        fmt.Sprintf("foreach halted at item %d of %d", i, len(directive.ItemsToIterate)),
				ItemsProcessed: processed,
				ItemsFailed:    failed,
				Halted:         true,
			}
		}
	}

	status := procedure.StatusSuccess
	if failed > 0 {
		status = procedure.StatusPartial
	}
	return Outcome{
		Status:         status,
		Message:        fmt.Sprintf("iterated %d item(s)", len(directive.ItemsToIterate)),
		ItemsProcessed: processed,
		ItemsFailed:    failed,
	}
}

// mergeNewSteps copies entries from src into rc.Steps, overwriting on
// collision (last merge wins — see runParallel's doc comment).
func mergeNewSteps(rc *procedure.RunContext, src map[string]procedure.StepResult) {
	for name, res := range src {
		if existing, ok := rc.Steps[name]; ok && sameResult(existing, res) {
			continue
		}
		rc.Steps[name] = res
	}
}

func sameResult(a, b procedure.StepResult) bool {
	return a.Status == b.Status && a.Message == b.Message && a.DurationMS == b.DurationMS
}
