package builtins

import (
	"context"
	"fmt"

	"github.com/davidlarrimore/curatore-v2-sub001/contracts"
	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
)

// RegisterBasic installs a small illustrative catalog of ordinary
// (non-flow) tools spanning the utility/search/notify categories, grounded
// generically on original_source's tools/registry.py catalog (log,
// search_assets, send_email) but stripped of that app's domain specifics.
func RegisterBasic(r *contracts.Registry) {
	r.Register(logContract(), contracts.InvokerFunc(invokeLog))
	r.Register(searchAssetsContract(), contracts.InvokerFunc(invokeSearchAssets))
	r.Register(sendEmailContract(), contracts.InvokerFunc(invokeSendEmail))
	r.Register(notifyPrepareContract(), contracts.InvokerFunc(invokeNotifyPrepare))
	r.Register(notifyConfirmContract(), contracts.InvokerFunc(invokeNotifyConfirm))
}

func logContract() procedure.Contract {
	return procedure.Contract{
		Name:        "log",
		Category:    procedure.CategoryUtility,
		Description: "Writes a message to the run's diagnostic log. Has no side effects visible outside the run record.",
		InputSchema: procedure.Schema{
			Type:       "object",
			Properties: map[string]procedure.Schema{"msg": {Type: "string"}},
			Required:   []string{"msg"},
		},
		OutputSchema: procedure.Schema{
			Type:       "object",
			Properties: map[string]procedure.Schema{"logged": {Type: "string"}},
		},
		IsPrimitive:     true,
		PayloadProfile:  procedure.PayloadThin,
		ExposureProfile: procedure.DefaultExposureProfile(),
		Tags:            []string{"diagnostic"},
	}
}

func invokeLog(_ context.Context, _ contracts.InvocationContext, params map[string]any) (procedure.StepResult, error) {
	msg, _ := params["msg"].(string)
	return procedure.SuccessResult(map[string]any{"logged": msg}, msg), nil
}

func searchAssetsContract() procedure.Contract {
	return procedure.Contract{
		Name:        "search_assets",
		Category:    procedure.CategorySearch,
		Description: "Searches the configured asset store for items matching a query and optional facet filters.",
		InputSchema: procedure.Schema{
			Type: "object",
			Properties: map[string]procedure.Schema{
				"query":               {Type: "string"},
				"source_type":         {Type: "string"},
				"posted_within_days":  {Type: "integer"},
				"facet_filters":       {Type: "object"},
			},
			Required: []string{"query"},
		},
		OutputSchema: procedure.Schema{
			Type: "array",
			Items: &procedure.Schema{
				Type: "object",
				Properties: map[string]procedure.Schema{
					"id":    {Type: "string"},
					"title": {Type: "string"},
				},
			},
		},
		IsPrimitive:     true,
		PayloadProfile:  procedure.PayloadSummary,
		ExposureProfile: procedure.DefaultExposureProfile(),
		Tags:            []string{"search"},
	}
}

func invokeSearchAssets(_ context.Context, ictx contracts.InvocationContext, params map[string]any) (procedure.StepResult, error) {
	// Reference implementation: the tool's own data source is out of scope
	// (spec.md §1 Non-goals) — this stub returns an empty result set so the
	// engine's control flow (branching on `| length`) is exercisable without
	// a real asset store.
	query, _ := params["query"].(string)
	return procedure.SuccessResult([]any{}, fmt.Sprintf("searched for %q, org=%s", query, ictx.OrgID)), nil
}

func sendEmailContract() procedure.Contract {
	return procedure.Contract{
		Name:        "send_email",
		Category:    procedure.CategoryNotify,
		Description: "Sends an email to one or more recipients. Side-effecting.",
		InputSchema: procedure.Schema{
			Type: "object",
			Properties: map[string]procedure.Schema{
				"to":      {Type: "array", Items: &procedure.Schema{Type: "string"}},
				"subject": {Type: "string"},
				"body":    {Type: "string"},
			},
			Required: []string{"to", "subject", "body"},
		},
		OutputSchema: procedure.Schema{
			Type:       "object",
			Properties: map[string]procedure.Schema{"sent": {Type: "boolean"}},
		},
		SideEffects:     true,
		IsPrimitive:     true,
		PayloadProfile:  procedure.PayloadThin,
		ExposureProfile: procedure.DefaultExposureProfile(),
		Tags:            []string{"notify"},
	}
}

func invokeSendEmail(ctx context.Context, ictx contracts.InvocationContext, params map[string]any) (procedure.StepResult, error) {
	if ictx.DryRun {
		return procedure.SuccessResult(map[string]any{"sent": false}, "dry run: email not sent"), nil
	}
	to, _ := params["to"].([]any)
	subject, _ := params["subject"].(string)
	return procedure.SuccessResult(map[string]any{"sent": true}, fmt.Sprintf("sent %q to %d recipient(s)", subject, len(to))), nil
}

// notify_prepare / notify_confirm generalize the original's
// PrepareEmail/ConfirmEmail two-phase pattern (SPEC_FULL.md supplemented
// feature #4): prepare renders a preview without side effects, confirm
// performs the side effect given the prepared payload.

func notifyPrepareContract() procedure.Contract {
	return procedure.Contract{
		Name:        "notify_prepare",
		Category:    procedure.CategoryNotify,
		Description: "Renders a notification preview without sending it.",
		InputSchema: procedure.Schema{
			Type: "object",
			Properties: map[string]procedure.Schema{
				"to":      {Type: "array", Items: &procedure.Schema{Type: "string"}},
				"subject": {Type: "string"},
				"body":    {Type: "string"},
			},
			Required: []string{"to", "subject", "body"},
		},
		OutputSchema: procedure.Schema{
			Type: "object",
			Properties: map[string]procedure.Schema{
				"to":      {Type: "array", Items: &procedure.Schema{Type: "string"}},
				"subject": {Type: "string"},
				"body":    {Type: "string"},
				"preview": {Type: "boolean"},
			},
		},
		IsPrimitive:     true,
		PayloadProfile:  procedure.PayloadThin,
		ExposureProfile: procedure.DefaultExposureProfile(),
		Tags:            []string{"notify", "two-phase"},
	}
}

func invokeNotifyPrepare(_ context.Context, _ contracts.InvocationContext, params map[string]any) (procedure.StepResult, error) {
	out := map[string]any{
		"to":      params["to"],
		"subject": params["subject"],
		"body":    params["body"],
		"preview": true,
	}
	return procedure.SuccessResult(out, "prepared notification preview"), nil
}

func notifyConfirmContract() procedure.Contract {
	return procedure.Contract{
		Name:        "notify_confirm",
		Category:    procedure.CategoryNotify,
		Description: "Sends a previously prepared notification. Side-effecting.",
		InputSchema: procedure.Schema{
			Type: "object",
			Properties: map[string]procedure.Schema{
				"to":      {Type: "array", Items: &procedure.Schema{Type: "string"}},
				"subject": {Type: "string"},
				"body":    {Type: "string"},
			},
			Required: []string{"to", "subject", "body"},
		},
		OutputSchema: procedure.Schema{
			Type:       "object",
			Properties: map[string]procedure.Schema{"sent": {Type: "boolean"}},
		},
		SideEffects:     true,
		IsPrimitive:     true,
		PayloadProfile:  procedure.PayloadThin,
		ExposureProfile: procedure.DefaultExposureProfile(),
		Tags:            []string{"notify", "two-phase"},
	}
}

func invokeNotifyConfirm(ctx context.Context, ictx contracts.InvocationContext, params map[string]any) (procedure.StepResult, error) {
	return invokeSendEmail(ctx, ictx, params)
}
