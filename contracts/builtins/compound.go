package builtins

import (
	"context"
	"fmt"

	"github.com/davidlarrimore/curatore-v2-sub001/contracts"
	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
)

// RegisterCompound installs one illustrative compound tool: a tool whose
// Invoke internally calls other registered tools rather than delegating to
// the dispatcher, grounded on original_source's tools/compounds/ pattern
// (e.g. AnalyzeSolicitation, EnrichAssets) and generalized away from that
// app's procurement domain.
func RegisterCompound(r *contracts.Registry) {
	r.Register(compoundSummarizeThenNotifyContract(), contracts.InvokerFunc(
		func(ctx context.Context, ictx contracts.InvocationContext, params map[string]any) (procedure.StepResult, error) {
			return invokeCompoundSummarizeThenNotify(ctx, ictx, r, params)
		},
	))
}

func compoundSummarizeThenNotifyContract() procedure.Contract {
	return procedure.Contract{
		Name:        "compound_summarize_then_notify",
		Category:    procedure.CategoryCompound,
		Description: "Summarizes text via the LLM provider and emails the summary to one or more recipients in a single step.",
		InputSchema: procedure.Schema{
			Type: "object",
			Properties: map[string]procedure.Schema{
				"text":    {Type: "string"},
				"to":      {Type: "array", Items: &procedure.Schema{Type: "string"}},
				"subject": {Type: "string"},
			},
			Required: []string{"text", "to", "subject"},
		},
		OutputSchema: procedure.Schema{
			Type: "object",
			Properties: map[string]procedure.Schema{
				"summary": {Type: "string"},
				"sent":    {Type: "boolean"},
			},
		},
		SideEffects:     true,
		IsPrimitive:     false,
		PayloadProfile:  procedure.PayloadSummary,
		ExposureProfile: procedure.DefaultExposureProfile(),
		RequiresLLM:     true,
		Tags:            []string{"compound"},
	}
}

// invokeCompoundSummarizeThenNotify orchestrates llm_generate and
// send_email directly through the registry, rather than the step
// dispatcher — a compound tool is, by definition (§3 Tool Contract
// is_primitive), not itself dispatched per sub-call; it owns its own
// internal control flow.
func invokeCompoundSummarizeThenNotify(ctx context.Context, ictx contracts.InvocationContext, r *contracts.Registry, params map[string]any) (procedure.StepResult, error) {
	text, _ := params["text"].(string)

	_, genInvoker, ok := r.Get("llm_generate")
	if !ok {
		return procedure.FailedResult("compound_summarize_then_notify: llm_generate not registered", nil), nil
	}
	genResult, err := genInvoker.Invoke(ctx, ictx, map[string]any{
		"prompt": fmt.Sprintf("Summarize the following in two sentences:\n\n%s", text),
	})
	if err != nil {
		return procedure.FailedResult("compound_summarize_then_notify: summarization failed", err), nil
	}
	if genResult.Failed() {
		return procedure.FailedResult("compound_summarize_then_notify: summarization failed: "+genResult.Message, nil), nil
	}
	genData, _ := genResult.Data.(map[string]any)
	summary, _ := genData["text"].(string)

	_, notifyInvoker, ok := r.Get("send_email")
	if !ok {
		return procedure.FailedResult("compound_summarize_then_notify: send_email not registered", nil), nil
	}
	notifyResult, err := notifyInvoker.Invoke(ctx, ictx, map[string]any{
		"to":      params["to"],
		"subject": params["subject"],
		"body":    summary,
	})
	if err != nil {
		return procedure.FailedResult("compound_summarize_then_notify: notification failed", err), nil
	}

	sent := false
	if notifyData, ok := notifyResult.Data.(map[string]any); ok {
		sent, _ = notifyData["sent"].(bool)
	}
	return procedure.SuccessResult(map[string]any{"summary": summary, "sent": sent}, "summarized and notified"), nil
}
