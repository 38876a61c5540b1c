package builtins

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"

	"github.com/davidlarrimore/curatore-v2-sub001/contracts"
	"github.com/davidlarrimore/curatore-v2-sub001/procedure"
)

// messagesClient captures the subset of the Anthropic SDK used by the
// anthropic provider path, grounded on the teacher's
// features/model/anthropic.MessagesClient adapter interface — narrow enough
// that tests can supply a fake without pulling in the real SDK transport.
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...anthropicoption.RequestOption) (*sdk.Message, error)
}

// chatClient captures the subset of the OpenAI SDK used by the openai
// provider path.
type chatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...openaioption.RequestOption) (*openai.ChatCompletion, error)
}

// converseClient captures the subset of the AWS Bedrock runtime client used
// by the bedrock provider path, mirroring the teacher's
// features/model/bedrock.RuntimeClient narrowing of *bedrockruntime.Client
// down to just Converse.
type converseClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// LLM bundles the provider clients the llm_* built-in tools dispatch to,
// selected by a "provider:model" prefix in the params (e.g.
// "anthropic:claude-sonnet-4-5", "openai:gpt-4.1", "bedrock:anthropic.claude-3-5-sonnet").
// A nil client for a given provider makes any tool call routed to it return a
// failed StepResult rather than panic. With no prefix, Anthropic is the
// default provider (matching the teacher's primary model integration).
type LLM struct {
	Anthropic messagesClient
	OpenAI    chatClient
	Bedrock   converseClient

	BedrockModelID string
}

// RegisterLLM installs the llm-category built-in tools backed by llm. A
// zero-value LLM is usable — every llm_* invocation simply fails with a
// clear message until a real client is wired in, e.g. from cmd/procexec's
// main().
func RegisterLLM(r *contracts.Registry, llm LLM) {
	r.Register(llmGenerateContract(), contracts.InvokerFunc(llm.invokeGenerate))
	r.Register(llmClassifyContract(), contracts.InvokerFunc(llm.invokeClassify))
	r.Register(llmSummarizeContract(), contracts.InvokerFunc(llm.invokeSummarize))
}

func llmGenerateContract() procedure.Contract {
	return procedure.Contract{
		Name:        "llm_generate",
		Category:    procedure.CategoryLLM,
		Description: "Generates free-form text from a prompt. model may carry a \"provider:\" prefix (anthropic, openai, bedrock) to select the backing client; anthropic is the default.",
		InputSchema: procedure.Schema{
			Type: "object",
			Properties: map[string]procedure.Schema{
				"prompt":     {Type: "string"},
				"model":      {Type: "string", Default: "claude-sonnet-4-5"},
				"max_tokens": {Type: "integer", Default: 1024},
			},
			Required: []string{"prompt"},
		},
		OutputSchema: procedure.Schema{
			Type:       "object",
			Properties: map[string]procedure.Schema{"text": {Type: "string"}},
		},
		RequiresLLM:     true,
		IsPrimitive:     true,
		PayloadProfile:  procedure.PayloadFull,
		ExposureProfile: procedure.DefaultExposureProfile(),
		Tags:            []string{"llm"},
	}
}

// provider splits a "provider:model" string into its parts, defaulting to
// the anthropic provider when no recognized prefix is present.
func provider(model string) (name, rest string) {
	for _, p := range []string{"anthropic", "openai", "bedrock"} {
		if strings.HasPrefix(model, p+":") {
			return p, strings.TrimPrefix(model, p+":")
		}
	}
	return "anthropic", model
}

func (l LLM) invokeGenerate(ctx context.Context, _ contracts.InvocationContext, params map[string]any) (procedure.StepResult, error) {
	prompt, _ := params["prompt"].(string)
	model, _ := params["model"].(string)
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	maxTokens := 1024
	if v, ok := params["max_tokens"]; ok {
		maxTokens = asInt(v)
	}

	name, modelID := provider(model)
	var text string
	var err error
	switch name {
	case "openai":
		text, err = l.generateOpenAI(ctx, modelID, prompt, maxTokens)
	case "bedrock":
		text, err = l.generateBedrock(ctx, modelID, prompt, maxTokens)
	default:
		text, err = l.generateAnthropic(ctx, modelID, prompt, maxTokens)
	}
	if err != nil {
		return procedure.FailedResult(fmt.Sprintf("llm_generate: %s provider call failed", name), err), nil
	}
	return procedure.SuccessResult(map[string]any{"text": text}, "generated response"), nil
}

func (l LLM) generateAnthropic(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	if l.Anthropic == nil {
		return "", fmt.Errorf("no anthropic client configured")
	}
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	msg, err := l.Anthropic.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}
	return extractAnthropicText(msg), nil
}

func (l LLM) generateOpenAI(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	if l.OpenAI == nil {
		return "", fmt.Errorf("no openai client configured")
	}
	if model == "" {
		model = openai.ChatModelGPT4o
	}
	resp, err := l.OpenAI.New(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (l LLM) generateBedrock(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	if l.Bedrock == nil {
		return "", fmt.Errorf("no bedrock client configured")
	}
	modelID := model
	if modelID == "" {
		modelID = l.BedrockModelID
	}
	mt := int32(maxTokens)
	out, err := l.Bedrock.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: &modelID,
		Messages: []brtypes.Message{
			{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: prompt}},
			},
		},
		InferenceConfig: &brtypes.InferenceConfiguration{MaxTokens: &mt},
	})
	if err != nil {
		return "", err
	}
	output, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("unexpected bedrock converse output shape")
	}
	var text string
	for _, block := range output.Value.Content {
		if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
			text += tb.Value
		}
	}
	return text, nil
}

func llmClassifyContract() procedure.Contract {
	return procedure.Contract{
		Name:        "llm_classify",
		Category:    procedure.CategoryLLM,
		Description: "Classifies input text into one of a declared set of labels using the configured LLM provider.",
		InputSchema: procedure.Schema{
			Type: "object",
			Properties: map[string]procedure.Schema{
				"text":   {Type: "string"},
				"labels": {Type: "array", Items: &procedure.Schema{Type: "string"}},
				"model":  {Type: "string", Default: "claude-sonnet-4-5"},
			},
			Required: []string{"text", "labels"},
		},
		OutputSchema: procedure.Schema{
			Type: "object",
			Properties: map[string]procedure.Schema{
				"label":      {Type: "string"},
				"confidence": {Type: "number"},
			},
		},
		RequiresLLM:     true,
		IsPrimitive:     true,
		PayloadProfile:  procedure.PayloadSummary,
		ExposureProfile: procedure.DefaultExposureProfile(),
		Tags:            []string{"llm"},
	}
}

func (l LLM) invokeClassify(ctx context.Context, ictx contracts.InvocationContext, params map[string]any) (procedure.StepResult, error) {
	labels, _ := params["labels"].([]any)
	if len(labels) == 0 {
		return procedure.FailedResult("llm_classify: no labels provided", nil), nil
	}
	text, _ := params["text"].(string)
	prompt := fmt.Sprintf("Classify the following text into exactly one of %v. Respond with only the label.\n\n%s", labels, text)
	res, err := l.invokeGenerate(ctx, ictx, map[string]any{"prompt": prompt, "model": params["model"]})
	if err != nil || res.Failed() {
		return res, err
	}
	data, _ := res.Data.(map[string]any)
	return procedure.SuccessResult(map[string]any{"label": data["text"], "confidence": 1.0}, "classified"), nil
}

func llmSummarizeContract() procedure.Contract {
	return procedure.Contract{
		Name:        "llm_summarize",
		Category:    procedure.CategoryLLM,
		Description: "Summarizes a block of text to a target number of sentences using the configured LLM provider.",
		InputSchema: procedure.Schema{
			Type: "object",
			Properties: map[string]procedure.Schema{
				"text":      {Type: "string"},
				"sentences": {Type: "integer", Default: 2},
				"model":     {Type: "string", Default: "claude-sonnet-4-5"},
			},
			Required: []string{"text"},
		},
		OutputSchema: procedure.Schema{
			Type:       "object",
			Properties: map[string]procedure.Schema{"summary": {Type: "string"}},
		},
		RequiresLLM:     true,
		IsPrimitive:     true,
		PayloadProfile:  procedure.PayloadSummary,
		ExposureProfile: procedure.DefaultExposureProfile(),
		Tags:            []string{"llm"},
	}
}

func (l LLM) invokeSummarize(ctx context.Context, ictx contracts.InvocationContext, params map[string]any) (procedure.StepResult, error) {
	text, _ := params["text"].(string)
	sentences := 2
	if v, ok := params["sentences"]; ok {
		sentences = asInt(v)
	}
	prompt := fmt.Sprintf("Summarize the following in %d sentence(s):\n\n%s", sentences, text)
	res, err := l.invokeGenerate(ctx, ictx, map[string]any{"prompt": prompt, "model": params["model"]})
	if err != nil || res.Failed() {
		return res, err
	}
	data, _ := res.Data.(map[string]any)
	return procedure.SuccessResult(map[string]any{"summary": data["text"]}, "summarized"), nil
}

func extractAnthropicText(msg *sdk.Message) string {
	if msg == nil {
		return ""
	}
	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out
}
