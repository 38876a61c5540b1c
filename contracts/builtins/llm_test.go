package builtins

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"github.com/stretchr/testify/require"

	"github.com/davidlarrimore/curatore-v2-sub001/contracts"
)

type fakeAnthropic struct {
	lastModel string
	text      string
	err       error
}

func (f *fakeAnthropic) New(_ context.Context, body sdk.MessageNewParams, _ ...anthropicoption.RequestOption) (*sdk.Message, error) {
	f.lastModel = string(body.Model)
	if f.err != nil {
		return nil, f.err
	}
	return &sdk.Message{Content: []sdk.ContentBlockUnion{{Type: "text", Text: f.text}}}, nil
}

type fakeOpenAI struct {
	lastModel openai.ChatModel
	text      string
}

func (f *fakeOpenAI) New(_ context.Context, body openai.ChatCompletionNewParams, _ ...openaioption.RequestOption) (*openai.ChatCompletion, error) {
	f.lastModel = body.Model
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.text}},
		},
	}, nil
}

type fakeBedrock struct {
	lastModelID string
	text        string
}

func (f *fakeBedrock) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastModelID = *params.ModelId
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: f.text}},
			},
		},
	}, nil
}

func TestProviderPrefixParsing(t *testing.T) {
	cases := []struct {
		model    string
		wantName string
		wantRest string
	}{
		{"claude-sonnet-4-5", "anthropic", "claude-sonnet-4-5"},
		{"anthropic:claude-sonnet-4-5", "anthropic", "claude-sonnet-4-5"},
		{"openai:gpt-4.1", "openai", "gpt-4.1"},
		{"bedrock:anthropic.claude-3-5-sonnet", "bedrock", "anthropic.claude-3-5-sonnet"},
	}
	for _, c := range cases {
		name, rest := provider(c.model)
		require.Equal(t, c.wantName, name, "provider(%q) name", c.model)
		require.Equal(t, c.wantRest, rest, "provider(%q) rest", c.model)
	}
}

func TestInvokeGenerateDefaultsToAnthropic(t *testing.T) {
	fa := &fakeAnthropic{text: "hello from claude"}
	llm := LLM{Anthropic: fa}
	res, err := llm.invokeGenerate(context.Background(), contracts.InvocationContext{}, map[string]any{"prompt": "hi"})
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Equal(t, "hello from claude", res.Data.(map[string]any)["text"])
}

func TestInvokeGenerateRoutesToOpenAI(t *testing.T) {
	fo := &fakeOpenAI{text: "hello from gpt"}
	llm := LLM{OpenAI: fo}
	res, err := llm.invokeGenerate(context.Background(), contracts.InvocationContext{}, map[string]any{
		"prompt": "hi", "model": "openai:gpt-4.1",
	})
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Equal(t, "hello from gpt", res.Data.(map[string]any)["text"])
	require.Equal(t, openai.ChatModel("gpt-4.1"), fo.lastModel)
}

func TestInvokeGenerateRoutesToBedrock(t *testing.T) {
	fb := &fakeBedrock{text: "hello from bedrock"}
	llm := LLM{Bedrock: fb}
	res, err := llm.invokeGenerate(context.Background(), contracts.InvocationContext{}, map[string]any{
		"prompt": "hi", "model": "bedrock:anthropic.claude-3-5-sonnet",
	})
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Equal(t, "hello from bedrock", res.Data.(map[string]any)["text"])
	require.Equal(t, "anthropic.claude-3-5-sonnet", fb.lastModelID)
}

func TestInvokeGenerateMissingProviderFails(t *testing.T) {
	llm := LLM{}
	res, err := llm.invokeGenerate(context.Background(), contracts.InvocationContext{}, map[string]any{"prompt": "hi"})
	require.NoError(t, err)
	require.True(t, res.Failed(), "expected a failed result when no anthropic client is configured")
}

func TestInvokeGeneratePropagatesProviderError(t *testing.T) {
	fa := &fakeAnthropic{err: errors.New("rate limited")}
	llm := LLM{Anthropic: fa}
	res, err := llm.invokeGenerate(context.Background(), contracts.InvocationContext{}, map[string]any{"prompt": "hi"})
	require.NoError(t, err)
	require.True(t, res.Failed())
}

func TestInvokeClassifyDelegatesToGenerate(t *testing.T) {
	fa := &fakeAnthropic{text: "spam"}
	llm := LLM{Anthropic: fa}
	res, err := llm.invokeClassify(context.Background(), contracts.InvocationContext{}, map[string]any{
		"text": "buy now!!!", "labels": []any{"spam", "ham"},
	})
	require.NoError(t, err)
	require.Equal(t, "spam", res.Data.(map[string]any)["label"])
}

func TestInvokeClassifyRequiresLabels(t *testing.T) {
	llm := LLM{Anthropic: &fakeAnthropic{text: "x"}}
	res, err := llm.invokeClassify(context.Background(), contracts.InvocationContext{}, map[string]any{"text": "x"})
	require.NoError(t, err)
	require.True(t, res.Failed(), "expected failure when no labels are provided")
}

func TestInvokeSummarizeDelegatesToGenerate(t *testing.T) {
	fa := &fakeAnthropic{text: "a short summary"}
	llm := LLM{Anthropic: fa}
	res, err := llm.invokeSummarize(context.Background(), contracts.InvocationContext{}, map[string]any{
		"text": "a very long document body", "sentences": 1,
	})
	require.NoError(t, err)
	require.Equal(t, "a short summary", res.Data.(map[string]any)["summary"])
}
