package builtins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidlarrimore/curatore-v2-sub001/contracts"
)

func TestInvokeLog(t *testing.T) {
	res, err := invokeLog(context.Background(), contracts.InvocationContext{}, map[string]any{"msg": "hello"})
	require.NoError(t, err)
	require.True(t, res.Success())
	data := res.Data.(map[string]any)
	require.Equal(t, "hello", data["logged"])
}

func TestInvokeSearchAssetsStubIsEmpty(t *testing.T) {
	res, err := invokeSearchAssets(context.Background(), contracts.InvocationContext{OrgID: "org1"}, map[string]any{"query": "widgets"})
	require.NoError(t, err)
	items, ok := res.Data.([]any)
	require.True(t, ok)
	require.Empty(t, items)
}

func TestInvokeSendEmailRespectsDryRun(t *testing.T) {
	params := map[string]any{"to": []any{"a@example.com"}, "subject": "hi", "body": "body"}

	dryRes, err := invokeSendEmail(context.Background(), contracts.InvocationContext{DryRun: true}, params)
	require.NoError(t, err)
	require.Equal(t, false, dryRes.Data.(map[string]any)["sent"])

	liveRes, err := invokeSendEmail(context.Background(), contracts.InvocationContext{DryRun: false}, params)
	require.NoError(t, err)
	require.Equal(t, true, liveRes.Data.(map[string]any)["sent"])
}

func TestNotifyPrepareThenConfirm(t *testing.T) {
	params := map[string]any{"to": []any{"a@example.com"}, "subject": "hi", "body": "body text"}

	prepared, err := invokeNotifyPrepare(context.Background(), contracts.InvocationContext{}, params)
	require.NoError(t, err)
	preview := prepared.Data.(map[string]any)
	require.Equal(t, true, preview["preview"])

	confirmed, err := invokeNotifyConfirm(context.Background(), contracts.InvocationContext{}, map[string]any{
		"to": preview["to"], "subject": preview["subject"], "body": preview["body"],
	})
	require.NoError(t, err)
	require.Equal(t, true, confirmed.Data.(map[string]any)["sent"])
}
