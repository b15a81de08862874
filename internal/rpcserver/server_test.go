package rpcserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/branchmind/internal/config"
	"github.com/antigravity-dev/branchmind/internal/envelope"
	"github.com/antigravity-dev/branchmind/internal/graph"
	"github.com/antigravity-dev/branchmind/internal/nextengine"
	"github.com/antigravity-dev/branchmind/internal/registry"
	"github.com/antigravity-dev/branchmind/internal/store"
	"github.com/antigravity-dev/branchmind/internal/think"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := registry.Services{
		Store:     st,
		Graph:     graph.New(st),
		Think:     think.New(st, graph.New(st)),
		Next:      nextengine.New(st),
		Workspace: t.TempDir(),
	}
	reg := registry.Build(svc)
	cfg := config.Default()
	return New(reg, st, cfg, slog.New(slog.DiscardHandler), nil, nil)
}

func TestDispatchToolsCallGoldenStart(t *testing.T) {
	s := testServer(t)
	ctx := context.Background()

	statusEnv := s.call(ctx, "status", map[string]any{"workspace": "ws1"})
	require.True(t, statusEnv.Success)

	result := statusEnv.Result.(map[string]any)
	actions := result["actions"].([]any)
	require.NotEmpty(t, actions)
	first := actions[0].(map[string]any)
	firstArgs := first["args"].(map[string]any)
	assert.Equal(t, "tasks.plan.create", firstArgs["cmd"])

	startEnv := s.call(ctx, "tasks", map[string]any{
		"workspace": "ws1",
		"op":        "call",
		"cmd":       "tasks.macro.start",
		"args":      map[string]any{"task_title": "ship branchmind"},
	})
	require.True(t, startEnv.Success)
	taskResult := startEnv.Result.(map[string]any)
	assert.Equal(t, "TASK-001", taskResult["ID"])
}

func TestDispatchToolsCallRejectsUnknownTool(t *testing.T) {
	s := testServer(t)
	env := s.call(context.Background(), "bogus", map[string]any{"workspace": "ws1"})
	require.False(t, env.Success)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)
}

func TestDispatchToolsCallAppliesBudgetProfile(t *testing.T) {
	s := testServer(t)
	env := s.call(context.Background(), "status", map[string]any{
		"workspace":      "ws1",
		"budget_profile": "portal",
	})
	require.True(t, env.Success)
	result := env.Result.(map[string]any)
	budget, ok := result["budget"].(envelope.Budget)
	require.True(t, ok, "expected a budget sub-object once a profile is applied")
	assert.Equal(t, s.Cfg.Budgets.Portal.MaxChars, budget.MaxChars)
}

func TestHandleMessageToolsCallWrapsEnvelopeAsTextContent(t *testing.T) {
	s := testServer(t)
	params, err := json.Marshal(toolsCallParams{Name: "status", Arguments: map[string]any{"workspace": "ws1"}})
	require.NoError(t, err)
	req, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "tools/call", Params: params})
	require.NoError(t, err)

	resp, hasResp := s.handleMessage(context.Background(), req)
	require.True(t, hasResp)
	require.Nil(t, resp.Error)

	result := resp.Result.(toolsCallResult)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)

	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &env))
	assert.Equal(t, true, env["success"])
}

func TestHandleMessageNotificationProducesNoResponse(t *testing.T) {
	s := testServer(t)
	params, err := json.Marshal(toolsCallParams{Name: "status", Arguments: map[string]any{"workspace": "ws1"}})
	require.NoError(t, err)
	req, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: "tools/call", Params: params})
	require.NoError(t, err)

	_, hasResp := s.handleMessage(context.Background(), req)
	assert.False(t, hasResp)
}

func TestHandleMessageParseErrorUsesDashThirtyTwoSeventyHundred(t *testing.T) {
	s := testServer(t)
	resp, hasResp := s.handleMessage(context.Background(), []byte("{not json"))
	require.True(t, hasResp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)
}

func TestHandleMessageMissingMethodIsInvalidRequest(t *testing.T) {
	s := testServer(t)
	req, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: json.RawMessage("7")})
	require.NoError(t, err)

	resp, hasResp := s.handleMessage(context.Background(), req)
	require.True(t, hasResp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32600, resp.Error.Code)
}

func TestLineProtocolRendererFallsBackToJSONWithoutOptIn(t *testing.T) {
	s := testServer(t)
	env := s.call(context.Background(), "status", map[string]any{"workspace": "ws1"})
	text, ok := s.Renderer.Render(env)
	assert.False(t, ok)
	assert.Empty(t, text)
}

func TestTaggedLineRendererRendersErrors(t *testing.T) {
	s := testServer(t)
	env := s.call(context.Background(), "tasks", map[string]any{
		"workspace": "ws1",
		"op":        "call",
		"cmd":       "tasks.plan.edit",
		"args":      map[string]any{"plan_id": "PLAN-999", "expected_revision": 1, "title": "x"},
	})
	require.False(t, env.Success)
	text, ok := s.Renderer.Render(env)
	require.True(t, ok)
	assert.Contains(t, text, "ERROR:")
}
