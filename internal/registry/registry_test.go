package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolsListIsExactlyStrict10(t *testing.T) {
	reg, _ := testRegistry(t)
	var names []string
	for _, ti := range reg.Tools {
		names = append(names, ti.Tool)
	}
	assert.ElementsMatch(t, []string{"status", "open", "workspace", "tasks", "jobs", "think", "graph", "vcs", "docs", "system"}, names)
}

func TestDispatchUnknownToolFailsWithRecoveryActions(t *testing.T) {
	reg, ws := testRegistry(t)
	env := Dispatch(context.Background(), reg, ws, Request{Tool: "nope", Op: "call", Cmd: "nope.thing"})
	require.False(t, env.Success)
	require.NotEmpty(t, env.Actions)
}

// TestStatusActionsEqualsExecuteNextActions is the test-asserted
// invariant from spec.md §4.2.2/§8.1.5: status and tasks.execute.next
// must compute byte-identical action lists for the same workspace
// state, since both funnel through the one NextEngine.Compute call.
func TestStatusActionsEqualsExecuteNextActions(t *testing.T) {
	reg, ws := testRegistry(t)

	statusEnv := Dispatch(context.Background(), reg, ws, Request{Tool: "status", Op: "call", Cmd: "status", Args: map[string]any{}})
	nextEnv := Dispatch(context.Background(), reg, ws, Request{Tool: "tasks", Op: "call", Cmd: "tasks.execute.next", Args: map[string]any{}})
	require.True(t, statusEnv.Success)
	require.True(t, nextEnv.Success)

	statusActions, err := json.Marshal(statusEnv.Result.(map[string]any)["actions"])
	require.NoError(t, err)
	nextActions, err := json.Marshal(nextEnv.Result.(map[string]any)["actions"])
	require.NoError(t, err)
	assert.JSONEq(t, string(statusActions), string(nextActions))
}

func TestMissingRequiredArgYieldsInvalidInputWithSchemaRecoveryAction(t *testing.T) {
	reg, ws := testRegistry(t)
	env := Dispatch(context.Background(), reg, ws, Request{
		Tool: "graph", Op: "call", Cmd: "graph.node.upsert", Args: map[string]any{"doc": "d"},
	})
	require.False(t, env.Success)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)

	var sawSchemaRecovery bool
	for _, a := range env.Actions {
		if a.Tool == "system" && a.Args["cmd"] == "system.schema.get" {
			sawSchemaRecovery = true
		}
	}
	assert.True(t, sawSchemaRecovery, "every INVALID_INPUT response must carry a system.schema.get recovery action")
}

func TestEveryStrict10ToolIsReachableWithoutUnknownTool(t *testing.T) {
	reg, ws := testRegistry(t)
	for _, tool := range Tools {
		var anyCmd string
		for _, ti := range reg.Tools {
			if ti.Tool == tool && len(ti.Cmds) > 0 {
				anyCmd = ti.Cmds[0]
			}
		}
		if anyCmd == "" {
			continue
		}
		env := Dispatch(context.Background(), reg, ws, Request{Tool: tool, Op: "call", Cmd: anyCmd, Args: map[string]any{}})
		if !env.Success {
			assert.NotEqual(t, "UNKNOWN_TOOL", env.Error.Code, "tool %q cmd %q must not be unreachable", tool, anyCmd)
		}
	}
}
