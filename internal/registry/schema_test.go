package registry

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/branchmind/internal/graph"
	"github.com/antigravity-dev/branchmind/internal/ids"
	"github.com/antigravity-dev/branchmind/internal/nextengine"
	"github.com/antigravity-dev/branchmind/internal/store"
	"github.com/antigravity-dev/branchmind/internal/think"
)

func testRegistry(t *testing.T) (*Registry, ids.WorkspaceID) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := Services{
		Store: st,
		Graph: graph.New(st),
		Think: think.New(st, graph.New(st)),
		Next:  nextengine.New(st),
	}
	ws, err := ids.ParseWorkspaceID("ws1")
	require.NoError(t, err)
	return Build(svc), ws
}

func TestValidateAgainstSchemaRejectsWrongTagsType(t *testing.T) {
	err := validateAgainstSchema("graph.node.upsert", nodeUpsertSchema, map[string]any{
		"doc": "d", "key": "k", "title": "t", "tags": "not-a-list",
	})
	require.Error(t, err)
	var invalid *store.InvalidInputError
	require.ErrorAs(t, err, &invalid)
}

func TestValidateAgainstSchemaAcceptsWellShapedArgs(t *testing.T) {
	err := validateAgainstSchema("graph.node.upsert", nodeUpsertSchema, map[string]any{
		"doc": "d", "key": "k", "title": "t", "tags": []any{"a", "b"}, "meta": map[string]any{"x": 1},
	})
	assert.NoError(t, err)
}

func TestDispatchGraphNodeUpsertRejectsBadTagsShape(t *testing.T) {
	reg, ws := testRegistry(t)
	env := Dispatch(context.Background(), reg, ws, Request{
		Tool: "graph", Op: "call", Cmd: "graph.node.upsert",
		Args: map[string]any{"doc": "notes", "key": "CARD-A", "title": "a card", "tags": "oops"},
	})
	require.False(t, env.Success)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)
}

func TestDispatchGraphNodeUpsertAcceptsWellShapedArgs(t *testing.T) {
	reg, ws := testRegistry(t)
	env := Dispatch(context.Background(), reg, ws, Request{
		Tool: "graph", Op: "call", Cmd: "graph.node.upsert",
		Args: map[string]any{"doc": "notes", "key": "CARD-A", "title": "a card", "tags": []any{"x"}},
	})
	require.True(t, env.Success)
}

func TestSystemSchemaGetSurfacesJSONSchemaForCustomCommands(t *testing.T) {
	reg, ws := testRegistry(t)
	env := Dispatch(context.Background(), reg, ws, Request{
		Tool: "system", Op: "call", Cmd: "system.schema.get",
		Args: map[string]any{"cmd": "graph.node.upsert"},
	})
	require.True(t, env.Success)
	result := env.Result.(map[string]any)
	assert.Equal(t, nodeUpsertSchema, result["json_schema"])
}

func TestSystemSchemaGetOmitsJSONSchemaForHandlerSourcedCommands(t *testing.T) {
	reg, ws := testRegistry(t)
	env := Dispatch(context.Background(), reg, ws, Request{
		Tool: "system", Op: "call", Cmd: "system.schema.get",
		Args: map[string]any{"cmd": "status"},
	})
	require.True(t, env.Success)
	result := env.Result.(map[string]any)
	_, present := result["json_schema"]
	assert.False(t, present)
}
