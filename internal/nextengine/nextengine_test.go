package nextengine

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/branchmind/internal/ids"
	"github.com/antigravity-dev/branchmind/internal/store"
)

func tempEngine(t *testing.T) (*store.Store, *Engine) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, New(s)
}

func TestComputeWithNoFocusEmitsPlanCreateWithNoPlaceholder(t *testing.T) {
	_, e := tempEngine(t)
	ws, err := ids.ParseWorkspaceID("ws1")
	require.NoError(t, err)

	result, err := e.Compute(context.Background(), ws)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "tasks.plan.create", result.Actions[0].Args["cmd"])

	args := result.Actions[0].Args["args"].(map[string]any)
	title, _ := args["title"].(string)
	assert.NotContains(t, title, "<", "an empty workspace must not leak a raw placeholder into a runnable action")
}

func TestComputeWithFocusEmitsOpenSnapshotKnowledgeInPriorityOrder(t *testing.T) {
	s, e := tempEngine(t)
	ctx := context.Background()
	ws, err := ids.ParseWorkspaceID("ws1")
	require.NoError(t, err)
	require.NoError(t, s.SetFocus(ctx, ws, "TASK-001"))

	result, err := e.Compute(ctx, ws)
	require.NoError(t, err)
	require.Len(t, result.Actions, 3)
	assert.Equal(t, "open", result.Actions[0].Tool)
	assert.Equal(t, "tasks", result.Actions[1].Tool)
	assert.Equal(t, "think", result.Actions[2].Tool)
}

// TestStateFingerprintChangesWithFocus guards against the fingerprint
// going stale: callers rely on it to detect drift without re-reading.
func TestStateFingerprintChangesWithFocus(t *testing.T) {
	s, e := tempEngine(t)
	ctx := context.Background()
	ws, err := ids.ParseWorkspaceID("ws1")
	require.NoError(t, err)

	before, err := e.Compute(ctx, ws)
	require.NoError(t, err)

	require.NoError(t, s.SetFocus(ctx, ws, "TASK-001"))
	after, err := e.Compute(ctx, ws)
	require.NoError(t, err)

	assert.NotEqual(t, before.StateFingerprint, after.StateFingerprint)
}
