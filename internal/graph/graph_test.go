package graph

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

func testWorkspace(t *testing.T, raw string) ids.WorkspaceID {
	t.Helper()
	ws, err := ids.ParseWorkspaceID(raw)
	require.NoError(t, err)
	return ws
}

// TestMergeFastForwardsThenIsIdempotent exercises scenario S5: a node
// authored only on a feature branch fast-forwards onto its base on
// merge, and merging a second time with no new writes is a no-op.
func TestMergeFastForwardsThenIsIdempotent(t *testing.T) {
	s, e := tempEngine(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	_, err := s.CreateBranch(ctx, ws, "b1", "default")
	require.NoError(t, err)

	_, err = e.UpsertNode(ctx, ws, "b1", "graph", "CARD-A", "card", "Card A", "body", nil, "open", nil, "")
	require.NoError(t, err)

	result, err := e.Merge(ctx, ws, "b1", "default", "graph")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Merged)
	assert.Empty(t, result.Conflicts)

	nodes, err := e.CurrentNodes(ctx, ws, "default", "graph")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "CARD-A", nodes[0].Key)

	again, err := e.Merge(ctx, ws, "b1", "default", "graph")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Merged, "re-merging with no new writes must fast-forward nothing")
	assert.GreaterOrEqual(t, again.Skipped, 1)
}

// TestMergeRefusesNonBaseTarget enforces spec.md §4.1.2 step 1:
// into_branch must equal from's actual base_branch.
func TestMergeRefusesNonBaseTarget(t *testing.T) {
	s, e := tempEngine(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	_, err := s.CreateBranch(ctx, ws, "b1", "default")
	require.NoError(t, err)
	_, err = s.CreateBranch(ctx, ws, "b2", "default")
	require.NoError(t, err)

	_, err = e.Merge(ctx, ws, "b1", "b2", "graph")
	var unsupported *store.MergeNotSupportedError
	assert.ErrorAs(t, err, &unsupported)
}

// TestMergeDivergingEditsProducesOneConflictAndResolutionIsStable
// covers scenarios S6 and invariant 10: diverging edits to the same
// key conflict once, and re-merging after resolving with use_from
// must not resurrect the conflict under the same signature.
func TestMergeDivergingEditsProducesOneConflictAndResolutionIsStable(t *testing.T) {
	s, e := tempEngine(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	_, err := e.UpsertNode(ctx, ws, "default", "graph", "CARD-A", "card", "Base title", "body", nil, "open", nil, "")
	require.NoError(t, err)

	_, err = s.CreateBranch(ctx, ws, "b1", "default")
	require.NoError(t, err)

	_, err = e.UpsertNode(ctx, ws, "b1", "graph", "CARD-A", "card", "Their title", "body", nil, "open", nil, "")
	require.NoError(t, err)
	_, err = e.UpsertNode(ctx, ws, "default", "graph", "CARD-A", "card", "Our title", "body", nil, "open", nil, "")
	require.NoError(t, err)

	result, err := e.Merge(ctx, ws, "b1", "default", "graph")
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	conflictID := result.Conflicts[0].ConflictID

	require.NoError(t, e.ResolveConflict(ctx, ws, conflictID, "use_from"))

	conflicts, err := e.ListConflicts(ctx, ws, "b1", "default", "graph")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "resolved", conflicts[0].Status)

	// Re-merging must not create a second conflict row for the same
	// (kind, key, base_cutoff_seq, theirs_seq) signature even though
	// ours_seq has now changed (the fast-forward wrote a new version).
	again, err := e.Merge(ctx, ws, "b1", "default", "graph")
	require.NoError(t, err)
	assert.Empty(t, again.Conflicts, "resolved conflict must not resurrect on re-merge")
}

func TestDiffOnlyReturnsSemanticallyChangedEntries(t *testing.T) {
	s, e := tempEngine(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	_, err := e.UpsertNode(ctx, ws, "default", "graph", "CARD-A", "card", "Same", "body", nil, "open", nil, "")
	require.NoError(t, err)
	_, err = s.CreateBranch(ctx, ws, "b1", "default")
	require.NoError(t, err)

	// Re-upserting with identical content is a new version row but not
	// a semantic change, so it must not appear in the diff.
	_, err = e.UpsertNode(ctx, ws, "b1", "graph", "CARD-A", "card", "Same", "body", nil, "open", nil, "")
	require.NoError(t, err)
	_, err = e.UpsertNode(ctx, ws, "b1", "graph", "CARD-B", "card", "New", "body", nil, "open", nil, "")
	require.NoError(t, err)

	entries, err := e.Diff(ctx, ws, "default", "b1", "graph")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "CARD-B", entries[0].Key)
}
