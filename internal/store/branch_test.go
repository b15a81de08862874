package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBranchRejectsDuplicateName(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	_, err := s.CreateBranch(ctx, ws, "feature", "")
	require.NoError(t, err)

	_, err = s.CreateBranch(ctx, ws, "feature", "")
	var exists *BranchAlreadyExistsError
	assert.ErrorAs(t, err, &exists)
}

func TestDeleteBranchRefusesCurrentCheckout(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	_, err := s.CreateBranch(ctx, ws, "feature", "")
	require.NoError(t, err)
	require.NoError(t, s.Checkout(ctx, ws, "feature"))

	err = s.DeleteBranch(ctx, ws, "feature")
	var invalid *InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestDeleteBranchRefusesWhenDerivedBranchExists(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	_, err := s.CreateBranch(ctx, ws, "b1", "")
	require.NoError(t, err)
	_, err = s.CreateBranch(ctx, ws, "b2", "b1")
	require.NoError(t, err)

	err = s.DeleteBranch(ctx, ws, "b1")
	var invalid *InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestBranchSourcesDetectsCycle(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	// Build the cycle directly: branch_sources must detect it at read
	// time (spec.md invariant 5), since CreateBranch never lets one
	// form through its own API.
	now := int64(1)
	_, err := s.db.ExecContext(ctx, `INSERT INTO workspaces(workspace, created_at_ms) VALUES (?, ?)`, ws.String(), now)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO branches(workspace, name, base_branch, base_seq, created_at_ms) VALUES
		(?, 'a', 'b', 0, ?), (?, 'b', 'a', 0, ?)`, ws.String(), now, ws.String(), now)
	require.NoError(t, err)

	_, err = s.BranchSources(ctx, ws, "a")
	var cycle *BranchCycleError
	assert.ErrorAs(t, err, &cycle)
}

func TestBranchInheritanceCutoffIsFixedAtCreation(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	plan, _, err := s.CreatePlan(ctx, ws, "plan", "")
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, ws, plan.ID, "task", "", "", ReasoningNormal)
	require.NoError(t, err)

	_, err = s.Note(ctx, ws, task.ID, "", "before", "note written before the branch exists")
	require.NoError(t, err)

	_, err = s.CreateBranch(ctx, ws, "feature", "")
	require.NoError(t, err)

	// A note mirrored onto default *after* feature's cutoff must not be
	// visible from feature (spec.md invariant 6), even though it lands
	// in the exact same (branch, doc) as the one written before the cutoff.
	_, err = s.Note(ctx, ws, task.ID, "", "after", "note written after the branch exists")
	require.NoError(t, err)

	ref, err := s.GetReasoningRef(ctx, ws, task.ID)
	require.NoError(t, err)

	sources, err := s.BranchSources(ctx, ws, "feature")
	require.NoError(t, err)
	clause, args := SourcesWhereClause(sources)

	var count int
	query := `SELECT COUNT(*) FROM doc_entries WHERE workspace = ? AND doc = ? AND kind = 'note' AND (` + clause + `)`
	fullArgs := append([]any{ws.String(), ref.NotesDoc}, args...)
	require.NoError(t, s.db.QueryRowContext(ctx, query, fullArgs...).Scan(&count))
	assert.Equal(t, 1, count, "feature must see only the note written before its cutoff, not the one written after")
}
