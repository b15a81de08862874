package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditTaskRevisionGuard(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	plan, _, err := s.CreatePlan(ctx, ws, "plan", "")
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, ws, plan.ID, "task", "", "", ReasoningNormal)
	require.NoError(t, err)
	require.Equal(t, int64(1), task.Revision)

	oldRev := task.Revision
	newTitle := "renamed"
	updated, err := s.EditTask(ctx, ws, task.ID, &oldRev, TaskEditFields{Title: &newTitle}, false)
	require.NoError(t, err)
	assert.Equal(t, oldRev+1, updated.Revision)
	assert.Equal(t, "renamed", updated.Title)

	// Replaying the same expected_revision a second time must fail with
	// REVISION_MISMATCH carrying the new actual revision (spec.md §8.1.9).
	again := "renamed-again"
	_, err = s.EditTask(ctx, ws, task.ID, &oldRev, TaskEditFields{Title: &again}, false)
	var mismatch *RevisionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, oldRev, mismatch.Expected)
	assert.Equal(t, updated.Revision, mismatch.Actual)
}

func TestEditTaskNilExpectedRevisionSkipsCAS(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	plan, _, err := s.CreatePlan(ctx, ws, "plan", "")
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, ws, plan.ID, "task", "", "", ReasoningNormal)
	require.NoError(t, err)

	title := "no guard"
	updated, err := s.EditTask(ctx, ws, task.ID, nil, TaskEditFields{Title: &title}, false)
	require.NoError(t, err)
	assert.Equal(t, task.Revision+1, updated.Revision)
}

func TestCreateTaskAutoProvisionsStableReasoningRef(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	plan, _, err := s.CreatePlan(ctx, ws, "plan", "")
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, ws, plan.ID, "task", "", "", ReasoningNormal)
	require.NoError(t, err)

	// CreateTask's own event projection must have already provisioned
	// the ref (spec.md invariant 11) — calling Note again must not
	// change the doc triple.
	ref1, err := s.GetReasoningRef(ctx, ws, task.ID)
	require.NoError(t, err)
	require.NotEmpty(t, ref1.NotesDoc)
	require.NotEmpty(t, ref1.TraceDoc)

	_, err = s.Note(ctx, ws, task.ID, "", "t", "content")
	require.NoError(t, err)

	ref2, err := s.GetReasoningRef(ctx, ws, task.ID)
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2, "the reasoning ref triple must be stable across subsequent events")
}

func TestCreateTaskRequiresExistingParentPlan(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	_, err := s.CreateTask(ctx, ws, "PLAN-999", "orphan", "", "", ReasoningNormal)
	var unknown *UnknownIDError
	assert.ErrorAs(t, err, &unknown)
}
