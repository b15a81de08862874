package think

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/branchmind/internal/graph"
	"github.com/antigravity-dev/branchmind/internal/ids"
	"github.com/antigravity-dev/branchmind/internal/store"
)

func tempService(t *testing.T) *Service {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, graph.New(s))
}

func testWorkspace(t *testing.T, raw string) ids.WorkspaceID {
	t.Helper()
	ws, err := ids.ParseWorkspaceID(raw)
	require.NoError(t, err)
	return ws
}

func TestCommitCardReCommitSamePayloadIsNoOp(t *testing.T) {
	svc := tempService(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	card := Card{CardID: "CARD-001", SubjectID: "TASK-001", Type: "pattern", Title: "t", Text: "body", Tags: []string{"a", "b"}}
	require.NoError(t, svc.CommitCard(ctx, ws, store.ReasoningTask, card))
	require.NoError(t, svc.CommitCard(ctx, ws, store.ReasoningTask, card), "re-committing the identical payload must be a no-op")
}

func TestCommitCardReCommitDifferentPayloadFails(t *testing.T) {
	svc := tempService(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	card := Card{CardID: "CARD-001", SubjectID: "TASK-001", Type: "pattern", Title: "t", Text: "body"}
	require.NoError(t, svc.CommitCard(ctx, ws, store.ReasoningTask, card))

	changed := card
	changed.Text = "different body"
	err := svc.CommitCard(ctx, ws, store.ReasoningTask, changed)
	var invalid *store.InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestQueryKnowledgeResolvesKeyedLookup(t *testing.T) {
	svc := tempService(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	st := svc.st
	anchor, err := st.CreateAnchor(ctx, ws, "auth", "Auth", "topic", "", "")
	require.NoError(t, err)

	card := Card{CardID: "CARD-001", SubjectID: "TASK-001", Type: "decision", Title: "use JWT", Text: "body"}
	require.NoError(t, svc.CommitCard(ctx, ws, store.ReasoningTask, card))
	require.NoError(t, st.SetKnowledgeKey(ctx, ws, anchor.ID, "auth-mechanism", card.CardID))

	result, err := svc.QueryKnowledge(ctx, ws, anchor.ID, "auth-mechanism")
	require.NoError(t, err)
	assert.Equal(t, card.CardID, result.CardID)
}
