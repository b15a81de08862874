package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testWorkspace(t *testing.T, raw string) ids.WorkspaceID {
	t.Helper()
	ws, err := ids.ParseWorkspaceID(raw)
	require.NoError(t, err)
	return ws
}

func TestJobLifecycleQueueClaimReportComplete(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	job, err := s.CreateJob(ctx, ws, "do the thing", "", "", "", "run me", 5)
	require.NoError(t, err)
	assert.Equal(t, JobQueued, job.Status)

	claimed, err := s.ClaimJob(ctx, ws, "runner:alpha", 60_000)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, JobClaimed, claimed.Status)
	assert.Equal(t, "runner:alpha", claimed.RunnerID)

	none, err := s.ClaimJob(ctx, ws, "runner:beta", 60_000)
	require.NoError(t, err)
	assert.Nil(t, none, "no second job queued, claim should return nil without error")

	reported, err := s.ReportJob(ctx, ws, claimed.JobID, claimed.ClaimRevision, "progress", "halfway", 50, nil)
	require.NoError(t, err)
	assert.Equal(t, JobRunning, reported.Status)

	_, err = s.ReportJob(ctx, ws, claimed.JobID, claimed.ClaimRevision-1, "progress", "stale fencing token", 90, nil)
	assert.Error(t, err, "a stale claim_revision must not be able to report progress")

	done, err := s.CompleteJob(ctx, ws, claimed.JobID, reported.ClaimRevision, true, "all good")
	require.NoError(t, err)
	assert.Equal(t, JobDone, done.Status)

	_, err = s.RequeueJob(ctx, ws, done.JobID, done.ClaimRevision)
	assert.Error(t, err, "a DONE job must not be requeueable")
	var notRequeueable *JobNotRequeueableError
	assert.ErrorAs(t, err, &notRequeueable)
}

func TestClaimJobPrefersHighestPriority(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	_, err := s.CreateJob(ctx, ws, "low", "", "", "", "p", 1)
	require.NoError(t, err)
	high, err := s.CreateJob(ctx, ws, "high", "", "", "", "p", 10)
	require.NoError(t, err)

	claimed, err := s.ClaimJob(ctx, ws, "runner:alpha", 60_000)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, high.JobID, claimed.JobID)
}

func TestSweepExpiredLeasesRequeuesAndIncrementsRetries(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	ws := testWorkspace(t, "ws1")

	job, err := s.CreateJob(ctx, ws, "flaky runner job", "", "", "", "p", 0)
	require.NoError(t, err)

	claimed, err := s.ClaimJob(ctx, ws, "runner:gamma", -1)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	n, err := s.SweepExpiredLeases(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	after, err := s.GetJob(ctx, ws, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobQueued, after.Status)
	assert.Equal(t, 1, after.Retries)
	assert.Equal(t, "", after.RunnerID)

	events, err := s.ListJobEvents(ctx, ws, job.JobID)
	require.NoError(t, err)
	var sawLeaseExpired bool
	for _, e := range events {
		if e.Kind == "lease_expired" {
			sawLeaseExpired = true
		}
	}
	assert.True(t, sawLeaseExpired)
}

func TestListWorkspacesReturnsEveryKnownWorkspace(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	_, err := s.CreateJob(ctx, testWorkspace(t, "ws-a"), "a", "", "", "", "p", 0)
	require.NoError(t, err)
	_, err = s.CreateJob(ctx, testWorkspace(t, "ws-b"), "b", "", "", "", "p", 0)
	require.NoError(t, err)

	workspaces, err := s.ListWorkspaces(ctx)
	require.NoError(t, err)
	var names []string
	for _, ws := range workspaces {
		names = append(names, ws.String())
	}
	assert.ElementsMatch(t, []string{"ws-a", "ws-b"}, names)
}
