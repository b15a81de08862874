package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

// Job statuses, per spec.md §4.1.6's queue lifecycle.
const (
	JobQueued    = "QUEUED"
	JobClaimed   = "CLAIMED"
	JobRunning   = "ACTIVE"
	JobDone      = "DONE"
	JobFailed    = "FAILED"
	JobCancelled = "CANCELED"
)

// Job is one unit of dispatched work in the queue.
type Job struct {
	JobID         string
	Revision      int64
	Status        string
	Title         string
	Kind          string
	Priority      int
	TaskID        string
	AnchorID      string
	RunnerID      string
	ClaimRevision int64
	Prompt        string
	Summary       string
	Retries       int
	CreatedAtMs   int64
	UpdatedAtMs   int64
	CompletedAtMs int64
}

// JobEvent is one progress/log entry in a job's event stream.
type JobEvent struct {
	Seq     int64
	JobID   string
	TsMs    int64
	Kind    string
	Message string
	Percent int
	Refs    []string
}

// CreateJob enqueues a new job in QUEUED status.
func (s *Store) CreateJob(ctx context.Context, ws ids.WorkspaceID, title, kind, taskID, anchorID, prompt string, priority int) (Job, error) {
	var job Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if strings.TrimSpace(title) == "" {
			return &InvalidInputError{Msg: "job title is required"}
		}
		now := nowMs()
		if err := ensureWorkspace(tx, ws, now); err != nil {
			return err
		}

		var seq int64
		if err := tx.QueryRow(`SELECT COUNT(*) + 1 FROM jobs WHERE workspace = ?`, ws.String()).Scan(&seq); err != nil {
			return fmt.Errorf("store: next job seq: %w", err)
		}
		jobID := fmt.Sprintf("JOB-%03d", seq)

		if _, err := tx.Exec(`INSERT INTO jobs(job_id, workspace, revision, status, title, kind, priority, task_id, anchor_id, prompt, created_at_ms, updated_at_ms)
			VALUES (?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			jobID, ws.String(), JobQueued, title, kind, priority, taskID, anchorID, prompt, now, now); err != nil {
			return fmt.Errorf("store: insert job: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO job_events(workspace, job_id, ts_ms, kind, message) VALUES (?, ?, ?, 'queued', ?)`,
			ws.String(), jobID, now, title); err != nil {
			return fmt.Errorf("store: insert job queued event: %w", err)
		}

		var err error
		job, err = getJobTx(tx, jobID)
		return err
	})
	return job, err
}

func getJobTx(tx *sql.Tx, jobID string) (Job, error) {
	var j Job
	err := tx.QueryRow(`SELECT job_id, revision, status, title, kind, priority, task_id, anchor_id, runner_id, claim_revision, prompt, summary, retries, created_at_ms, updated_at_ms, completed_at_ms
		FROM jobs WHERE job_id = ?`, jobID).
		Scan(&j.JobID, &j.Revision, &j.Status, &j.Title, &j.Kind, &j.Priority, &j.TaskID, &j.AnchorID, &j.RunnerID,
			&j.ClaimRevision, &j.Prompt, &j.Summary, &j.Retries, &j.CreatedAtMs, &j.UpdatedAtMs, &j.CompletedAtMs)
	if err == sql.ErrNoRows {
		return Job{}, &UnknownIDError{ID: jobID}
	}
	if err != nil {
		return Job{}, fmt.Errorf("store: get job: %w", err)
	}
	return j, nil
}

// GetJob returns one job by id.
func (s *Store) GetJob(ctx context.Context, ws ids.WorkspaceID, jobID string) (Job, error) {
	var j Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		j, err = getJobTx(tx, jobID)
		return err
	})
	return j, err
}

// ListJobs returns jobs in a workspace, optionally filtered by status,
// highest priority first and, within a priority, oldest first.
func (s *Store) ListJobs(ctx context.Context, ws ids.WorkspaceID, status string) ([]Job, error) {
	var out []Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT job_id, revision, status, title, kind, priority, task_id, anchor_id, runner_id, claim_revision, prompt, summary, retries, created_at_ms, updated_at_ms, completed_at_ms
			FROM jobs WHERE workspace = ?`
		args := []any{ws.String()}
		if status != "" {
			query += " AND status = ?"
			args = append(args, status)
		}
		query += " ORDER BY priority DESC, created_at_ms ASC"
		rows, err := tx.Query(query, args...)
		if err != nil {
			return fmt.Errorf("store: list jobs: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var j Job
			if err := rows.Scan(&j.JobID, &j.Revision, &j.Status, &j.Title, &j.Kind, &j.Priority, &j.TaskID, &j.AnchorID,
				&j.RunnerID, &j.ClaimRevision, &j.Prompt, &j.Summary, &j.Retries, &j.CreatedAtMs, &j.UpdatedAtMs, &j.CompletedAtMs); err != nil {
				return fmt.Errorf("store: scan job: %w", err)
			}
			out = append(out, j)
		}
		return rows.Err()
	})
	return out, err
}

// ClaimJob atomically assigns the highest-priority QUEUED job to
// runnerID, moving it to CLAIMED and bumping claim_revision — the
// fencing token every subsequent report/complete/requeue call must
// present (spec.md §4.1.6 and §5's lease model).
func (s *Store) ClaimJob(ctx context.Context, ws ids.WorkspaceID, runnerID string, leaseMs int64) (*Job, error) {
	var job *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var jobID string
		err := tx.QueryRow(`SELECT job_id FROM jobs WHERE workspace = ? AND status = ? ORDER BY priority DESC, created_at_ms ASC LIMIT 1`,
			ws.String(), JobQueued).Scan(&jobID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("store: find queued job: %w", err)
		}

		now := nowMs()
		newRev, err := bumpRevision(tx, "jobs", "job_id", jobID, nil)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE jobs SET status = ?, runner_id = ?, claim_revision = claim_revision + 1, updated_at_ms = ? WHERE job_id = ?`,
			JobClaimed, runnerID, now, jobID); err != nil {
			return fmt.Errorf("store: claim job: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO runner_leases(runner_id, workspace, status, active_job_id, lease_expires_at_ms)
			VALUES (?, ?, 'busy', ?, ?)
			ON CONFLICT(runner_id) DO UPDATE SET workspace = excluded.workspace, status = 'busy', active_job_id = excluded.active_job_id, lease_expires_at_ms = excluded.lease_expires_at_ms`,
			runnerID, ws.String(), jobID, now+leaseMs); err != nil {
			return fmt.Errorf("store: upsert runner lease: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO job_events(workspace, job_id, ts_ms, kind, message) VALUES (?, ?, ?, 'claimed', ?)`,
			ws.String(), jobID, now, runnerID); err != nil {
			return fmt.Errorf("store: insert claimed event: %w", err)
		}
		_ = newRev
		j, err := getJobTx(tx, jobID)
		if err != nil {
			return err
		}
		job = &j
		return nil
	})
	return job, err
}

// ReportJob appends a progress event to a CLAIMED/RUNNING job, gated by
// claimRevision matching the job's current fencing token.
func (s *Store) ReportJob(ctx context.Context, ws ids.WorkspaceID, jobID string, claimRevision int64, kind, message string, percent int, refs []string) (Job, error) {
	var job Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getJobTx(tx, jobID)
		if err != nil {
			return err
		}
		if existing.ClaimRevision != claimRevision {
			return &RevisionMismatchError{Expected: claimRevision, Actual: existing.ClaimRevision}
		}
		now := nowMs()
		status := existing.Status
		if status == JobClaimed {
			status = JobRunning
		}
		if _, err := tx.Exec(`UPDATE jobs SET status = ?, updated_at_ms = ? WHERE job_id = ?`, status, now, jobID); err != nil {
			return fmt.Errorf("store: update job status: %w", err)
		}
		refsJSON, err := marshalJSON(refs)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO job_events(workspace, job_id, ts_ms, kind, message, percent, refs_json) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ws.String(), jobID, now, kind, message, percent, refsJSON); err != nil {
			return fmt.Errorf("store: insert job report event: %w", err)
		}
		job, err = getJobTx(tx, jobID)
		return err
	})
	return job, err
}

// CompleteJob moves a job to DONE or FAILED, releasing its runner lease.
func (s *Store) CompleteJob(ctx context.Context, ws ids.WorkspaceID, jobID string, claimRevision int64, success bool, summary string) (Job, error) {
	var job Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getJobTx(tx, jobID)
		if err != nil {
			return err
		}
		if existing.ClaimRevision != claimRevision {
			return &RevisionMismatchError{Expected: claimRevision, Actual: existing.ClaimRevision}
		}
		now := nowMs()
		status := JobDone
		if !success {
			status = JobFailed
		}
		if _, err := tx.Exec(`UPDATE jobs SET status = ?, summary = ?, updated_at_ms = ?, completed_at_ms = ? WHERE job_id = ?`,
			status, summary, now, now, jobID); err != nil {
			return fmt.Errorf("store: complete job: %w", err)
		}
		if existing.RunnerID != "" {
			if _, err := tx.Exec(`UPDATE runner_leases SET status = 'idle', active_job_id = '' WHERE runner_id = ?`, existing.RunnerID); err != nil {
				return fmt.Errorf("store: release runner lease: %w", err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO job_events(workspace, job_id, ts_ms, kind, message) VALUES (?, ?, ?, ?, ?)`,
			ws.String(), jobID, now, strings.ToLower(status), summary); err != nil {
			return fmt.Errorf("store: insert job completion event: %w", err)
		}
		job, err = getJobTx(tx, jobID)
		return err
	})
	return job, err
}

// RequeueJob moves a CLAIMED/RUNNING/FAILED job back to QUEUED,
// incrementing its retry counter and bumping claim_revision so the
// runner that held the stale claim can no longer report/complete
// against it. Gated by claimRevision matching the job's current
// fencing token, the same way ReportJob/CompleteJob are. It refuses
// DONE/CANCELLED jobs.
func (s *Store) RequeueJob(ctx context.Context, ws ids.WorkspaceID, jobID string, claimRevision int64) (Job, error) {
	var job Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getJobTx(tx, jobID)
		if err != nil {
			return err
		}
		if existing.Status == JobDone || existing.Status == JobCancelled {
			return &JobNotRequeueableError{JobID: jobID, Status: existing.Status}
		}
		if existing.ClaimRevision != claimRevision {
			return &RevisionMismatchError{Expected: claimRevision, Actual: existing.ClaimRevision}
		}
		now := nowMs()
		if existing.RunnerID != "" {
			if _, err := tx.Exec(`UPDATE runner_leases SET status = 'idle', active_job_id = '' WHERE runner_id = ?`, existing.RunnerID); err != nil {
				return fmt.Errorf("store: release runner lease on requeue: %w", err)
			}
		}
		if _, err := tx.Exec(`UPDATE jobs SET status = ?, runner_id = '', claim_revision = claim_revision + 1, retries = retries + 1, updated_at_ms = ? WHERE job_id = ?`,
			JobQueued, now, jobID); err != nil {
			return fmt.Errorf("store: requeue job: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO job_events(workspace, job_id, ts_ms, kind, message) VALUES (?, ?, ?, 'requeued', '')`,
			ws.String(), jobID, now); err != nil {
			return fmt.Errorf("store: insert requeue event: %w", err)
		}
		job, err = getJobTx(tx, jobID)
		return err
	})
	return job, err
}

// CancelJob moves a non-terminal job to CANCELLED.
func (s *Store) CancelJob(ctx context.Context, ws ids.WorkspaceID, jobID string) (Job, error) {
	var job Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getJobTx(tx, jobID)
		if err != nil {
			return err
		}
		if existing.Status == JobDone || existing.Status == JobCancelled {
			return &InvalidInputError{Msg: fmt.Sprintf("job %q already terminal (%s)", jobID, existing.Status)}
		}
		now := nowMs()
		if existing.RunnerID != "" {
			if _, err := tx.Exec(`UPDATE runner_leases SET status = 'idle', active_job_id = '' WHERE runner_id = ?`, existing.RunnerID); err != nil {
				return fmt.Errorf("store: release runner lease on cancel: %w", err)
			}
		}
		if _, err := tx.Exec(`UPDATE jobs SET status = ?, updated_at_ms = ?, completed_at_ms = ? WHERE job_id = ?`,
			JobCancelled, now, now, jobID); err != nil {
			return fmt.Errorf("store: cancel job: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO job_events(workspace, job_id, ts_ms, kind, message) VALUES (?, ?, ?, 'cancelled', '')`,
			ws.String(), jobID, now); err != nil {
			return fmt.Errorf("store: insert cancel event: %w", err)
		}
		job, err = getJobTx(tx, jobID)
		return err
	})
	return job, err
}

// ListJobEvents returns a job's event stream in order.
func (s *Store) ListJobEvents(ctx context.Context, ws ids.WorkspaceID, jobID string) ([]JobEvent, error) {
	var out []JobEvent
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT seq, job_id, ts_ms, kind, message, percent, refs_json FROM job_events WHERE job_id = ? ORDER BY seq ASC`, jobID)
		if err != nil {
			return fmt.Errorf("store: list job events: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var e JobEvent
			var refsJSON string
			if err := rows.Scan(&e.Seq, &e.JobID, &e.TsMs, &e.Kind, &e.Message, &e.Percent, &refsJSON); err != nil {
				return fmt.Errorf("store: scan job event: %w", err)
			}
			e.Refs = unmarshalStrList(refsJSON)
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

// SweepExpiredLeases requeues every job whose runner lease has expired
// (spec.md §5: a dead runner must not hold a job forever), releasing
// the lease back to idle and bumping claim_revision so the expired
// runner's fencing token no longer works. Intended to run on a
// background timer.
func (s *Store) SweepExpiredLeases(ctx context.Context, ws ids.WorkspaceID) (int, error) {
	n := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowMs()
		rows, err := tx.Query(`SELECT active_job_id FROM runner_leases WHERE workspace = ? AND status = 'busy' AND lease_expires_at_ms < ? AND active_job_id != ''`,
			ws.String(), now)
		if err != nil {
			return fmt.Errorf("store: find expired leases: %w", err)
		}
		var jobIDs []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("store: scan expired lease: %w", err)
			}
			jobIDs = append(jobIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, jobID := range jobIDs {
			existing, err := getJobTx(tx, jobID)
			if err != nil {
				return err
			}
			if existing.RunnerID != "" {
				if _, err := tx.Exec(`UPDATE runner_leases SET status = 'idle', active_job_id = '' WHERE runner_id = ?`, existing.RunnerID); err != nil {
					return fmt.Errorf("store: release expired lease: %w", err)
				}
			}
			if _, err := tx.Exec(`UPDATE jobs SET status = ?, runner_id = '', claim_revision = claim_revision + 1, retries = retries + 1, updated_at_ms = ? WHERE job_id = ?`,
				JobQueued, now, jobID); err != nil {
				return fmt.Errorf("store: requeue expired job: %w", err)
			}
			if _, err := tx.Exec(`INSERT INTO job_events(workspace, job_id, ts_ms, kind, message) VALUES (?, ?, ?, 'lease_expired', '')`,
				ws.String(), jobID, now); err != nil {
				return fmt.Errorf("store: insert lease-expired event: %w", err)
			}
			n++
		}
		return nil
	})
	return n, err
}
