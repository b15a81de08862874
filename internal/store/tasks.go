package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

// ReasoningMode gates how strictly a task's steps must be proven before closing.
type ReasoningMode string

const (
	ReasoningNormal ReasoningMode = "normal"
	ReasoningStrict ReasoningMode = "strict"
	ReasoningDeep   ReasoningMode = "deep"
)

// Plan is the top-level container tasks attach to.
type Plan struct {
	ID          string
	Revision    int64
	Title       string
	Description string
	Status      string
	Priority    int
	CreatedAtMs int64
	UpdatedAtMs int64
}

// Task is a unit of work decomposed into steps, scoped to a parent plan.
type Task struct {
	ID              string
	Revision        int64
	ParentPlanID    string
	Title           string
	Description     string
	Context         string
	Status          string
	StatusManual    bool
	Priority        int
	ReasoningMode   ReasoningMode
	RequireSecurity bool
	RequirePerf     bool
	CreatedAtMs     int64
	UpdatedAtMs     int64
}

// Step is one node in a task's decomposition tree.
type Step struct {
	StepID            string
	TaskID            string
	ParentStepID      string
	Path              string
	Ordinal           int
	Title             string
	Completed         bool
	CriteriaConfirmed bool
	TestsConfirmed    bool
	SecurityConfirmed bool
	PerfConfirmed     bool
	DocsConfirmed     bool
	Blocked           bool
	BlockReason       string
}

// CreatePlan inserts a new plan and emits its creation event.
func (s *Store) CreatePlan(ctx context.Context, ws ids.WorkspaceID, title, description string) (Plan, ids.EventID, error) {
	var plan Plan
	var eventID ids.EventID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowMs()
		if err := ensureWorkspace(tx, ws, now); err != nil {
			return err
		}
		if err := ensureDefaultBranch(tx, ws, now); err != nil {
			return err
		}
		if strings.TrimSpace(title) == "" {
			return &InvalidInputError{Msg: "plan title is required"}
		}

		var seq int64
		if err := tx.QueryRow(`SELECT COUNT(*) + 1 FROM plans WHERE workspace = ?`, ws.String()).Scan(&seq); err != nil {
			return fmt.Errorf("store: next plan seq: %w", err)
		}
		id := fmt.Sprintf("PLAN-%03d", seq)

		if _, err := tx.Exec(`INSERT INTO plans(id, workspace, revision, title, description, status, priority, created_at_ms, updated_at_ms)
			VALUES (?, ?, 1, ?, ?, 'open', 0, ?, ?)`, id, ws.String(), title, description, now, now); err != nil {
			return fmt.Errorf("store: insert plan: %w", err)
		}

		eid, err := emitEvent(tx, ws, now, "", "", "plan.created", map[string]any{"plan_id": id, "title": title})
		if err != nil {
			return err
		}
		eventID = eid
		plan = Plan{ID: id, Revision: 1, Title: title, Description: description, Status: "open", CreatedAtMs: now, UpdatedAtMs: now}
		return nil
	})
	return plan, eventID, err
}

// EditPlan patches a plan's title/description/status/priority under a
// revision guard; expectedRevision == nil skips the CAS check.
func (s *Store) EditPlan(ctx context.Context, ws ids.WorkspaceID, planID string, expectedRevision *int64, title, description, status *string, priority *int) (Plan, error) {
	var plan Plan
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		newRev, err := bumpRevision(tx, "plans", "id", planID, expectedRevision)
		if err != nil {
			return err
		}
		now := nowMs()
		if title != nil {
			if _, err := tx.Exec(`UPDATE plans SET title = ?, updated_at_ms = ? WHERE id = ?`, *title, now, planID); err != nil {
				return fmt.Errorf("store: update plan title: %w", err)
			}
		}
		if description != nil {
			if _, err := tx.Exec(`UPDATE plans SET description = ?, updated_at_ms = ? WHERE id = ?`, *description, now, planID); err != nil {
				return fmt.Errorf("store: update plan description: %w", err)
			}
		}
		if status != nil {
			if _, err := tx.Exec(`UPDATE plans SET status = ?, updated_at_ms = ? WHERE id = ?`, *status, now, planID); err != nil {
				return fmt.Errorf("store: update plan status: %w", err)
			}
		}
		if priority != nil {
			if _, err := tx.Exec(`UPDATE plans SET priority = ?, updated_at_ms = ? WHERE id = ?`, *priority, now, planID); err != nil {
				return fmt.Errorf("store: update plan priority: %w", err)
			}
		}
		if _, err := emitEvent(tx, ws, now, "", "", "plan.edited", map[string]any{"plan_id": planID, "revision": newRev}); err != nil {
			return err
		}
		plan, err = getPlanTx(tx, planID)
		return err
	})
	return plan, err
}

func getPlanTx(tx *sql.Tx, id string) (Plan, error) {
	var p Plan
	err := tx.QueryRow(`SELECT id, revision, title, description, status, priority, created_at_ms, updated_at_ms FROM plans WHERE id = ?`, id).
		Scan(&p.ID, &p.Revision, &p.Title, &p.Description, &p.Status, &p.Priority, &p.CreatedAtMs, &p.UpdatedAtMs)
	if err == sql.ErrNoRows {
		return Plan{}, &UnknownIDError{ID: id}
	}
	if err != nil {
		return Plan{}, fmt.Errorf("store: get plan: %w", err)
	}
	return p, nil
}

// GetPlan returns one plan by id.
func (s *Store) GetPlan(ctx context.Context, ws ids.WorkspaceID, id string) (Plan, error) {
	var p Plan
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = getPlanTx(tx, id)
		return err
	})
	return p, err
}

// ListPlans returns every plan in the workspace, most recent first.
func (s *Store) ListPlans(ctx context.Context, ws ids.WorkspaceID) ([]Plan, error) {
	var out []Plan
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT id, revision, title, description, status, priority, created_at_ms, updated_at_ms
			FROM plans WHERE workspace = ? ORDER BY created_at_ms DESC`, ws.String())
		if err != nil {
			return fmt.Errorf("store: list plans: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var p Plan
			if err := rows.Scan(&p.ID, &p.Revision, &p.Title, &p.Description, &p.Status, &p.Priority, &p.CreatedAtMs, &p.UpdatedAtMs); err != nil {
				return fmt.Errorf("store: scan plan: %w", err)
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

// CreateTask inserts a new task under parentPlanID, emits its creation
// event, and auto-provisions its reasoning ref (spec.md invariant 11).
func (s *Store) CreateTask(ctx context.Context, ws ids.WorkspaceID, parentPlanID, title, description, taskContext string, mode ReasoningMode) (Task, error) {
	var task Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowMs()
		if err := ensureWorkspace(tx, ws, now); err != nil {
			return err
		}
		branch, err := currentCheckoutTx(tx, ws, now)
		if err != nil {
			return err
		}
		if strings.TrimSpace(title) == "" {
			return &InvalidInputError{Msg: "task title is required"}
		}
		if parentPlanID == "" {
			return &InvalidInputError{Msg: "task requires a parent_plan_id"}
		}
		if _, err := getPlanTx(tx, parentPlanID); err != nil {
			return err
		}
		if mode == "" {
			mode = ReasoningNormal
		}

		var seq int64
		if err := tx.QueryRow(`SELECT COUNT(*) + 1 FROM tasks WHERE workspace = ?`, ws.String()).Scan(&seq); err != nil {
			return fmt.Errorf("store: next task seq: %w", err)
		}
		id := fmt.Sprintf("TASK-%03d", seq)

		if _, err := tx.Exec(`INSERT INTO tasks(id, workspace, parent_plan_id, revision, title, description, context, status, priority, reasoning_mode, created_at_ms, updated_at_ms)
			VALUES (?, ?, ?, 1, ?, ?, ?, 'open', 0, ?, ?, ?)`,
			id, ws.String(), parentPlanID, title, description, taskContext, string(mode), now, now); err != nil {
			return fmt.Errorf("store: insert task: %w", err)
		}

		if _, err := projectTaskEvent(tx, ws, branch, id, "", "task.created", map[string]any{"task_id": id, "title": title, "parent_plan_id": parentPlanID}, now); err != nil {
			return err
		}

		task = Task{ID: id, Revision: 1, ParentPlanID: parentPlanID, Title: title, Description: description,
			Context: taskContext, Status: "open", ReasoningMode: mode, CreatedAtMs: now, UpdatedAtMs: now}
		return nil
	})
	return task, err
}

func currentCheckoutTx(tx *sql.Tx, ws ids.WorkspaceID, now int64) (string, error) {
	if err := ensureDefaultBranch(tx, ws, now); err != nil {
		return "", err
	}
	var branch string
	if err := tx.QueryRow(`SELECT branch FROM checkouts WHERE workspace = ?`, ws.String()).Scan(&branch); err != nil {
		return "", fmt.Errorf("store: current checkout: %w", err)
	}
	return branch, nil
}

// TaskEditFields is the set of optionally-present fields tasks.edit can patch.
type TaskEditFields struct {
	Title       *string
	Description *string
	Context     *string
	Status      *string
	Priority    *int
	Mode        *ReasoningMode
}

// EditTask patches a task under a revision guard and emits/projects the
// edit event. When recordUndo is true, an ops-history snapshot is written.
func (s *Store) EditTask(ctx context.Context, ws ids.WorkspaceID, taskID string, expectedRevision *int64, fields TaskEditFields, recordUndo bool) (Task, error) {
	var task Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		before, err := getTaskTx(tx, taskID)
		if err != nil {
			return err
		}
		newRev, err := bumpRevision(tx, "tasks", "id", taskID, expectedRevision)
		if err != nil {
			return err
		}
		now := nowMs()
		branch, err := currentCheckoutTx(tx, ws, now)
		if err != nil {
			return err
		}

		if fields.Title != nil {
			if _, err := tx.Exec(`UPDATE tasks SET title = ? WHERE id = ?`, *fields.Title, taskID); err != nil {
				return fmt.Errorf("store: update task title: %w", err)
			}
		}
		if fields.Description != nil {
			if _, err := tx.Exec(`UPDATE tasks SET description = ? WHERE id = ?`, *fields.Description, taskID); err != nil {
				return fmt.Errorf("store: update task description: %w", err)
			}
		}
		if fields.Context != nil {
			if _, err := tx.Exec(`UPDATE tasks SET context = ? WHERE id = ?`, *fields.Context, taskID); err != nil {
				return fmt.Errorf("store: update task context: %w", err)
			}
		}
		if fields.Status != nil {
			if _, err := tx.Exec(`UPDATE tasks SET status = ?, status_manual = 1 WHERE id = ?`, *fields.Status, taskID); err != nil {
				return fmt.Errorf("store: update task status: %w", err)
			}
		}
		if fields.Priority != nil {
			if _, err := tx.Exec(`UPDATE tasks SET priority = ? WHERE id = ?`, *fields.Priority, taskID); err != nil {
				return fmt.Errorf("store: update task priority: %w", err)
			}
		}
		if fields.Mode != nil {
			if _, err := tx.Exec(`UPDATE tasks SET reasoning_mode = ? WHERE id = ?`, string(*fields.Mode), taskID); err != nil {
				return fmt.Errorf("store: update task mode: %w", err)
			}
		}
		if _, err := tx.Exec(`UPDATE tasks SET updated_at_ms = ? WHERE id = ?`, now, taskID); err != nil {
			return fmt.Errorf("store: touch task: %w", err)
		}

		if _, err := projectTaskEvent(tx, ws, branch, taskID, "", "task.edited", map[string]any{"task_id": taskID, "revision": newRev}, now); err != nil {
			return err
		}

		task, err = getTaskTx(tx, taskID)
		if err != nil {
			return err
		}

		if recordUndo {
			if err := recordOpsHistory(tx, ws, taskID, "", "task.edit", fields, before, task, true, now); err != nil {
				return err
			}
		}
		return nil
	})
	return task, err
}

func getTaskTx(tx *sql.Tx, id string) (Task, error) {
	var t Task
	var statusManual, requireSecurity, requirePerf int
	err := tx.QueryRow(`SELECT id, revision, parent_plan_id, title, description, context, status, status_manual, priority,
		reasoning_mode, require_security, require_perf, created_at_ms, updated_at_ms FROM tasks WHERE id = ?`, id).
		Scan(&t.ID, &t.Revision, &t.ParentPlanID, &t.Title, &t.Description, &t.Context, &t.Status, &statusManual,
			&t.Priority, &t.ReasoningMode, &requireSecurity, &requirePerf, &t.CreatedAtMs, &t.UpdatedAtMs)
	if err == sql.ErrNoRows {
		return Task{}, &UnknownIDError{ID: id}
	}
	if err != nil {
		return Task{}, fmt.Errorf("store: get task: %w", err)
	}
	t.StatusManual = statusManual != 0
	t.RequireSecurity = requireSecurity != 0
	t.RequirePerf = requirePerf != 0
	return t, nil
}

// GetTask returns one task by id.
func (s *Store) GetTask(ctx context.Context, ws ids.WorkspaceID, id string) (Task, error) {
	var t Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = getTaskTx(tx, id)
		return err
	})
	return t, err
}

// ListTasks returns every task under a plan (or every task in the
// workspace when planID is empty), most recently updated first.
func (s *Store) ListTasks(ctx context.Context, ws ids.WorkspaceID, planID string) ([]Task, error) {
	var out []Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT id, revision, parent_plan_id, title, description, context, status, status_manual, priority,
			reasoning_mode, require_security, require_perf, created_at_ms, updated_at_ms FROM tasks WHERE workspace = ?`
		args := []any{ws.String()}
		if planID != "" {
			query += " AND parent_plan_id = ?"
			args = append(args, planID)
		}
		query += " ORDER BY updated_at_ms DESC"
		rows, err := tx.Query(query, args...)
		if err != nil {
			return fmt.Errorf("store: list tasks: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var t Task
			var statusManual, requireSecurity, requirePerf int
			if err := rows.Scan(&t.ID, &t.Revision, &t.ParentPlanID, &t.Title, &t.Description, &t.Context, &t.Status,
				&statusManual, &t.Priority, &t.ReasoningMode, &requireSecurity, &requirePerf, &t.CreatedAtMs, &t.UpdatedAtMs); err != nil {
				return fmt.Errorf("store: scan task: %w", err)
			}
			t.StatusManual = statusManual != 0
			t.RequireSecurity = requireSecurity != 0
			t.RequirePerf = requirePerf != 0
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}
