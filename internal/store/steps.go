package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

// AddStep appends a new step under parentPath (empty for a root step),
// assigning it the next free ordinal among its siblings.
func (s *Store) AddStep(ctx context.Context, ws ids.WorkspaceID, taskID, parentPath, title string) (Step, error) {
	var step Step
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if strings.TrimSpace(title) == "" {
			return &InvalidInputError{Msg: "step title is required"}
		}
		if _, err := getTaskTx(tx, taskID); err != nil {
			return err
		}
		now := nowMs()
		branch, err := currentCheckoutTx(tx, ws, now)
		if err != nil {
			return err
		}

		var parent ids.StepPath
		var parentStepID string
		if parentPath != "" {
			parent, err = ids.ParseStepPath(parentPath)
			if err != nil {
				return &InvalidInputError{Msg: err.Error()}
			}
			row, err := getStepByPathTx(tx, taskID, parent.String())
			if err != nil {
				return err
			}
			parentStepID = row.StepID
		}

		var maxOrdinal int
		if err := tx.QueryRow(`SELECT COALESCE(MAX(ordinal), 0) FROM steps WHERE task_id = ? AND parent_step_id = ?`,
			taskID, parentStepID).Scan(&maxOrdinal); err != nil {
			return fmt.Errorf("store: max ordinal: %w", err)
		}
		ordinal := maxOrdinal + 1
		path := parent.Child(ordinal)

		var seq int64
		if err := tx.QueryRow(`SELECT COUNT(*) + 1 FROM steps WHERE task_id = ?`, taskID).Scan(&seq); err != nil {
			return fmt.Errorf("store: next step seq: %w", err)
		}
		stepID := fmt.Sprintf("%s-step-%03d", taskID, seq)

		if _, err := tx.Exec(`INSERT INTO steps(step_id, workspace, task_id, parent_step_id, path, ordinal, title, created_at_ms, updated_at_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			stepID, ws.String(), taskID, parentStepID, path.String(), ordinal, title, now, now); err != nil {
			return fmt.Errorf("store: insert step: %w", err)
		}

		if _, err := projectTaskEvent(tx, ws, branch, taskID, path.String(), "step.added", map[string]any{
			"task_id": taskID, "step_id": stepID, "path": path.String(), "title": title,
		}, now); err != nil {
			return err
		}

		step, err = getStepByPathTx(tx, taskID, path.String())
		return err
	})
	return step, err
}

func scanStep(row interface {
	Scan(dest ...any) error
}) (Step, error) {
	var st Step
	var completed, criteria, tests, security, perf, docs, blocked int
	err := row.Scan(&st.StepID, &st.TaskID, &st.ParentStepID, &st.Path, &st.Ordinal, &st.Title,
		&completed, &criteria, &tests, &security, &perf, &docs, &blocked, &st.BlockReason)
	if err != nil {
		return Step{}, err
	}
	st.Completed = completed != 0
	st.CriteriaConfirmed = criteria != 0
	st.TestsConfirmed = tests != 0
	st.SecurityConfirmed = security != 0
	st.PerfConfirmed = perf != 0
	st.DocsConfirmed = docs != 0
	st.Blocked = blocked != 0
	return st, nil
}

const stepColumns = `step_id, task_id, parent_step_id, path, ordinal, title,
	completed, criteria_confirmed, tests_confirmed, security_confirmed, perf_confirmed, docs_confirmed, blocked, block_reason`

func getStepByPathTx(tx *sql.Tx, taskID, path string) (Step, error) {
	row := tx.QueryRow(`SELECT `+stepColumns+` FROM steps WHERE task_id = ? AND path = ?`, taskID, path)
	st, err := scanStep(row)
	if err == sql.ErrNoRows {
		return Step{}, &StepNotFoundError{TaskID: taskID, Path: path}
	}
	if err != nil {
		return Step{}, fmt.Errorf("store: get step: %w", err)
	}
	return st, nil
}

// GetStep returns one step by task id and dotted path.
func (s *Store) GetStep(ctx context.Context, ws ids.WorkspaceID, taskID, path string) (Step, error) {
	var st Step
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		st, err = getStepByPathTx(tx, taskID, path)
		return err
	})
	return st, err
}

// ListSteps returns every step under a task, ordered by path.
func (s *Store) ListSteps(ctx context.Context, ws ids.WorkspaceID, taskID string) ([]Step, error) {
	var out []Step
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT `+stepColumns+` FROM steps WHERE task_id = ? ORDER BY path`, taskID)
		if err != nil {
			return fmt.Errorf("store: list steps: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			st, err := scanStep(rows)
			if err != nil {
				return fmt.Errorf("store: scan step: %w", err)
			}
			out = append(out, st)
		}
		return rows.Err()
	})
	return out, err
}

// StepConfirmFields are the individual checkpoint flags step.edit can set.
type StepConfirmFields struct {
	Criteria *bool
	Tests    *bool
	Security *bool
	Perf     *bool
	Docs     *bool
	Blocked  *bool
	BlockReason *string
	Title    *string
}

// EditStep patches a step's confirmation flags / title / block state and
// projects a step.edited event.
func (s *Store) EditStep(ctx context.Context, ws ids.WorkspaceID, taskID, path string, fields StepConfirmFields) (Step, error) {
	var step Step
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getStepByPathTx(tx, taskID, path)
		if err != nil {
			return err
		}
		now := nowMs()
		branch, err := currentCheckoutTx(tx, ws, now)
		if err != nil {
			return err
		}

		set := func(col string, v *bool) error {
			if v == nil {
				return nil
			}
			val := 0
			if *v {
				val = 1
			}
			_, err := tx.Exec(fmt.Sprintf(`UPDATE steps SET %s = ? WHERE step_id = ?`, col), val, existing.StepID)
			return err
		}
		if err := set("criteria_confirmed", fields.Criteria); err != nil {
			return fmt.Errorf("store: edit step criteria: %w", err)
		}
		if err := set("tests_confirmed", fields.Tests); err != nil {
			return fmt.Errorf("store: edit step tests: %w", err)
		}
		if err := set("security_confirmed", fields.Security); err != nil {
			return fmt.Errorf("store: edit step security: %w", err)
		}
		if err := set("perf_confirmed", fields.Perf); err != nil {
			return fmt.Errorf("store: edit step perf: %w", err)
		}
		if err := set("docs_confirmed", fields.Docs); err != nil {
			return fmt.Errorf("store: edit step docs: %w", err)
		}
		if err := set("blocked", fields.Blocked); err != nil {
			return fmt.Errorf("store: edit step blocked: %w", err)
		}
		if fields.BlockReason != nil {
			if _, err := tx.Exec(`UPDATE steps SET block_reason = ? WHERE step_id = ?`, *fields.BlockReason, existing.StepID); err != nil {
				return fmt.Errorf("store: edit step block reason: %w", err)
			}
		}
		if fields.Title != nil {
			if _, err := tx.Exec(`UPDATE steps SET title = ? WHERE step_id = ?`, *fields.Title, existing.StepID); err != nil {
				return fmt.Errorf("store: edit step title: %w", err)
			}
		}
		if _, err := tx.Exec(`UPDATE steps SET updated_at_ms = ? WHERE step_id = ?`, now, existing.StepID); err != nil {
			return fmt.Errorf("store: touch step: %w", err)
		}

		if _, err := projectTaskEvent(tx, ws, branch, taskID, path, "step.edited", map[string]any{
			"task_id": taskID, "step_id": existing.StepID, "path": path,
		}, now); err != nil {
			return err
		}

		step, err = getStepByPathTx(tx, taskID, path)
		return err
	})
	return step, err
}

// CloseStep marks a step completed, gated by the task's reasoning_mode
// (spec.md invariant 12): strict/deep tasks require criteria_confirmed
// and tests_confirmed (plus security/perf when the task demands them)
// before a step can close.
func (s *Store) CloseStep(ctx context.Context, ws ids.WorkspaceID, taskID, path string) (Step, error) {
	var step Step
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		task, err := getTaskTx(tx, taskID)
		if err != nil {
			return err
		}
		existing, err := getStepByPathTx(tx, taskID, path)
		if err != nil {
			return err
		}

		if task.ReasoningMode == ReasoningStrict || task.ReasoningMode == ReasoningDeep {
			var missing []string
			if !existing.CriteriaConfirmed {
				missing = append(missing, "criteria")
			}
			if !existing.TestsConfirmed {
				missing = append(missing, "tests")
			}
			if task.RequireSecurity && !existing.SecurityConfirmed {
				missing = append(missing, "security")
			}
			if task.RequirePerf && !existing.PerfConfirmed {
				missing = append(missing, "perf")
			}
			if task.ReasoningMode == ReasoningDeep && !existing.DocsConfirmed {
				missing = append(missing, "docs")
			}
			if len(missing) > 0 {
				return &ReasoningRequiredError{TaskID: taskID, Path: path, Missing: missing}
			}
		}

		now := nowMs()
		branch, err := currentCheckoutTx(tx, ws, now)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE steps SET completed = 1, updated_at_ms = ? WHERE step_id = ?`, now, existing.StepID); err != nil {
			return fmt.Errorf("store: close step: %w", err)
		}
		if _, err := projectTaskEvent(tx, ws, branch, taskID, path, "step.closed", map[string]any{
			"task_id": taskID, "step_id": existing.StepID, "path": path,
		}, now); err != nil {
			return err
		}
		step, err = getStepByPathTx(tx, taskID, path)
		return err
	})
	return step, err
}

// DeleteStep removes a step and every descendant beneath it, then
// renumbers the remaining siblings, rewriting the paths of each moved
// sibling and its descendants, so ordinals stay contiguous
// (spec.md invariant 9: step paths are always dense and well-formed).
func (s *Store) DeleteStep(ctx context.Context, ws ids.WorkspaceID, taskID, path string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getStepByPathTx(tx, taskID, path)
		if err != nil {
			return err
		}
		now := nowMs()
		branch, err := currentCheckoutTx(tx, ws, now)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(`DELETE FROM steps WHERE task_id = ? AND (path = ? OR path LIKE ?)`,
			taskID, path, path+".%"); err != nil {
			return fmt.Errorf("store: delete step subtree: %w", err)
		}

		rows, err := tx.Query(`SELECT step_id, ordinal, path FROM steps WHERE task_id = ? AND parent_step_id = ? ORDER BY ordinal ASC`,
			taskID, existing.ParentStepID)
		if err != nil {
			return fmt.Errorf("store: list siblings: %w", err)
		}
		type sib struct {
			id      string
			ordinal int
			path    string
		}
		var sibs []sib
		for rows.Next() {
			var sv sib
			if err := rows.Scan(&sv.id, &sv.ordinal, &sv.path); err != nil {
				rows.Close()
				return fmt.Errorf("store: scan sibling: %w", err)
			}
			sibs = append(sibs, sv)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		parentPrefix := ""
		if i := strings.LastIndex(existing.Path, "."); i >= 0 {
			parentPrefix = existing.Path[:i+1]
		}
		for i, sv := range sibs {
			newOrdinal := i + 1
			if newOrdinal != sv.ordinal {
				if _, err := tx.Exec(`UPDATE steps SET ordinal = ? WHERE step_id = ?`, newOrdinal, sv.id); err != nil {
					return fmt.Errorf("store: renumber sibling: %w", err)
				}
				newPath := fmt.Sprintf("%s%d", parentPrefix, newOrdinal)
				if _, err := tx.Exec(`UPDATE steps SET path = ? || substr(path, ?) WHERE task_id = ? AND (path = ? OR path LIKE ?)`,
					newPath, len(sv.path)+1, taskID, sv.path, sv.path+".%"); err != nil {
					return fmt.Errorf("store: rewrite sibling paths: %w", err)
				}
			}
		}

		_, err = projectTaskEvent(tx, ws, branch, taskID, path, "step.deleted", map[string]any{
			"task_id": taskID, "step_id": existing.StepID, "path": path,
		}, now)
		return err
	})
}

// Note appends a human-authored note to a task (optionally scoped to a
// step), mirroring it into the notes document and projecting a
// task.note event into the trace document.
func (s *Store) Note(ctx context.Context, ws ids.WorkspaceID, taskID, stepPath, title, content string) (ids.EventID, error) {
	var eventID ids.EventID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getTaskTx(tx, taskID); err != nil {
			return err
		}
		var stepID string
		if stepPath != "" {
			st, err := getStepByPathTx(tx, taskID, stepPath)
			if err != nil {
				return err
			}
			stepID = st.StepID
		}
		now := nowMs()
		branch, err := currentCheckoutTx(tx, ws, now)
		if err != nil {
			return err
		}

		eid, err := projectTaskEvent(tx, ws, branch, taskID, stepPath, "task.note", map[string]any{
			"task_id": taskID, "step_id": stepID, "path": stepPath, "title": title,
		}, now)
		if err != nil {
			return err
		}
		eventID = eid

		_, err = mirrorTaskNote(tx, ws, branch, taskID, stepID, stepPath, eventID, title, content, now)
		return err
	})
	return eventID, err
}
