package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

// OpsHistoryEntry is one row of the undo log: a snapshot of a mutation
// recorded immediately after it committed.
type OpsHistoryEntry struct {
	Seq      int64
	TaskID   string
	Path     string
	Intent   string
	Before   string
	After    string
	Undoable bool
	Undone   bool
	TsMs     int64
}

// recordOpsHistory snapshots before/after state for an undoable mutation.
// Called from inside the same transaction as the mutation itself so the
// snapshot and the change it describes are always consistent.
func recordOpsHistory(tx *sql.Tx, ws ids.WorkspaceID, taskID, path, intent string, payload, before, after any, undoable bool, nowMs int64) error {
	payloadJSON, err := marshalJSON(payload)
	if err != nil {
		return err
	}
	beforeJSON, err := marshalJSON(before)
	if err != nil {
		return err
	}
	afterJSON, err := marshalJSON(after)
	if err != nil {
		return err
	}
	undoableInt := 0
	if undoable {
		undoableInt = 1
	}
	_, err = tx.Exec(`INSERT INTO ops_history(workspace, task_id, path, intent, payload_json, before_json, after_json, undoable, ts_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ws.String(), taskID, path, intent, payloadJSON, beforeJSON, afterJSON, undoableInt, nowMs)
	if err != nil {
		return fmt.Errorf("store: record ops history: %w", err)
	}
	return nil
}

// ListOpsHistory returns the most recent ops-history entries for a
// workspace, newest first.
func (s *Store) ListOpsHistory(ctx context.Context, ws ids.WorkspaceID, limit int) ([]OpsHistoryEntry, error) {
	var out []OpsHistoryEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT seq, task_id, path, intent, before_json, after_json, undoable, undone, ts_ms
			FROM ops_history WHERE workspace = ? ORDER BY seq DESC`
		args := []any{ws.String()}
		if limit > 0 {
			query += " LIMIT ?"
			args = append(args, limit)
		}
		rows, err := tx.Query(query, args...)
		if err != nil {
			return fmt.Errorf("store: list ops history: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var e OpsHistoryEntry
			var undoable, undone int
			if err := rows.Scan(&e.Seq, &e.TaskID, &e.Path, &e.Intent, &e.Before, &e.After, &undoable, &undone, &e.TsMs); err != nil {
				return fmt.Errorf("store: scan ops history: %w", err)
			}
			e.Undoable = undoable != 0
			e.Undone = undone != 0
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

// UndoLastTaskEdit reverts the most recent undoable, not-yet-undone
// tasks.edit entry by restoring its "before" task fields. It returns
// InvalidInputError if there is nothing left to undo.
func (s *Store) UndoLastTaskEdit(ctx context.Context, ws ids.WorkspaceID) (Task, error) {
	var task Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var seq int64
		var taskID, beforeJSON string
		err := tx.QueryRow(`SELECT seq, task_id, before_json FROM ops_history
			WHERE workspace = ? AND intent = 'task.edit' AND undoable = 1 AND undone = 0
			ORDER BY seq DESC LIMIT 1`, ws.String()).Scan(&seq, &taskID, &beforeJSON)
		if err == sql.ErrNoRows {
			return &InvalidInputError{Msg: "nothing to undo"}
		}
		if err != nil {
			return fmt.Errorf("store: find undo entry: %w", err)
		}

		var before Task
		if err := jsonUnmarshal(beforeJSON, &before); err != nil {
			return fmt.Errorf("store: decode undo snapshot: %w", err)
		}

		now := nowMs()
		branch, err := currentCheckoutTx(tx, ws, now)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE tasks SET title = ?, description = ?, context = ?, status = ?, priority = ?, reasoning_mode = ?, updated_at_ms = ?
			WHERE id = ?`, before.Title, before.Description, before.Context, before.Status, before.Priority, string(before.ReasoningMode), now, taskID); err != nil {
			return fmt.Errorf("store: restore task: %w", err)
		}
		if _, err := tx.Exec(`UPDATE ops_history SET undone = 1 WHERE seq = ?`, seq); err != nil {
			return fmt.Errorf("store: mark undone: %w", err)
		}
		if _, err := projectTaskEvent(tx, ws, branch, taskID, "", "task.undo", map[string]any{"task_id": taskID, "ops_history_seq": seq}, now); err != nil {
			return err
		}
		task, err = getTaskTx(tx, taskID)
		return err
	})
	return task, err
}
