package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

// TaskNode is a richer annotation attached to a task (or one of its
// steps), carrying blockers/dependencies/risks the plain step model
// doesn't capture — consumed by the reasoning-graph projection.
type TaskNode struct {
	NodeID          string
	TaskID          string
	ParentStepID    string
	Ordinal         int
	Title           string
	Status          string
	Blockers        []string
	Dependencies    []string
	NextSteps       []string
	Problems        []string
	Risks           []string
	SuccessCriteria []string
}

// AddTaskNode inserts a new task node and projects a task_node.added event.
func (s *Store) AddTaskNode(ctx context.Context, ws ids.WorkspaceID, taskID, parentStepPath, title string, successCriteria []string) (TaskNode, error) {
	var node TaskNode
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if strings.TrimSpace(title) == "" {
			return &InvalidInputError{Msg: "task node title is required"}
		}
		if _, err := getTaskTx(tx, taskID); err != nil {
			return err
		}
		now := nowMs()
		branch, err := currentCheckoutTx(tx, ws, now)
		if err != nil {
			return err
		}

		var parentStepID string
		if parentStepPath != "" {
			st, err := getStepByPathTx(tx, taskID, parentStepPath)
			if err != nil {
				return err
			}
			parentStepID = st.StepID
		}

		var seq int64
		if err := tx.QueryRow(`SELECT COUNT(*) + 1 FROM task_nodes WHERE task_id = ?`, taskID).Scan(&seq); err != nil {
			return fmt.Errorf("store: next task node seq: %w", err)
		}
		nodeID := fmt.Sprintf("%s-node-%03d", taskID, seq)

		var maxOrdinal int
		if err := tx.QueryRow(`SELECT COALESCE(MAX(ordinal), 0) FROM task_nodes WHERE task_id = ?`, taskID).Scan(&maxOrdinal); err != nil {
			return fmt.Errorf("store: max task node ordinal: %w", err)
		}

		criteriaJSON, err := marshalJSON(successCriteria)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(`INSERT INTO task_nodes(node_id, workspace, task_id, parent_step_id, ordinal, title, status, success_criteria, created_at_ms, updated_at_ms)
			VALUES (?, ?, ?, ?, ?, ?, 'open', ?, ?, ?)`,
			nodeID, ws.String(), taskID, parentStepID, maxOrdinal+1, title, criteriaJSON, now, now); err != nil {
			return fmt.Errorf("store: insert task node: %w", err)
		}

		if _, err := projectTaskEvent(tx, ws, branch, taskID, "", "task_node.added", map[string]any{
			"task_id": taskID, "node_id": nodeID, "title": title,
		}, now); err != nil {
			return err
		}

		node, err = getTaskNodeTx(tx, nodeID)
		return err
	})
	return node, err
}

func getTaskNodeTx(tx *sql.Tx, nodeID string) (TaskNode, error) {
	var n TaskNode
	var blockers, deps, next, problems, risks, criteria string
	err := tx.QueryRow(`SELECT node_id, task_id, parent_step_id, ordinal, title, status, blockers, dependencies, next_steps, problems, risks, success_criteria
		FROM task_nodes WHERE node_id = ?`, nodeID).
		Scan(&n.NodeID, &n.TaskID, &n.ParentStepID, &n.Ordinal, &n.Title, &n.Status, &blockers, &deps, &next, &problems, &risks, &criteria)
	if err == sql.ErrNoRows {
		return TaskNode{}, &UnknownIDError{ID: nodeID}
	}
	if err != nil {
		return TaskNode{}, fmt.Errorf("store: get task node: %w", err)
	}
	n.Blockers = unmarshalStrList(blockers)
	n.Dependencies = unmarshalStrList(deps)
	n.NextSteps = unmarshalStrList(next)
	n.Problems = unmarshalStrList(problems)
	n.Risks = unmarshalStrList(risks)
	n.SuccessCriteria = unmarshalStrList(criteria)
	return n, nil
}

// ListTaskNodes returns every node attached to a task, ordered by ordinal.
func (s *Store) ListTaskNodes(ctx context.Context, ws ids.WorkspaceID, taskID string) ([]TaskNode, error) {
	var out []TaskNode
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT node_id FROM task_nodes WHERE task_id = ? ORDER BY ordinal ASC`, taskID)
		if err != nil {
			return fmt.Errorf("store: list task nodes: %w", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("store: scan task node id: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range ids {
			n, err := getTaskNodeTx(tx, id)
			if err != nil {
				return err
			}
			out = append(out, n)
		}
		return nil
	})
	return out, err
}

// TaskNodeEditFields are the optionally-present fields task_node.edit can patch.
type TaskNodeEditFields struct {
	Title           *string
	Status          *string
	Blockers        *[]string
	Dependencies    *[]string
	NextSteps       *[]string
	Problems        *[]string
	Risks           *[]string
	SuccessCriteria *[]string
}

// EditTaskNode patches a task node's fields and projects a task_node.edited event.
func (s *Store) EditTaskNode(ctx context.Context, ws ids.WorkspaceID, taskID, nodeID string, fields TaskNodeEditFields) (TaskNode, error) {
	var node TaskNode
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getTaskNodeTx(tx, nodeID); err != nil {
			return err
		}
		now := nowMs()
		branch, err := currentCheckoutTx(tx, ws, now)
		if err != nil {
			return err
		}

		if fields.Title != nil {
			if _, err := tx.Exec(`UPDATE task_nodes SET title = ? WHERE node_id = ?`, *fields.Title, nodeID); err != nil {
				return fmt.Errorf("store: edit task node title: %w", err)
			}
		}
		if fields.Status != nil {
			if _, err := tx.Exec(`UPDATE task_nodes SET status = ? WHERE node_id = ?`, *fields.Status, nodeID); err != nil {
				return fmt.Errorf("store: edit task node status: %w", err)
			}
		}
		setList := func(col string, v *[]string) error {
			if v == nil {
				return nil
			}
			j, err := marshalJSON(*v)
			if err != nil {
				return err
			}
			_, err = tx.Exec(fmt.Sprintf(`UPDATE task_nodes SET %s = ? WHERE node_id = ?`, col), j, nodeID)
			return err
		}
		if err := setList("blockers", fields.Blockers); err != nil {
			return err
		}
		if err := setList("dependencies", fields.Dependencies); err != nil {
			return err
		}
		if err := setList("next_steps", fields.NextSteps); err != nil {
			return err
		}
		if err := setList("problems", fields.Problems); err != nil {
			return err
		}
		if err := setList("risks", fields.Risks); err != nil {
			return err
		}
		if err := setList("success_criteria", fields.SuccessCriteria); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE task_nodes SET updated_at_ms = ? WHERE node_id = ?`, now, nodeID); err != nil {
			return fmt.Errorf("store: touch task node: %w", err)
		}

		if _, err := projectTaskEvent(tx, ws, branch, taskID, "", "task_node.edited", map[string]any{
			"task_id": taskID, "node_id": nodeID,
		}, now); err != nil {
			return err
		}

		node, err = getTaskNodeTx(tx, nodeID)
		return err
	})
	return node, err
}

// DeleteTaskNode removes a task node outright.
func (s *Store) DeleteTaskNode(ctx context.Context, ws ids.WorkspaceID, taskID, nodeID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowMs()
		branch, err := currentCheckoutTx(tx, ws, now)
		if err != nil {
			return err
		}
		res, err := tx.Exec(`DELETE FROM task_nodes WHERE node_id = ?`, nodeID)
		if err != nil {
			return fmt.Errorf("store: delete task node: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return &UnknownIDError{ID: nodeID}
		}
		_, err = projectTaskEvent(tx, ws, branch, taskID, "", "task_node.deleted", map[string]any{
			"task_id": taskID, "node_id": nodeID,
		}, now)
		return err
	})
}
