package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

func nowMs() int64 { return time.Now().UnixMilli() }

// withTx runs fn inside one transaction (BeginTx with default options,
// so SQLite's deferred BEGIN; Open's single-connection pool keeps
// writers from overlapping), rolling back on
// any error and committing otherwise. This is the single entry point
// every exported mutator uses, per spec.md §4.1 invariant 1 (single
// writer) and invariant 2 (atomicity).
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// ensureWorkspace inserts the workspace row if absent. Idempotent.
func ensureWorkspace(tx *sql.Tx, ws ids.WorkspaceID, nowMs int64) error {
	_, err := tx.Exec(`INSERT INTO workspaces(workspace, created_at_ms) VALUES (?, ?)
		ON CONFLICT(workspace) DO NOTHING`, ws.String(), nowMs)
	if err != nil {
		return fmt.Errorf("store: ensure workspace: %w", err)
	}
	return nil
}

const defaultBranch = "default"

// ensureDefaultBranch bootstraps the "default" branch and checkout
// pointer for a workspace the first time any op needs a checkout.
func ensureDefaultBranch(tx *sql.Tx, ws ids.WorkspaceID, nowMs int64) error {
	_, err := tx.Exec(`INSERT INTO branches(workspace, name, base_branch, base_seq, created_at_ms)
		VALUES (?, ?, '', 0, ?) ON CONFLICT(workspace, name) DO NOTHING`,
		ws.String(), defaultBranch, nowMs)
	if err != nil {
		return fmt.Errorf("store: ensure default branch: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO checkouts(workspace, branch) VALUES (?, ?)
		ON CONFLICT(workspace) DO NOTHING`, ws.String(), defaultBranch)
	if err != nil {
		return fmt.Errorf("store: ensure checkout: %w", err)
	}
	return nil
}

// emitEvent appends one row to the canonical event log and returns its
// wire EventID (step 6 of the mutator recipe).
func emitEvent(tx *sql.Tx, ws ids.WorkspaceID, nowMs int64, taskID, path, eventType string, payload any) (ids.EventID, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("store: marshal event payload: %w", err)
	}
	res, err := tx.Exec(`INSERT INTO events(workspace, ts_ms, task_id, path, event_type, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)`, ws.String(), nowMs, taskID, path, eventType, string(payloadJSON))
	if err != nil {
		return "", fmt.Errorf("store: insert event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("store: event seq: %w", err)
	}
	return ids.NewEventID(seq), nil
}

// bumpRevision performs the optimistic-concurrency CAS described in
// spec.md §4.1.5. expected == nil skips the comparison (unconditional
// bump, as ClaimJob and edits without an expected revision use it).
func bumpRevision(tx *sql.Tx, table, idColumn, id string, expected *int64) (int64, error) {
	var current int64
	err := tx.QueryRow(fmt.Sprintf(`SELECT revision FROM %s WHERE %s = ?`, table, idColumn), id).Scan(&current)
	if err == sql.ErrNoRows {
		return 0, &UnknownIDError{ID: id}
	}
	if err != nil {
		return 0, fmt.Errorf("store: read revision: %w", err)
	}
	if expected != nil && *expected != current {
		return 0, &RevisionMismatchError{Expected: *expected, Actual: current}
	}
	next := current + 1
	_, err = tx.Exec(fmt.Sprintf(`UPDATE %s SET revision = ? WHERE %s = ?`, table, idColumn), next, id)
	if err != nil {
		return 0, fmt.Errorf("store: bump revision: %w", err)
	}
	return next, nil
}
