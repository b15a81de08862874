package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

// SetFocus records the workspace's current point of attention — a
// task, plan, or job id the status/resume projections anchor on.
func (s *Store) SetFocus(ctx context.Context, ws ids.WorkspaceID, focusID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureWorkspace(tx, ws, nowMs()); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT INTO focus(workspace, focus_id) VALUES (?, ?)
			ON CONFLICT(workspace) DO UPDATE SET focus_id = excluded.focus_id`, ws.String(), focusID)
		if err != nil {
			return fmt.Errorf("store: set focus: %w", err)
		}
		return nil
	})
}

// GetFocus returns the workspace's current focus id, or "" if unset.
func (s *Store) GetFocus(ctx context.Context, ws ids.WorkspaceID) (string, error) {
	var out string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		e := tx.QueryRow(`SELECT focus_id FROM focus WHERE workspace = ?`, ws.String()).Scan(&out)
		if e == sql.ErrNoRows {
			out = ""
			return nil
		}
		if e != nil {
			return fmt.Errorf("store: get focus: %w", e)
		}
		return nil
	})
	return out, err
}
