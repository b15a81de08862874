package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

// PortalCursor tracks how far a consumer (tool, target, lane) has read
// into a stream of sequence-ordered entries, so repeated status/resume
// calls only surface what's new since the last read.
type PortalCursor struct {
	Tool     string
	TargetID string
	Lane     string
	LastSeq  int64
}

// AdvancePortalCursor moves a cursor forward to seq, never backward.
func (s *Store) AdvancePortalCursor(ctx context.Context, ws ids.WorkspaceID, tool, targetID, lane string, seq int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO portal_cursors(workspace, tool, target_id, lane, last_seq) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(workspace, tool, target_id, lane) DO UPDATE SET last_seq = MAX(last_seq, excluded.last_seq)`,
			ws.String(), tool, targetID, lane, seq)
		if err != nil {
			return fmt.Errorf("store: advance portal cursor: %w", err)
		}
		return nil
	})
}

// GetPortalCursor returns a cursor's last_seq, or 0 if it has never advanced.
func (s *Store) GetPortalCursor(ctx context.Context, ws ids.WorkspaceID, tool, targetID, lane string) (int64, error) {
	var out int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		e := tx.QueryRow(`SELECT last_seq FROM portal_cursors WHERE workspace = ? AND tool = ? AND target_id = ? AND lane = ?`,
			ws.String(), tool, targetID, lane).Scan(&out)
		if e == sql.ErrNoRows {
			out = 0
			return nil
		}
		if e != nil {
			return fmt.Errorf("store: get portal cursor: %w", e)
		}
		return nil
	})
	return out, err
}
