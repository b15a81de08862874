package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

// DocKind is the semantic kind of a document within a reasoning ref triple.
type DocKind string

const (
	DocKindNotes DocKind = "notes"
	DocKindTrace DocKind = "trace"
	DocKindGraph DocKind = "graph"
)

// DocEntry is one append-only row in a (branch, doc) log.
type DocEntry struct {
	Seq           int64
	TsMs          int64
	Branch        string
	Doc           string
	Kind          string // "note" | "event"
	Title         string
	Format        string
	MetaJSON      string
	Content       string
	SourceEventID string
	EventType     string
	TaskID        string
	Path          string
	PayloadJSON   string
}

// ensureDocument upserts the documents row for (branch, doc), stamping
// updated_at_ms on every call.
func ensureDocument(tx *sql.Tx, ws ids.WorkspaceID, branch, doc string, kind DocKind, nowMs int64) error {
	_, err := tx.Exec(`INSERT INTO documents(workspace, branch, doc, kind, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace, branch, doc) DO UPDATE SET updated_at_ms = excluded.updated_at_ms`,
		ws.String(), branch, doc, string(kind), nowMs, nowMs)
	if err != nil {
		return fmt.Errorf("store: ensure document: %w", err)
	}
	return nil
}

// appendNote inserts a human-authored note entry.
func appendNote(tx *sql.Tx, ws ids.WorkspaceID, branch, doc, title, format, metaJSON, content string, nowMs int64) (int64, error) {
	res, err := tx.Exec(`INSERT INTO doc_entries(workspace, ts_ms, branch, doc, kind, title, format, meta_json, content)
		VALUES (?, ?, ?, ?, 'note', ?, ?, ?, ?)`,
		ws.String(), nowMs, branch, doc, title, format, metaJSON, content)
	if err != nil {
		return 0, fmt.Errorf("store: append note: %w", err)
	}
	return res.LastInsertId()
}

// projectEvent inserts a projected-event entry, deduplicated by
// source_event_id per (workspace, branch, doc) — spec.md invariant 7.
// Returns (seq, inserted); inserted is false when the projection already
// existed (idempotent re-projection).
func projectEvent(tx *sql.Tx, ws ids.WorkspaceID, branch, doc string, sourceEventID ids.EventID, eventType, taskID, path, payloadJSON string, nowMs int64) (int64, bool, error) {
	var existing int64
	err := tx.QueryRow(`SELECT seq FROM doc_entries WHERE workspace = ? AND branch = ? AND doc = ? AND source_event_id = ?`,
		ws.String(), branch, doc, sourceEventID.String()).Scan(&existing)
	if err == nil {
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("store: check existing projection: %w", err)
	}

	res, err := tx.Exec(`INSERT INTO doc_entries(workspace, ts_ms, branch, doc, kind, source_event_id, event_type, task_id, path, payload_json)
		VALUES (?, ?, ?, ?, 'event', ?, ?, ?, ?, ?)`,
		ws.String(), nowMs, branch, doc, sourceEventID.String(), eventType, taskID, path, payloadJSON)
	if err != nil {
		return 0, false, fmt.Errorf("store: project event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("store: projected seq: %w", err)
	}
	return seq, true, nil
}

// AppendCardNote mirrors a committed reasoning card's text into its
// subject's notes document, for callers outside the store package
// (think.card) that already hold a resolved (branch, doc) pair.
func (s *Store) AppendCardNote(ctx context.Context, ws ids.WorkspaceID, doc, branch, title, content string, meta map[string]any) (int64, error) {
	var seq int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowMs()
		metaJSON, err := marshalJSON(meta)
		if err != nil {
			return err
		}
		seq, err = appendNote(tx, ws, branch, doc, title, "text", metaJSON, content, now)
		return err
	})
	return seq, err
}

// ListDocEntries returns every entry visible to branch for doc, across
// its full inheritance chain, honoring each source's cutoff.
func (s *Store) ListDocEntries(ctx context.Context, ws ids.WorkspaceID, branch, doc string, limit int) ([]DocEntry, error) {
	var out []DocEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sources, err := branchSources(tx, ws, branch)
		if err != nil {
			return err
		}
		clause, args := sourcesWhereClause(sources)
		query := fmt.Sprintf(`SELECT seq, ts_ms, branch, doc, kind, title, format, meta_json, content, source_event_id, event_type, task_id, path, payload_json
			FROM doc_entries WHERE workspace = ? AND doc = ? AND (%s) ORDER BY seq ASC`, clause)
		allArgs := append([]any{ws.String(), doc}, args...)
		if limit > 0 {
			query += " LIMIT ?"
			allArgs = append(allArgs, limit)
		}
		rows, err := tx.Query(query, allArgs...)
		if err != nil {
			return fmt.Errorf("store: list doc entries: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var e DocEntry
			if err := rows.Scan(&e.Seq, &e.TsMs, &e.Branch, &e.Doc, &e.Kind, &e.Title, &e.Format, &e.MetaJSON,
				&e.Content, &e.SourceEventID, &e.EventType, &e.TaskID, &e.Path, &e.PayloadJSON); err != nil {
				return fmt.Errorf("store: scan doc entry: %w", err)
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

// DocDiffTail returns entries that exist in `to`'s chain but not in
// `from`'s, keyed by source_event_id for events or by content for
// notes — used by the document-level (notes/trace) merge in spec.md
// §4.1.4.
func (s *Store) DocDiffTail(ctx context.Context, ws ids.WorkspaceID, from, to, doc string) ([]DocEntry, error) {
	var out []DocEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		fromSources, err := branchSources(tx, ws, from)
		if err != nil {
			return err
		}
		toSources, err := branchSources(tx, ws, to)
		if err != nil {
			return err
		}
		fromClause, fromArgs := sourcesWhereClause(fromSources)
		toClause, toArgs := sourcesWhereClause(toSources)

		fromSeen := map[string]bool{}
		fromQuery := fmt.Sprintf(`SELECT source_event_id, content, seq FROM doc_entries WHERE workspace = ? AND doc = ? AND (%s)`, fromClause)
		rows, err := tx.Query(fromQuery, append([]any{ws.String(), doc}, fromArgs...)...)
		if err != nil {
			return fmt.Errorf("store: doc diff from: %w", err)
		}
		for rows.Next() {
			var sourceEventID, content string
			var seq int64
			if err := rows.Scan(&sourceEventID, &content, &seq); err != nil {
				rows.Close()
				return fmt.Errorf("store: scan diff from: %w", err)
			}
			fromSeen[identityKey(sourceEventID, content, seq)] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		toQuery := fmt.Sprintf(`SELECT seq, ts_ms, branch, doc, kind, title, format, meta_json, content, source_event_id, event_type, task_id, path, payload_json
			FROM doc_entries WHERE workspace = ? AND doc = ? AND (%s) ORDER BY seq ASC`, toClause)
		rows2, err := tx.Query(toQuery, append([]any{ws.String(), doc}, toArgs...)...)
		if err != nil {
			return fmt.Errorf("store: doc diff to: %w", err)
		}
		defer rows2.Close()
		for rows2.Next() {
			var e DocEntry
			if err := rows2.Scan(&e.Seq, &e.TsMs, &e.Branch, &e.Doc, &e.Kind, &e.Title, &e.Format, &e.MetaJSON,
				&e.Content, &e.SourceEventID, &e.EventType, &e.TaskID, &e.Path, &e.PayloadJSON); err != nil {
				return fmt.Errorf("store: scan diff to: %w", err)
			}
			if !fromSeen[identityKey(e.SourceEventID, e.Content, e.Seq)] {
				out = append(out, e)
			}
		}
		return rows2.Err()
	})
	return out, err
}

func identityKey(sourceEventID, content string, seq int64) string {
	if sourceEventID != "" {
		return "evt:" + sourceEventID
	}
	return fmt.Sprintf("content:%s", content)
}

// MergeDoc re-inserts every entry DocDiffTail finds missing from `into`,
// onto `into`, reusing each entry's own source_event_id so the
// uniqueness index makes repeated merges idempotent.
func (s *Store) MergeDoc(ctx context.Context, ws ids.WorkspaceID, from, into, doc string) (int, error) {
	missing, err := s.DocDiffTail(ctx, ws, into, from, doc)
	if err != nil {
		return 0, err
	}
	merged := 0
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowMs()
		for _, e := range missing {
			if e.SourceEventID != "" {
				var existing int64
				err := tx.QueryRow(`SELECT seq FROM doc_entries WHERE workspace = ? AND branch = ? AND doc = ? AND source_event_id = ?`,
					ws.String(), into, doc, e.SourceEventID).Scan(&existing)
				if err == nil {
					continue
				}
				if err != sql.ErrNoRows {
					return fmt.Errorf("store: merge doc check existing: %w", err)
				}
			}
			_, err := tx.Exec(`INSERT INTO doc_entries(workspace, ts_ms, branch, doc, kind, title, format, meta_json, content, source_event_id, event_type, task_id, path, payload_json)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				ws.String(), now, into, doc, e.Kind, e.Title, e.Format, e.MetaJSON, e.Content,
				e.SourceEventID, e.EventType, e.TaskID, e.Path, e.PayloadJSON)
			if err != nil {
				return fmt.Errorf("store: merge doc insert: %w", err)
			}
			merged++
		}
		return nil
	})
	return merged, err
}
