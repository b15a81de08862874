// Package graph implements the append-only, per-(branch,doc) node/edge
// version log and its derived operations: materialized "current" state,
// semantic diff, and three-way merge with conflict materialization.
//
// It generalizes the teacher's internal/graph/dag.go — a single
// current-state tasks/task_edges table rooted at one DAG — into a
// branch-scoped version log where "current" is always computed from
// the greatest seq visible along a branch's source chain, never stored.
package graph

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/antigravity-dev/branchmind/internal/ids"
	"github.com/antigravity-dev/branchmind/internal/store"
)

// NodeSnapshot is one materialized node state.
type NodeSnapshot struct {
	Key     string
	Type    string
	Title   string
	Text    string
	Tags    []string
	Status  string
	Meta    map[string]any
	Deleted bool
	Seq     int64
}

// EdgeSnapshot is one materialized edge state.
type EdgeSnapshot struct {
	Key     string
	From    string
	To      string
	Rel     string
	Meta    map[string]any
	Deleted bool
	Seq     int64
}

// Engine is the graph version-log engine, sharing its SQLite handle
// with the store's single-writer connection.
type Engine struct {
	st *store.Store
}

// New wraps st's connection with the graph engine.
func New(st *store.Store) *Engine {
	return &Engine{st: st}
}

func scanLimit() int { return 5000 }

// UpsertNode appends a new version row for key, becoming the node's
// current state on branch/doc.
func (e *Engine) UpsertNode(ctx context.Context, ws ids.WorkspaceID, branch, doc, key, nodeType, title, text string, tags []string, status string, meta map[string]any, sourceEventID string) (int64, error) {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return 0, fmt.Errorf("graph: marshal tags: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return 0, fmt.Errorf("graph: marshal meta: %w", err)
	}
	res, err := e.st.DB().ExecContext(ctx, `INSERT INTO graph_node_versions(workspace, branch, doc, key, node_type, title, text, tags_json, status, meta_json, deleted, source_event_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		ws.String(), branch, doc, key, nodeType, title, text, string(tagsJSON), status, string(metaJSON), sourceEventID)
	if err != nil {
		return 0, fmt.Errorf("graph: upsert node: %w", err)
	}
	return res.LastInsertId()
}

// DeleteNode appends a tombstone version row for key.
func (e *Engine) DeleteNode(ctx context.Context, ws ids.WorkspaceID, branch, doc, key, sourceEventID string) (int64, error) {
	res, err := e.st.DB().ExecContext(ctx, `INSERT INTO graph_node_versions(workspace, branch, doc, key, deleted, source_event_id)
		VALUES (?, ?, ?, ?, 1, ?)`, ws.String(), branch, doc, key, sourceEventID)
	if err != nil {
		return 0, fmt.Errorf("graph: delete node: %w", err)
	}
	return res.LastInsertId()
}

// UpsertEdge appends a new version row for an edge key.
func (e *Engine) UpsertEdge(ctx context.Context, ws ids.WorkspaceID, branch, doc, key, from, to, rel string, meta map[string]any, sourceEventID string) (int64, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return 0, fmt.Errorf("graph: marshal edge meta: %w", err)
	}
	res, err := e.st.DB().ExecContext(ctx, `INSERT INTO graph_edge_versions(workspace, branch, doc, key, from_node, to_node, rel, meta_json, deleted, source_event_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		ws.String(), branch, doc, key, from, to, rel, string(metaJSON), sourceEventID)
	if err != nil {
		return 0, fmt.Errorf("graph: upsert edge: %w", err)
	}
	return res.LastInsertId()
}

// DeleteEdge appends a tombstone version row for an edge key.
func (e *Engine) DeleteEdge(ctx context.Context, ws ids.WorkspaceID, branch, doc, key, sourceEventID string) (int64, error) {
	res, err := e.st.DB().ExecContext(ctx, `INSERT INTO graph_edge_versions(workspace, branch, doc, key, deleted, source_event_id)
		VALUES (?, ?, ?, ?, 1, ?)`, ws.String(), branch, doc, key, sourceEventID)
	if err != nil {
		return 0, fmt.Errorf("graph: delete edge: %w", err)
	}
	return res.LastInsertId()
}

func nodeAt(ctx context.Context, db *sql.DB, ws ids.WorkspaceID, doc, key, clause string, args []any, atSeq *int64) (NodeSnapshot, bool, error) {
	query := fmt.Sprintf(`SELECT seq, node_type, title, text, tags_json, status, meta_json, deleted
		FROM graph_node_versions WHERE workspace = ? AND doc = ? AND key = ? AND (%s)`, clause)
	full := append([]any{ws.String(), doc, key}, args...)
	if atSeq != nil {
		query += " AND seq <= ?"
		full = append(full, *atSeq)
	}
	query += " ORDER BY seq DESC LIMIT 1"

	var n NodeSnapshot
	var tagsJSON, metaJSON string
	var deleted int
	err := db.QueryRowContext(ctx, query, full...).Scan(&n.Seq, &n.Type, &n.Title, &n.Text, &tagsJSON, &n.Status, &metaJSON, &deleted)
	if err == sql.ErrNoRows {
		return NodeSnapshot{}, false, nil
	}
	if err != nil {
		return NodeSnapshot{}, false, fmt.Errorf("graph: node at: %w", err)
	}
	n.Key = key
	n.Deleted = deleted != 0
	_ = json.Unmarshal([]byte(tagsJSON), &n.Tags)
	_ = json.Unmarshal([]byte(metaJSON), &n.Meta)
	return n, true, nil
}

func edgeAt(ctx context.Context, db *sql.DB, ws ids.WorkspaceID, doc, key, clause string, args []any, atSeq *int64) (EdgeSnapshot, bool, error) {
	query := fmt.Sprintf(`SELECT seq, from_node, to_node, rel, meta_json, deleted
		FROM graph_edge_versions WHERE workspace = ? AND doc = ? AND key = ? AND (%s)`, clause)
	full := append([]any{ws.String(), doc, key}, args...)
	if atSeq != nil {
		query += " AND seq <= ?"
		full = append(full, *atSeq)
	}
	query += " ORDER BY seq DESC LIMIT 1"

	var e EdgeSnapshot
	var metaJSON string
	var deleted int
	err := db.QueryRowContext(ctx, query, full...).Scan(&e.Seq, &e.From, &e.To, &e.Rel, &metaJSON, &deleted)
	if err == sql.ErrNoRows {
		return EdgeSnapshot{}, false, nil
	}
	if err != nil {
		return EdgeSnapshot{}, false, fmt.Errorf("graph: edge at: %w", err)
	}
	e.Key = key
	e.Deleted = deleted != 0
	_ = json.Unmarshal([]byte(metaJSON), &e.Meta)
	return e, true, nil
}

// CurrentNodes materializes every live node key's current snapshot on
// branch's inheritance chain.
func (e *Engine) CurrentNodes(ctx context.Context, ws ids.WorkspaceID, branch, doc string) ([]NodeSnapshot, error) {
	sources, err := e.st.BranchSources(ctx, ws, branch)
	if err != nil {
		return nil, err
	}
	clause, args := store.SourcesWhereClause(sources)
	keys, err := distinctKeys(ctx, e.st.DB(), ws, doc, "graph_node_versions", clause, args)
	if err != nil {
		return nil, err
	}
	var out []NodeSnapshot
	for _, key := range keys {
		n, found, err := nodeAt(ctx, e.st.DB(), ws, doc, key, clause, args, nil)
		if err != nil {
			return nil, err
		}
		if found && !n.Deleted {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// CurrentEdges materializes every live edge key's current snapshot.
func (e *Engine) CurrentEdges(ctx context.Context, ws ids.WorkspaceID, branch, doc string) ([]EdgeSnapshot, error) {
	sources, err := e.st.BranchSources(ctx, ws, branch)
	if err != nil {
		return nil, err
	}
	clause, args := store.SourcesWhereClause(sources)
	keys, err := distinctKeys(ctx, e.st.DB(), ws, doc, "graph_edge_versions", clause, args)
	if err != nil {
		return nil, err
	}
	var out []EdgeSnapshot
	for _, key := range keys {
		ed, found, err := edgeAt(ctx, e.st.DB(), ws, doc, key, clause, args, nil)
		if err != nil {
			return nil, err
		}
		if found && !ed.Deleted {
			out = append(out, ed)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func distinctKeys(ctx context.Context, db *sql.DB, ws ids.WorkspaceID, doc, table, clause string, args []any) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT key FROM %s WHERE workspace = ? AND doc = ? AND (%s)`, table, clause)
	full := append([]any{ws.String(), doc}, args...)
	rows, err := db.QueryContext(ctx, query, full...)
	if err != nil {
		return nil, fmt.Errorf("graph: distinct keys: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("graph: scan key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func nodesSemanticallyEqual(a, b NodeSnapshot) bool {
	if a.Deleted != b.Deleted {
		return false
	}
	if a.Type != b.Type || a.Title != b.Title || a.Text != b.Text || a.Status != b.Status {
		return false
	}
	if !tagSetEqual(a.Tags, b.Tags) {
		return false
	}
	return jsonDeepEqual(a.Meta, b.Meta)
}

func edgesSemanticallyEqual(a, b EdgeSnapshot) bool {
	if a.Deleted != b.Deleted {
		return false
	}
	if a.From != b.From || a.To != b.To || a.Rel != b.Rel {
		return false
	}
	return jsonDeepEqual(a.Meta, b.Meta)
}

func tagSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := append([]string(nil), a...), append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func jsonDeepEqual(a, b map[string]any) bool {
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	var an, bn any
	_ = json.Unmarshal(aj, &an)
	_ = json.Unmarshal(bj, &bn)
	return fmt.Sprint(an) == fmt.Sprint(bn)
}

// DiffEntry is one changed node or edge surfaced by Diff.
type DiffEntry struct {
	Kind string // "node" | "edge"
	Key  string
	Seq  int64
}

// Diff enumerates every node and edge key visible on to's source chain
// (no seq window is applied) and compares each key's current state
// semantically against from's current state, per spec.md §4.1.3: only
// entries that actually changed are returned.
func (e *Engine) Diff(ctx context.Context, ws ids.WorkspaceID, from, to, doc string) ([]DiffEntry, error) {
	fromSources, err := e.st.BranchSources(ctx, ws, from)
	if err != nil {
		return nil, err
	}
	toSources, err := e.st.BranchSources(ctx, ws, to)
	if err != nil {
		return nil, err
	}
	fromClause, fromArgs := store.SourcesWhereClause(fromSources)
	toClause, toArgs := store.SourcesWhereClause(toSources)

	var out []DiffEntry

	nodeKeys, err := distinctKeys(ctx, e.st.DB(), ws, doc, "graph_node_versions", toClause, toArgs)
	if err != nil {
		return nil, err
	}
	for _, key := range nodeKeys {
		toNode, toFound, err := nodeAt(ctx, e.st.DB(), ws, doc, key, toClause, toArgs, nil)
		if err != nil {
			return nil, err
		}
		fromNode, fromFound, err := nodeAt(ctx, e.st.DB(), ws, doc, key, fromClause, fromArgs, nil)
		if err != nil {
			return nil, err
		}
		if !toFound {
			continue
		}
		if !fromFound || !nodesSemanticallyEqual(fromNode, toNode) {
			out = append(out, DiffEntry{Kind: "node", Key: key, Seq: toNode.Seq})
		}
	}

	edgeKeys, err := distinctKeys(ctx, e.st.DB(), ws, doc, "graph_edge_versions", toClause, toArgs)
	if err != nil {
		return nil, err
	}
	for _, key := range edgeKeys {
		toEdge, toFound, err := edgeAt(ctx, e.st.DB(), ws, doc, key, toClause, toArgs, nil)
		if err != nil {
			return nil, err
		}
		fromEdge, fromFound, err := edgeAt(ctx, e.st.DB(), ws, doc, key, fromClause, fromArgs, nil)
		if err != nil {
			return nil, err
		}
		if !toFound {
			continue
		}
		if !fromFound || !edgesSemanticallyEqual(fromEdge, toEdge) {
			out = append(out, DiffEntry{Kind: "edge", Key: key, Seq: toEdge.Seq})
		}
	}

	return out, nil
}

// Conflict mirrors one row of graph_conflicts.
type Conflict struct {
	ConflictID    string
	FromBranch    string
	IntoBranch    string
	Doc           string
	Kind          string
	Key           string
	BaseCutoffSeq int64
	TheirsSeq     int64
	OursSeq       int64
	Status        string
}

// MergeResult summarizes one Merge call.
type MergeResult struct {
	Merged    int
	Skipped   int
	Conflicts []Conflict
}

// Merge performs the three-way node/edge merge described in spec.md
// §4.1.2: into_branch must equal base_branch(from_branch); candidates
// are versions authored on from's chain strictly after base_cutoff_seq.
func (e *Engine) Merge(ctx context.Context, ws ids.WorkspaceID, from, into, doc string) (MergeResult, error) {
	fromBranch, err := e.st.GetBranch(ctx, ws, from)
	if err != nil {
		return MergeResult{}, err
	}
	if fromBranch.BaseBranch != into {
		return MergeResult{}, &store.MergeNotSupportedError{From: from, Into: into}
	}
	baseCutoffSeq := fromBranch.BaseSeq

	fromSources, err := e.st.BranchSources(ctx, ws, from)
	if err != nil {
		return MergeResult{}, err
	}
	baseSources, err := e.st.BranchSources(ctx, ws, fromBranch.BaseBranch)
	if err != nil {
		return MergeResult{}, err
	}
	intoSources, err := e.st.BranchSources(ctx, ws, into)
	if err != nil {
		return MergeResult{}, err
	}
	fromClause, fromArgs := store.SourcesWhereClause(fromSources)
	baseClause, baseArgs := store.SourcesWhereClause(baseSources)
	intoClause, intoArgs := store.SourcesWhereClause(intoSources)

	result := MergeResult{}

	nodeRows, err := e.st.DB().QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT key FROM graph_node_versions
		WHERE workspace = ? AND doc = ? AND (%s) AND seq > ? ORDER BY seq DESC LIMIT %d`, fromClause, scanLimit()),
		append([]any{ws.String(), doc}, append(fromArgs, baseCutoffSeq)...)...)
	if err != nil {
		return MergeResult{}, fmt.Errorf("graph: merge candidate nodes: %w", err)
	}
	var nodeKeys []string
	for nodeRows.Next() {
		var k string
		if err := nodeRows.Scan(&k); err != nil {
			nodeRows.Close()
			return MergeResult{}, fmt.Errorf("graph: scan candidate node: %w", err)
		}
		nodeKeys = append(nodeKeys, k)
	}
	nodeRows.Close()
	if err := nodeRows.Err(); err != nil {
		return MergeResult{}, err
	}

	for _, key := range nodeKeys {
		base, _, err := nodeAt(ctx, e.st.DB(), ws, doc, key, baseClause, baseArgs, &baseCutoffSeq)
		if err != nil {
			return MergeResult{}, err
		}
		theirs, theirsFound, err := nodeAt(ctx, e.st.DB(), ws, doc, key, fromClause, fromArgs, nil)
		if err != nil {
			return MergeResult{}, err
		}
		ours, _, err := nodeAt(ctx, e.st.DB(), ws, doc, key, intoClause, intoArgs, nil)
		if err != nil {
			return MergeResult{}, err
		}
		if !theirsFound {
			continue
		}

		switch {
		case nodesSemanticallyEqual(theirs, base) || nodesSemanticallyEqual(theirs, ours):
			result.Skipped++
		case nodesSemanticallyEqual(base, ours):
			sourceEventID := fmt.Sprintf("graph_merge:%s:%d:node:%s", from, theirs.Seq, key)
			if _, err := e.st.DB().ExecContext(ctx, `INSERT INTO graph_node_versions(workspace, branch, doc, key, node_type, title, text, tags_json, status, meta_json, deleted, source_event_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				ws.String(), into, doc, key, theirs.Type, theirs.Title, theirs.Text, mustJSON(theirs.Tags), theirs.Status, mustJSON(theirs.Meta), boolInt(theirs.Deleted), sourceEventID); err != nil {
				return MergeResult{}, fmt.Errorf("graph: fast-forward node: %w", err)
			}
			result.Merged++
		default:
			c, err := e.recordConflict(ctx, ws, from, into, doc, "node", key, baseCutoffSeq, theirs.Seq, ours.Seq, base, theirs, ours)
			if err != nil {
				return MergeResult{}, err
			}
			result.Conflicts = append(result.Conflicts, c)
		}
	}

	edgeRows, err := e.st.DB().QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT key FROM graph_edge_versions
		WHERE workspace = ? AND doc = ? AND (%s) AND seq > ? ORDER BY seq DESC LIMIT %d`, fromClause, scanLimit()),
		append([]any{ws.String(), doc}, append(fromArgs, baseCutoffSeq)...)...)
	if err != nil {
		return MergeResult{}, fmt.Errorf("graph: merge candidate edges: %w", err)
	}
	var edgeKeys []string
	for edgeRows.Next() {
		var k string
		if err := edgeRows.Scan(&k); err != nil {
			edgeRows.Close()
			return MergeResult{}, fmt.Errorf("graph: scan candidate edge: %w", err)
		}
		edgeKeys = append(edgeKeys, k)
	}
	edgeRows.Close()
	if err := edgeRows.Err(); err != nil {
		return MergeResult{}, err
	}

	for _, key := range edgeKeys {
		base, _, err := edgeAt(ctx, e.st.DB(), ws, doc, key, baseClause, baseArgs, &baseCutoffSeq)
		if err != nil {
			return MergeResult{}, err
		}
		theirs, theirsFound, err := edgeAt(ctx, e.st.DB(), ws, doc, key, fromClause, fromArgs, nil)
		if err != nil {
			return MergeResult{}, err
		}
		ours, _, err := edgeAt(ctx, e.st.DB(), ws, doc, key, intoClause, intoArgs, nil)
		if err != nil {
			return MergeResult{}, err
		}
		if !theirsFound {
			continue
		}

		switch {
		case edgesSemanticallyEqual(theirs, base) || edgesSemanticallyEqual(theirs, ours):
			result.Skipped++
		case edgesSemanticallyEqual(base, ours):
			sourceEventID := fmt.Sprintf("graph_merge:%s:%d:edge:%s", from, theirs.Seq, key)
			if _, err := e.st.DB().ExecContext(ctx, `INSERT INTO graph_edge_versions(workspace, branch, doc, key, from_node, to_node, rel, meta_json, deleted, source_event_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				ws.String(), into, doc, key, theirs.From, theirs.To, theirs.Rel, mustJSON(theirs.Meta), boolInt(theirs.Deleted), sourceEventID); err != nil {
				return MergeResult{}, fmt.Errorf("graph: fast-forward edge: %w", err)
			}
			result.Merged++
		default:
			c, err := e.recordConflict(ctx, ws, from, into, doc, "edge", key, baseCutoffSeq, theirs.Seq, ours.Seq, base, theirs, ours)
			if err != nil {
				return MergeResult{}, err
			}
			result.Conflicts = append(result.Conflicts, c)
		}
	}

	return result, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// conflictID hashes (workspace, from, into, doc, kind, key,
// base_cutoff_seq, theirs_seq, ours_seq) — spec.md invariant 10.
func conflictID(ws ids.WorkspaceID, from, into, doc, kind, key string, baseCutoffSeq, theirsSeq, oursSeq int64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%d|%d|%d", ws.String(), from, into, doc, kind, key, baseCutoffSeq, theirsSeq, oursSeq)
	return "conflict_" + hex.EncodeToString(h.Sum(nil))[:24]
}

func (e *Engine) recordConflict(ctx context.Context, ws ids.WorkspaceID, from, into, doc, kind, key string, baseCutoffSeq, theirsSeq, oursSeq int64, base, theirs, ours any) (Conflict, error) {
	id := conflictID(ws, from, into, doc, kind, key, baseCutoffSeq, theirsSeq, oursSeq)

	var existingStatus string
	err := e.st.DB().QueryRowContext(ctx, `SELECT status FROM graph_conflicts
		WHERE workspace = ? AND from_branch = ? AND into_branch = ? AND doc = ? AND kind = ? AND key = ? AND base_cutoff_seq = ? AND theirs_seq = ?`,
		ws.String(), from, into, doc, kind, key, baseCutoffSeq, theirsSeq).Scan(&existingStatus)
	if err == nil {
		return Conflict{ConflictID: id, FromBranch: from, IntoBranch: into, Doc: doc, Kind: kind, Key: key,
			BaseCutoffSeq: baseCutoffSeq, TheirsSeq: theirsSeq, OursSeq: oursSeq, Status: existingStatus}, nil
	}
	if err != sql.ErrNoRows {
		return Conflict{}, fmt.Errorf("graph: check existing conflict: %w", err)
	}

	_, err = e.st.DB().ExecContext(ctx, `INSERT INTO graph_conflicts(conflict_id, workspace, from_branch, into_branch, doc, kind, key,
		base_cutoff_seq, theirs_seq, ours_seq, base_json, theirs_json, ours_json, status, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'open', strftime('%s','now') * 1000)`,
		id, ws.String(), from, into, doc, kind, key, baseCutoffSeq, theirsSeq, oursSeq, mustJSON(base), mustJSON(theirs), mustJSON(ours))
	if err != nil {
		return Conflict{}, fmt.Errorf("graph: insert conflict: %w", err)
	}
	return Conflict{ConflictID: id, FromBranch: from, IntoBranch: into, Doc: doc, Kind: kind, Key: key,
		BaseCutoffSeq: baseCutoffSeq, TheirsSeq: theirsSeq, OursSeq: oursSeq, Status: "open"}, nil
}

// ListConflicts returns every conflict row (open or resolved) for a
// from->into merge pair, ordered by conflict_id.
func (e *Engine) ListConflicts(ctx context.Context, ws ids.WorkspaceID, from, into, doc string) ([]Conflict, error) {
	rows, err := e.st.DB().QueryContext(ctx, `SELECT conflict_id, from_branch, into_branch, doc, kind, key, base_cutoff_seq, theirs_seq, ours_seq, status
		FROM graph_conflicts WHERE workspace = ? AND from_branch = ? AND into_branch = ? AND doc = ? ORDER BY conflict_id`,
		ws.String(), from, into, doc)
	if err != nil {
		return nil, fmt.Errorf("graph: list conflicts: %w", err)
	}
	defer rows.Close()
	var out []Conflict
	for rows.Next() {
		var c Conflict
		if err := rows.Scan(&c.ConflictID, &c.FromBranch, &c.IntoBranch, &c.Doc, &c.Kind, &c.Key, &c.BaseCutoffSeq, &c.TheirsSeq, &c.OursSeq, &c.Status); err != nil {
			return nil, fmt.Errorf("graph: scan conflict: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ResolveConflict applies a resolution to an open conflict: use_from
// fast-forwards theirs's snapshot onto into, use_into leaves ours as
// current, manual marks it resolved without writing a new version row.
func (e *Engine) ResolveConflict(ctx context.Context, ws ids.WorkspaceID, conflictID, resolution string) error {
	var c Conflict
	var theirsJSON string
	err := e.st.DB().QueryRowContext(ctx, `SELECT from_branch, into_branch, doc, kind, key, theirs_json, status
		FROM graph_conflicts WHERE workspace = ? AND conflict_id = ?`, ws.String(), conflictID).
		Scan(&c.FromBranch, &c.IntoBranch, &c.Doc, &c.Kind, &c.Key, &theirsJSON, &c.Status)
	if err == sql.ErrNoRows {
		return &store.UnknownIDError{ID: conflictID}
	}
	if err != nil {
		return fmt.Errorf("graph: load conflict: %w", err)
	}
	if c.Status != "open" {
		return &store.InvalidInputError{Msg: fmt.Sprintf("conflict %q is not open (%s)", conflictID, c.Status)}
	}

	if resolution == "use_from" {
		sourceEventID := fmt.Sprintf("graph_resolve:%s:%s", conflictID, resolution)
		if c.Kind == "node" {
			var n NodeSnapshot
			if err := json.Unmarshal([]byte(theirsJSON), &n); err != nil {
				return fmt.Errorf("graph: decode theirs snapshot: %w", err)
			}
			if _, err := e.st.DB().ExecContext(ctx, `INSERT INTO graph_node_versions(workspace, branch, doc, key, node_type, title, text, tags_json, status, meta_json, deleted, source_event_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				ws.String(), c.IntoBranch, c.Doc, c.Key, n.Type, n.Title, n.Text, mustJSON(n.Tags), n.Status, mustJSON(n.Meta), boolInt(n.Deleted), sourceEventID); err != nil {
				return fmt.Errorf("graph: resolve use_from node: %w", err)
			}
		} else {
			var ed EdgeSnapshot
			if err := json.Unmarshal([]byte(theirsJSON), &ed); err != nil {
				return fmt.Errorf("graph: decode theirs snapshot: %w", err)
			}
			if _, err := e.st.DB().ExecContext(ctx, `INSERT INTO graph_edge_versions(workspace, branch, doc, key, from_node, to_node, rel, meta_json, deleted, source_event_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				ws.String(), c.IntoBranch, c.Doc, c.Key, ed.From, ed.To, ed.Rel, mustJSON(ed.Meta), boolInt(ed.Deleted), sourceEventID); err != nil {
				return fmt.Errorf("graph: resolve use_from edge: %w", err)
			}
		}
	}

	if resolution != "use_from" && resolution != "use_into" && resolution != "manual" {
		return &store.InvalidInputError{Msg: fmt.Sprintf("unknown resolution %q", resolution)}
	}

	_, err = e.st.DB().ExecContext(ctx, `UPDATE graph_conflicts SET status = 'resolved', resolved_at_ms = strftime('%s','now') * 1000 WHERE conflict_id = ?`, conflictID)
	if err != nil {
		return fmt.Errorf("graph: mark conflict resolved: %w", err)
	}
	return nil
}
