// Package store provides the SQLite-backed persistence engine for a
// branchmind workspace: branches, append-only documents, the task/plan
// tree, the job queue with runner leases, the reasoning-ref and
// anchor/knowledge indexes, and session bookkeeping (focus, portal
// cursors, ops history).
//
// Every mutating method runs as one transaction following the recipe in
// spec.md §4.1: stamp one now_ms, ensure the workspace/branch exist,
// validate ids, CAS any revision, insert domain rows, emit one event,
// project it into the task's trace doc, mirror human notes, upsert any
// graph rows, and optionally record an undo snapshot.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/antigravity-dev/branchmind/internal/ids"
	_ "modernc.org/sqlite"
)

const expectedSchemaVersion = 1

// Store is the single-writer SQLite-backed engine for one workspace
// database file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS schema_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS workspaces (
	workspace TEXT PRIMARY KEY,
	created_at_ms INTEGER NOT NULL,
	project_guard TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS branches (
	workspace TEXT NOT NULL,
	name TEXT NOT NULL,
	base_branch TEXT NOT NULL DEFAULT '',
	base_seq INTEGER NOT NULL DEFAULT 0,
	created_at_ms INTEGER NOT NULL,
	PRIMARY KEY (workspace, name)
);

CREATE TABLE IF NOT EXISTS checkouts (
	workspace TEXT PRIMARY KEY,
	branch TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	workspace TEXT NOT NULL,
	branch TEXT NOT NULL,
	doc TEXT NOT NULL,
	kind TEXT NOT NULL,
	created_at_ms INTEGER NOT NULL,
	updated_at_ms INTEGER NOT NULL,
	PRIMARY KEY (workspace, branch, doc)
);

CREATE TABLE IF NOT EXISTS doc_entries (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace TEXT NOT NULL,
	ts_ms INTEGER NOT NULL,
	branch TEXT NOT NULL,
	doc TEXT NOT NULL,
	kind TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	format TEXT NOT NULL DEFAULT '',
	meta_json TEXT NOT NULL DEFAULT '{}',
	content TEXT NOT NULL DEFAULT '',
	source_event_id TEXT NOT NULL DEFAULT '',
	event_type TEXT NOT NULL DEFAULT '',
	task_id TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT '',
	payload_json TEXT NOT NULL DEFAULT '{}'
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_doc_entries_source_event
	ON doc_entries(workspace, branch, doc, source_event_id)
	WHERE source_event_id != '';
CREATE INDEX IF NOT EXISTS idx_doc_entries_branch_doc ON doc_entries(workspace, branch, doc, seq);

CREATE TABLE IF NOT EXISTS plans (
	id TEXT PRIMARY KEY,
	workspace TEXT NOT NULL,
	revision INTEGER NOT NULL DEFAULT 1,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'open',
	priority INTEGER NOT NULL DEFAULT 0,
	created_at_ms INTEGER NOT NULL,
	updated_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plans_workspace ON plans(workspace);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	workspace TEXT NOT NULL,
	parent_plan_id TEXT NOT NULL,
	revision INTEGER NOT NULL DEFAULT 1,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	context TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'open',
	status_manual INTEGER NOT NULL DEFAULT 0,
	priority INTEGER NOT NULL DEFAULT 0,
	reasoning_mode TEXT NOT NULL DEFAULT 'normal',
	require_security INTEGER NOT NULL DEFAULT 0,
	require_perf INTEGER NOT NULL DEFAULT 0,
	created_at_ms INTEGER NOT NULL,
	updated_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_workspace ON tasks(workspace);
CREATE INDEX IF NOT EXISTS idx_tasks_plan ON tasks(parent_plan_id);

CREATE TABLE IF NOT EXISTS steps (
	step_id TEXT PRIMARY KEY,
	workspace TEXT NOT NULL,
	task_id TEXT NOT NULL,
	parent_step_id TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL,
	ordinal INTEGER NOT NULL,
	title TEXT NOT NULL,
	completed INTEGER NOT NULL DEFAULT 0,
	criteria_confirmed INTEGER NOT NULL DEFAULT 0,
	tests_confirmed INTEGER NOT NULL DEFAULT 0,
	security_confirmed INTEGER NOT NULL DEFAULT 0,
	perf_confirmed INTEGER NOT NULL DEFAULT 0,
	docs_confirmed INTEGER NOT NULL DEFAULT 0,
	blocked INTEGER NOT NULL DEFAULT 0,
	block_reason TEXT NOT NULL DEFAULT '',
	created_at_ms INTEGER NOT NULL,
	updated_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_steps_task ON steps(task_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_steps_task_path ON steps(task_id, path);

CREATE TABLE IF NOT EXISTS task_nodes (
	node_id TEXT PRIMARY KEY,
	workspace TEXT NOT NULL,
	task_id TEXT NOT NULL,
	parent_step_id TEXT NOT NULL DEFAULT '',
	ordinal INTEGER NOT NULL,
	title TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'open',
	blockers TEXT NOT NULL DEFAULT '[]',
	dependencies TEXT NOT NULL DEFAULT '[]',
	next_steps TEXT NOT NULL DEFAULT '[]',
	problems TEXT NOT NULL DEFAULT '[]',
	risks TEXT NOT NULL DEFAULT '[]',
	success_criteria TEXT NOT NULL DEFAULT '[]',
	created_at_ms INTEGER NOT NULL,
	updated_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_nodes_task ON task_nodes(task_id);

CREATE TABLE IF NOT EXISTS events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace TEXT NOT NULL,
	ts_ms INTEGER NOT NULL,
	task_id TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT '',
	event_type TEXT NOT NULL,
	payload_json TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_events_workspace ON events(workspace, seq);
CREATE INDEX IF NOT EXISTS idx_events_task ON events(task_id, seq);

CREATE TABLE IF NOT EXISTS reasoning_refs (
	id TEXT PRIMARY KEY,
	workspace TEXT NOT NULL,
	kind TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	branch TEXT NOT NULL,
	notes_doc TEXT NOT NULL,
	graph_doc TEXT NOT NULL,
	trace_doc TEXT NOT NULL,
	created_at_ms INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_reasoning_refs_subject ON reasoning_refs(workspace, subject_id);

CREATE TABLE IF NOT EXISTS graph_node_versions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace TEXT NOT NULL,
	branch TEXT NOT NULL,
	doc TEXT NOT NULL,
	key TEXT NOT NULL,
	node_type TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL DEFAULT '',
	tags_json TEXT NOT NULL DEFAULT '[]',
	status TEXT NOT NULL DEFAULT '',
	meta_json TEXT NOT NULL DEFAULT '{}',
	deleted INTEGER NOT NULL DEFAULT 0,
	source_event_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_graph_node_versions_key ON graph_node_versions(workspace, branch, doc, key, seq);

CREATE TABLE IF NOT EXISTS graph_edge_versions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace TEXT NOT NULL,
	branch TEXT NOT NULL,
	doc TEXT NOT NULL,
	key TEXT NOT NULL,
	from_node TEXT NOT NULL DEFAULT '',
	to_node TEXT NOT NULL DEFAULT '',
	rel TEXT NOT NULL DEFAULT '',
	meta_json TEXT NOT NULL DEFAULT '{}',
	deleted INTEGER NOT NULL DEFAULT 0,
	source_event_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_graph_edge_versions_key ON graph_edge_versions(workspace, branch, doc, key, seq);

CREATE TABLE IF NOT EXISTS graph_conflicts (
	conflict_id TEXT PRIMARY KEY,
	workspace TEXT NOT NULL,
	from_branch TEXT NOT NULL,
	into_branch TEXT NOT NULL,
	doc TEXT NOT NULL,
	kind TEXT NOT NULL,
	key TEXT NOT NULL,
	base_cutoff_seq INTEGER NOT NULL,
	theirs_seq INTEGER NOT NULL,
	ours_seq INTEGER NOT NULL,
	base_json TEXT NOT NULL DEFAULT '{}',
	theirs_json TEXT NOT NULL DEFAULT '{}',
	ours_json TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'open',
	created_at_ms INTEGER NOT NULL,
	resolved_at_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_graph_conflicts_signature
	ON graph_conflicts(workspace, from_branch, into_branch, doc, kind, key, base_cutoff_seq, theirs_seq);

CREATE TABLE IF NOT EXISTS jobs (
	job_id TEXT PRIMARY KEY,
	workspace TEXT NOT NULL,
	revision INTEGER NOT NULL DEFAULT 1,
	status TEXT NOT NULL DEFAULT 'QUEUED',
	title TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 0,
	task_id TEXT NOT NULL DEFAULT '',
	anchor_id TEXT NOT NULL DEFAULT '',
	runner_id TEXT NOT NULL DEFAULT '',
	claim_revision INTEGER NOT NULL DEFAULT 0,
	prompt TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	meta_json TEXT NOT NULL DEFAULT '{}',
	retries INTEGER NOT NULL DEFAULT 0,
	created_at_ms INTEGER NOT NULL,
	updated_at_ms INTEGER NOT NULL,
	completed_at_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_jobs_workspace_status ON jobs(workspace, status);

CREATE TABLE IF NOT EXISTS job_events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace TEXT NOT NULL,
	job_id TEXT NOT NULL,
	ts_ms INTEGER NOT NULL,
	kind TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	percent INTEGER NOT NULL DEFAULT -1,
	refs_json TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_job_events_job ON job_events(job_id, seq);

CREATE TABLE IF NOT EXISTS runner_leases (
	runner_id TEXT PRIMARY KEY,
	workspace TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'idle',
	active_job_id TEXT NOT NULL DEFAULT '',
	lease_expires_at_ms INTEGER NOT NULL DEFAULT 0,
	meta_json TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS focus (
	workspace TEXT PRIMARY KEY,
	focus_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS portal_cursors (
	workspace TEXT NOT NULL,
	tool TEXT NOT NULL,
	target_id TEXT NOT NULL,
	lane TEXT NOT NULL,
	last_seq INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (workspace, tool, target_id, lane)
);

CREATE TABLE IF NOT EXISTS ops_history (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace TEXT NOT NULL,
	task_id TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT '',
	intent TEXT NOT NULL,
	payload_json TEXT NOT NULL DEFAULT '{}',
	before_json TEXT NOT NULL DEFAULT '',
	after_json TEXT NOT NULL DEFAULT '',
	undoable INTEGER NOT NULL DEFAULT 0,
	undone INTEGER NOT NULL DEFAULT 0,
	ts_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ops_history_workspace ON ops_history(workspace, seq);

CREATE TABLE IF NOT EXISTS anchors (
	id TEXT PRIMARY KEY,
	workspace TEXT NOT NULL,
	title TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'open',
	description TEXT NOT NULL DEFAULT '',
	refs_json TEXT NOT NULL DEFAULT '[]',
	aliases_json TEXT NOT NULL DEFAULT '[]',
	parent_id TEXT NOT NULL DEFAULT '',
	depends_on_json TEXT NOT NULL DEFAULT '[]',
	created_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_anchors_workspace ON anchors(workspace);

CREATE TABLE IF NOT EXISTS anchor_links (
	workspace TEXT NOT NULL,
	anchor_id TEXT NOT NULL,
	card_id TEXT NOT NULL,
	PRIMARY KEY (workspace, anchor_id, card_id)
);

CREATE TABLE IF NOT EXISTS knowledge_keys (
	workspace TEXT NOT NULL,
	anchor_id TEXT NOT NULL,
	key TEXT NOT NULL,
	card_id TEXT NOT NULL,
	updated_at_ms INTEGER NOT NULL,
	PRIMARY KEY (workspace, anchor_id, key)
);
`

// Open creates or opens a SQLite database at dbPath and ensures the
// schema exists, applying additive migrations for existing databases.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	if err := checkSchemaVersion(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

func checkSchemaVersion(db *sql.DB) error {
	var value sql.NullString
	err := db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&value)
	switch {
	case err == sql.ErrNoRows || !value.Valid:
		_, err := db.Exec(`INSERT INTO schema_meta(key, value) VALUES ('schema_version', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, fmt.Sprintf("%d", expectedSchemaVersion))
		if err != nil {
			return fmt.Errorf("store: stamp schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("store: read schema version: %w", err)
	}

	var found int
	if _, scanErr := fmt.Sscanf(value.String, "%d", &found); scanErr != nil {
		return fmt.Errorf("store: parse schema version %q: %w", value.String, scanErr)
	}
	if found < expectedSchemaVersion {
		return &ResetRequiredError{Expected: expectedSchemaVersion, Found: found, Reason: "schema version predates this binary"}
	}
	return nil
}

// migrate applies incremental, additive schema migrations for existing
// databases, following the teacher's pragma_table_info probe pattern.
func migrate(db *sql.DB) error {
	return addColumnIfMissing(db, "tasks", "require_security", `ALTER TABLE tasks ADD COLUMN require_security INTEGER NOT NULL DEFAULT 0`)
}

func addColumnIfMissing(db *sql.DB, table, column, ddl string) error {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&count)
	if err != nil {
		return fmt.Errorf("check %s.%s column: %w", table, column, err)
	}
	if count == 0 {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("add %s.%s column: %w", table, column, err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for packages (graph, vcs) that share
// one transaction with the store's mutators.
func (s *Store) DB() *sql.DB { return s.db }

// ListWorkspaces returns every workspace id known to this database,
// used by the lease sweeper to iterate all tenants of a shared store.
func (s *Store) ListWorkspaces(ctx context.Context) ([]ids.WorkspaceID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT workspace FROM workspaces ORDER BY workspace`)
	if err != nil {
		return nil, fmt.Errorf("store: list workspaces: %w", err)
	}
	defer rows.Close()

	var out []ids.WorkspaceID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan workspace: %w", err)
		}
		ws, err := ids.ParseWorkspaceID(raw)
		if err != nil {
			return nil, fmt.Errorf("store: parse stored workspace %q: %w", raw, err)
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}
