package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

// ReasoningKind discriminates what kind of subject a reasoning ref belongs to.
type ReasoningKind string

const (
	ReasoningTask      ReasoningKind = "task"
	ReasoningPlan      ReasoningKind = "plan"
	ReasoningWorkspace ReasoningKind = "workspace"
)

// ReasoningRef associates a task/plan/workspace with its stable triple
// of reasoning documents.
type ReasoningRef struct {
	ID        string
	Kind      ReasoningKind
	SubjectID string
	Branch    string
	NotesDoc  string
	GraphDoc  string
	TraceDoc  string
}

// ensureReasoningRef auto-provisions a reasoning ref for subjectID the
// first time it is needed (spec.md invariant 11): the triple is derived
// deterministically from subjectID and is stable thereafter.
func ensureReasoningRef(tx *sql.Tx, ws ids.WorkspaceID, kind ReasoningKind, subjectID, branch string, nowMs int64) (ReasoningRef, error) {
	var ref ReasoningRef
	err := tx.QueryRow(`SELECT id, kind, subject_id, branch, notes_doc, graph_doc, trace_doc FROM reasoning_refs WHERE workspace = ? AND subject_id = ?`,
		ws.String(), subjectID).Scan(&ref.ID, &ref.Kind, &ref.SubjectID, &ref.Branch, &ref.NotesDoc, &ref.GraphDoc, &ref.TraceDoc)
	if err == nil {
		return ref, nil
	}
	if err != sql.ErrNoRows {
		return ReasoningRef{}, fmt.Errorf("store: read reasoning ref: %w", err)
	}

	ref = ReasoningRef{
		ID:        "ref-" + subjectID,
		Kind:      kind,
		SubjectID: subjectID,
		Branch:    branch,
		NotesDoc:  subjectID + ".notes",
		GraphDoc:  subjectID + ".graph",
		TraceDoc:  subjectID + ".trace",
	}
	if _, err := tx.Exec(`INSERT INTO reasoning_refs(id, workspace, kind, subject_id, branch, notes_doc, graph_doc, trace_doc, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ref.ID, ws.String(), string(ref.Kind), ref.SubjectID, ref.Branch, ref.NotesDoc, ref.GraphDoc, ref.TraceDoc, nowMs); err != nil {
		return ReasoningRef{}, fmt.Errorf("store: insert reasoning ref: %w", err)
	}
	for _, d := range []struct {
		name string
		kind DocKind
	}{{ref.NotesDoc, DocKindNotes}, {ref.GraphDoc, DocKindGraph}, {ref.TraceDoc, DocKindTrace}} {
		if err := ensureDocument(tx, ws, branch, d.name, d.kind, nowMs); err != nil {
			return ReasoningRef{}, err
		}
	}
	return ref, nil
}

// EnsureReasoningRef provisions (or returns the existing) reasoning ref
// for subjectID, for callers outside the store package — think.card
// needs a ref's (graph_doc, trace_doc) pair before it can commit.
func (s *Store) EnsureReasoningRef(ctx context.Context, ws ids.WorkspaceID, kind ReasoningKind, subjectID, branch string) (ReasoningRef, error) {
	var ref ReasoningRef
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		ref, err = ensureReasoningRef(tx, ws, kind, subjectID, branch, nowMs())
		return err
	})
	return ref, err
}

// GetReasoningRef returns the reasoning ref for a subject id, if provisioned.
func (s *Store) GetReasoningRef(ctx context.Context, ws ids.WorkspaceID, subjectID string) (ReasoningRef, error) {
	var ref ReasoningRef
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		e := tx.QueryRow(`SELECT id, kind, subject_id, branch, notes_doc, graph_doc, trace_doc FROM reasoning_refs WHERE workspace = ? AND subject_id = ?`,
			ws.String(), subjectID).Scan(&ref.ID, &ref.Kind, &ref.SubjectID, &ref.Branch, &ref.NotesDoc, &ref.GraphDoc, &ref.TraceDoc)
		if e == sql.ErrNoRows {
			return &UnknownIDError{ID: subjectID}
		}
		if e != nil {
			return fmt.Errorf("store: get reasoning ref: %w", e)
		}
		return nil
	})
	return ref, err
}

// projectTaskEvent performs steps 6-7 of the mutator recipe for a task-
// scoped mutation: emit the canonical event, ensure the task's reasoning
// ref, and project the event into its trace document.
func projectTaskEvent(tx *sql.Tx, ws ids.WorkspaceID, branch, taskID, path, eventType string, payload any, nowMs int64) (ids.EventID, error) {
	eventID, err := emitEvent(tx, ws, nowMs, taskID, path, eventType, payload)
	if err != nil {
		return "", err
	}
	ref, err := ensureReasoningRef(tx, ws, ReasoningTask, taskID, branch, nowMs)
	if err != nil {
		return "", err
	}
	payloadJSON, err := marshalJSON(payload)
	if err != nil {
		return "", err
	}
	if _, _, err := projectEvent(tx, ws, ref.Branch, ref.TraceDoc, eventID, eventType, taskID, path, payloadJSON, nowMs); err != nil {
		return "", err
	}
	return eventID, nil
}

// mirrorTaskNote mirrors human-authored note content into the task's
// notes document (spec.md §4.4): tasks.note additionally does this
// alongside the trace projection every mutator performs.
func mirrorTaskNote(tx *sql.Tx, ws ids.WorkspaceID, branch, taskID, stepID, path string, eventID ids.EventID, title, content string, nowMs int64) (int64, error) {
	ref, err := ensureReasoningRef(tx, ws, ReasoningTask, taskID, branch, nowMs)
	if err != nil {
		return 0, err
	}
	meta, err := marshalJSON(map[string]any{
		"source":   "tasks.note",
		"task_id":  taskID,
		"step_id":  stepID,
		"path":     path,
		"event_id": eventID.String(),
	})
	if err != nil {
		return 0, err
	}
	return appendNote(tx, ws, ref.Branch, ref.NotesDoc, title, "text", meta, content, nowMs)
}
