// Package nextengine computes the single deterministic "what to do
// next" action list shared by the status tool and tasks.execute.next
// (spec.md §4.2.2): one function, two callers, so the
// status.actions == tasks.execute.next.actions invariant holds by
// construction rather than by convention.
package nextengine

import (
	"context"
	"fmt"

	"github.com/antigravity-dev/branchmind/internal/envelope"
	"github.com/antigravity-dev/branchmind/internal/ids"
	"github.com/antigravity-dev/branchmind/internal/store"
)

// Result is what both status and tasks.execute.next render from.
type Result struct {
	Headline        string             `json:"headline"`
	Focus           string             `json:"focus"`
	Checkout        string             `json:"checkout"`
	StateFingerprint string            `json:"state_fingerprint"`
	Actions         []envelope.Action  `json:"-"`
}

// Engine composes the store reads NextEngine needs.
type Engine struct {
	st *store.Store
}

// New wraps st with the next-action engine.
func New(st *store.Store) *Engine {
	return &Engine{st: st}
}

// Compute builds the next-action list for ws, per spec.md §4.2.2: if a
// focus is set, emit open(focus)/tasks.snapshot/think.knowledge.query;
// otherwise emit tasks.plan.create with a placeholder title.
func (e *Engine) Compute(ctx context.Context, ws ids.WorkspaceID) (Result, error) {
	focus, err := e.st.GetFocus(ctx, ws)
	if err != nil {
		return Result{}, err
	}
	checkout, err := e.st.CurrentCheckout(ctx, ws)
	if err != nil {
		return Result{}, err
	}

	var actions []envelope.Action
	var headline string

	if focus != "" {
		headline = fmt.Sprintf("focused on %s on branch %s", focus, checkout)
		actions = append(actions,
			envelope.Action{
				ActionID: "next:open:" + focus,
				Priority: envelope.PriorityHigh,
				Tool:     "open",
				Args:     map[string]any{"op": "call", "cmd": "open", "args": map[string]any{"id": focus}},
				Why:      "resume the focused item",
				Risk:     "none",
			},
			envelope.Action{
				ActionID: "next:tasks.snapshot",
				Priority: envelope.PriorityMedium,
				Tool:     "tasks",
				Args:     map[string]any{"op": "call", "cmd": "tasks.snapshot", "args": map[string]any{}},
				Why:      "refresh the task snapshot before acting",
				Risk:     "none",
			},
			envelope.Action{
				ActionID: "next:think.knowledge.query",
				Priority: envelope.PriorityLow,
				Tool:     "think",
				Args:     map[string]any{"op": "call", "cmd": "think.knowledge.query", "args": map[string]any{"anchor_id": focus}},
				Why:      "surface any recorded knowledge for the focused item",
				Risk:     "none",
			},
		)
	} else {
		headline = fmt.Sprintf("no focus set on branch %s — start a plan", checkout)
		actions = append(actions, envelope.Action{
			ActionID: "next:tasks.plan.create",
			Priority: envelope.PriorityHigh,
			Tool:     "tasks",
			Args: map[string]any{"op": "call", "cmd": "tasks.plan.create",
				"args": map[string]any{"title": "Untitled plan", "description": ""}},
			Why:  "no focus is set — create a plan to begin work",
			Risk: "none",
		})
	}

	envelope.SortActions(actions)

	return Result{
		Headline:         headline,
		Focus:            focus,
		Checkout:         checkout,
		StateFingerprint: fmt.Sprintf("ws=%s;focus=%s;checkout=%s", ws.String(), focus, checkout),
		Actions:          actions,
	}, nil
}
