// Package think generalizes the teacher's internal/learner pattern/
// insight mining over dispatch history into two operations: think.card
// (commit a reasoning card atomically into a subject's trace and graph
// documents, keyed by card_id) and think.knowledge.query (resolve an
// anchor/key pair back to the card that set it), per spec.md §4.4.
package think

import (
	"context"
	"fmt"
	"sort"

	"github.com/antigravity-dev/branchmind/internal/graph"
	"github.com/antigravity-dev/branchmind/internal/ids"
	"github.com/antigravity-dev/branchmind/internal/store"
)

// Service composes the store and graph engine for reasoning-card and
// knowledge-lookup operations.
type Service struct {
	st  *store.Store
	eng *graph.Engine
}

// New wraps st/eng with the think service.
func New(st *store.Store, eng *graph.Engine) *Service {
	return &Service{st: st, eng: eng}
}

// Card is the payload shape of a committed reasoning card. Cards of
// type "pattern" reuse the teacher's Pattern{Type,Description,
// Frequency,Severity} shape as Meta.
type Card struct {
	CardID    string
	SubjectID string
	Type      string
	Title     string
	Text      string
	Tags      []string
	Meta      map[string]any
}

// CommitCard commits card into subjectID's (trace_doc, graph_doc) pair,
// auto-provisioning the reasoning ref if needed. Re-committing the same
// card_id with an unchanged payload is a no-op; re-committing with a
// different payload fails with InvalidInputError (spec.md §4.4).
func (svc *Service) CommitCard(ctx context.Context, ws ids.WorkspaceID, subjectKind store.ReasoningKind, card Card) error {
	if card.CardID == "" {
		return &store.InvalidInputError{Msg: "card_id is required"}
	}
	branch, err := svc.st.CurrentCheckout(ctx, ws)
	if err != nil {
		return err
	}
	ref, err := svc.st.EnsureReasoningRef(ctx, ws, subjectKind, card.SubjectID, branch)
	if err != nil {
		return err
	}

	existing, found, err := svc.existingCardNode(ctx, ws, ref.Branch, ref.GraphDoc, card.CardID)
	if err != nil {
		return err
	}
	sourceEventID := "think_card:" + card.CardID
	if found {
		if cardMatchesNode(card, existing) {
			return nil
		}
		return &store.InvalidInputError{Msg: fmt.Sprintf("card %q already committed with a different payload", card.CardID)}
	}

	meta := card.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	if _, err := svc.eng.UpsertNode(ctx, ws, ref.Branch, ref.GraphDoc, card.CardID, card.Type, card.Title, card.Text, card.Tags, "committed", meta, sourceEventID); err != nil {
		return err
	}

	noteMeta := map[string]any{
		"source":  "think.card",
		"card_id": card.CardID,
		"type":    card.Type,
	}
	if _, err := svc.st.AppendCardNote(ctx, ws, ref.NotesDoc, ref.Branch, card.Title, card.Text, noteMeta); err != nil {
		return err
	}
	return nil
}

func (svc *Service) existingCardNode(ctx context.Context, ws ids.WorkspaceID, branch, doc, cardID string) (graph.NodeSnapshot, bool, error) {
	nodes, err := svc.eng.CurrentNodes(ctx, ws, branch, doc)
	if err != nil {
		return graph.NodeSnapshot{}, false, err
	}
	for _, n := range nodes {
		if n.Key == cardID {
			return n, true, nil
		}
	}
	return graph.NodeSnapshot{}, false, nil
}

func cardMatchesNode(card Card, n graph.NodeSnapshot) bool {
	if card.Type != n.Type || card.Title != n.Title || card.Text != n.Text {
		return false
	}
	return tagSetEqual(card.Tags, n.Tags)
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

// QueryKnowledge resolves anchorID (+ optional key) to the card(s) and
// links recorded against it, per spec.md §3.2's anchor_links
// denormalization.
type KnowledgeResult struct {
	Anchor  store.Anchor
	CardID  string // set when key was provided and resolved
	CardIDs []string
}

// QueryKnowledge implements think.knowledge.query: given an anchor id
// and an optional key, return the resolved card (keyed lookup) or every
// card linked to the anchor (unkeyed lookup).
func (svc *Service) QueryKnowledge(ctx context.Context, ws ids.WorkspaceID, anchorID, key string) (KnowledgeResult, error) {
	anchor, err := svc.st.GetAnchor(ctx, ws, anchorID)
	if err != nil {
		return KnowledgeResult{}, err
	}
	if key != "" {
		cardID, err := svc.st.QueryKnowledgeKey(ctx, ws, anchorID, key)
		if err != nil {
			return KnowledgeResult{}, err
		}
		return KnowledgeResult{Anchor: anchor, CardID: cardID}, nil
	}
	cardIDs, err := svc.st.ListAnchorCards(ctx, ws, anchorID)
	if err != nil {
		return KnowledgeResult{}, err
	}
	return KnowledgeResult{Anchor: anchor, CardIDs: cardIDs}, nil
}
