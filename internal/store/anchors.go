package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

// Anchor is a stable, slug-addressed pin that reasoning cards and
// knowledge keys attach to — the "a:<slug>" wire id kind.
type Anchor struct {
	ID          string
	Title       string
	Kind        string
	Status      string
	Description string
	Refs        []string
	Aliases     []string
	ParentID    string
	DependsOn   []string
	CreatedAtMs int64
}

// CreateAnchor provisions a new anchor at a:<slug>, deriving the slug
// from title when slug is empty.
func (s *Store) CreateAnchor(ctx context.Context, ws ids.WorkspaceID, slug, title, kind, description, parentID string) (Anchor, error) {
	var anchor Anchor
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if strings.TrimSpace(title) == "" {
			return &InvalidInputError{Msg: "anchor title is required"}
		}
		now := nowMs()
		if err := ensureWorkspace(tx, ws, now); err != nil {
			return err
		}
		if slug == "" {
			slug = sanitizeSlug(title)
		}
		id := "a:" + slug

		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM anchors WHERE workspace = ? AND id = ?`, ws.String(), id).Scan(&exists); err != nil {
			return fmt.Errorf("store: check anchor exists: %w", err)
		}
		if exists > 0 {
			return &InvalidInputError{Msg: fmt.Sprintf("anchor %q already exists", id)}
		}
		if parentID != "" {
			if _, err := getAnchorTx(tx, parentID); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(`INSERT INTO anchors(id, workspace, title, kind, status, description, parent_id, created_at_ms)
			VALUES (?, ?, ?, ?, 'open', ?, ?, ?)`, id, ws.String(), title, kind, description, parentID, now); err != nil {
			return fmt.Errorf("store: insert anchor: %w", err)
		}

		var err error
		anchor, err = getAnchorTx(tx, id)
		return err
	})
	return anchor, err
}

func getAnchorTx(tx *sql.Tx, id string) (Anchor, error) {
	var a Anchor
	var refs, aliases, depends string
	err := tx.QueryRow(`SELECT id, title, kind, status, description, refs_json, aliases_json, parent_id, depends_on_json, created_at_ms
		FROM anchors WHERE id = ?`, id).
		Scan(&a.ID, &a.Title, &a.Kind, &a.Status, &a.Description, &refs, &aliases, &a.ParentID, &depends, &a.CreatedAtMs)
	if err == sql.ErrNoRows {
		return Anchor{}, &UnknownIDError{ID: id}
	}
	if err != nil {
		return Anchor{}, fmt.Errorf("store: get anchor: %w", err)
	}
	a.Refs = unmarshalStrList(refs)
	a.Aliases = unmarshalStrList(aliases)
	a.DependsOn = unmarshalStrList(depends)
	return a, nil
}

// GetAnchor returns one anchor by its a:<slug> id.
func (s *Store) GetAnchor(ctx context.Context, ws ids.WorkspaceID, id string) (Anchor, error) {
	var a Anchor
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		a, err = getAnchorTx(tx, id)
		return err
	})
	return a, err
}

// ListAnchors returns every anchor in the workspace.
func (s *Store) ListAnchors(ctx context.Context, ws ids.WorkspaceID) ([]Anchor, error) {
	var out []Anchor
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT id FROM anchors WHERE workspace = ? ORDER BY created_at_ms ASC`, ws.String())
		if err != nil {
			return fmt.Errorf("store: list anchors: %w", err)
		}
		var anchorIDs []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("store: scan anchor id: %w", err)
			}
			anchorIDs = append(anchorIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range anchorIDs {
			a, err := getAnchorTx(tx, id)
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	return out, err
}

// LinkAnchorCard associates a reasoning card with an anchor.
func (s *Store) LinkAnchorCard(ctx context.Context, ws ids.WorkspaceID, anchorID, cardID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getAnchorTx(tx, anchorID); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT INTO anchor_links(workspace, anchor_id, card_id) VALUES (?, ?, ?)
			ON CONFLICT(workspace, anchor_id, card_id) DO NOTHING`, ws.String(), anchorID, cardID)
		if err != nil {
			return fmt.Errorf("store: link anchor card: %w", err)
		}
		return nil
	})
}

// ListAnchorCards returns every card id linked to an anchor.
func (s *Store) ListAnchorCards(ctx context.Context, ws ids.WorkspaceID, anchorID string) ([]string, error) {
	var out []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT card_id FROM anchor_links WHERE workspace = ? AND anchor_id = ?`, ws.String(), anchorID)
		if err != nil {
			return fmt.Errorf("store: list anchor cards: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("store: scan anchor card: %w", err)
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	return out, err
}

// SetKnowledgeKey upserts a (anchor, key) -> card_id index entry, used
// by think.knowledge.query to resolve named facts back to their
// originating reasoning card.
func (s *Store) SetKnowledgeKey(ctx context.Context, ws ids.WorkspaceID, anchorID, key, cardID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getAnchorTx(tx, anchorID); err != nil {
			return err
		}
		now := nowMs()
		_, err := tx.Exec(`INSERT INTO knowledge_keys(workspace, anchor_id, key, card_id, updated_at_ms) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(workspace, anchor_id, key) DO UPDATE SET card_id = excluded.card_id, updated_at_ms = excluded.updated_at_ms`,
			ws.String(), anchorID, key, cardID, now)
		if err != nil {
			return fmt.Errorf("store: set knowledge key: %w", err)
		}
		return nil
	})
}

// QueryKnowledgeKey resolves an (anchor, key) pair to its card id, if set.
func (s *Store) QueryKnowledgeKey(ctx context.Context, ws ids.WorkspaceID, anchorID, key string) (string, error) {
	var out string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		e := tx.QueryRow(`SELECT card_id FROM knowledge_keys WHERE workspace = ? AND anchor_id = ? AND key = ?`,
			ws.String(), anchorID, key).Scan(&out)
		if e == sql.ErrNoRows {
			return &UnknownIDError{ID: anchorID + "#" + key}
		}
		if e != nil {
			return fmt.Errorf("store: query knowledge key: %w", e)
		}
		return nil
	})
	return out, err
}
