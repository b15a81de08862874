package registry

import (
	"context"

	"github.com/antigravity-dev/branchmind/internal/ids"
	"github.com/antigravity-dev/branchmind/internal/store"
	"github.com/antigravity-dev/branchmind/internal/think"
)

func thinkCmds(svc Services) []CmdSpec {
	return []CmdSpec{
		{
			Cmd: "think.card", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 2000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"subject_id", "card_id", "title"},
			OpAliases:    []string{"think:card"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				kind := store.ReasoningKind(argStr(args, "subject_kind"))
				if kind == "" {
					kind = store.ReasoningTask
				}
				card := think.Card{
					CardID:    argStr(args, "card_id"),
					SubjectID: argStr(args, "subject_id"),
					Type:      argStr(args, "type"),
					Title:     argStr(args, "title"),
					Text:      argStr(args, "text"),
					Tags:      argStrList(args, "tags"),
					Meta:      argMap(args, "meta"),
				}
				if err := svc.Think.CommitCard(ctx, ws, kind, card); err != nil {
					return nil, nil, err
				}
				return map[string]any{"card_id": card.CardID, "committed": true}, []string{card.CardID}, nil
			},
		},
		{
			Cmd: "think.knowledge.query", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 2000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"anchor_id"},
			OpAliases:    []string{"think:knowledge.query"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				res, err := svc.Think.QueryKnowledge(ctx, ws, argStr(args, "anchor_id"), argStr(args, "key"))
				if err != nil {
					return nil, nil, err
				}
				m := toMap(res.Anchor)
				if res.CardID != "" {
					m["card_id"] = res.CardID
				}
				if len(res.CardIDs) > 0 {
					m["card_ids"] = res.CardIDs
				}
				return m, []string{res.Anchor.ID}, nil
			},
		},
	}
}
