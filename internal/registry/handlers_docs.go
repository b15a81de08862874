package registry

import (
	"context"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

func docsCmds(svc Services) []CmdSpec {
	return []CmdSpec{
		{
			Cmd: "docs.list", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 6000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"branch", "doc"},
			OpAliases:    []string{"docs:list"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				entries, err := svc.Store.ListDocEntries(ctx, ws, argStr(args, "branch"), argStr(args, "doc"), argInt(args, "limit", 0))
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"entries": toMapList(entries)}, nil, nil
			},
		},
		{
			Cmd: "docs.diff", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 6000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"from", "to", "doc"},
			OpAliases:    []string{"docs:diff"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				entries, err := svc.Store.DocDiffTail(ctx, ws, argStr(args, "from"), argStr(args, "to"), argStr(args, "doc"))
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"entries": toMapList(entries)}, nil, nil
			},
		},
		{
			Cmd: "docs.merge", Tier: TierGold, Stability: "stable",
			Safety:       Safety{ConfirmLevel: ConfirmSoft, Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 1000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"from", "into", "doc"},
			OpAliases:    []string{"docs:merge"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				merged, err := svc.Store.MergeDoc(ctx, ws, argStr(args, "from"), argStr(args, "into"), argStr(args, "doc"))
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"merged": merged}, nil, nil
			},
		},
	}
}
