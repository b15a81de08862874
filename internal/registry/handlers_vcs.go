package registry

import (
	"context"

	"github.com/antigravity-dev/branchmind/internal/ids"
	"github.com/antigravity-dev/branchmind/internal/vcs"
)

func vcsCmds(svc Services) []CmdSpec {
	return []CmdSpec{
		{
			Cmd: "vcs.status", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 3000},
			SchemaSource: SchemaHandler,
			OpAliases:    []string{"vcs:status"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				status, err := vcs.GetStatus(svc.Workspace)
				if err != nil {
					return nil, nil, err
				}
				return toMap(status), nil, nil
			},
		},
		{
			Cmd: "vcs.diff", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 8000},
			SchemaSource: SchemaHandler,
			OpAliases:    []string{"vcs:diff"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				diff, err := vcs.Diff(svc.Workspace, argStr(args, "range"))
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"diff": diff}, nil, nil
			},
		},
		{
			Cmd: "vcs.branch.create", Tier: TierGold, Stability: "stable",
			Safety:       Safety{ConfirmLevel: ConfirmNone},
			Budget:       BudgetPolicy{MaxChars: 500},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"branch"},
			OpAliases:    []string{"vcs:branch.create"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				branch := argStr(args, "branch")
				if err := vcs.CreateBranch(svc.Workspace, branch, argStr(args, "base_branch")); err != nil {
					return nil, nil, err
				}
				return map[string]any{"branch": branch}, []string{branch}, nil
			},
		},
		{
			Cmd: "vcs.merge", Tier: TierAdvanced, Stability: "stable",
			Safety:       Safety{Destructive: true, ConfirmLevel: ConfirmHard},
			Budget:       BudgetPolicy{MaxChars: 3000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"from"},
			OpAliases:    []string{"vcs:merge"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				result, err := vcs.Merge(svc.Workspace, argStr(args, "from"))
				if err != nil {
					return nil, nil, err
				}
				return toMap(result), nil, nil
			},
		},
	}
}
