package registry

import (
	"context"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

func statusCmds(svc Services) []CmdSpec {
	return []CmdSpec{
		{
			Cmd: "status", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 4000},
			SchemaSource: SchemaHandler,
			DocAnchor:    "spec.md#4.2.2",
			OpAliases:    []string{"status"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				next, err := svc.Next.Compute(ctx, ws)
				if err != nil {
					return nil, nil, err
				}
				m := toMap(next)
				m["actions"] = toMapList(next.Actions)
				refs := []string{}
				if next.Focus != "" {
					refs = append(refs, next.Focus)
				}
				return m, refs, nil
			},
		},
	}
}
