package registry

import (
	"context"

	"github.com/antigravity-dev/branchmind/internal/ids"
	"github.com/antigravity-dev/branchmind/internal/store"
)

func systemCmds(reg *Registry, svc Services) []CmdSpec {
	return []CmdSpec{
		{
			Cmd: "system.schema.get", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 2000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"cmd"},
			OpAliases:    []string{"system:schema.get", "schema.get"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				target := argStr(args, "cmd")
				spec, ok := reg.SchemaGet(target)
				if !ok {
					return nil, nil, &store.UnknownIDError{ID: target}
				}
				resp := map[string]any{
					"cmd":           spec.Cmd,
					"tier":          spec.Tier,
					"stability":     spec.Stability,
					"required_args": spec.RequiredArgs,
					"safety": map[string]any{
						"destructive":   spec.Safety.Destructive,
						"confirm_level": spec.Safety.ConfirmLevel,
						"idempotent":    spec.Safety.Idempotent,
					},
					"doc_anchor": spec.DocAnchor,
				}
				if spec.SchemaSource == SchemaCustom {
					resp["json_schema"] = spec.Schema
				}
				return resp, nil, nil
			},
		},
		{
			Cmd: "system.tools.list", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 4000},
			SchemaSource: SchemaHandler,
			OpAliases:    []string{"system:tools.list", "tools/list"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				return map[string]any{"tools": toMapList(reg.Tools)}, nil, nil
			},
		},
		{
			Cmd: "system.undo", Tier: TierAdvanced, Stability: "stable",
			Safety:       Safety{Destructive: true, ConfirmLevel: ConfirmSoft},
			Budget:       BudgetPolicy{MaxChars: 2000},
			SchemaSource: SchemaHandler,
			OpAliases:    []string{"system:undo"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				task, err := svc.Store.UndoLastTaskEdit(ctx, ws)
				if err != nil {
					return nil, nil, err
				}
				return toMap(task), []string{task.ID}, nil
			},
		},
	}
}
