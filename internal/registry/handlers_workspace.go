package registry

import (
	"context"
	"fmt"

	"github.com/antigravity-dev/branchmind/internal/ids"
	"github.com/antigravity-dev/branchmind/internal/store"
)

func invalidFocusID(id string) error {
	return &store.InvalidInputError{Msg: fmt.Sprintf("focus id %q must start with PLAN- or TASK-", id)}
}

func workspaceCmds(svc Services) []CmdSpec {
	return []CmdSpec{
		{
			Cmd: "workspace.branch.create", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Destructive: false, ConfirmLevel: ConfirmNone},
			Budget:       BudgetPolicy{MaxChars: 2000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"name"},
			DocAnchor:    "spec.md#4.1.1",
			OpAliases:    []string{"workspace:branch.create"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				branch, err := svc.Store.CreateBranch(ctx, ws, argStr(args, "name"), argStr(args, "base_branch"))
				if err != nil {
					return nil, nil, err
				}
				return toMap(branch), []string{branch.Name}, nil
			},
		},
		{
			Cmd: "workspace.branch.delete", Tier: TierAdvanced, Stability: "stable",
			Safety:       Safety{Destructive: true, ConfirmLevel: ConfirmHard},
			Budget:       BudgetPolicy{MaxChars: 1000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"name"},
			OpAliases:    []string{"workspace:branch.delete"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				name := argStr(args, "name")
				if err := svc.Store.DeleteBranch(ctx, ws, name); err != nil {
					return nil, nil, err
				}
				return map[string]any{"deleted": name}, nil, nil
			},
		},
		{
			Cmd: "workspace.branch.list", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 4000},
			SchemaSource: SchemaHandler,
			OpAliases:    []string{"workspace:branch.list"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				branches, err := svc.Store.ListBranches(ctx, ws)
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"branches": toMapList(branches)}, nil, nil
			},
		},
		{
			Cmd: "workspace.checkout", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 1000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"branch"},
			OpAliases:    []string{"workspace:checkout", "workspace.switch"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				branch := argStr(args, "branch")
				if err := svc.Store.Checkout(ctx, ws, branch); err != nil {
					return nil, nil, err
				}
				return map[string]any{"checkout": branch}, []string{branch}, nil
			},
		},
		{
			Cmd: "workspace.current", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 500},
			SchemaSource: SchemaHandler,
			OpAliases:    []string{"workspace:current"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				checkout, err := svc.Store.CurrentCheckout(ctx, ws)
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"checkout": checkout}, []string{checkout}, nil
			},
		},
		{
			Cmd: "workspace.focus.set", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 500},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"id"},
			OpAliases:    []string{"workspace:focus.set", "focus.set"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				id := argStr(args, "id")
				if !hasFocusPrefix(id) {
					return nil, nil, invalidFocusID(id)
				}
				if err := svc.Store.SetFocus(ctx, ws, id); err != nil {
					return nil, nil, err
				}
				return map[string]any{"focus": id}, []string{id}, nil
			},
		},
		{
			Cmd: "workspace.focus.get", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 500},
			SchemaSource: SchemaHandler,
			OpAliases:    []string{"workspace:focus.get", "focus.get"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				focus, err := svc.Store.GetFocus(ctx, ws)
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"focus": focus}, nil, nil
			},
		},
	}
}

func hasFocusPrefix(id string) bool {
	return len(id) > 5 && (id[:5] == "PLAN-" || id[:5] == "TASK-")
}
