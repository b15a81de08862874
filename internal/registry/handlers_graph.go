package registry

import (
	"context"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

func currentBranchOrArg(ctx context.Context, svc Services, ws ids.WorkspaceID, args map[string]any) (string, error) {
	if b := argStr(args, "branch"); b != "" {
		return b, nil
	}
	return svc.Store.CurrentCheckout(ctx, ws)
}

// nodeUpsertSchema and edgeUpsertSchema constrain the shape of the two
// graph mutators richer than required-field presence: tags must be an
// array of strings, meta must be a plain object, and key/doc/type/rel
// strings carry sane upper bounds matching internal/ids's limits
// without duplicating its free-form validation.
const nodeUpsertSchema = `{
	"type": "object",
	"properties": {
		"doc":    {"type": "string", "minLength": 1, "maxLength": 128},
		"key":    {"type": "string", "minLength": 1, "maxLength": 256},
		"title":  {"type": "string", "minLength": 1},
		"type":   {"type": "string", "maxLength": 128},
		"status": {"type": "string", "maxLength": 64},
		"tags":   {"type": "array", "items": {"type": "string"}},
		"meta":   {"type": "object"}
	}
}`

const edgeUpsertSchema = `{
	"type": "object",
	"properties": {
		"doc":  {"type": "string", "minLength": 1, "maxLength": 128},
		"key":  {"type": "string", "minLength": 1, "maxLength": 256},
		"from": {"type": "string", "minLength": 1, "maxLength": 256},
		"to":   {"type": "string", "minLength": 1, "maxLength": 256},
		"rel":  {"type": "string", "minLength": 1, "maxLength": 128},
		"meta": {"type": "object"}
	}
}`

func graphCmds(svc Services) []CmdSpec {
	return []CmdSpec{
		{
			Cmd: "graph.node.upsert", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: false},
			Budget:       BudgetPolicy{MaxChars: 1500},
			SchemaSource: SchemaCustom,
			Schema:       nodeUpsertSchema,
			RequiredArgs: []string{"doc", "key", "title"},
			OpAliases:    []string{"graph:node.upsert"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				branch, err := currentBranchOrArg(ctx, svc, ws, args)
				if err != nil {
					return nil, nil, err
				}
				seq, err := svc.Graph.UpsertNode(ctx, ws, branch, argStr(args, "doc"), argStr(args, "key"), argStr(args, "type"),
					argStr(args, "title"), argStr(args, "text"), argStrList(args, "tags"), argStr(args, "status"), argMap(args, "meta"), argStr(args, "source_event_id"))
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"seq": seq, "key": argStr(args, "key")}, []string{argStr(args, "key")}, nil
			},
		},
		{
			Cmd: "graph.node.delete", Tier: TierAdvanced, Stability: "stable",
			Safety:       Safety{Destructive: true, ConfirmLevel: ConfirmSoft},
			Budget:       BudgetPolicy{MaxChars: 500},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"doc", "key"},
			OpAliases:    []string{"graph:node.delete"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				branch, err := currentBranchOrArg(ctx, svc, ws, args)
				if err != nil {
					return nil, nil, err
				}
				seq, err := svc.Graph.DeleteNode(ctx, ws, branch, argStr(args, "doc"), argStr(args, "key"), argStr(args, "source_event_id"))
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"seq": seq, "deleted": argStr(args, "key")}, nil, nil
			},
		},
		{
			Cmd: "graph.edge.upsert", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: false},
			Budget:       BudgetPolicy{MaxChars: 1000},
			SchemaSource: SchemaCustom,
			Schema:       edgeUpsertSchema,
			RequiredArgs: []string{"doc", "key", "from", "to", "rel"},
			OpAliases:    []string{"graph:edge.upsert"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				branch, err := currentBranchOrArg(ctx, svc, ws, args)
				if err != nil {
					return nil, nil, err
				}
				seq, err := svc.Graph.UpsertEdge(ctx, ws, branch, argStr(args, "doc"), argStr(args, "key"), argStr(args, "from"),
					argStr(args, "to"), argStr(args, "rel"), argMap(args, "meta"), argStr(args, "source_event_id"))
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"seq": seq, "key": argStr(args, "key")}, nil, nil
			},
		},
		{
			Cmd: "graph.edge.delete", Tier: TierAdvanced, Stability: "stable",
			Safety:       Safety{Destructive: true, ConfirmLevel: ConfirmSoft},
			Budget:       BudgetPolicy{MaxChars: 500},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"doc", "key"},
			OpAliases:    []string{"graph:edge.delete"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				branch, err := currentBranchOrArg(ctx, svc, ws, args)
				if err != nil {
					return nil, nil, err
				}
				seq, err := svc.Graph.DeleteEdge(ctx, ws, branch, argStr(args, "doc"), argStr(args, "key"), argStr(args, "source_event_id"))
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"seq": seq, "deleted": argStr(args, "key")}, nil, nil
			},
		},
		{
			Cmd: "graph.query", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 6000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"doc"},
			OpAliases:    []string{"graph:query"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				branch, err := currentBranchOrArg(ctx, svc, ws, args)
				if err != nil {
					return nil, nil, err
				}
				doc := argStr(args, "doc")
				nodes, err := svc.Graph.CurrentNodes(ctx, ws, branch, doc)
				if err != nil {
					return nil, nil, err
				}
				edges, err := svc.Graph.CurrentEdges(ctx, ws, branch, doc)
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"nodes": toMapList(nodes), "edges": toMapList(edges)}, nil, nil
			},
		},
		{
			Cmd: "graph.diff", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 4000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"from", "to", "doc"},
			OpAliases:    []string{"graph:diff"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				entries, err := svc.Graph.Diff(ctx, ws, argStr(args, "from"), argStr(args, "to"), argStr(args, "doc"))
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"entries": toMapList(entries)}, nil, nil
			},
		},
		{
			Cmd: "graph.merge", Tier: TierGold, Stability: "stable",
			Safety:       Safety{ConfirmLevel: ConfirmSoft},
			Budget:       BudgetPolicy{MaxChars: 4000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"from", "into", "doc"},
			OpAliases:    []string{"graph:merge"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				result, err := svc.Graph.Merge(ctx, ws, argStr(args, "from"), argStr(args, "into"), argStr(args, "doc"))
				if err != nil {
					return nil, nil, err
				}
				m := toMap(result)
				refs := []string{}
				for _, c := range result.Conflicts {
					refs = append(refs, c.ConflictID)
				}
				return m, refs, nil
			},
		},
		{
			Cmd: "graph.conflict.list", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 4000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"from", "into", "doc"},
			OpAliases:    []string{"graph:conflict.list"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				conflicts, err := svc.Graph.ListConflicts(ctx, ws, argStr(args, "from"), argStr(args, "into"), argStr(args, "doc"))
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"conflicts": toMapList(conflicts)}, nil, nil
			},
		},
		{
			Cmd: "graph.conflict.resolve", Tier: TierGold, Stability: "stable",
			Safety:       Safety{ConfirmLevel: ConfirmSoft},
			Budget:       BudgetPolicy{MaxChars: 1000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"conflict_id", "resolution"},
			OpAliases:    []string{"graph:conflict.resolve"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				conflictID := argStr(args, "conflict_id")
				if err := svc.Graph.ResolveConflict(ctx, ws, conflictID, argStr(args, "resolution")); err != nil {
					return nil, nil, err
				}
				return map[string]any{"resolved": conflictID}, []string{conflictID}, nil
			},
		},
	}
}
