package registry

import (
	"context"
	"strings"

	"github.com/antigravity-dev/branchmind/internal/ids"
	"github.com/antigravity-dev/branchmind/internal/store"
)

// classifyRef dispatches a wire id onto the storage read that resolves
// it, per spec.md §8.2 S7 ("open must not mutate"). Only the PLAN-,
// TASK-, JOB- and a: prefixes are resolved; every other id shape
// (CARD-*, <doc>@<seq>, runner:<id>, ...) returns UnknownIDError.
func classifyRef(ctx context.Context, svc Services, ws ids.WorkspaceID, id string) (any, []string, error) {
	switch {
	case strings.HasPrefix(id, "PLAN-"):
		plan, err := svc.Store.GetPlan(ctx, ws, id)
		if err != nil {
			return nil, nil, err
		}
		tasks, err := svc.Store.ListTasks(ctx, ws, id)
		if err != nil {
			return nil, nil, err
		}
		m := toMap(plan)
		m["tasks"] = toMapList(tasks)
		return m, []string{id}, nil
	case strings.HasPrefix(id, "TASK-"):
		task, err := svc.Store.GetTask(ctx, ws, id)
		if err != nil {
			return nil, nil, err
		}
		steps, err := svc.Store.ListSteps(ctx, ws, id)
		if err != nil {
			return nil, nil, err
		}
		m := toMap(task)
		m["steps"] = toMapList(steps)
		return m, []string{id}, nil
	case strings.HasPrefix(id, "JOB-"):
		job, err := svc.Store.GetJob(ctx, ws, id)
		if err != nil {
			return nil, nil, err
		}
		events, err := svc.Store.ListJobEvents(ctx, ws, id)
		if err != nil {
			return nil, nil, err
		}
		m := toMap(job)
		m["events"] = toMapList(events)
		return m, []string{id}, nil
	case strings.HasPrefix(id, "a:"):
		anchor, err := svc.Store.GetAnchor(ctx, ws, id)
		if err != nil {
			return nil, nil, err
		}
		cards, err := svc.Store.ListAnchorCards(ctx, ws, id)
		if err != nil {
			return nil, nil, err
		}
		m := toMap(anchor)
		m["cards"] = cards
		return m, []string{id}, nil
	default:
		return nil, nil, &store.UnknownIDError{ID: id}
	}
}

func openCmds(svc Services) []CmdSpec {
	return []CmdSpec{
		{
			Cmd: "open", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 6000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"id"},
			DocAnchor:    "spec.md#8.2 S7",
			OpAliases:    []string{"open"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				id := argStr(args, "id")
				return classifyRef(ctx, svc, ws, id)
			},
		},
	}
}
