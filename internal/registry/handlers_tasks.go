package registry

import (
	"context"

	"github.com/antigravity-dev/branchmind/internal/ids"
	"github.com/antigravity-dev/branchmind/internal/store"
)

func tasksCmds(svc Services) []CmdSpec {
	return []CmdSpec{
		{
			Cmd: "tasks.plan.create", Tier: TierGold, Stability: "stable",
			Safety:       Safety{},
			Budget:       BudgetPolicy{MaxChars: 2000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"title"},
			OpAliases:    []string{"tasks:plan.create"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				plan, _, err := svc.Store.CreatePlan(ctx, ws, argStr(args, "title"), argStr(args, "description"))
				if err != nil {
					return nil, nil, err
				}
				return toMap(plan), []string{plan.ID}, nil
			},
		},
		{
			Cmd: "tasks.plan.edit", Tier: TierGold, Stability: "stable",
			Safety:       Safety{},
			Budget:       BudgetPolicy{MaxChars: 2000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"plan_id"},
			OpAliases:    []string{"tasks:plan.edit"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				plan, err := svc.Store.EditPlan(ctx, ws, argStr(args, "plan_id"), argInt64Ptr(args, "expected_revision"),
					argStrPtr(args, "title"), argStrPtr(args, "description"), argStrPtr(args, "status"), intPtr(argInt64Ptr(args, "priority")))
				if err != nil {
					return nil, nil, err
				}
				return toMap(plan), []string{plan.ID}, nil
			},
		},
		{
			Cmd: "tasks.macro.start", Tier: TierGold, Stability: "stable",
			Safety:       Safety{},
			Budget:       BudgetPolicy{MaxChars: 3000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"task_title"},
			OpAliases:    []string{"tasks:macro.start"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				title := argStr(args, "task_title")
				plan, _, err := svc.Store.CreatePlan(ctx, ws, title, argStr(args, "description"))
				if err != nil {
					return nil, nil, err
				}
				task, err := svc.Store.CreateTask(ctx, ws, plan.ID, title, argStr(args, "description"), argStr(args, "context"), store.ReasoningNormal)
				if err != nil {
					return nil, nil, err
				}
				if err := svc.Store.SetFocus(ctx, ws, task.ID); err != nil {
					return nil, nil, err
				}
				m := toMap(task)
				m["plan"] = toMap(plan)
				return m, []string{plan.ID, task.ID}, nil
			},
		},
		{
			Cmd: "tasks.create", Tier: TierGold, Stability: "stable",
			Safety:       Safety{},
			Budget:       BudgetPolicy{MaxChars: 2000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"parent_plan_id", "title"},
			OpAliases:    []string{"tasks:create"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				mode := store.ReasoningMode(argStr(args, "reasoning_mode"))
				task, err := svc.Store.CreateTask(ctx, ws, argStr(args, "parent_plan_id"), argStr(args, "title"),
					argStr(args, "description"), argStr(args, "context"), mode)
				if err != nil {
					return nil, nil, err
				}
				return toMap(task), []string{task.ID}, nil
			},
		},
		{
			Cmd: "tasks.edit", Tier: TierGold, Stability: "stable",
			Safety:       Safety{},
			Budget:       BudgetPolicy{MaxChars: 2000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"task"},
			OpAliases:    []string{"tasks:edit"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				fields := store.TaskEditFields{
					Title:       argStrPtr(args, "title"),
					Description: argStrPtr(args, "description"),
					Context:     argStrPtr(args, "context"),
					Status:      argStrPtr(args, "status"),
					Priority:    intPtr(argInt64Ptr(args, "priority")),
				}
				if m := argStr(args, "reasoning_mode"); m != "" {
					mode := store.ReasoningMode(m)
					fields.Mode = &mode
				}
				task, err := svc.Store.EditTask(ctx, ws, argStr(args, "task"), argInt64Ptr(args, "expected_revision"), fields, argBool(args, "record_undo", true))
				if err != nil {
					return nil, nil, err
				}
				return toMap(task), []string{task.ID}, nil
			},
		},
		{
			Cmd: "tasks.context", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 6000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"task"},
			OpAliases:    []string{"tasks:context"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				taskID := argStr(args, "task")
				task, err := svc.Store.GetTask(ctx, ws, taskID)
				if err != nil {
					return nil, nil, err
				}
				steps, err := svc.Store.ListSteps(ctx, ws, taskID)
				if err != nil {
					return nil, nil, err
				}
				nodes, err := svc.Store.ListTaskNodes(ctx, ws, taskID)
				if err != nil {
					return nil, nil, err
				}
				m := toMap(task)
				m["steps"] = toMapList(steps)
				m["nodes"] = toMapList(nodes)
				return m, []string{taskID}, nil
			},
		},
		{
			Cmd: "tasks.snapshot", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 6000},
			SchemaSource: SchemaHandler,
			OpAliases:    []string{"tasks:snapshot"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				plans, err := svc.Store.ListPlans(ctx, ws)
				if err != nil {
					return nil, nil, err
				}
				tasks, err := svc.Store.ListTasks(ctx, ws, "")
				if err != nil {
					return nil, nil, err
				}
				focus, err := svc.Store.GetFocus(ctx, ws)
				if err != nil {
					return nil, nil, err
				}
				refs := []string{}
				if focus != "" {
					refs = append(refs, focus)
				}
				return map[string]any{"plans": toMapList(plans), "tasks": toMapList(tasks), "focus": focus}, refs, nil
			},
		},
		{
			Cmd: "tasks.execute.next", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 4000},
			SchemaSource: SchemaHandler,
			OpAliases:    []string{"tasks:execute.next"},
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
		{
			Cmd: "tasks.note", Tier: TierGold, Stability: "stable",
			Safety:       Safety{},
			Budget:       BudgetPolicy{MaxChars: 2000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"task", "content"},
			OpAliases:    []string{"tasks:note"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				eventID, err := svc.Store.Note(ctx, ws, argStr(args, "task"), argStr(args, "step"), argStr(args, "title"), argStr(args, "content"))
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"event_id": eventID.String()}, nil, nil
			},
		},
		{
			Cmd: "tasks.step.add", Tier: TierGold, Stability: "stable",
			Safety:       Safety{},
			Budget:       BudgetPolicy{MaxChars: 1500},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"task", "title"},
			OpAliases:    []string{"tasks:step.add"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				step, err := svc.Store.AddStep(ctx, ws, argStr(args, "task"), argStr(args, "parent_path"), argStr(args, "title"))
				if err != nil {
					return nil, nil, err
				}
				return toMap(step), []string{step.StepID}, nil
			},
		},
		{
			Cmd: "tasks.step.edit", Tier: TierGold, Stability: "stable",
			Safety:       Safety{},
			Budget:       BudgetPolicy{MaxChars: 1500},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"task", "path"},
			OpAliases:    []string{"tasks:step.edit"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				fields := store.StepConfirmFields{
					Criteria:    argBoolPtr(args, "criteria_confirmed"),
					Tests:       argBoolPtr(args, "tests_confirmed"),
					Security:    argBoolPtr(args, "security_confirmed"),
					Perf:        argBoolPtr(args, "perf_confirmed"),
					Docs:        argBoolPtr(args, "docs_confirmed"),
					Blocked:     argBoolPtr(args, "blocked"),
					BlockReason: argStrPtr(args, "block_reason"),
					Title:       argStrPtr(args, "title"),
				}
				step, err := svc.Store.EditStep(ctx, ws, argStr(args, "task"), argStr(args, "path"), fields)
				if err != nil {
					return nil, nil, err
				}
				return toMap(step), []string{step.StepID}, nil
			},
		},
		{
			Cmd: "tasks.step.close", Tier: TierGold, Stability: "stable",
			Safety:       Safety{},
			Budget:       BudgetPolicy{MaxChars: 1500},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"task", "path"},
			OpAliases:    []string{"tasks:step.close"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				step, err := svc.Store.CloseStep(ctx, ws, argStr(args, "task"), argStr(args, "path"))
				if err != nil {
					return nil, nil, err
				}
				return toMap(step), []string{step.StepID}, nil
			},
		},
		{
			Cmd: "tasks.step.delete", Tier: TierAdvanced, Stability: "stable",
			Safety:       Safety{Destructive: true, ConfirmLevel: ConfirmSoft},
			Budget:       BudgetPolicy{MaxChars: 500},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"task", "path"},
			OpAliases:    []string{"tasks:step.delete"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				task, path := argStr(args, "task"), argStr(args, "path")
				if err := svc.Store.DeleteStep(ctx, ws, task, path); err != nil {
					return nil, nil, err
				}
				return map[string]any{"deleted": path}, []string{task}, nil
			},
		},
		{
			Cmd: "tasks.node.add", Tier: TierGold, Stability: "stable",
			Safety:       Safety{},
			Budget:       BudgetPolicy{MaxChars: 1500},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"task", "title"},
			OpAliases:    []string{"tasks:node.add"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				node, err := svc.Store.AddTaskNode(ctx, ws, argStr(args, "task"), argStr(args, "parent_step_path"), argStr(args, "title"), argStrList(args, "success_criteria"))
				if err != nil {
					return nil, nil, err
				}
				return toMap(node), []string{node.NodeID}, nil
			},
		},
		{
			Cmd: "tasks.undo", Tier: TierAdvanced, Stability: "stable",
			Safety:       Safety{Destructive: true, ConfirmLevel: ConfirmSoft},
			Budget:       BudgetPolicy{MaxChars: 2000},
			SchemaSource: SchemaHandler,
			OpAliases:    []string{"tasks:undo"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				task, err := svc.Store.UndoLastTaskEdit(ctx, ws)
				if err != nil {
					return nil, nil, err
				}
				return toMap(task), []string{task.ID}, nil
			},
		},
		{
			Cmd: "tasks.delta", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 4000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"task"},
			OpAliases:    []string{"tasks:delta"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				task := argStr(args, "task")
				ref, err := svc.Store.GetReasoningRef(ctx, ws, task)
				if err != nil {
					return nil, nil, err
				}
				entries, err := svc.Store.ListDocEntries(ctx, ws, ref.Branch, ref.TraceDoc, argInt(args, "limit", 0))
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"events": toMapList(entries)}, []string{task}, nil
			},
		},
	}
}

func intPtr(v *int64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
