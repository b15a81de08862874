package registry

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/antigravity-dev/branchmind/internal/ids"
)

const defaultLeaseMs = 5 * 60 * 1000

func jobsCmds(svc Services) []CmdSpec {
	return []CmdSpec{
		{
			Cmd: "jobs.create", Tier: TierGold, Stability: "stable",
			Safety:       Safety{},
			Budget:       BudgetPolicy{MaxChars: 1500},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"title", "prompt"},
			OpAliases:    []string{"jobs:create"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				job, err := svc.Store.CreateJob(ctx, ws, argStr(args, "title"), argStr(args, "kind"), argStr(args, "task"),
					argStr(args, "anchor_id"), argStr(args, "prompt"), argInt(args, "priority", 0))
				if err != nil {
					return nil, nil, err
				}
				return toMap(job), []string{job.JobID}, nil
			},
		},
		{
			Cmd: "jobs.claim", Tier: TierGold, Stability: "stable",
			Safety:       Safety{},
			Budget:       BudgetPolicy{MaxChars: 1500},
			SchemaSource: SchemaHandler,
			OpAliases:    []string{"jobs:claim"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				leaseMs := int64(argInt(args, "lease_ms", defaultLeaseMs))
				runnerID := strings.TrimSpace(argStr(args, "runner_id"))
				if runnerID == "" {
					// Anonymous runners get a fresh lease identity rather than
					// being required to invent one, per the "runner:<id>" wire
					// id kind in spec.md §3.1/§6.3.
					runnerID = "runner:" + uuid.NewString()
				}
				job, err := svc.Store.ClaimJob(ctx, ws, runnerID, leaseMs)
				if err != nil {
					return nil, nil, err
				}
				if job == nil {
					return map[string]any{"claimed": false}, nil, nil
				}
				m := toMap(job)
				m["claimed"] = true
				return m, []string{job.JobID}, nil
			},
		},
		{
			Cmd: "jobs.report", Tier: TierGold, Stability: "stable",
			Safety:       Safety{},
			Budget:       BudgetPolicy{MaxChars: 1500},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"job", "claim_revision", "kind", "message"},
			OpAliases:    []string{"jobs:report"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				rev := argInt64Ptr(args, "claim_revision")
				var claimRev int64
				if rev != nil {
					claimRev = *rev
				}
				job, err := svc.Store.ReportJob(ctx, ws, argStr(args, "job"), claimRev, argStr(args, "kind"),
					argStr(args, "message"), argInt(args, "percent", 0), argStrList(args, "refs"))
				if err != nil {
					return nil, nil, err
				}
				return toMap(job), []string{job.JobID}, nil
			},
		},
		{
			Cmd: "jobs.complete", Tier: TierGold, Stability: "stable",
			Safety:       Safety{},
			Budget:       BudgetPolicy{MaxChars: 1500},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"job", "claim_revision", "success"},
			OpAliases:    []string{"jobs:complete"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				rev := argInt64Ptr(args, "claim_revision")
				var claimRev int64
				if rev != nil {
					claimRev = *rev
				}
				job, err := svc.Store.CompleteJob(ctx, ws, argStr(args, "job"), claimRev, argBool(args, "success", true), argStr(args, "summary"))
				if err != nil {
					return nil, nil, err
				}
				return toMap(job), []string{job.JobID}, nil
			},
		},
		{
			Cmd: "jobs.requeue", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 1000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"job", "claim_revision"},
			OpAliases:    []string{"jobs:requeue"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				rev := argInt64Ptr(args, "claim_revision")
				var claimRev int64
				if rev != nil {
					claimRev = *rev
				}
				job, err := svc.Store.RequeueJob(ctx, ws, argStr(args, "job"), claimRev)
				if err != nil {
					return nil, nil, err
				}
				return toMap(job), []string{job.JobID}, nil
			},
		},
		{
			Cmd: "jobs.cancel", Tier: TierAdvanced, Stability: "stable",
			Safety:       Safety{Destructive: true, ConfirmLevel: ConfirmSoft},
			Budget:       BudgetPolicy{MaxChars: 1000},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"job"},
			OpAliases:    []string{"jobs:cancel"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				job, err := svc.Store.CancelJob(ctx, ws, argStr(args, "job"))
				if err != nil {
					return nil, nil, err
				}
				return toMap(job), []string{job.JobID}, nil
			},
		},
		{
			Cmd: "jobs.list", Tier: TierGold, Stability: "stable",
			Safety:       Safety{Idempotent: true},
			Budget:       BudgetPolicy{MaxChars: 4000},
			SchemaSource: SchemaHandler,
			OpAliases:    []string{"jobs:list"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				jobs, err := svc.Store.ListJobs(ctx, ws, argStr(args, "status"))
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"jobs": toMapList(jobs)}, nil, nil
			},
		},
		{
			Cmd: "jobs.proof.attach", Tier: TierGold, Stability: "stable",
			Safety:       Safety{},
			Budget:       BudgetPolicy{MaxChars: 1500},
			SchemaSource: SchemaHandler,
			RequiredArgs: []string{"job"},
			OpAliases:    []string{"jobs:proof.attach"},
			Handler: func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (any, []string, error) {
				jobID := argStr(args, "job")
				job, err := svc.Store.GetJob(ctx, ws, jobID)
				if err != nil {
					return nil, nil, err
				}
				if job.TaskID == "" {
					return map[string]any{"attached": false, "reason": "job has no focused task"}, []string{jobID}, nil
				}
				title := "proof: " + job.Title
				content := job.Summary
				eventID, err := svc.Store.Note(ctx, ws, job.TaskID, "", title, content)
				if err != nil {
					return nil, nil, err
				}
				return map[string]any{"attached": true, "event_id": eventID.String()}, []string{job.TaskID, jobID}, nil
			},
		},
	}
}
