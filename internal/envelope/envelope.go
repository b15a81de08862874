// Package envelope assembles the uniform tool-dispatch response shape
// described in spec.md §4.2/§6.4: success/intent/result/refs/actions/
// warnings/error/timestamp, plus the typed-error recovery-action
// appender and the output-budget enforcer (budget.go).
package envelope

import (
	"sort"
	"time"

	"github.com/antigravity-dev/branchmind/internal/store"
)

// Priority mirrors the three recovery-action priority bands.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

var priorityRank = map[Priority]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}

// Action is one suggested next tool call.
type Action struct {
	ActionID string         `json:"action_id"`
	Priority Priority       `json:"priority"`
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args"`
	Why      string         `json:"why"`
	Risk     string         `json:"risk"`
}

// Warning is a machine-readable advisory code with a human message.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorInfo is the envelope's typed-error payload.
type ErrorInfo struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Recovery string `json:"recovery,omitempty"`
}

// Envelope is the uniform response shape every tool call returns,
// spec.md §6.4.
type Envelope struct {
	Success     bool           `json:"success"`
	Intent      string         `json:"intent"`
	Result      any            `json:"result"`
	Refs        []string       `json:"refs"`
	Actions     []Action       `json:"actions"`
	Warnings    []Warning      `json:"warnings"`
	Suggestions []any          `json:"suggestions"`
	Context     map[string]any `json:"context"`
	Error       *ErrorInfo     `json:"error"`
	Timestamp   string         `json:"timestamp"`
}

func nowStamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// Success builds a success envelope for intent, carrying refs gathered
// from the handler's result.
func Success(intent string, result any, refs []string) Envelope {
	return Envelope{
		Success:     true,
		Intent:      intent,
		Result:      result,
		Refs:        refs,
		Actions:     []Action{},
		Warnings:    []Warning{},
		Suggestions: []any{},
		Context:     map[string]any{},
		Timestamp:   nowStamp(),
	}
}

// Failure builds an error envelope for intent, deriving its typed
// error code from err via ClassifyError.
func Failure(intent string, err error) Envelope {
	code, message, recovery := ClassifyError(err)
	return Envelope{
		Success:     false,
		Intent:      "error",
		Result:      nil,
		Refs:        nil,
		Actions:     []Action{},
		Warnings:    []Warning{},
		Suggestions: []any{},
		Context:     map[string]any{},
		Error:       &ErrorInfo{Code: code, Message: message, Recovery: recovery},
		Timestamp:   nowStamp(),
	}
}

// ClassifyError maps a store/domain error onto spec.md §7's taxonomy:
// a wire code, human message, and an optional recovery hint.
func ClassifyError(err error) (code, message, recovery string) {
	if err == nil {
		return "", "", ""
	}
	switch e := err.(type) {
	case *store.UnknownBranchError:
		return "UNKNOWN_ID", e.Error(), "list branches with workspace.branch.list"
	case *store.UnknownIDError:
		return "UNKNOWN_ID", e.Error(), "refresh context with tasks.snapshot"
	case *store.BranchAlreadyExistsError:
		return "CONFLICT", e.Error(), "choose a different branch name"
	case *store.BranchCycleError:
		return "INVALID_INPUT", e.Error(), "pick a base branch that does not derive from this one"
	case *store.BranchDepthExceededError:
		return "INVALID_INPUT", e.Error(), "flatten the branch chain before creating a new derived branch"
	case *store.RevisionMismatchError:
		return "REVISION_MISMATCH", e.Error(), "reload the entity and retry with its current revision"
	case *store.StepNotFoundError:
		return "UNKNOWN_ID", e.Error(), "list steps with tasks.snapshot"
	case *store.InvalidInputError:
		return "INVALID_INPUT", e.Error(), ""
	case *store.JobNotRequeueableError:
		return "CONFLICT", e.Error(), ""
	case *store.MergeNotSupportedError:
		return "INVALID_INPUT", e.Error(), "merge must go from a branch directly into its base"
	case *store.ReasoningRequiredError:
		return "REASONING_REQUIRED", e.Error(), "confirm the missing checkpoints before closing this step"
	case *store.ResetRequiredError:
		return "STORE_ERROR", e.Error(), "back up and reset the workspace database"
	default:
		_ = e
		return "STORE_ERROR", err.Error(), ""
	}
}

// AppendRecoveryActions appends the typed recovery actions described in
// spec.md §4.2.1 for a failed cmd, deduped by action_id.
func AppendRecoveryActions(env *Envelope, cmd, taskTitle string, err error) {
	if env.Error == nil {
		return
	}
	seen := map[string]bool{}
	for _, a := range env.Actions {
		seen[a.ActionID] = true
	}
	add := func(a Action) {
		if !seen[a.ActionID] {
			env.Actions = append(env.Actions, a)
			seen[a.ActionID] = true
		}
	}

	switch env.Error.Code {
	case "UNKNOWN_ID":
		if len(cmd) >= 6 && cmd[:6] == "tasks." {
			add(Action{ActionID: "recover:tasks.snapshot", Priority: PriorityHigh, Tool: "tasks",
				Args: map[string]any{"op": "call", "cmd": "tasks.snapshot", "args": map[string]any{}},
				Why:  "unknown id — refresh the task snapshot", Risk: "none"})
			add(Action{ActionID: "recover:tasks.macro.start", Priority: PriorityMedium, Tool: "tasks",
				Args: map[string]any{"op": "call", "cmd": "tasks.macro.start", "args": map[string]any{"task_title": taskTitle}},
				Why:  "unknown id — start a fresh task if this one no longer exists", Risk: "creates a new task"})
		}
	case "REVISION_MISMATCH":
		add(Action{ActionID: "recover:tasks.context", Priority: PriorityHigh, Tool: "tasks",
			Args: map[string]any{"op": "call", "cmd": "tasks.context", "args": map[string]any{}},
			Why:  "revision mismatch — refresh before retrying", Risk: "none"})
	case "INVALID_INPUT":
		add(Action{ActionID: "recover:system.schema.get:" + cmd, Priority: PriorityMedium, Tool: "system",
			Args: map[string]any{"op": "call", "cmd": "system.schema.get", "args": map[string]any{"cmd": cmd}},
			Why:  "invalid input — inspect the command's schema", Risk: "none"})
		add(Action{ActionID: "recover:retry:" + cmd, Priority: PriorityLow, Tool: toolForCmd(cmd),
			Args: map[string]any{"op": "call", "cmd": cmd, "args": map[string]any{}},
			Why:  "retry with a minimal example payload", Risk: "none"})
	}

	SortActions(env.Actions)
}

func toolForCmd(cmd string) string {
	for i, r := range cmd {
		if r == '.' {
			return cmd[:i]
		}
	}
	return cmd
}

// SortActions orders actions by (priority rank, action_id) so emission
// order is deterministic, per spec.md §4.2.
func SortActions(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		pi, pj := priorityRank[actions[i].Priority], priorityRank[actions[j].Priority]
		if pi != pj {
			return pi < pj
		}
		return actions[i].ActionID < actions[j].ActionID
	})
}
