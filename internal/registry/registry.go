// Package registry implements the strict-10-tool dispatch surface
// described in spec.md §4.2/§6.2: a map[string]CmdSpec built at
// construction time (generalizing the teacher's flag-based dispatch in
// cmd/cortex/main.go from flags to a registry table), alias resolution,
// lightweight argument validation, and conversion of handler results
// into the uniform envelope via internal/envelope.
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/antigravity-dev/branchmind/internal/envelope"
	"github.com/antigravity-dev/branchmind/internal/graph"
	"github.com/antigravity-dev/branchmind/internal/ids"
	"github.com/antigravity-dev/branchmind/internal/nextengine"
	"github.com/antigravity-dev/branchmind/internal/store"
	"github.com/antigravity-dev/branchmind/internal/think"
	"github.com/antigravity-dev/branchmind/internal/vcs"
)

// Tools lists the exact ten tool names the dispatcher accepts, per
// spec.md §4.2/§6.2. Dispatch refuses any tool outside this set.
var Tools = []string{"status", "open", "workspace", "tasks", "jobs", "think", "graph", "vcs", "docs", "system"}

// Tier marks a command's maturity band.
type Tier string

const (
	TierGold     Tier = "Gold"
	TierAdvanced Tier = "Advanced"
)

// ConfirmLevel marks how much caller confirmation a destructive op needs.
type ConfirmLevel string

const (
	ConfirmNone ConfirmLevel = "None"
	ConfirmSoft ConfirmLevel = "Soft"
	ConfirmHard ConfirmLevel = "Hard"
)

// Safety carries a command's destructive/confirm/idempotent metadata.
type Safety struct {
	Destructive  bool
	ConfirmLevel ConfirmLevel
	Idempotent   bool
}

// BudgetPolicy names the output-budget max_chars this command defaults
// to when a caller doesn't pass an explicit one.
type BudgetPolicy struct {
	MaxChars int
}

// SchemaSource marks where a command's argument schema comes from.
//
// Handler-sourced schemas are derived reflection-light from the
// RequiredArgs list below (a struct-tag-driven JSON Schema reflector
// was judged more machinery than this registry needs — see DESIGN.md).
// Custom-sourced schemas carry an inline JSON Schema document compiled
// through github.com/santhosh-tekuri/jsonschema/v6 (schema.go) for
// commands whose argument shape is richer than required-field
// presence — array-typed tags and length-bounded strings on the graph
// upsert commands, for example.
type SchemaSource string

const (
	SchemaHandler SchemaSource = "Handler"
	SchemaCustom  SchemaSource = "Custom"
	SchemaLegacy  SchemaSource = "Legacy"
)

// Handler executes a command's body against a parsed workspace id and
// its raw args, returning the success result (to be embedded as
// envelope.result), any refs to surface, and an error.
type Handler func(ctx context.Context, ws ids.WorkspaceID, args map[string]any) (result any, refs []string, err error)

// CmdSpec is one entry in the registry: a command's identity, safety
// metadata, schema source, and handler, per spec.md §4.2.
type CmdSpec struct {
	Cmd          string
	Tier         Tier
	Stability    string
	Safety       Safety
	Budget       BudgetPolicy
	SchemaSource SchemaSource
	RequiredArgs []string
	// Schema holds an inline JSON Schema document validated against args
	// when SchemaSource == SchemaCustom, compiled through
	// github.com/santhosh-tekuri/jsonschema/v6 (see schema.go).
	Schema    string
	DocAnchor string
	Handler   Handler
	OpAliases []string
}

// Registry is the built strict-10 command table plus its alias index.
type Registry struct {
	byCmd   map[string]CmdSpec
	byAlias map[string]string
	Tools   []ToolInfo
}

// ToolInfo is one tool's summary for system.tools.list.
type ToolInfo struct {
	Tool string
	Cmds []string
}

// Services bundles the storage-engine collaborators every handler needs.
type Services struct {
	Store      *store.Store
	Graph      *graph.Engine
	Think      *think.Service
	Next       *nextengine.Engine
	Workspace  string // filesystem path the vcs tool operates against
}

// Build constructs the full registry, wiring every CmdSpec's handler
// against svc. This is the one place that binds the envelope-facing
// command surface to the storage engine.
func Build(svc Services) *Registry {
	reg := &Registry{byCmd: map[string]CmdSpec{}, byAlias: map[string]string{}}

	add := func(specs ...CmdSpec) {
		for _, s := range specs {
			reg.byCmd[s.Cmd] = s
			for _, alias := range s.OpAliases {
				reg.byAlias[alias] = s.Cmd
			}
		}
	}

	add(statusCmds(svc)...)
	add(openCmds(svc)...)
	add(workspaceCmds(svc)...)
	add(tasksCmds(svc)...)
	add(jobsCmds(svc)...)
	add(thinkCmds(svc)...)
	add(graphCmds(svc)...)
	add(vcsCmds(svc)...)
	add(docsCmds(svc)...)
	add(systemCmds(reg, svc)...)

	toolCmds := map[string][]string{}
	for cmd := range reg.byCmd {
		tool := toolOf(cmd)
		toolCmds[tool] = append(toolCmds[tool], cmd)
	}
	for _, tool := range Tools {
		cmds := toolCmds[tool]
		sort.Strings(cmds)
		reg.Tools = append(reg.Tools, ToolInfo{Tool: tool, Cmds: cmds})
	}
	return reg
}

func toolOf(cmd string) string {
	for i, r := range cmd {
		if r == '.' {
			return cmd[:i]
		}
	}
	return cmd
}

// Request is one parsed tool invocation, either {op:"call", cmd, args}
// or the flat-alias form {op:"<alias>", args}.
type Request struct {
	Tool string
	Op   string
	Cmd  string
	Args map[string]any
}

// Resolve maps a Request onto a canonical CmdSpec, per spec.md §4.2's
// call/alias resolution rule.
func (r *Registry) Resolve(req Request) (CmdSpec, bool) {
	if req.Op == "call" || req.Cmd != "" {
		spec, ok := r.byCmd[req.Cmd]
		return spec, ok
	}
	cmd, ok := r.byAlias[req.Tool+":"+req.Op]
	if !ok {
		cmd, ok = r.byAlias[req.Op]
	}
	if !ok {
		return CmdSpec{}, false
	}
	spec, ok := r.byCmd[cmd]
	return spec, ok
}

// SchemaGet returns the argument-shape description system.schema.get
// reports for cmd: its required fields and safety metadata.
func (r *Registry) SchemaGet(cmd string) (CmdSpec, bool) {
	spec, ok := r.byCmd[cmd]
	return spec, ok
}

// Dispatch resolves, validates, invokes, and envelope-wraps one request,
// per the parse -> resolve -> validate -> invoke -> convert -> budget
// pipeline in spec.md §4.2.
func Dispatch(ctx context.Context, reg *Registry, ws ids.WorkspaceID, req Request) envelope.Envelope {
	var invalidTool = true
	for _, t := range Tools {
		if t == req.Tool {
			invalidTool = false
			break
		}
	}
	if invalidTool {
		env := envelope.Failure(req.Tool, &store.InvalidInputError{Msg: fmt.Sprintf("unknown tool %q", req.Tool)})
		envelope.AppendRecoveryActions(&env, req.Tool, "", &store.InvalidInputError{Msg: "unknown tool"})
		return env
	}

	spec, ok := reg.Resolve(req)
	if !ok {
		failing := req.Cmd
		if failing == "" {
			failing = req.Op
		}
		err := &store.InvalidInputError{Msg: fmt.Sprintf("unknown command %q for tool %q", failing, req.Tool)}
		env := envelope.Failure(failing, err)
		envelope.AppendRecoveryActions(&env, failing, "", err)
		return env
	}

	if args := req.Args; args != nil || len(spec.RequiredArgs) > 0 {
		if args == nil {
			args = map[string]any{}
		}
		for _, field := range spec.RequiredArgs {
			if _, present := args[field]; !present {
				err := &store.InvalidInputError{Msg: fmt.Sprintf("%s: missing required arg %q", spec.Cmd, field)}
				env := envelope.Failure(spec.Cmd, err)
				envelope.AppendRecoveryActions(&env, spec.Cmd, "", err)
				return env
			}
		}
	}

	if spec.SchemaSource == SchemaCustom && spec.Schema != "" {
		if err := validateAgainstSchema(spec.Cmd, spec.Schema, req.Args); err != nil {
			env := envelope.Failure(spec.Cmd, err)
			envelope.AppendRecoveryActions(&env, spec.Cmd, "", err)
			return env
		}
	}

	result, refs, err := spec.Handler(ctx, ws, req.Args)
	var env envelope.Envelope
	if err != nil {
		env = envelope.Failure(spec.Cmd, err)
		taskTitle := argStr(req.Args, "task_title")
		envelope.AppendRecoveryActions(&env, spec.Cmd, taskTitle, err)
		return env
	}
	env = envelope.Success(spec.Cmd, result, refs)
	maxChars := 0
	if v, ok := req.Args["max_chars"]; ok {
		if n, ok := v.(float64); ok {
			maxChars = int(n)
		}
	}
	if maxChars == 0 {
		maxChars = spec.Budget.MaxChars
	}
	envelope.EnforceBudget(&env, maxChars)
	return env
}
