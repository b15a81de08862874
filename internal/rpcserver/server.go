package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/antigravity-dev/branchmind/internal/config"
	"github.com/antigravity-dev/branchmind/internal/envelope"
	"github.com/antigravity-dev/branchmind/internal/ids"
	"github.com/antigravity-dev/branchmind/internal/registry"
	"github.com/antigravity-dev/branchmind/internal/store"
)

// rpcRequest is one JSON-RPC 2.0 request or notification.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// rpcResponse is one JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolsCallParams is the params shape for tools/call, the method that
// dispatches into the registry, per spec.md §6.1.
type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolsCallResult struct {
	Content []contentBlock `json:"content"`
}

// LineProtocolRenderer renders an envelope as token-cheap plain text
// when its result opts into line-protocol output, per spec.md §6.1's
// detection rule. A server without a renderer falls back to always
// emitting pretty-printed JSON.
type LineProtocolRenderer interface {
	Render(env envelope.Envelope) (text string, ok bool)
}

// taggedLineRenderer renders every failure envelope as one
// "ERROR: <code>: <message>" line, and a success envelope as one
// "WARNING: <summary>" or "MORE: <summary>" line only when its result
// sets line_protocol to true and carries a non-empty summary. A summary
// that merely starts with a tag is not detected; such envelopes stay JSON.
type taggedLineRenderer struct{}

func (taggedLineRenderer) Render(env envelope.Envelope) (string, bool) {
	if !env.Success {
		if env.Error == nil {
			return "", false
		}
		return fmt.Sprintf("ERROR: %s: %s", env.Error.Code, env.Error.Message), true
	}
	resultMap, ok := env.Result.(map[string]any)
	if !ok {
		return "", false
	}
	lp, _ := resultMap["line_protocol"].(bool)
	if !lp {
		return "", false
	}
	summary, _ := resultMap["summary"].(string)
	if summary == "" {
		return "", false
	}
	tag := "MORE"
	if len(env.Warnings) > 0 {
		tag = "WARNING"
	}
	return fmt.Sprintf("%s: %s", tag, summary), true
}

// Server is the stdio JSON-RPC front end described in spec.md §6.1: it
// reads framed requests, routes tools/call to the registry, and writes
// framed responses back, grounded on the teacher's internal/api.Start
// accept-loop-plus-shutdown-goroutine shape (adapted here from an HTTP
// listener to a stdio reader/writer pair).
type Server struct {
	Reg      *registry.Registry
	Store    *store.Store
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer LineProtocolRenderer

	in  io.Reader
	out io.Writer
}

// New constructs a Server reading in and writing responses to out
// (typically os.Stdin/os.Stdout).
func New(reg *registry.Registry, st *store.Store, cfg *config.Config, logger *slog.Logger, in io.Reader, out io.Writer) *Server {
	return &Server{Reg: reg, Store: st, Cfg: cfg, Logger: logger, Renderer: taggedLineRenderer{}, in: in, out: out}
}

// Run drives the accept loop and the background lease sweeper under one
// errgroup, returning when ctx is canceled or the peer closes the
// stream. Both goroutines' errors propagate through the group the same
// way the teacher's Start(ctx) propagates its HTTP listener's error
// alongside its shutdown goroutine. The accept loop checks ctx between
// messages, so a cancel takes effect once a pending read returns.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	sweepCtx, stopSweep := context.WithCancel(gctx)
	defer stopSweep()

	g.Go(func() error {
		defer stopSweep()
		return s.acceptLoop(gctx)
	})

	g.Go(func() error {
		return s.sweepLoop(sweepCtx)
	})

	return g.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) error {
	br := bufio.NewReader(s.in)
	bw := bufio.NewWriter(s.out)
	fr := newFrameReader(br, s.Cfg.RPC.MaxBodyBytes)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		body, err := fr.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("rpcserver: read: %w", err)
		}
		if len(strings.TrimSpace(string(body))) == 0 {
			continue
		}

		resp, hasResp := s.handleMessage(ctx, body)
		if !hasResp {
			continue
		}
		out, err := json.Marshal(resp)
		if err != nil {
			s.Logger.Error("rpcserver: marshal response failed", "err", err)
			continue
		}
		if err := writeMessage(bw, fr.detected, out); err != nil {
			return fmt.Errorf("rpcserver: write: %w", err)
		}
	}
}

func (s *Server) sweepLoop(ctx context.Context) error {
	interval := s.Cfg.Jobs.SweepInterval.Duration
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepAllWorkspaces(ctx)
		}
	}
}

func (s *Server) sweepAllWorkspaces(ctx context.Context) {
	workspaces, err := s.Store.ListWorkspaces(ctx)
	if err != nil {
		s.Logger.Warn("rpcserver: lease sweep: listing workspaces failed", "err", err)
		return
	}
	for _, ws := range workspaces {
		n, err := s.Store.SweepExpiredLeases(ctx, ws)
		if err != nil {
			s.Logger.Warn("rpcserver: lease sweep failed", "workspace", ws.String(), "err", err)
			continue
		}
		if n > 0 {
			s.Logger.Info("rpcserver: swept expired leases", "workspace", ws.String(), "count", n)
		}
	}
}

// handleMessage parses and dispatches one request body, returning the
// response to write back and whether one is owed at all (notifications
// and malformed ids with no method get none, per spec.md §6.1).
func (s *Server) handleMessage(ctx context.Context, body []byte) (rpcResponse, bool) {
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "Parse error: " + err.Error()}}, true
	}
	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	if req.Method == "" {
		if isNotification {
			return rpcResponse{}, false
		}
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32600, Message: "Invalid Request: missing method"}}, true
	}

	switch req.Method {
	case "tools/call":
		result, err := s.dispatchToolsCall(ctx, req.Params)
		if isNotification {
			return rpcResponse{}, false
		}
		if err != nil {
			return rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32600, Message: err.Error()}}, true
		}
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result}, true
	case "tools/list":
		if isNotification {
			return rpcResponse{}, false
		}
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{"tools": s.Reg.Tools}}, true
	default:
		if isNotification {
			return rpcResponse{}, false
		}
		return rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: "Method not found: " + req.Method}}, true
	}
}

func (s *Server) dispatchToolsCall(ctx context.Context, rawParams json.RawMessage) (toolsCallResult, error) {
	var params toolsCallParams
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return toolsCallResult{}, fmt.Errorf("invalid params: %w", err)
		}
	}
	env := s.call(ctx, params.Name, params.Arguments)
	var text string
	var renderAsLine bool
	if s.Renderer != nil {
		text, renderAsLine = s.Renderer.Render(env)
	}
	if !renderAsLine {
		out, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return toolsCallResult{}, fmt.Errorf("marshal envelope: %w", err)
		}
		text = string(out)
	}
	return toolsCallResult{Content: []contentBlock{{Type: "text", Text: text}}}, nil
}

// call resolves the wire workspace/op/cmd/args/budget_profile arguments
// into a registry.Request and dispatches it, applying the
// budget_profile default before the command-level Budget policy would.
func (s *Server) call(ctx context.Context, tool string, arguments map[string]any) envelope.Envelope {
	wsRaw, _ := arguments["workspace"].(string)
	ws, err := ids.ParseWorkspaceID(wsRaw)
	if err != nil {
		env := envelope.Failure(tool, &store.InvalidInputError{Msg: "workspace: " + err.Error()})
		envelope.AppendRecoveryActions(&env, tool, "", &store.InvalidInputError{Msg: "workspace"})
		return env
	}

	op, _ := arguments["op"].(string)
	cmd, _ := arguments["cmd"].(string)
	args, _ := arguments["args"].(map[string]any)
	if args == nil {
		args = map[string]any{}
	}

	if profile, ok := arguments["budget_profile"].(string); ok && profile != "" {
		if _, explicit := args["max_chars"]; !explicit {
			args["max_chars"] = s.Cfg.Budgets.Effective(profile)
		}
	}
	if view, ok := arguments["view"].(string); ok && view != "" {
		args["view"] = view
	}

	req := registry.Request{Tool: tool, Op: op, Cmd: cmd, Args: args}
	return registry.Dispatch(ctx, s.Reg, ws, req)
}
