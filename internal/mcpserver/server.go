// Package mcpserver exposes dschat sessions as Model Context Protocol
// tools over stdio, so other assistants can hold conversations through it.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/dschat/internal/agent"
	ctxengine "github.com/flemzord/dschat/internal/context"
	"github.com/flemzord/dschat/internal/memory"
	"github.com/flemzord/dschat/internal/provider"
)

// Options configures a Server.
type Options struct {
	Store    *memory.Store
	Executor *agent.Executor

	// DefaultStrategy is used when the chat tool names none.
	DefaultStrategy string

	Version string
	Logger  *slog.Logger
}

// Server registers the dschat tools on an MCP server.
type Server struct {
	store    *memory.Store
	executor *agent.Executor
	strategy string
	logger   *slog.Logger
	mcp      *server.MCPServer
}

// New creates a Server with the chat, list_sessions, get_history and
// clear_session tools.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	strategy := opts.DefaultStrategy
	if strategy == "" {
		strategy = ctxengine.StrategyDefault
	}
	s := &Server{
		store:    opts.Store,
		executor: opts.Executor,
		strategy: strategy,
		logger:   logger,
		mcp:      server.NewMCPServer("dschat", opts.Version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("chat",
		mcp.WithDescription("Send a message to a dschat session and return the assistant's full reply."),
		mcp.WithString("message", mcp.Required(), mcp.Description("User message")),
		mcp.WithString("session_id", mcp.Description("Session id; defaults to \"default\"")),
		mcp.WithString("strategy",
			mcp.Description("Context strategy for this turn"),
			mcp.Enum(ctxengine.Names()...),
		),
		mcp.WithNumber("temperature", mcp.Description("Sampling temperature override")),
		mcp.WithNumber("top_p", mcp.Description("Nucleus sampling override")),
	), s.handleChat)

	s.mcp.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List sessions with their title and last update, newest first."),
	), s.handleListSessions)

	s.mcp.AddTool(mcp.NewTool("get_history",
		mcp.WithDescription("Return the messages, summary and facts of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), s.handleGetHistory)

	s.mcp.AddTool(mcp.NewTool("clear_session",
		mcp.WithDescription("Erase a session's history, summary and facts."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	), s.handleClearSession)

	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// Serve speaks MCP over in/out until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("mcpserver: %w", err)
	}
	return nil
}

func (s *Server) handleChat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := req.RequireString("message")
	if err != nil || strings.TrimSpace(message) == "" {
		return mcp.NewToolResultError("message is required"), nil
	}
	id, res := sessionArg(req, false)
	if res != nil {
		return res, nil
	}
	strategy := req.GetString("strategy", s.strategy)

	release := s.store.Lanes().Acquire(id)
	defer release()

	sess := s.store.Get(ctx, id)
	var reply strings.Builder
	var failure string
	for ev := range s.executor.RunTurn(ctx, sess, strings.TrimSpace(message), strategy, samplingArgs(req)) {
		switch ev.Type {
		case agent.EventDelta:
			reply.WriteString(ev.Text)
		case agent.EventError:
			failure = agent.ErrorText(ev)
		}
	}

	if failure != "" {
		s.logger.Warn("mcp chat turn failed", "session", id, "error", failure)
		if reply.Len() > 0 {
			return mcp.NewToolResultError(fmt.Sprintf("%s\n\n[reply interrupted: %s]", reply.String(), failure)), nil
		}
		return mcp.NewToolResultError(failure), nil
	}
	return mcp.NewToolResultText(reply.String()), nil
}

func (s *Server) handleListSessions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if list == nil {
		list = []memory.SessionInfo{}
	}
	return jsonResult(list)
}

// history is the JSON form returned by get_history.
type history struct {
	SessionID string `json:"session_id"`
	Messages  any    `json:"messages"`
	Summary   string `json:"summary"`
	Facts     string `json:"facts"`
}

func (s *Server) handleGetHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := sessionArg(req, true)
	if res != nil {
		return res, nil
	}
	sess, err := s.store.Peek(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msgs := sess.History.Messages()
	out := history{SessionID: id, Messages: msgs, Summary: sess.History.Summary(), Facts: sess.History.Facts()}
	if msgs == nil {
		out.Messages = []any{}
	}
	return jsonResult(out)
}

func (s *Server) handleClearSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := sessionArg(req, true)
	if res != nil {
		return res, nil
	}
	release := s.store.Lanes().Acquire(id)
	defer release()

	sess := s.store.Get(ctx, id)
	sess.History.Clear()
	sess.ResetCost()
	if err := s.store.Save(ctx, id); err != nil {
		s.logger.Warn("session save failed after clear", "session", id, "error", err)
	}
	return mcp.NewToolResultText("cleared " + id), nil
}

// sessionArg reads and validates session_id. When required is false an
// absent id selects the default session.
func sessionArg(req mcp.CallToolRequest, required bool) (string, *mcp.CallToolResult) {
	id := req.GetString("session_id", "")
	if id == "" {
		if required {
			return "", mcp.NewToolResultError("session_id is required")
		}
		id = memory.DefaultSessionID
	}
	if err := memory.ValidateSessionID(id); err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	return id, nil
}

// samplingArgs reads the optional numeric overrides. Absent or non-numeric
// values leave the upstream default.
func samplingArgs(req mcp.CallToolRequest) provider.SamplingParams {
	args := req.GetArguments()
	var p provider.SamplingParams
	if v, ok := args["temperature"].(float64); ok {
		p.Temperature = &v
	}
	if v, ok := args["top_p"].(float64); ok {
		p.TopP = &v
	}
	return p
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
