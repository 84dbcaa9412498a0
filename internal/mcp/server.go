/*
Package mcp implements an MCP server that exposes the engine as tools.

The server speaks JSON-RPC 2.0 over stdio (one message per line) and exposes
5 tools:
  - tetris_interpret: Interpret an utterance and return the reply
  - tetris_teach: Create or replace a custom command
  - tetris_forget: Remove a custom command
  - tetris_commands: List custom commands, most used first
  - tetris_history: Search or list conversation memory
*/
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/khanglvm/tetris/internal/commands"
	"github.com/khanglvm/tetris/internal/engine"
	"github.com/khanglvm/tetris/internal/search"
	"github.com/khanglvm/tetris/internal/storage"
	"github.com/khanglvm/tetris/internal/version"
	"go.uber.org/zap"
)

// ProtocolVersion is the MCP revision this server implements.
const ProtocolVersion = "2024-11-05"

// maxLineBytes bounds a single JSON-RPC message.
const maxLineBytes = 4 << 20

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeToolFailed     = -32000
)

// Server is the tetris MCP server.
type Server struct {
	engine  *engine.Engine
	history storage.Storage
	logger  *zap.Logger

	outMu sync.Mutex
	out   io.Writer
}

// NewServer creates an MCP server over e. history backs tetris_history.
func NewServer(e *engine.Engine, history storage.Storage, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: e, history: history, logger: logger}
}

// Run serves requests read from in and writes responses to out. It returns
// when in reaches EOF or ctx is done.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	s.outMu.Lock()
	s.out = out
	s.outMu.Unlock()

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	s.logger.Info("mcp server started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if len(strings.TrimSpace(string(line))) == 0 {
				continue
			}

			response, err := s.handleRequest(ctx, line)
			if err != nil {
				s.sendError(err)
				continue
			}
			if response != nil {
				s.sendResponse(response)
			}
		}
	}
}

// MCPRequest represents an incoming MCP JSON-RPC request.
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing MCP JSON-RPC response.
type MCPResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *MCPError `json:"error,omitempty"`
}

// MCPError represents an MCP error.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func errorResponse(id any, code int, msg string) *MCPResponse {
	return &MCPResponse{JSONRPC: "2.0", ID: id, Error: &MCPError{Code: code, Message: msg}}
}

// handleRequest processes one message. Notifications get no response.
func (s *Server) handleRequest(ctx context.Context, data []byte) (*MCPResponse, error) {
	var req MCPRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON-RPC request: %w", err)
	}

	if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
		return nil, nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(&req), nil
	case "ping":
		return &MCPResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}}, nil
	case "tools/list":
		return s.handleToolsList(&req), nil
	case "tools/call":
		return s.handleToolsCall(ctx, &req), nil
	default:
		return errorResponse(req.ID, codeMethodNotFound, "Method not found"), nil
	}
}

func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    "tetris",
				"version": version.Version,
			},
		},
	}
}

func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  map[string]any{"tools": toolDefinitions()},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid params: "+err.Error())
	}
	args := arguments(params.Arguments)

	var (
		result string
		err    error
	)
	switch params.Name {
	case "tetris_interpret":
		result, err = s.execInterpret(ctx, args)
	case "tetris_teach":
		result, err = s.execTeach(ctx, args)
	case "tetris_forget":
		result, err = s.execForget(ctx, args)
	case "tetris_commands":
		result, err = s.execCommands(ctx)
	case "tetris_history":
		result, err = s.execHistory(ctx, args)
	default:
		return errorResponse(req.ID, codeInvalidParams, fmt.Sprintf("Unknown tool: %s", params.Name))
	}

	if err != nil {
		s.logger.Debug("tool call failed", zap.String("tool", params.Name), zap.Error(err))
		return errorResponse(req.ID, codeToolFailed, err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": result},
			},
		},
	}
}

// arguments wraps tool arguments with typed accessors.
type arguments map[string]any

func (a arguments) str(key string) string {
	v, _ := a[key].(string)
	return v
}

func (a arguments) integer(key string, def int) int {
	if f, ok := a[key].(float64); ok && f > 0 {
		return int(f)
	}
	return def
}

func (s *Server) execInterpret(ctx context.Context, args arguments) (string, error) {
	text := args.str("text")
	if strings.TrimSpace(text) == "" {
		return "", errors.New("text is required")
	}
	return s.engine.Interpret(ctx, text), nil
}

func (s *Server) execTeach(ctx context.Context, args arguments) (string, error) {
	action, err := storage.ParseActionType(args.str("action_type"))
	if err != nil {
		return "", err
	}
	cmd := storage.CustomCommand{
		Trigger:    args.str("trigger"),
		Response:   args.str("response"),
		ActionType: action,
		Parameters: args.str("parameters"),
	}

	created, err := s.engine.Resolver().Upsert(ctx, cmd)
	if err != nil {
		return "", err
	}
	trigger := commands.CanonicalTrigger(cmd.Trigger)
	if created {
		return fmt.Sprintf("Learned new command %q.", trigger), nil
	}
	return fmt.Sprintf("Updated command %q.", trigger), nil
}

func (s *Server) execForget(ctx context.Context, args arguments) (string, error) {
	trigger := args.str("trigger")
	if err := s.engine.Resolver().Remove(ctx, trigger); err != nil {
		return "", err
	}
	return fmt.Sprintf("Forgot command %q.", commands.CanonicalTrigger(trigger)), nil
}

func (s *Server) execCommands(ctx context.Context) (string, error) {
	cmds, err := s.engine.Resolver().List(ctx)
	if err != nil {
		return "", err
	}
	if len(cmds) == 0 {
		return "No custom commands yet. Use tetris_teach to add one.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Custom commands (%d):\n", len(cmds))
	for _, c := range commands.ByUsage(cmds) {
		fmt.Fprintf(&b, "  • %s [%s] → %s (used %d times)\n", c.Trigger, c.ActionType, c.Response, c.UsageCount)
	}
	return b.String(), nil
}

func (s *Server) execHistory(ctx context.Context, args arguments) (string, error) {
	limit := args.integer("limit", 10)
	query := strings.TrimSpace(args.str("query"))

	var b strings.Builder
	if query == "" {
		turns, err := s.history.RecentTurns(ctx, limit)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "Recent turns (%d):\n", len(turns))
		for _, t := range turns {
			fmt.Fprintf(&b, "  • [%s] %s → %s\n", t.Context, t.UserInput, t.SystemResponse)
		}
		return b.String(), nil
	}

	results, err := search.SearchHistory(ctx, s.history, query, args.str("context"), limit, s.logger)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No turns match %q.", query), nil
	}
	fmt.Fprintf(&b, "Turns matching %q (%d):\n", query, len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "  • [%s] %s → %s (score %.2f)\n", r.Context, r.Input, r.Response, r.Score)
	}
	return b.String(), nil
}

// sendResponse writes a JSON-RPC response as a single line.
func (s *Server) sendResponse(resp *MCPResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		return
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if _, err := fmt.Fprintln(s.out, string(data)); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

// sendError writes a parse error response.
func (s *Server) sendError(err error) {
	s.sendResponse(errorResponse(nil, codeParseError, err.Error()))
}
