package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/richinex/biotools/tools"
)

// Server answers MCP requests from a tool registry.
type Server struct {
	executor *tools.Executor
	name     string
	version  string
	logger   *log.Logger
}

// NewServer creates a server over registry.
func NewServer(registry *tools.Registry, name, version string) *Server {
	return &Server{
		executor: tools.NewExecutor(registry),
		name:     name,
		version:  version,
	}
}

// WithLogger sets the logger. It must not write to the stdio transport.
func (s *Server) WithLogger(logger *log.Logger) *Server {
	s.logger = logger
	return s
}

// ListTools returns every registered tool, sorted by name.
func (s *Server) ListTools() []ToolInfo {
	metas := s.executor.Registry().List()
	infos := make([]ToolInfo, 0, len(metas))
	for _, m := range metas {
		infos = append(infos, toolInfo(m))
	}
	return infos
}

// HasTool reports whether name is registered.
func (s *Server) HasTool(name string) bool {
	return s.executor.Registry().Has(name)
}

// CallTool runs a tool. Failures are reported in the result, never as errors.
func (s *Server) CallTool(ctx context.Context, name string, args json.RawMessage) CallResult {
	result := s.executor.Call(ctx, name, args)
	if !result.Success() {
		s.logf("tool %s failed: %v", name, result.Error)
	}
	return callResult(result)
}

// Serve reads newline-delimited JSON-RPC requests from r and writes
// responses to w until r is exhausted or ctx is done.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)
	enc := json.NewEncoder(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if resp := s.handleMessage(ctx, line); resp != nil {
				if err := enc.Encode(resp); err != nil {
					return fmt.Errorf("failed to write response: %w", err)
				}
			}
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("failed to read request: %w", readErr)
		}
	}
}

// handleMessage answers one JSON-RPC message. Notifications yield nil.
func (s *Server) handleMessage(ctx context.Context, data []byte) *rpcResponse {
	var req rpcRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorResponse(json.RawMessage("null"), codeParseError, "parse error: "+err.Error())
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(idOrNull(req.ID), codeInvalidRequest, "invalid request")
	}

	result, rpcErr := s.dispatch(ctx, req)
	if len(req.ID) == 0 {
		return nil
	}
	if rpcErr != nil {
		return &rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, codeInternalError, "failed to encode result: "+err.Error())
	}
	return &rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: raw}
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) (interface{}, *rpcError) {
	switch req.Method {
	case "initialize":
		return map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{"listChanged": false},
			},
			"serverInfo": map[string]interface{}{
				"name":    s.name,
				"version": s.version,
			},
			"instructions": s.executor.Registry().Description(),
		}, nil

	case "notifications/initialized", "notifications/cancelled":
		return nil, nil

	case "ping":
		return map[string]interface{}{}, nil

	case "tools/list":
		return toolsListResult{Tools: s.ListTools()}, nil

	case "tools/call":
		var params callParams
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			return nil, &rpcError{Code: codeInvalidParams, Message: "tools/call requires a tool name"}
		}
		if !s.HasTool(params.Name) {
			return nil, &rpcError{Code: codeInvalidParams, Message: "unknown tool: " + params.Name}
		}
		s.logf("tools/call %s", params.Name)
		return s.CallTool(ctx, params.Name, params.Arguments), nil

	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func errorResponse(id json.RawMessage, code int, msg string) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}}
}

func idOrNull(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
