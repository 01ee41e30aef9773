// Package mcp serves biotools over the Model Context Protocol: JSON-RPC 2.0
// on stdin/stdout, plus a plain HTTP variant, and a small client for probing
// MCP servers.
//
// Information Hiding:
// - JSON-RPC framing and error codes hidden
// - Tool registry to MCP schema translation hidden
// - Request ID tracking hidden

package mcp

import (
	"encoding/json"

	"github.com/richinex/biotools/tools"
)

// ProtocolVersion is the MCP revision spoken by Server and Client.
const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// rpcRequest is a JSON-RPC request. A missing ID marks a notification.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is a JSON-RPC error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ToolInfo describes a tool in tools/list.
type ToolInfo struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// toolsListResult is the result of tools/list.
type toolsListResult struct {
	Tools []ToolInfo `json:"tools"`
}

// callParams are the params of tools/call, also the body of POST /mcp/call.
type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Content is one block of tool output.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the result of tools/call.
type CallResult struct {
	Content           []Content   `json:"content"`
	IsError           bool        `json:"isError"`
	StructuredContent interface{} `json:"structuredContent,omitempty"`
}

// toolInfo renders registry metadata in MCP form.
func toolInfo(meta tools.ToolMetadata) ToolInfo {
	// A map of plain values always marshals.
	schema, _ := json.Marshal(meta.InputSchema())
	description := meta.Description
	return ToolInfo{
		Name:        meta.Name,
		Title:       meta.Title,
		Description: &description,
		InputSchema: schema,
	}
}

// callResult renders a tool result in MCP form.
func callResult(result tools.ToolResult) CallResult {
	text := result.Output
	if !result.Success() && text == "" {
		text = result.Error.Error()
	}
	return CallResult{
		Content:           []Content{{Type: "text", Text: text}},
		IsError:           !result.Success(),
		StructuredContent: result.Data,
	}
}
