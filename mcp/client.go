package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// Client talks to an MCP server over newline-delimited JSON-RPC.
// It is used to probe a deployed server, e.g. `biotools mcp probe`.
type Client struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	requestID uint64
	mu        sync.Mutex

	// ServerInfo is what the server reported from initialize.
	ServerInfo map[string]interface{}
}

// NewClient starts command as an MCP server and initializes a session.
func NewClient(ctx context.Context, command string, args ...string) (*Client, error) {
	cmd := exec.CommandContext(ctx, command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to start MCP server: %w", err)
	}

	client := &Client{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}
	if err := client.initialize(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}
	return client, nil
}

// NewStreamClient initializes a session over an existing connection.
func NewStreamClient(ctx context.Context, r io.Reader, w io.WriteCloser) (*Client, error) {
	client := &Client{stdin: w, stdout: bufio.NewReader(r)}
	if err := client.initialize(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}
	return client, nil
}

func (c *Client) initialize(ctx context.Context) error {
	params := map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "biotools-probe",
			"version": "0.1.0",
		},
	}

	result, err := c.call(ctx, "initialize", params)
	if err != nil {
		return err
	}
	var initResult struct {
		ServerInfo map[string]interface{} `json:"serverInfo"`
	}
	if err := json.Unmarshal(result, &initResult); err == nil {
		c.ServerInfo = initResult.ServerInfo
	}
	return c.notify("notifications/initialized")
}

// ListTools returns all tools available on the server.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var list toolsListResult
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, fmt.Errorf("failed to parse tools list: %w", err)
	}
	return list.Tools, nil
}

// CallTool calls a tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (CallResult, error) {
	result, err := c.call(ctx, "tools/call", callParams{Name: name, Arguments: arguments})
	if err != nil {
		return CallResult{}, err
	}

	var out CallResult
	if err := json.Unmarshal(result, &out); err != nil {
		return CallResult{}, fmt.Errorf("failed to parse tool result: %w", err)
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		rawParams = data
	}

	c.requestID++
	id := json.RawMessage(strconv.FormatUint(c.requestID, 10))
	if err := c.send(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: rawParams}); err != nil {
		return nil, err
	}

	line, err := c.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var response rpcResponse
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("MCP error %d: %s", response.Error.Code, response.Error.Message)
	}
	return response.Result, nil
}

func (c *Client) notify(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(rpcRequest{JSONRPC: "2.0", Method: method})
}

func (c *Client) send(req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	return nil
}

// Close ends the session and stops the server process, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stdin != nil {
		c.stdin.Close()
	}

	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
	return nil
}
