// Tool dispatch.
//
// Information Hiding:
// - Argument validation ordering hidden
// - Panic containment hidden

package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Executor looks tools up in a registry and runs them once.
// Retries are the caller's business.
type Executor struct {
	registry *Registry
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Registry returns the registry the executor dispatches to.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Call runs the named tool. Unknown tools, invalid arguments and panics
// come back as failed results rather than errors.
func (e *Executor) Call(ctx context.Context, name string, args json.RawMessage) ToolResult {
	tool, ok := e.registry.Get(name)
	if !ok {
		return FailureResultf("unknown tool: %s", name)
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	result, err := ExecuteOnce(ctx, tool, args)
	if err != nil {
		return FailureResult(fmt.Errorf("tool '%s' failed: %w", name, err))
	}
	return result
}

// ExecuteOnce validates and runs a tool once.
func ExecuteOnce(ctx context.Context, tool Tool, args json.RawMessage) (result ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = FailureResultf("internal error in %s", tool.Metadata().Name)
			err = nil
		}
	}()

	if err := tool.Validate(args); err != nil {
		return FailureResult(fmt.Errorf("validation failed: %w", err)), nil
	}

	return tool.Execute(ctx, args)
}
