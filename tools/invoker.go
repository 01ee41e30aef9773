// External program invoker.
//
// Information Hiding:
// - Process spawning and stream capture hidden
// - Environment prefixes (micromamba run) resolved internally
// - Exit status and timeout classification hidden behind typed errors

package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"
)

// Logical ids of the external programs this system drives.
const (
	ToolBlastp        = "blastp"
	ToolUpdateBlastDB = "update_blastdb"
	ToolSpider        = "spider"
)

// DefaultTimeout bounds an invocation when neither the call nor the invoker sets one.
const DefaultTimeout = 300 * time.Second

// Command describes how a logical tool id maps onto a program.
// The program runs as Prefix + Path + args.
type Command struct {
	Path   string            `yaml:"command"`
	Prefix []string          `yaml:"prefix"`
	Env    map[string]string `yaml:"env"`
}

// Argv returns the full argument vector for the command with the given args.
func (c Command) Argv(args []string) []string {
	argv := make([]string, 0, len(c.Prefix)+1+len(args))
	argv = append(argv, c.Prefix...)
	argv = append(argv, c.Path)
	return append(argv, args...)
}

// Invocation is one request to run an external tool.
type Invocation struct {
	Tool    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// Execution is what a finished program left behind.
type Execution struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Invoker runs external tools. Implementations must treat the exit code as
// authoritative: stderr output alone is not a failure. They should return
// once ctx is done; callers stop waiting at their deadline either way.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (Execution, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, inv Invocation) (Execution, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, inv Invocation) (Execution, error) {
	return f(ctx, inv)
}

// ProcessInvoker runs tools as child processes with a discrete argument
// vector. Nothing is passed through a shell.
type ProcessInvoker struct {
	commands map[string]Command
	timeout  time.Duration
	logger   *log.Logger
}

// NewProcessInvoker creates an invoker. Tools missing from commands run
// the tool id itself as the program name.
func NewProcessInvoker(commands map[string]Command, timeout time.Duration) *ProcessInvoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cmds := make(map[string]Command, len(commands))
	for k, v := range commands {
		cmds[k] = v
	}
	return &ProcessInvoker{commands: cmds, timeout: timeout}
}

// WithLogger sets the logger used for invocation traces.
func (p *ProcessInvoker) WithLogger(logger *log.Logger) *ProcessInvoker {
	p.logger = logger
	return p
}

// Command returns the resolved command for a tool id.
func (p *ProcessInvoker) Command(tool string) Command {
	if c, ok := p.commands[tool]; ok {
		if c.Path == "" {
			c.Path = tool
		}
		return c
	}
	return Command{Path: tool}
}

// Invoke runs the tool and waits for it to exit or time out.
func (p *ProcessInvoker) Invoke(ctx context.Context, inv Invocation) (Execution, error) {
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}

	toolCmd := p.Command(inv.Tool)
	argv := toolCmd.Argv(inv.Args)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.WaitDelay = 2 * time.Second
	if len(toolCmd.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range toolCmd.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.logf("running %s: %q (dir=%q, timeout=%s)", inv.Tool, argv, inv.Dir, timeout)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Execution{}, &EnvironmentError{Tool: inv.Tool, Err: err}
	}
	err := cmd.Wait()

	res := Execution{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		p.logf("%s timed out after %s", inv.Tool, timeout)
		return res, &TimeoutError{Tool: inv.Tool, Timeout: timeout}
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("%s cancelled: %w", inv.Tool, ctx.Err())
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.logf("%s exited with code %d", inv.Tool, exitErr.ExitCode())
			return res, &ExecutionError{Tool: inv.Tool, ExitCode: exitErr.ExitCode(), Stderr: res.Stderr}
		}
		return res, fmt.Errorf("failed to wait for %s: %w", inv.Tool, err)
	}

	p.logf("%s finished in %s", inv.Tool, res.Duration.Round(time.Millisecond))
	return res, nil
}

func (p *ProcessInvoker) logf(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}
