package tools

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestProcessInvokerCapturesStreams(t *testing.T) {
	requireSh(t)
	inv := NewProcessInvoker(nil, time.Second)

	res, err := inv.Invoke(context.Background(), Invocation{
		Tool: "sh",
		Args: []string{"-c", "echo out; echo 'Warning: taxonomy lookup failed' >&2"},
	})
	if err != nil {
		t.Fatalf("stderr output with exit 0 must not fail: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Errorf("expected stdout 'out', got %q", res.Stdout)
	}
	if !strings.Contains(res.Stderr, "taxonomy") {
		t.Errorf("expected stderr to be captured, got %q", res.Stderr)
	}
}

func TestProcessInvokerNonZeroExit(t *testing.T) {
	requireSh(t)
	inv := NewProcessInvoker(nil, time.Second)

	_, err := inv.Invoke(context.Background(), Invocation{
		Tool: "sh",
		Args: []string{"-c", "echo 'BLAST Database error' >&2; exit 2"},
	})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if execErr.ExitCode != 2 {
		t.Errorf("expected exit code 2, got %d", execErr.ExitCode)
	}
	if !strings.Contains(execErr.Stderr, "BLAST Database error") {
		t.Errorf("expected stderr in error, got %q", execErr.Stderr)
	}
}

func TestProcessInvokerMissingBinary(t *testing.T) {
	inv := NewProcessInvoker(nil, time.Second)

	_, err := inv.Invoke(context.Background(), Invocation{Tool: "definitely-not-a-real-binary-xyz"})
	var envErr *EnvironmentError
	if !errors.As(err, &envErr) {
		t.Fatalf("expected EnvironmentError, got %v", err)
	}
}

func TestProcessInvokerTimeout(t *testing.T) {
	requireSh(t)
	inv := NewProcessInvoker(nil, time.Second)

	start := time.Now()
	_, err := inv.Invoke(context.Background(), Invocation{
		Tool:    "sh",
		Args:    []string{"-c", "sleep 10"},
		Timeout: 100 * time.Millisecond,
	})
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
}

func TestProcessInvokerArgumentsAreNotShellExpanded(t *testing.T) {
	requireSh(t)
	inv := NewProcessInvoker(map[string]Command{
		"echo": {Path: "sh", Prefix: nil},
	}, time.Second)

	res, err := inv.Invoke(context.Background(), Invocation{
		Tool: "echo",
		Args: []string{"-c", `printf '%s' "$1"`, "sh", "MK; rm -rf /tmp/nothing"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "MK; rm -rf /tmp/nothing" {
		t.Errorf("argument should arrive verbatim, got %q", res.Stdout)
	}
}

func TestCommandArgv(t *testing.T) {
	c := Command{Path: "blastp", Prefix: []string{"micromamba", "run", "-n", "blast"}}
	got := strings.Join(c.Argv([]string{"-version"}), " ")
	if got != "micromamba run -n blast blastp -version" {
		t.Errorf("unexpected argv: %q", got)
	}
}

func TestProcessInvokerCommandResolution(t *testing.T) {
	inv := NewProcessInvoker(map[string]Command{
		"spider": {Prefix: []string{"micromamba", "run", "-n", "spider"}},
	}, 0)

	if got := inv.Command("spider").Path; got != "spider" {
		t.Errorf("expected path to default to tool id, got %q", got)
	}
	if got := inv.Command("blastp"); got.Path != "blastp" || len(got.Prefix) != 0 {
		t.Errorf("unexpected command for unmapped tool: %+v", got)
	}
}
