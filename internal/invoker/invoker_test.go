//go:build unix

package invoker

import (
	"context"
	"strings"
	"testing"
	"time"

	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/internal/testutil"
	"bytemomo/harpoon/pkg/harpoonerr"
)

func TestInvokeCapturesOutput(t *testing.T) {
	t.Parallel()

	tool := testutil.FakeTool(t, "echoer", `echo "out:$1"; echo "err:$2" >&2`)
	inv := New(nil, map[string]string{"echoer": tool})

	out, err := inv.Invoke(context.Background(), domain.Invocation{
		Tool:    "echoer",
		Args:    []string{"a b", "c;d"},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out.Stdout) != "out:a b" {
		t.Errorf("argument was split or reinterpreted: %q", out.Stdout)
	}
	if strings.TrimSpace(out.Stderr) != "err:c;d" {
		t.Errorf("unexpected stderr: %q", out.Stderr)
	}
	if out.CommandLine != "echoer 'a b' 'c;d'" {
		t.Errorf("unexpected command line: %s", out.CommandLine)
	}
}

func TestInvokeToolNotFound(t *testing.T) {
	t.Parallel()

	inv := New(nil, map[string]string{"ghost": "/nonexistent/ghost-tool"})
	_, err := inv.Invoke(context.Background(), domain.Invocation{Tool: "ghost", Timeout: time.Second})
	if !harpoonerr.Is(err, harpoonerr.ToolNotFound) {
		t.Fatalf("expected ToolNotFound, got %v", err)
	}
	if f := harpoonerr.ToFailure(err); !f.Environment {
		t.Fatal("missing tool must be flagged as an environment problem")
	}
	if inv.Available("ghost") {
		t.Fatal("ghost must not be available")
	}
}

func TestInvokeNonZeroExit(t *testing.T) {
	t.Parallel()

	tool := testutil.FakeTool(t, "failer", `echo partial; echo "bad flag" >&2; exit 3`)
	inv := New(nil, map[string]string{"failer": tool})

	out, err := inv.Invoke(context.Background(), domain.Invocation{Tool: "failer", Timeout: 5 * time.Second})
	if !harpoonerr.Is(err, harpoonerr.ProcessError) {
		t.Fatalf("expected ProcessError, got %v", err)
	}
	f := harpoonerr.ToFailure(err)
	if f.ExitCode != 3 || f.Stderr != "bad flag" {
		t.Fatalf("unexpected failure payload: %+v", f)
	}
	if out.ExitCode != 3 || strings.TrimSpace(out.Stdout) != "partial" {
		t.Fatalf("raw output must survive the error: %+v", out)
	}
}

func TestInvokeAllowedExitCode(t *testing.T) {
	t.Parallel()

	tool := testutil.FakeTool(t, "hydra", `echo done; exit 255`)
	inv := New(nil, map[string]string{"hydra": tool})

	out, err := inv.Invoke(context.Background(), domain.Invocation{
		Tool:             "hydra",
		Timeout:          5 * time.Second,
		AllowedExitCodes: []int{255},
	})
	if err != nil {
		t.Fatalf("allowed exit code must not fail: %v", err)
	}
	if out.ExitCode != 255 {
		t.Fatalf("expected exit code 255, got %d", out.ExitCode)
	}
}

func TestInvokeKillsSlowToolAtTimeout(t *testing.T) {
	t.Parallel()

	// The child sleeps in a subshell so the group kill is what ends it.
	tool := testutil.FakeTool(t, "slow", `echo started; (sleep 30); echo never`)
	inv := New(nil, map[string]string{"slow": tool})

	timeout := 300 * time.Millisecond
	start := time.Now()
	out, err := inv.Invoke(context.Background(), domain.Invocation{Tool: "slow", Timeout: timeout})
	elapsed := time.Since(start)

	if !harpoonerr.Is(err, harpoonerr.ProcessTimeout) {
		t.Fatalf("expected ProcessTimeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out after") {
		t.Fatalf("timeout message must be distinguishable: %v", err)
	}
	if elapsed > timeout+DefaultWaitDelay+time.Second {
		t.Fatalf("invoke blocked for %s, beyond the timeout boundary", elapsed)
	}
	if strings.Contains(out.Stdout, "never") {
		t.Fatal("slow tool kept running after timeout")
	}
	if !strings.Contains(out.Stdout, "started") {
		t.Fatalf("partial output lost: %q", out.Stdout)
	}
}

func TestPartial(t *testing.T) {
	inv := domain.Invocation{Tool: "nuclei", AllowPartial: true}
	out := domain.RawOutput{Stdout: "{}"}
	err := harpoonerr.Process("invoke", 1, "", nil)

	if _, ok := Partial(inv, out, err); !ok {
		t.Fatal("expected partial result to be accepted")
	}
	inv.AllowPartial = false
	if _, ok := Partial(inv, out, err); ok {
		t.Fatal("partial result must require opt-in")
	}
	inv.AllowPartial = true
	if _, ok := Partial(inv, domain.RawOutput{}, err); ok {
		t.Fatal("empty output is never a partial result")
	}
}
