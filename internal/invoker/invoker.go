package invoker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"bytemomo/harpoon/internal/domain"
	"bytemomo/harpoon/pkg/harpoonerr"
	"bytemomo/harpoon/pkg/logger"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout applies to invocations that carry none.
	DefaultTimeout = 5 * time.Minute
	// DefaultWaitDelay bounds how long Wait blocks on pipes held open by
	// grandchildren once the process group is killed.
	DefaultWaitDelay = 2 * time.Second
)

// Invoker runs external tools as child processes. It never goes through a
// shell and never retries.
type Invoker struct {
	log       *log.Entry
	paths     map[string]string
	waitDelay time.Duration
}

// New returns an Invoker. paths maps tool names to explicit binaries and
// takes precedence over PATH lookup.
func New(l *log.Entry, paths map[string]string) *Invoker {
	p := make(map[string]string, len(paths))
	for k, v := range paths {
		if v != "" {
			p[k] = v
		}
	}
	return &Invoker{
		log:       logger.OrNop(l).WithField("component", "invoker"),
		paths:     p,
		waitDelay: DefaultWaitDelay,
	}
}

// Resolve locates the binary for tool.
func (i *Invoker) Resolve(tool string) (string, error) {
	name := tool
	if p, ok := i.paths[tool]; ok {
		name = p
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", harpoonerr.E("invoke", harpoonerr.ToolNotFound, fmt.Sprintf("%s not found", tool), err)
	}
	return path, nil
}

// Available reports whether tool can be resolved.
func (i *Invoker) Available(tool string) bool {
	_, err := i.Resolve(tool)
	return err == nil
}

// Invoke spawns exactly one child for inv and waits for it. On timeout the
// whole process group is killed and the partial output is returned together
// with a ProcessTimeout error. A non-zero exit not listed in
// inv.AllowedExitCodes yields a ProcessError; the RawOutput is returned in
// every case except ToolNotFound.
func (i *Invoker) Invoke(ctx context.Context, inv domain.Invocation) (domain.RawOutput, error) {
	const op = "invoke"

	path, err := i.Resolve(inv.Tool)
	if err != nil {
		return domain.RawOutput{}, err
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.WaitDelay = i.waitDelay
	killGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	out := domain.RawOutput{CommandLine: CommandLine(inv.Tool, inv.Args)}
	entry := i.log.WithFields(log.Fields{
		"tool": inv.Tool,
		"args": inv.Args,
	})
	entry.Debug("Starting tool")

	start := time.Now()
	runErr := cmd.Run()
	out.Duration = time.Since(start)
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
	out.ExitCode = exitCode(cmd, runErr)

	entry = entry.WithFields(log.Fields{
		"duration":  out.Duration.String(),
		"exit_code": out.ExitCode,
	})

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		entry.Warn("Tool timed out")
		return out, harpoonerr.E(op, harpoonerr.ProcessTimeout,
			fmt.Sprintf("%s timed out after %s", inv.Tool, timeout), ctx.Err())
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		entry.Warn("Tool canceled")
		return out, harpoonerr.E(op, harpoonerr.ProcessError, fmt.Sprintf("%s canceled", inv.Tool), ctx.Err())
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			entry.WithError(runErr).Error("Tool failed to start")
			return out, harpoonerr.E(op, harpoonerr.ProcessError, fmt.Sprintf("%s failed to start", inv.Tool), runErr)
		}
		if !allowed(out.ExitCode, inv.AllowedExitCodes) {
			entry.Warn("Tool exited with error")
			return out, harpoonerr.Process(op, out.ExitCode, strings.TrimSpace(out.Stderr), runErr)
		}
	}

	entry.Info("Tool finished")
	return out, nil
}

// Partial reports whether a failed invocation may still be used as a
// caveated result, and returns the caveat text.
func Partial(inv domain.Invocation, out domain.RawOutput, err error) (string, bool) {
	if err == nil || !inv.AllowPartial || strings.TrimSpace(out.Stdout) == "" {
		return "", false
	}
	switch harpoonerr.KindOf(err) {
	case harpoonerr.ProcessError, harpoonerr.ProcessTimeout:
		return fmt.Sprintf("partial output kept: %v", err), true
	}
	return "", false
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func allowed(code int, codes []int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// CommandLine renders argv for display. It is never executed.
func CommandLine(tool string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quote(tool))
	for _, a := range args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>(){}*?!#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
