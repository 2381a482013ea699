package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bytemomo/harpoon/pkg/harpoonerr"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(reportFailure(err))
	}
}

// reportFailure prints err as a structured failure on stderr and returns
// the process exit code.
func reportFailure(err error) int {
	f := harpoonerr.ToFailure(err)
	b, mErr := json.MarshalIndent(f, "", "  ")
	if mErr != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Fprintln(os.Stderr, string(b))
	if f.Environment {
		return 3
	}
	return 1
}
