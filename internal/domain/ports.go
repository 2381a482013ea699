package domain

import "context"

// ToolRunner executes one external tool. The invoker package provides the
// process-backed implementation.
type ToolRunner interface {
	Invoke(ctx context.Context, inv Invocation) (RawOutput, error)
	Available(tool string) bool
}
