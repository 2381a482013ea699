package testutil

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// FakeTool writes an executable /bin/sh script named name into a temporary
// directory and returns its path. Tests hand the path to the invoker as a
// per-tool override.
func FakeTool(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake %s: %v", name, err)
	}
	return path
}

// StaticTool is a FakeTool that prints stdout and exits with code.
func StaticTool(t *testing.T, name, stdout string, code int) string {
	t.Helper()

	data := filepath.Join(t.TempDir(), name+".out")
	if err := os.WriteFile(data, []byte(stdout), 0o644); err != nil {
		t.Fatalf("write fake %s output: %v", name, err)
	}
	return FakeTool(t, name, "cat '"+data+"'\nexit "+strconv.Itoa(code))
}
