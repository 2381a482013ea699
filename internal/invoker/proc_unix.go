//go:build unix

package invoker

import (
	"os/exec"
	"syscall"
)

// killGroup puts the child in its own process group and makes cancellation
// kill the group, so helpers spawned by the tool die with it.
func killGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
