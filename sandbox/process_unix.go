//go:build unix

package sandbox

import (
	"os/exec"
	"syscall"
)

// killProcessGroupOnCancel runs the command in its own process group and
// kills the whole group on cancellation, so programs that fork cannot
// outlive their deadline.
func killProcessGroupOnCancel(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
