//go:build !windows

package executor

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the trainer in its own process group so a
// termination reaches every worker it forks.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateProcess(p *os.Process) error {
	if p == nil {
		return os.ErrProcessDone
	}
	if err := syscall.Kill(-p.Pid, syscall.SIGTERM); err != nil {
		if err == syscall.ESRCH {
			return os.ErrProcessDone
		}
		return p.Signal(syscall.SIGTERM)
	}
	return nil
}
