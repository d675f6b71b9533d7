//go:build !windows

package infrastructure

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup starts the downloader in its own process group so the
// converters it spawns can be killed with it
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

func killProcessTree(p *os.Process) error {
	if err := p.Signal(syscall.Signal(0)); errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return p.Kill()
	}
	return nil
}
