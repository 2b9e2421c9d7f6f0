//go:build !windows

package relaunch

import (
	"os"
	"os/exec"
	"syscall"
)

func spawn(exe string, args []string, mode Mode) (int, error) {
	if mode == Elevated {
		return 0, ErrElevationUnsupported
	}

	cmd := exec.Command(exe, args...)
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid

	// Release the process so the OS can fully detach it
	if err := cmd.Process.Release(); err != nil {
		log.Warn("failed to release spawned process", "pid", pid, "error", err)
	}
	return pid, nil
}
