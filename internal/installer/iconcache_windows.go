//go:build windows

package installer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// clearIconCache asks the shell to rebuild its icon cache so shortcuts pick up
// the new executable's icon.
func clearIconCache() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	ie4uinit := filepath.Join(os.Getenv("SystemRoot"), "System32", "ie4uinit.exe")
	cmd := exec.CommandContext(ctx, ie4uinit, "-show")
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	return cmd.Run()
}
