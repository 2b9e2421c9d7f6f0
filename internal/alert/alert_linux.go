//go:build linux

package alert

import (
	"errors"
	"os/exec"
)

// show prefers a blocking zenity or kdialog dialog and falls back to
// notify-send, which does not block.
func show(title, message string) error {
	if path, err := exec.LookPath("zenity"); err == nil {
		return exec.Command(path, "--error", "--title", title, "--text", message).Run()
	}
	if path, err := exec.LookPath("kdialog"); err == nil {
		return exec.Command(path, "--title", title, "--error", message).Run()
	}
	if path, err := exec.LookPath("notify-send"); err == nil {
		return exec.Command(path, "-u", "critical", title, message).Run()
	}
	return errors.New("no dialog tool found (zenity, kdialog, notify-send)")
}
