// Package relaunch starts the next process generation detached from the
// current one and waits for earlier instances to go away.
package relaunch

import (
	"errors"
	"fmt"

	"github.com/breeze-rmm/desktop-updater/internal/logging"
)

var log = logging.L("relaunch")

// Mode selects the privilege level of a spawned process.
type Mode int

const (
	// Normal inherits the current privilege level.
	Normal Mode = iota
	// Elevated asks the OS for administrator rights (a UAC prompt on Windows).
	Elevated
	// Deelevated drops from administrator back to the desktop user.
	Deelevated
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Elevated:
		return "elevated"
	case Deelevated:
		return "deelevated"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ErrElevationUnsupported is returned when Elevated is requested on a
// platform without an elevation prompt.
var ErrElevationUnsupported = errors.New("elevated spawn not supported on this platform")

// SpawnDetached starts exe with args in its own process group and releases
// it. The caller must not wait on the child; the next step is to exit.
func SpawnDetached(exe string, args []string, mode Mode) error {
	log.Info("spawning next generation", "exe", exe, "args", args, "mode", mode.String())
	pid, err := spawn(exe, args, mode)
	if err != nil {
		log.Error("spawn failed", "exe", exe, "mode", mode.String(), logging.KeyError, err)
		return fmt.Errorf("spawn %s (%s): %w", exe, mode, err)
	}
	if pid > 0 {
		log.Info("spawned process", "pid", pid, "exe", exe)
	}
	return nil
}
