// Package privilege answers whether the installer can write where it needs to
// and whether the current process already runs with administrator rights.
package privilege

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/breeze-rmm/desktop-updater/internal/logging"
)

var log = logging.L("privilege")

const probePrefix = ".breeze-update-probe-"

// ProbeWritable reports whether a new entry can be created inside dir. It
// creates and removes a randomly named directory; any failure to create it
// counts as not writable.
func ProbeWritable(dir string) bool {
	probe := filepath.Join(dir, probePrefix+uuid.NewString())

	if err := os.Mkdir(probe, 0o700); err != nil {
		if !errors.Is(err, fs.ErrPermission) {
			log.Debug("writability probe failed", "dir", dir, "error", err)
		}
		return false
	}
	if err := os.Remove(probe); err != nil {
		log.Warn("failed to remove writability probe", "path", probe, "error", err)
	}
	return true
}

// NeedsElevation reports whether replacing installDir requires elevated
// rights: the installer must be able to write into its parent directory.
func NeedsElevation(installDir string) bool {
	return !ProbeWritable(filepath.Dir(filepath.Clean(installDir)))
}
