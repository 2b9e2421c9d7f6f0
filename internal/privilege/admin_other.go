//go:build !windows

package privilege

import "os"

// SupportsElevation is false where the installer never changes privilege
// level between generations.
const SupportsElevation = false

// IsAdmin returns true if the process runs with effective UID 0.
func IsAdmin() bool {
	return os.Geteuid() == 0
}
