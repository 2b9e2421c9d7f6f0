//go:build !windows

package installer

// clearIconCache is a no-op: desktop environments here re-read icons from
// the bundle.
func clearIconCache() error {
	return nil
}
