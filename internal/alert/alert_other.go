//go:build !darwin && !linux && !windows

package alert

import "errors"

func show(title, message string) error {
	return errors.New("alerts not supported on this platform")
}
