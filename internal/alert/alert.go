// Package alert shows a blocking native message to the desktop user.
package alert

import "github.com/breeze-rmm/desktop-updater/internal/logging"

var log = logging.L("alert")

// Show displays title and message and returns once the user dismisses it.
// Where no dialog facility exists it falls back to a notification and
// returns immediately.
func Show(title, message string) error {
	log.Info("showing alert", "title", title, "message", message)
	if err := show(title, message); err != nil {
		log.Warn("alert failed", "error", err)
		return err
	}
	return nil
}
