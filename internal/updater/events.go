package updater

import "fmt"

// EventType names a session event.
type EventType string

const (
	EventUpdateAvailable    EventType = "update-available"
	EventUpdateNotAvailable EventType = "update-not-available"
	EventDownloadProgress   EventType = "download-progress"
	EventUpdateDownloaded   EventType = "update-downloaded"
	EventError              EventType = "error"
)

// Event is delivered to listeners in order, never concurrently. Ticker
// download-progress events come from the progress goroutine, which is joined
// before the final 100; every other event comes from the check goroutine.
// Percent is set for download-progress, Manifest for update-available and
// update-downloaded, Err for error.
type Event struct {
	Type     EventType
	Percent  float64
	Manifest *Manifest
	Err      error
}

func (e Event) String() string {
	switch e.Type {
	case EventDownloadProgress:
		return fmt.Sprintf("%s(%.1f)", e.Type, e.Percent)
	case EventError:
		return fmt.Sprintf("%s(%v)", e.Type, e.Err)
	default:
		return string(e.Type)
	}
}

// Terminal reports whether e ends a check.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventUpdateNotAvailable, EventUpdateDownloaded, EventError:
		return true
	}
	return false
}

// Listener receives session events. It runs on the check goroutine and should
// not block for long.
type Listener func(Event)
