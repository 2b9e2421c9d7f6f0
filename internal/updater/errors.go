package updater

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFeedURL is returned by CheckForUpdates before SetFeedURL.
	ErrNoFeedURL = errors.New("feed url is not set")
	// ErrEmptyFeedURL is returned by SetFeedURL for an empty url.
	ErrEmptyFeedURL = errors.New("feed url must not be empty")
	// ErrNoUpdate is returned by QuitAndInstall before update-downloaded.
	ErrNoUpdate = errors.New("no downloaded update to install")
	// ErrDownloading is returned by QuitAndInstall while a download runs.
	ErrDownloading = errors.New("update download in progress")
)

// ManifestError means the feed answered 200 with a body that is not a usable
// manifest.
type ManifestError struct {
	Reason string
	Err    error
}

func (e *ManifestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid update manifest: %s: %v", e.Reason, e.Err)
	}
	return "invalid update manifest: " + e.Reason
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// ProtocolError means the feed could not be reached or answered with a status
// other than 200 or 204. StatusCode is 0 for transport failures.
type ProtocolError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ProtocolError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("feed request %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("feed %s returned status %d", e.URL, e.StatusCode)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// InsecureTransportError means the manifest points at a payload over an
// unencrypted scheme while insecure transport is not allowed.
type InsecureTransportError struct {
	URL    string
	Scheme string
}

func (e *InsecureTransportError) Error() string {
	return fmt.Sprintf("update url %s must use a secure scheme, got %q", e.URL, e.Scheme)
}

// DownloadError wraps a failed payload transfer.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// UnpackError wraps a failed extraction into the scratch directory.
type UnpackError struct {
	Dir string
	Err error
}

func (e *UnpackError) Error() string {
	return fmt.Sprintf("unpack into %s: %v", e.Dir, e.Err)
}

func (e *UnpackError) Unwrap() error {
	return e.Err
}
