package installer

import (
	"errors"
	"fmt"
)

// ErrNotIdle is returned by QuitAndInstall while another install step runs.
var ErrNotIdle = errors.New("installer is not idle")

// ElevationDeclinedError means the install generation needed administrator
// rights and started without them: the user declined the prompt. The update
// is abandoned and the previous executable relaunched.
type ElevationDeclinedError struct {
	InstallDir string
}

func (e *ElevationDeclinedError) Error() string {
	return fmt.Sprintf("administrator rights required to write %s were not granted", e.InstallDir)
}

// SpawnError wraps a failure to start the next generation.
type SpawnError struct {
	Exe string
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Exe, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
