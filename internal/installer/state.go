package installer

import "fmt"

// State is the position of this process in the install protocol.
type State int

const (
	// Idle: no install in progress. The post-install generation returns here
	// after cleanup and continues as the normal application.
	Idle State = iota
	// AwaitingElevationDecision: the live process is probing whether the
	// next generation needs administrator rights.
	AwaitingElevationDecision
	// RelaunchedInstall: the install generation has been spawned (or this
	// process is it).
	RelaunchedInstall
	// Copying: the scratch directory is being copied over the install
	// directory.
	Copying
	// RelaunchedFinal: the installed executable has been spawned with the
	// post-install task.
	RelaunchedFinal
	// CleaningUp: the final generation is deleting the scratch directory.
	CleaningUp
	// Terminal: this process is exiting.
	Terminal
)

var stateNames = [...]string{
	Idle:                      "idle",
	AwaitingElevationDecision: "awaiting-elevation-decision",
	RelaunchedInstall:         "relaunched-install",
	Copying:                   "copying",
	RelaunchedFinal:           "relaunched-final",
	CleaningUp:                "cleaning-up",
	Terminal:                  "terminal",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}
