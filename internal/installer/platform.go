package installer

import (
	"context"
	"time"

	"github.com/breeze-rmm/desktop-updater/internal/alert"
	"github.com/breeze-rmm/desktop-updater/internal/privilege"
	"github.com/breeze-rmm/desktop-updater/internal/relaunch"
)

// Platform is everything the install protocol needs from the OS.
type Platform interface {
	ProbeWritable(dir string) bool
	SpawnDetached(exe string, args []string, mode relaunch.Mode) error
	IsAdmin() bool
	SupportsElevation() bool
	ClearIconCache() error
	Alert(title, message string) error
	// WaitForExit blocks until no other process runs exe or timeout passes
	// and returns the pids still running.
	WaitForExit(ctx context.Context, exe string, timeout time.Duration) []int32
}

// Native is the Platform of the running OS.
type Native struct {
	waiter *relaunch.Waiter
}

func NewNative() *Native {
	return &Native{waiter: relaunch.NewWaiter()}
}

func (n *Native) ProbeWritable(dir string) bool {
	return privilege.ProbeWritable(dir)
}

func (n *Native) SpawnDetached(exe string, args []string, mode relaunch.Mode) error {
	return relaunch.SpawnDetached(exe, args, mode)
}

func (n *Native) IsAdmin() bool {
	return privilege.IsAdmin()
}

func (n *Native) SupportsElevation() bool {
	return privilege.SupportsElevation
}

func (n *Native) ClearIconCache() error {
	return clearIconCache()
}

func (n *Native) Alert(title, message string) error {
	return alert.Show(title, message)
}

func (n *Native) WaitForExit(ctx context.Context, exe string, timeout time.Duration) []int32 {
	return n.waiter.WaitForExit(ctx, exe, timeout)
}
