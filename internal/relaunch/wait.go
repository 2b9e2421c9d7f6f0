package relaunch

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const pollInterval = 250 * time.Millisecond

// ProcessLister returns the executable paths of running processes keyed by
// pid. It is a seam for tests.
type ProcessLister func(ctx context.Context) (map[int32]string, error)

// listProcesses snapshots every process whose executable can be resolved.
func listProcesses(ctx context.Context) (map[int32]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	exes := make(map[int32]string, len(procs))
	skipped := 0
	for _, p := range procs {
		exe, err := p.ExeWithContext(ctx)
		if err != nil || exe == "" {
			skipped++
			continue
		}
		exes[p.Pid] = exe
	}
	if skipped > 0 {
		log.Debug("process snapshot skipped processes", "skipped", skipped, "total", len(procs))
	}
	return exes, nil
}

// Waiter polls until no other process runs a given executable.
type Waiter struct {
	List     ProcessLister
	Interval time.Duration
	Self     int32
}

// NewWaiter returns a Waiter backed by gopsutil that ignores the calling
// process.
func NewWaiter() *Waiter {
	return &Waiter{
		List:     listProcesses,
		Interval: pollInterval,
		Self:     int32(os.Getpid()),
	}
}

// WaitForExit blocks until no process other than the caller runs exe, ctx is
// done or timeout passes. It returns the pids still running, which is empty
// on a clean wait. A failed process listing is treated as nothing running.
func (w *Waiter) WaitForExit(ctx context.Context, exe string, timeout time.Duration) []int32 {
	if timeout <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := w.Interval
	if interval <= 0 {
		interval = pollInterval
	}
	want := normalizeExe(exe)

	var remaining []int32
	for {
		procs, err := w.List(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return remaining
			}
			log.Warn("failed to list processes", "error", err)
			return nil
		}

		remaining = remaining[:0]
		for pid, path := range procs {
			if pid != w.Self && normalizeExe(path) == want {
				remaining = append(remaining, pid)
			}
		}
		if len(remaining) == 0 {
			return nil
		}

		log.Debug("waiting for running instances to exit", "exe", exe, "pids", remaining)
		select {
		case <-ctx.Done():
			log.Warn("instances still running after wait", "exe", exe, "pids", remaining, "timeout", timeout)
			return remaining
		case <-time.After(interval):
		}
	}
}

func normalizeExe(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	path = filepath.Clean(path)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
	}
	return path
}
