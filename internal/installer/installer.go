// Package installer runs the process-generation protocol that replaces an
// installed application with an unpacked update.
//
// The live process calls QuitAndInstall, which relaunches the executable found
// in the scratch directory with an install task and exits. That generation
// copies the scratch directory over the install directory, relaunches the
// installed executable with a post-install task and exits. The final
// generation deletes the scratch directory and carries on as the normal
// application.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/breeze-rmm/desktop-updater/internal/archive"
	"github.com/breeze-rmm/desktop-updater/internal/copier"
	"github.com/breeze-rmm/desktop-updater/internal/lifecycle"
	"github.com/breeze-rmm/desktop-updater/internal/logging"
	"github.com/breeze-rmm/desktop-updater/internal/relaunch"
	"github.com/breeze-rmm/desktop-updater/internal/task"
)

var log = logging.L("installer")

// DefaultDisableGPUFlag is appended to the host's argv when a generation is
// asked to start without hardware acceleration.
const DefaultDisableGPUFlag = "--disable-gpu"

// Alert texts.
const (
	titleElevationDeclined = "Update cancelled"
	msgElevationDeclined   = "Administrator rights are required to install this update. The current version will be started instead."
	titleCopyFailed        = "Update failed"
	msgCopyFailed          = "The update could not replace the installed files. The application will restart with the files that could be written."
)

// Copier replaces dst with the contents of src.
type Copier interface {
	Copy(ctx context.Context, src, dst string) copier.Outcome
}

// Config wires an Installer. Platform, Copier and Terminator are required.
type Config struct {
	Platform   Platform
	Copier     Copier
	Terminator lifecycle.Terminator

	// ExitWaitTimeout bounds how long the install generation waits for other
	// instances of the installed executable to exit before copying.
	ExitWaitTimeout time.Duration

	// DisableGPUFlag overrides DefaultDisableGPUFlag. Set to "-" to never
	// append a flag.
	DisableGPUFlag string

	// Executable returns the path of the running executable. Defaults to
	// os.Executable with symlinks resolved.
	Executable func() (string, error)
}

// Installer is the per-process install state machine.
type Installer struct {
	cfg Config

	mu         sync.Mutex
	state      State
	copyFailed bool
}

// New returns an Installer in the Idle state.
func New(cfg Config) *Installer {
	if cfg.Executable == nil {
		cfg.Executable = executable
	}
	if cfg.DisableGPUFlag == "" {
		cfg.DisableGPUFlag = DefaultDisableGPUFlag
	}
	return &Installer{cfg: cfg}
}

func executable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}

// State returns the current protocol state.
func (in *Installer) State() State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// CopyFailed reports whether the post-install task said the copy failed.
func (in *Installer) CopyFailed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.copyFailed
}

func (in *Installer) setState(s State) {
	in.mu.Lock()
	prev := in.state
	in.state = s
	in.mu.Unlock()
	log.Debug("state transition", "from", prev.String(), "to", s.String())
}

// Dispatch runs the task decoded from argv. A nil task is a normal start and
// does nothing. An install task always ends the process through the
// Terminator. A post-install task cleans up and returns so startup continues.
func (in *Installer) Dispatch(ctx context.Context, t task.Task) error {
	switch t := t.(type) {
	case nil:
		return nil
	case *task.Install:
		in.RunInstall(ctx, t)
		return nil
	case *task.PostInstall:
		return in.RunPostInstall(t)
	default:
		return fmt.Errorf("unhandled task %T", t)
	}
}

// QuitAndInstall hands the unpacked update in scratchDir to the next
// generation and exits. It returns only on failure, leaving this process
// running and the installer Idle.
func (in *Installer) QuitAndInstall(scratchDir string, disableGPU bool) error {
	in.mu.Lock()
	if in.state != Idle {
		state := in.state
		in.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotIdle, state)
	}
	in.state = AwaitingElevationDecision
	in.mu.Unlock()

	exe, err := in.cfg.Executable()
	if err != nil {
		in.setState(Idle)
		return fmt.Errorf("resolve executable: %w", err)
	}
	installDir := filepath.Dir(exe)
	exeName := filepath.Base(exe)

	scratchExe := filepath.Join(scratchDir, exeName)
	if _, err := os.Stat(scratchExe); err != nil {
		in.setState(Idle)
		return fmt.Errorf("update does not contain %s: %w", exeName, err)
	}

	p := in.cfg.Platform
	wasAdmin := p.IsAdmin()
	needAdmin := false
	if p.SupportsElevation() {
		needAdmin = !p.ProbeWritable(filepath.Dir(installDir))
	}

	install := &task.Install{
		InstallDir: installDir,
		ExeName:    exeName,
		WasAdmin:   wasAdmin,
		NeedAdmin:  needAdmin,
		DisableGPU: disableGPU,
	}
	mode := relaunch.Normal
	if needAdmin && !wasAdmin {
		mode = relaunch.Elevated
	}

	log.Info("handing update to install generation",
		"scratchDir", scratchDir,
		"installDir", installDir,
		"wasAdmin", wasAdmin,
		"needAdmin", needAdmin,
		"mode", mode.String(),
	)

	if err := p.SpawnDetached(scratchExe, in.withGPUFlag(install.Args(), disableGPU), mode); err != nil {
		in.setState(Idle)
		return &SpawnError{Exe: scratchExe, Err: err}
	}

	in.setState(RelaunchedInstall)
	in.terminate()
	return nil
}

// RunInstall is the install generation. It never returns control to the
// host: every branch ends in the Terminator.
func (in *Installer) RunInstall(ctx context.Context, t *task.Install) {
	in.setState(RelaunchedInstall)
	tlog := logging.WithTask(log, string(task.KindInstall))
	p := in.cfg.Platform
	installedExe := filepath.Join(t.InstallDir, t.ExeName)

	if p.SupportsElevation() && t.NeedAdmin && !p.IsAdmin() {
		err := &ElevationDeclinedError{InstallDir: t.InstallDir}
		tlog.Warn("aborting install", logging.KeyError, err)
		if alertErr := p.Alert(titleElevationDeclined, msgElevationDeclined); alertErr != nil {
			tlog.Warn("failed to show alert", logging.KeyError, alertErr)
		}
		// Hand the scratch directory on so the previous install deletes it.
		var args []string
		if exe, exeErr := in.cfg.Executable(); exeErr == nil {
			args = (&task.PostInstall{ScratchDir: filepath.Dir(exe), CopySucceeded: false}).Args()
		} else {
			tlog.Warn("resolve executable", logging.KeyError, exeErr)
		}
		if spawnErr := p.SpawnDetached(installedExe, in.withGPUFlag(args, t.DisableGPU), relaunch.Normal); spawnErr != nil {
			tlog.Error("failed to relaunch previous install", "exe", installedExe, logging.KeyError, spawnErr)
		}
		in.terminate()
		return
	}

	exe, err := in.cfg.Executable()
	if err != nil {
		// Without knowing where we run from there is nothing to copy. Start
		// the installed version and report the failure to it.
		tlog.Error("resolve executable", logging.KeyError, err)
		in.relaunchFinal(tlog, t, "", false)
		return
	}
	scratchDir := filepath.Dir(exe)

	in.setState(Copying)
	if left := p.WaitForExit(ctx, installedExe, in.cfg.ExitWaitTimeout); len(left) > 0 {
		tlog.Warn("copying while previous instances still run", "pids", left)
	}

	var outcome copier.Outcome
	archive.WithOpaque(func() error {
		outcome = in.cfg.Copier.Copy(ctx, scratchDir, t.InstallDir)
		return nil
	})

	if outcome.Succeeded {
		tlog.Info("update copied", "attempts", outcome.Attempts, "installDir", t.InstallDir)
	} else {
		tlog.Error("update copy failed", "attempts", outcome.Attempts, logging.KeyError, outcome.Err)
		if alertErr := p.Alert(titleCopyFailed, msgCopyFailed); alertErr != nil {
			tlog.Warn("failed to show alert", logging.KeyError, alertErr)
		}
	}

	if err := p.ClearIconCache(); err != nil {
		tlog.Warn("failed to clear icon cache", logging.KeyError, err)
	}

	in.relaunchFinal(tlog, t, scratchDir, outcome.Succeeded)
}

// relaunchFinal starts the installed executable with the post-install task
// and exits. An elevated install generation drops back to the user's level
// when the original process was not elevated.
func (in *Installer) relaunchFinal(tlog *slog.Logger, t *task.Install, scratchDir string, succeeded bool) {
	p := in.cfg.Platform
	installedExe := filepath.Join(t.InstallDir, t.ExeName)

	mode := relaunch.Normal
	if p.SupportsElevation() && p.IsAdmin() && !t.WasAdmin {
		mode = relaunch.Deelevated
	}

	var args []string
	if scratchDir != "" {
		args = (&task.PostInstall{ScratchDir: scratchDir, CopySucceeded: succeeded}).Args()
	}
	in.spawnOrLog(tlog, installedExe, in.withGPUFlag(args, t.DisableGPU), mode)
	in.setState(RelaunchedFinal)
	in.terminate()
}

func (in *Installer) spawnOrLog(tlog *slog.Logger, exe string, args []string, mode relaunch.Mode) {
	if err := in.cfg.Platform.SpawnDetached(exe, args, mode); err != nil {
		tlog.Error("failed to relaunch installed executable", "exe", exe, logging.KeyError, err)
		return
	}
	tlog.Info("relaunched installed executable", "exe", exe, "mode", mode.String())
}

// RunPostInstall is the final generation. It removes files renamed aside by
// the copy, deletes the scratch directory and records the copy outcome. Deletion failures are logged and returned but
// must not stop startup.
func (in *Installer) RunPostInstall(t *task.PostInstall) error {
	in.setState(CleaningUp)
	tlog := logging.WithTask(log, string(task.KindPostInstall))

	in.mu.Lock()
	in.copyFailed = !t.CopySucceeded
	in.mu.Unlock()

	if !t.CopySucceeded {
		tlog.Warn("previous generation reported a failed copy")
	}

	// The scratch directory records which installed files were renamed
	// aside, so those go first.
	if n, asideErr := copier.RemoveAside(t.ScratchDir); asideErr != nil {
		tlog.Warn("failed to remove replaced files", "removed", n, logging.KeyError, asideErr)
	} else if n > 0 {
		tlog.Info("removed replaced files", "removed", n)
	}

	err := archive.WithOpaque(func() error {
		return removeScratch(t.ScratchDir)
	})
	if err != nil {
		tlog.Error("failed to delete scratch directory", "dir", t.ScratchDir, logging.KeyError, err)
	} else {
		tlog.Info("scratch directory deleted", "dir", t.ScratchDir)
	}

	in.setState(Idle)
	return err
}

// removeScratch deletes dir recursively. A missing directory is an error so
// a repeated cleanup shows up in the log.
func removeScratch(dir string) error {
	if dir == "" {
		return errors.New("empty scratch directory path")
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("scratch directory %s does not exist: %w", dir, err)
		}
		return err
	}
	return os.RemoveAll(dir)
}

func (in *Installer) withGPUFlag(args []string, disableGPU bool) []string {
	if !disableGPU || in.cfg.DisableGPUFlag == "-" {
		return args
	}
	return append(args, in.cfg.DisableGPUFlag)
}

func (in *Installer) terminate() {
	in.setState(Terminal)
	in.cfg.Terminator.Exit()
}
