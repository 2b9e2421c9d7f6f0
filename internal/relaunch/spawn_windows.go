//go:build windows

package relaunch

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	advapi32 = windows.NewLazySystemDLL("advapi32.dll")

	procGetShellWindow          = user32.NewProc("GetShellWindow")
	procCreateProcessWithTokenW = advapi32.NewProc("CreateProcessWithTokenW")
)

const detachedFlags = windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS

func spawn(exe string, args []string, mode Mode) (int, error) {
	switch mode {
	case Elevated:
		return 0, spawnElevated(exe, args)
	case Deelevated:
		pid, err := spawnDeelevated(exe, args)
		if err == nil {
			return pid, nil
		}
		// Without a shell (an RDP session without explorer) there is no user
		// token to borrow. Run at the current level instead.
		log.Warn("de-elevated spawn failed, falling back to normal", "error", err)
		return spawnNormal(exe, args)
	default:
		return spawnNormal(exe, args)
	}
}

func spawnNormal(exe string, args []string) (int, error) {
	cmd := exec.Command(exe, args...)
	cmd.Dir = filepath.Dir(exe)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: detachedFlags,
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid

	// Release the process so the OS can fully detach it
	if err := cmd.Process.Release(); err != nil {
		log.Warn("failed to release spawned process", "pid", pid, "error", err)
	}
	return pid, nil
}

// spawnElevated uses ShellExecute "runas", which shows the UAC prompt. When
// the user declines, the call fails with ERROR_CANCELLED and nothing runs.
func spawnElevated(exe string, args []string) error {
	verb, err := windows.UTF16PtrFromString("runas")
	if err != nil {
		return err
	}
	file, err := windows.UTF16PtrFromString(exe)
	if err != nil {
		return err
	}
	params, err := windows.UTF16PtrFromString(commandLine(args))
	if err != nil {
		return err
	}
	dir, err := windows.UTF16PtrFromString(filepath.Dir(exe))
	if err != nil {
		return err
	}

	if err := windows.ShellExecute(0, verb, file, params, dir, windows.SW_SHOWNORMAL); err != nil {
		return fmt.Errorf("ShellExecute runas: %w", err)
	}
	return nil
}

// spawnDeelevated starts exe with the token of the desktop shell, which runs
// unelevated as the interactive user.
func spawnDeelevated(exe string, args []string) (int, error) {
	hwnd, _, _ := procGetShellWindow.Call()
	if hwnd == 0 {
		return 0, fmt.Errorf("no shell window")
	}

	var shellPID uint32
	if _, err := windows.GetWindowThreadProcessId(windows.HWND(hwnd), &shellPID); err != nil {
		return 0, fmt.Errorf("GetWindowThreadProcessId: %w", err)
	}

	shell, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION, false, shellPID)
	if err != nil {
		return 0, fmt.Errorf("OpenProcess(shell pid=%d): %w", shellPID, err)
	}
	defer windows.CloseHandle(shell)

	var shellToken windows.Token
	if err := windows.OpenProcessToken(shell, windows.TOKEN_DUPLICATE, &shellToken); err != nil {
		return 0, fmt.Errorf("OpenProcessToken: %w", err)
	}
	defer shellToken.Close()

	var primaryToken windows.Token
	err = windows.DuplicateTokenEx(
		shellToken,
		windows.TOKEN_QUERY|windows.TOKEN_DUPLICATE|windows.TOKEN_ASSIGN_PRIMARY|windows.TOKEN_ADJUST_DEFAULT|windows.TOKEN_ADJUST_SESSIONID,
		nil,
		windows.SecurityImpersonation,
		windows.TokenPrimary,
		&primaryToken,
	)
	if err != nil {
		return 0, fmt.Errorf("DuplicateTokenEx: %w", err)
	}
	defer primaryToken.Close()

	cmdLine, err := windows.UTF16PtrFromString(commandLine(append([]string{exe}, args...)))
	if err != nil {
		return 0, err
	}
	cwd, err := windows.UTF16PtrFromString(filepath.Dir(exe))
	if err != nil {
		return 0, err
	}

	si := windows.StartupInfo{Cb: uint32(unsafe.Sizeof(windows.StartupInfo{}))}
	var pi windows.ProcessInformation
	flags := uint32(detachedFlags | windows.CREATE_UNICODE_ENVIRONMENT)

	// CreateProcessAsUser needs SeAssignPrimaryTokenPrivilege, which only
	// services hold. CreateProcessWithTokenW needs SeImpersonatePrivilege.
	err = windows.CreateProcessAsUser(primaryToken, nil, cmdLine, nil, nil, false, flags, nil, cwd, &si, &pi)
	if err != nil {
		r, _, callErr := procCreateProcessWithTokenW.Call(
			uintptr(primaryToken),
			0,
			0,
			uintptr(unsafe.Pointer(cmdLine)),
			uintptr(flags),
			0,
			uintptr(unsafe.Pointer(cwd)),
			uintptr(unsafe.Pointer(&si)),
			uintptr(unsafe.Pointer(&pi)),
		)
		if r == 0 {
			return 0, fmt.Errorf("CreateProcessWithTokenW: %w (CreateProcessAsUser: %v)", callErr, err)
		}
	}

	windows.CloseHandle(pi.Thread)
	windows.CloseHandle(pi.Process)
	return int(pi.ProcessId), nil
}

func commandLine(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = windows.EscapeArg(a)
	}
	return strings.Join(quoted, " ")
}

