// Package task encodes and decodes the argv protocol that carries an update
// task from one process generation to the next.
//
// A task is a reserved marker token "--update-<name>" followed by a fixed,
// positional list of string arguments:
//
//	--update-install      installDir exeName wasAdmin needAdmin needDisableGpu
//	--update-post-install scratchDir copySucceeded
//
// Booleans travel as "1" or "0". Trailing arguments may be omitted by older
// generations; they decode to the legacy defaults wasAdmin=0, needAdmin=1,
// needDisableGpu=1, and copySucceeded=1.
package task

import (
	"errors"
	"fmt"
	"strings"
)

// MarkerPrefix starts every task marker token.
const MarkerPrefix = "--update-"

// Kind names a task.
type Kind string

const (
	KindInstall     Kind = "install"
	KindPostInstall Kind = "post-install"
)

// Marker returns the argv token selecting k.
func (k Kind) Marker() string {
	return MarkerPrefix + string(k)
}

// Task is the tagged variant decoded from argv. It is either *Install or
// *PostInstall.
type Task interface {
	Kind() Kind
	// Args encodes the task, marker first.
	Args() []string
}

// Install is run by the generation launched from the scratch directory.
type Install struct {
	InstallDir string
	ExeName    string
	WasAdmin   bool
	NeedAdmin  bool
	DisableGPU bool
}

func (*Install) Kind() Kind { return KindInstall }

func (t *Install) Args() []string {
	return []string{
		KindInstall.Marker(),
		t.InstallDir,
		t.ExeName,
		encodeBool(t.WasAdmin),
		encodeBool(t.NeedAdmin),
		encodeBool(t.DisableGPU),
	}
}

// PostInstall is run by the final, real application process.
type PostInstall struct {
	ScratchDir    string
	CopySucceeded bool
}

func (*PostInstall) Kind() Kind { return KindPostInstall }

func (t *PostInstall) Args() []string {
	return []string{
		KindPostInstall.Marker(),
		t.ScratchDir,
		encodeBool(t.CopySucceeded),
	}
}

// Legacy defaults for trailing Install fields missing from argv.
const (
	DefaultWasAdmin   = false
	DefaultNeedAdmin  = true
	DefaultDisableGPU = true

	// DefaultCopySucceeded applies when a generation predating the flag
	// relaunches with only the scratch directory.
	DefaultCopySucceeded = true
)

// ErrNoTask is returned by Parse when argv carries no task marker.
var ErrNoTask = errors.New("no update task in arguments")

// ParseError describes a malformed task argument list.
type ParseError struct {
	Kind   Kind
	Reason string
}

func (e *ParseError) Error() string {
	if e.Kind == "" {
		return "update task: " + e.Reason
	}
	return fmt.Sprintf("update task %s: %s", e.Kind, e.Reason)
}

// Parse finds the first marker token in args and decodes the task it
// selects. Tokens before the marker are ignored and tokens after the task's
// fixed argument list are left for the host. It returns ErrNoTask when no
// marker is present.
func Parse(args []string) (Task, error) {
	idx, kind, ok := findMarker(args)
	if !ok {
		return nil, ErrNoTask
	}
	rest := args[idx+1:]

	switch kind {
	case KindInstall:
		return parseInstall(rest)
	case KindPostInstall:
		return parsePostInstall(rest)
	default:
		return nil, &ParseError{Kind: kind, Reason: "unknown task"}
	}
}

// Strip returns args without the marker token and the task arguments that
// follow it, so the remainder can be handed to the host's own flag parser.
func Strip(args []string) []string {
	idx, kind, ok := findMarker(args)
	if !ok {
		return args
	}

	n := 0
	switch kind {
	case KindInstall:
		n = 5
	case KindPostInstall:
		n = 2
	}

	end := idx + 1
	for i := 0; i < n && end < len(args) && !strings.HasPrefix(args[end], "--"); i++ {
		end++
	}

	out := make([]string, 0, len(args)-(end-idx))
	out = append(out, args[:idx]...)
	return append(out, args[end:]...)
}

func findMarker(args []string) (int, Kind, bool) {
	for i, arg := range args {
		if strings.HasPrefix(arg, MarkerPrefix) && len(arg) > len(MarkerPrefix) {
			return i, Kind(strings.TrimPrefix(arg, MarkerPrefix)), true
		}
	}
	return 0, "", false
}

func parseInstall(args []string) (*Install, error) {
	if len(args) < 2 || args[0] == "" || args[1] == "" {
		return nil, &ParseError{Kind: KindInstall, Reason: "installDir and exeName are required"}
	}

	t := &Install{
		InstallDir: args[0],
		ExeName:    args[1],
		WasAdmin:   DefaultWasAdmin,
		NeedAdmin:  DefaultNeedAdmin,
		DisableGPU: DefaultDisableGPU,
	}

	fields := []*bool{&t.WasAdmin, &t.NeedAdmin, &t.DisableGPU}
	for i, dst := range fields {
		pos := 2 + i
		if pos >= len(args) || strings.HasPrefix(args[pos], "--") {
			break
		}
		v, err := decodeBool(args[pos])
		if err != nil {
			return nil, &ParseError{Kind: KindInstall, Reason: fmt.Sprintf("argument %d: %v", pos+1, err)}
		}
		*dst = v
	}

	return t, nil
}

func parsePostInstall(args []string) (*PostInstall, error) {
	if len(args) < 1 || args[0] == "" {
		return nil, &ParseError{Kind: KindPostInstall, Reason: "scratchDir is required"}
	}

	t := &PostInstall{ScratchDir: args[0], CopySucceeded: DefaultCopySucceeded}
	if len(args) < 2 || strings.HasPrefix(args[1], "--") {
		return t, nil
	}
	v, err := decodeBool(args[1])
	if err != nil {
		return nil, &ParseError{Kind: KindPostInstall, Reason: fmt.Sprintf("argument 2: %v", err)}
	}
	t.CopySucceeded = v
	return t, nil
}

func encodeBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func decodeBool(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected 0 or 1, got %q", s)
	}
}
