package privilege

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestProbeWritableTempDir(t *testing.T) {
	dir := t.TempDir()
	if !ProbeWritable(dir) {
		t.Fatal("expected temp dir to be writable")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), probePrefix) {
			t.Fatalf("probe %s left behind", e.Name())
		}
	}
}

func TestProbeWritableMissingDir(t *testing.T) {
	if ProbeWritable(filepath.Join(t.TempDir(), "does", "not", "exist")) {
		t.Fatal("expected missing dir to be unwritable")
	}
}

func TestProbeWritableReadOnlyDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("directory mode bits do not restrict writes on windows")
	}
	if IsAdmin() {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	if ProbeWritable(dir) {
		t.Fatal("expected read-only dir to be unwritable")
	}
}

func TestNeedsElevationProbesParent(t *testing.T) {
	parent := t.TempDir()
	install := filepath.Join(parent, "App")

	// The install dir itself need not exist; only its parent is probed.
	if NeedsElevation(install) {
		t.Fatal("expected writable parent to need no elevation")
	}
	if NeedsElevation(install + string(filepath.Separator)) {
		t.Fatal("trailing separator must not change the probed parent")
	}
}
