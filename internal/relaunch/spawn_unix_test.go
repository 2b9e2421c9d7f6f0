//go:build !windows

package relaunch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSpawnDetachedRunsChild(t *testing.T) {
	sh, err := os.Stat("/bin/sh")
	if err != nil || sh.IsDir() {
		t.Skip("/bin/sh not available")
	}
	marker := filepath.Join(t.TempDir(), "ran")

	if err := SpawnDetached("/bin/sh", []string{"-c", "echo ok > " + marker}, Normal); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(marker); err == nil && len(data) > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("detached child did not run")
}

func TestSpawnDetachedElevatedUnsupported(t *testing.T) {
	err := SpawnDetached("/bin/true", nil, Elevated)
	if !errors.Is(err, ErrElevationUnsupported) {
		t.Fatalf("expected ErrElevationUnsupported, got %v", err)
	}
}

func TestSpawnDetachedMissingExe(t *testing.T) {
	if err := SpawnDetached(filepath.Join(t.TempDir(), "nope"), nil, Normal); err == nil {
		t.Fatal("expected error for missing executable")
	}
}
