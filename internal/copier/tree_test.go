package copier

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCopyTreeKeepsExtraFiles(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	writeFile(t, filepath.Join(dst, "user.cfg"), "keep me")

	if err := CopyTree(src, dst); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dst, "user.cfg")); got != "keep me" {
		t.Fatalf("user.cfg = %q", got)
	}
	if got := readFile(t, filepath.Join(dst, "a.txt")); got != "a" {
		t.Fatalf("a.txt = %q", got)
	}
}

func TestCopyTreeCreatesMissingDestination(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "install", "dir")
	writeFile(t, filepath.Join(src, "bin", "tool"), "x")

	if err := CopyTree(src, dst); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dst, "bin", "tool")); got != "x" {
		t.Fatalf("tool = %q", got)
	}
}

func TestCopyTreePreservesExecutableBit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}
	src := t.TempDir()
	dst := t.TempDir()
	path := filepath.Join(src, "run.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := CopyTree(src, dst); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(dst, "run.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Fatalf("expected executable bit, got %v", info.Mode())
	}
}

func TestCopyTreeRecreatesSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "Versions", "A", "lib"), "lib")
	if err := os.Symlink("Versions/A", filepath.Join(src, "Current")); err != nil {
		t.Fatal(err)
	}

	if err := CopyTree(src, dst); err != nil {
		t.Fatal(err)
	}
	link, err := os.Readlink(filepath.Join(dst, "Current"))
	if err != nil {
		t.Fatal(err)
	}
	if link != "Versions/A" {
		t.Fatalf("link = %q", link)
	}

	// Second copy replaces the existing link.
	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("second copy: %v", err)
	}
}

func TestCopyTreeRejectsFileSource(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	writeFile(t, file, "x")

	if err := CopyTree(file, t.TempDir()); err == nil {
		t.Fatal("expected error for non-directory source")
	}
}

func TestCopyTreeMissingSource(t *testing.T) {
	if err := CopyTree(filepath.Join(t.TempDir(), "nope"), t.TempDir()); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestCopyTreeRecordsAside(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "app.exe"), "new")
	// A directory in the way cannot be opened for writing but can be renamed.
	if err := os.Mkdir(filepath.Join(dst, "app.exe"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := CopyTree(src, dst); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dst, "app.exe")); got != "new" {
		t.Fatalf("app.exe = %q", got)
	}
	manifest := readFile(t, filepath.Join(src, AsideManifest))
	if want := filepath.Join(dst, "app.exe"+AsideSuffix) + "\n"; manifest != want {
		t.Fatalf("manifest = %q, want %q", manifest, want)
	}

	// A second pass must not carry the manifest into dst.
	if err := CopyTree(src, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dst, AsideManifest)); !os.IsNotExist(err) {
		t.Fatalf("manifest copied to destination: %v", err)
	}
}

func TestRemoveAside(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	recorded := filepath.Join(dst, "app.exe"+AsideSuffix)
	nested := filepath.Join(dst, "sub", "lib.dll"+AsideSuffix)
	shipped := filepath.Join(dst, "defaults.cfg"+AsideSuffix)
	writeFile(t, recorded, "old")
	writeFile(t, nested, "old")
	writeFile(t, shipped, "part of the app")
	writeFile(t, filepath.Join(src, AsideManifest), recorded+"\n"+nested+"\n"+recorded+"\n")

	removed, err := RemoveAside(src)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if _, err := os.Stat(shipped); err != nil {
		t.Fatal("unrecorded .old file should survive")
	}
}

func TestRemoveAsideWithoutManifest(t *testing.T) {
	removed, err := RemoveAside(t.TempDir())
	if err != nil || removed != 0 {
		t.Fatalf("RemoveAside = %d, %v; want 0, nil", removed, err)
	}
}

func TestRemoveAsideRejectsForeignEntries(t *testing.T) {
	src := t.TempDir()
	victim := filepath.Join(t.TempDir(), "important")
	writeFile(t, victim, "keep")
	writeFile(t, filepath.Join(src, AsideManifest), victim+"\nrelative.old\n")

	if _, err := RemoveAside(src); err == nil {
		t.Fatal("expected foreign manifest entries to be reported")
	}
	if _, err := os.Stat(victim); err != nil {
		t.Fatal("non-aside path must not be removed")
	}
}
