package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

var stampLine = regexp.MustCompile(`^\d{2}:\d{2}:\d{2} `)

func fixedClock() time.Time {
	return time.Date(2026, 3, 4, 13, 5, 9, 0, time.Local)
}

func TestSharedLogPrefixesEveryLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.log")
	l := NewSharedLog(path, 0, nil)
	l.now = fixedClock

	if _, err := l.Write([]byte("first\nsecond\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := l.Write([]byte("partial ")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := l.Write([]byte("line\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "13:05:09 first\n13:05:09 second\n13:05:09 partial line\n"
	if string(data) != want {
		t.Fatalf("got %q, want %q", string(data), want)
	}
}

func TestSharedLogAppendsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.log")

	first := NewSharedLog(path, 0, nil)
	first.Write([]byte("generation one\n"))
	first.Close()

	second := NewSharedLog(path, 0, nil)
	second.Write([]byte("generation two\n"))
	second.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(data))
	}
	for _, line := range lines {
		if !stampLine.MatchString(line) {
			t.Fatalf("line missing timestamp prefix: %q", line)
		}
	}
}

func TestSharedLogRotatesLazilyOnFirstWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.log")
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), 200), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewSharedLog(path, 100, nil)

	// Nothing happens before the first write.
	info, _ := os.Stat(path)
	if info.Size() != 200 {
		t.Fatalf("file should be untouched before first write, size=%d", info.Size())
	}

	l.Write([]byte("fresh\n"))
	l.Write(bytes.Repeat([]byte("y"), 150))
	l.Close()

	data, _ := os.ReadFile(path)
	if bytes.Contains(data, []byte("x")) {
		t.Fatal("oversized log should have been recreated")
	}
	if !bytes.Contains(data, []byte("fresh")) {
		t.Fatalf("expected new content, got %q", string(data))
	}
	if !bytes.Contains(data, []byte("yyy")) {
		t.Fatal("rotation should only happen once per open, not on later writes")
	}
}

func TestSharedLogKeepsSmallFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.log")
	os.WriteFile(path, []byte("13:00:00 earlier\n"), 0o644)

	l := NewSharedLog(path, 1024, nil)
	l.Write([]byte("later\n"))
	l.Close()

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "13:00:00 earlier\n") {
		t.Fatalf("small log should be appended to, got %q", string(data))
	}
}

func TestSharedLogMirror(t *testing.T) {
	var mirror bytes.Buffer
	l := NewSharedLog(filepath.Join(t.TempDir(), "update.log"), 0, &mirror)
	l.now = fixedClock
	l.Write([]byte("hello\n"))
	l.Close()

	if mirror.String() != "13:05:09 hello\n" {
		t.Fatalf("mirror got %q", mirror.String())
	}
}

func TestSharedLogSyncBeforeOpen(t *testing.T) {
	l := NewSharedLog(filepath.Join(t.TempDir(), "never.log"), 0, nil)
	if err := l.Sync(); err != nil {
		t.Fatalf("sync on unopened log: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close on unopened log: %v", err)
	}
}
