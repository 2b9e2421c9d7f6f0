package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultSharedLogName is the file every process generation appends to.
const DefaultSharedLogName = "breeze-update.log"

// DefaultSharedLogMaxBytes is the size past which the shared log is recreated.
const DefaultSharedLogMaxBytes = 1 << 20

// DefaultSharedLogPath returns the well-known shared log location in the
// platform temp directory.
func DefaultSharedLogPath() string {
	return filepath.Join(os.TempDir(), DefaultSharedLogName)
}

// SharedLog is an append-only, line-oriented log file shared by every process
// generation of an update. Each line is prefixed with an HH:MM:SS timestamp.
// The file is opened on first write; if it already exceeds maxBytes at that
// point it is deleted and recreated. It is safe for concurrent use.
type SharedLog struct {
	mu        sync.Mutex
	path      string
	maxBytes  int64
	file      *os.File
	mirror    io.Writer
	lineStart bool
	now       func() time.Time
}

// NewSharedLog creates a shared log for path. Nothing touches the disk until
// the first Write. mirror, if non-nil, receives the same prefixed bytes.
func NewSharedLog(path string, maxBytes int64, mirror io.Writer) *SharedLog {
	if path == "" {
		path = DefaultSharedLogPath()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultSharedLogMaxBytes
	}
	return &SharedLog{
		path:      path,
		maxBytes:  maxBytes,
		mirror:    mirror,
		lineStart: true,
		now:       time.Now,
	}
}

// Path returns the file path of the shared log.
func (l *SharedLog) Path() string {
	return l.path
}

// Write implements io.Writer.
func (l *SharedLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.prefixLines(p)
	if l.mirror != nil {
		_, _ = l.mirror.Write(out)
	}

	if l.file == nil {
		if err := l.open(); err != nil {
			return 0, err
		}
	}
	if _, err := l.file.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Sync flushes the file to stable storage.
func (l *SharedLog) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	return l.file.Sync()
}

// Close syncs and closes the file. A later Write reopens it.
func (l *SharedLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	syncErr := l.file.Sync()
	closeErr := l.file.Close()
	l.file = nil
	if closeErr != nil {
		return closeErr
	}
	return syncErr
}

func (l *SharedLog) prefixLines(p []byte) []byte {
	stamp := l.now().Format("15:04:05") + " "

	var buf bytes.Buffer
	buf.Grow(len(p) + len(stamp))
	for len(p) > 0 {
		if l.lineStart {
			buf.WriteString(stamp)
			l.lineStart = false
		}
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			buf.Write(p)
			break
		}
		buf.Write(p[:i+1])
		p = p[i+1:]
		l.lineStart = true
	}
	return buf.Bytes()
}

func (l *SharedLog) open() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	if info, err := os.Stat(l.path); err == nil && info.Size() > l.maxBytes {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("rotate log file: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	l.file = f
	return nil
}
