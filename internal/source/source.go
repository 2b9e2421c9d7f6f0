// Package source fetches update payloads from the locations a manifest may
// point at: plain http(s) and the object stores s3, gs, azblob and b2.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/breeze-rmm/desktop-updater/internal/logging"
)

var log = logging.L("source")

// ErrUnsupportedScheme is returned for payload URLs no source handles.
var ErrUnsupportedScheme = errors.New("unsupported payload scheme")

// Sink receives payload bytes. Streaming sources use Write; the s3 downloader
// uses WriteAt.
type Sink interface {
	io.Writer
	io.WriterAt
}

// Source fetches the object addressed by u into sink.
type Source interface {
	Fetch(ctx context.Context, u *url.URL, sink Sink) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, u *url.URL, sink Sink) error

func (f SourceFunc) Fetch(ctx context.Context, u *url.URL, sink Sink) error {
	return f(ctx, u, sink)
}

// StatusError is a non-200 answer from an http(s) payload server.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

type entry struct {
	src    Source
	secure bool
}

// Registry maps URL schemes to sources.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register installs src for scheme. secure marks transports that are always
// encrypted.
func (r *Registry) Register(scheme string, src Source, secure bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[strings.ToLower(scheme)] = entry{src: src, secure: secure}
}

// Lookup returns the source for scheme.
func (r *Registry) Lookup(scheme string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[strings.ToLower(scheme)]
	return e.src, ok
}

// Secure reports whether scheme is registered as an encrypted transport.
func (r *Registry) Secure(scheme string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[strings.ToLower(scheme)].secure
}

// Fetch resolves rawURL to a source and runs it.
func (r *Registry) Fetch(ctx context.Context, rawURL string, sink Sink) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse payload url: %w", err)
	}
	src, ok := r.Lookup(u.Scheme)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	log.Debug("fetching payload", "scheme", u.Scheme, "host", u.Host)
	return src.Fetch(ctx, u, sink)
}

// CountingSink wraps a file and counts the bytes written to it. Written is
// safe to call from another goroutine.
type CountingSink struct {
	f       *os.File
	written atomic.Int64
}

func NewCountingSink(f *os.File) *CountingSink {
	return &CountingSink{f: f}
}

func (s *CountingSink) Write(p []byte) (int, error) {
	n, err := s.f.Write(p)
	s.written.Add(int64(n))
	return n, err
}

func (s *CountingSink) WriteAt(p []byte, off int64) (int, error) {
	n, err := s.f.WriteAt(p, off)
	s.written.Add(int64(n))
	return n, err
}

// Written returns the number of bytes written so far.
func (s *CountingSink) Written() int64 {
	return s.written.Load()
}

// objectURL splits scheme://bucket/key.
func objectURL(u *url.URL) (bucket, key string, err error) {
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%s url %q must be %s://bucket/key", u.Scheme, u.Redacted(), u.Scheme)
	}
	return bucket, key, nil
}
