// Package updater checks a feed for a newer build, downloads and unpacks it,
// and hands it to the installer on request.
package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-version"

	"github.com/breeze-rmm/desktop-updater/internal/archive"
	"github.com/breeze-rmm/desktop-updater/internal/httputil"
	"github.com/breeze-rmm/desktop-updater/internal/logging"
	"github.com/breeze-rmm/desktop-updater/internal/source"
)

var log = logging.L("updater")

const (
	// DefaultProgressInterval is the minimum gap between progress events.
	DefaultProgressInterval = 500 * time.Millisecond

	maxManifestBytes = 1 << 20
)

// Installer takes over once an update is unpacked.
type Installer interface {
	QuitAndInstall(scratchDir string, disableGPU bool) error
}

// Options configures a Session.
type Options struct {
	FeedURL       string
	AllowInsecure bool
	// CurrentVersion enables the version gate: a manifest whose version is
	// not newer ends the check with update-not-available.
	CurrentVersion   string
	DisableGPU       bool
	ProgressInterval time.Duration

	Client    *http.Client
	FeedRetry httputil.RetryConfig
	Sources   *source.Registry
	Installer Installer

	// TempDir holds the downloaded archive and the scratch directory.
	// Empty means os.TempDir().
	TempDir string
}

// Session is the per-process update state. A failed check returns it to the
// empty state.
type Session struct {
	opts Options

	mu           sync.Mutex
	feedURL      string
	checking     bool
	downloading  bool
	downloadPath string
	unpackDir    string
	manifest     *Manifest
	listeners    []Listener

	wg sync.WaitGroup
}

// New returns a Session. Nil Client and Sources fall back to a default client
// and the built-in http(s) sources.
func New(opts Options) *Session {
	if opts.Client == nil {
		opts.Client = httputil.NewClient(httputil.ClientOptions{})
	}
	if opts.Sources == nil {
		opts.Sources = source.NewRegistry()
		web := &source.HTTPSource{Client: opts.Client}
		opts.Sources.Register("http", web, false)
		opts.Sources.Register("https", web, true)
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	return &Session{opts: opts, feedURL: opts.FeedURL}
}

// SetFeedURL replaces the feed location.
func (s *Session) SetFeedURL(feedURL string) error {
	if strings.TrimSpace(feedURL) == "" {
		return ErrEmptyFeedURL
	}
	s.mu.Lock()
	s.feedURL = feedURL
	s.mu.Unlock()
	return nil
}

// OnEvent registers a listener for all later events.
func (s *Session) OnEvent(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Downloading reports whether a payload is being downloaded or unpacked.
func (s *Session) Downloading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloading
}

// Downloaded returns the manifest and scratch directory of an update that is
// ready to install.
func (s *Session) Downloaded() (*Manifest, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checking || s.manifest == nil || s.unpackDir == "" {
		return nil, "", false
	}
	return s.manifest, s.unpackDir, true
}

// CheckForUpdates starts a check in the background and returns. While a check
// is in flight, or a downloaded update waits for QuitAndInstall, further
// calls are logged no-ops. Every started check ends with exactly one of
// update-not-available, update-downloaded or error.
func (s *Session) CheckForUpdates(ctx context.Context) error {
	s.mu.Lock()
	if s.feedURL == "" {
		s.mu.Unlock()
		return ErrNoFeedURL
	}
	if s.checking {
		s.mu.Unlock()
		log.Info("check already in progress, skipping")
		return nil
	}
	if s.manifest != nil && s.unpackDir != "" {
		s.mu.Unlock()
		log.Info("update already downloaded, waiting for install")
		return nil
	}
	s.checking = true
	feedURL := s.feedURL
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, feedURL)
	}()
	return nil
}

// Wait blocks until the running check, if any, has emitted its final event.
func (s *Session) Wait() {
	s.wg.Wait()
}

// QuitAndInstall hands the downloaded update to the installer. On success the
// process is exiting.
func (s *Session) QuitAndInstall() error {
	s.mu.Lock()
	if s.downloading {
		s.mu.Unlock()
		return ErrDownloading
	}
	if s.checking || s.manifest == nil || s.unpackDir == "" {
		s.mu.Unlock()
		return ErrNoUpdate
	}
	dir := s.unpackDir
	s.mu.Unlock()

	if s.opts.Installer == nil {
		return errors.New("no installer configured")
	}
	log.Info("quitting to install update", "scratchDir", dir)
	return s.opts.Installer.QuitAndInstall(dir, s.opts.DisableGPU)
}

func (s *Session) run(ctx context.Context, feedURL string) {
	start := time.Now()
	m, err := s.pipeline(ctx, feedURL)

	if err != nil {
		s.reset()
		log.Error("update check failed", logging.KeyError, err, logging.KeyDurationMs, time.Since(start).Milliseconds())
		s.emit(Event{Type: EventError, Err: err})
		return
	}
	if m == nil {
		s.reset()
		log.Info("no update available", logging.KeyDurationMs, time.Since(start).Milliseconds())
		s.emit(Event{Type: EventUpdateNotAvailable})
		return
	}

	s.mu.Lock()
	s.checking = false
	s.mu.Unlock()
	log.Info("update downloaded and unpacked", "version", m.Version, logging.KeyDurationMs, time.Since(start).Milliseconds())
	s.emit(Event{Type: EventUpdateDownloaded, Manifest: m})
}

// pipeline returns (nil, nil) when no update is available.
func (s *Session) pipeline(ctx context.Context, feedURL string) (*Manifest, error) {
	m, err := s.fetchManifest(ctx, feedURL)
	if err != nil || m == nil {
		return nil, err
	}

	u, err := url.Parse(m.URL)
	if err != nil {
		return nil, &ManifestError{Reason: "unparseable url", Err: err}
	}
	if !s.opts.AllowInsecure && !s.opts.Sources.Secure(u.Scheme) {
		return nil, &InsecureTransportError{URL: u.Redacted(), Scheme: u.Scheme}
	}
	if _, ok := s.opts.Sources.Lookup(u.Scheme); !ok {
		return nil, &ManifestError{Reason: fmt.Sprintf("unsupported url scheme %q", u.Scheme)}
	}

	if !s.newer(m) {
		return nil, nil
	}

	s.mu.Lock()
	s.manifest = m
	s.mu.Unlock()
	log.Info("update available", "version", m.Version, "build", m.Build, "size", m.Size)
	s.emit(Event{Type: EventUpdateAvailable, Manifest: m})

	s.mu.Lock()
	s.downloading = true
	s.mu.Unlock()

	archivePath, err := s.download(ctx, m, u)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(s.opts.TempDir, "breeze-update-scratch-*")
	if err != nil {
		return nil, &UnpackError{Err: err}
	}
	s.mu.Lock()
	s.unpackDir = dir
	s.mu.Unlock()

	log.Info("unpacking update", "archive", archivePath, "dir", dir)
	if err := archive.Extract(ctx, archivePath, dir); err != nil {
		return nil, &UnpackError{Dir: dir, Err: err}
	}

	if err := os.Remove(archivePath); err != nil {
		log.Warn("failed to delete downloaded archive", "path", archivePath, logging.KeyError, err)
	}
	s.mu.Lock()
	s.downloadPath = ""
	s.downloading = false
	s.mu.Unlock()

	return m, nil
}

// fetchManifest returns (nil, nil) for 204.
func (s *Session) fetchManifest(ctx context.Context, feedURL string) (*Manifest, error) {
	log.Debug("checking feed", "url", feedURL)
	resp, err := httputil.Get(ctx, s.opts.Client, feedURL, http.Header{"Accept": {"application/json"}}, s.opts.FeedRetry)
	if err != nil {
		return nil, &ProtocolError{URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
	default:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &ProtocolError{URL: feedURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return nil, &ProtocolError{URL: feedURL, StatusCode: resp.StatusCode, Err: err}
	}
	return parseManifest(body)
}

// newer applies the version gate. Versions that do not parse pass the gate.
func (s *Session) newer(m *Manifest) bool {
	if s.opts.CurrentVersion == "" || m.Version == "" {
		return true
	}
	current, err := version.NewVersion(s.opts.CurrentVersion)
	if err != nil {
		log.Warn("ignoring unparseable current version", "version", s.opts.CurrentVersion, logging.KeyError, err)
		return true
	}
	offered, err := version.NewVersion(m.Version)
	if err != nil {
		log.Warn("ignoring unparseable manifest version", "version", m.Version, logging.KeyError, err)
		return true
	}
	if !offered.GreaterThan(current) {
		log.Info("feed version is not newer", "current", current.String(), "offered", offered.String())
		return false
	}
	return true
}

func (s *Session) download(ctx context.Context, m *Manifest, u *url.URL) (string, error) {
	f, err := os.CreateTemp(s.opts.TempDir, "breeze-update-*"+archiveSuffix(u))
	if err != nil {
		return "", &DownloadError{URL: u.Redacted(), Err: err}
	}
	s.mu.Lock()
	s.downloadPath = f.Name()
	s.mu.Unlock()

	log.Info("downloading update", "url", u.Redacted(), "path", f.Name())
	sink := source.NewCountingSink(f)
	stop := s.startProgress(sink, m.Size)

	fetchErr := s.opts.Sources.Fetch(ctx, m.URL, sink)
	stop()
	closeErr := f.Close()

	if fetchErr == nil {
		fetchErr = closeErr
	}
	if fetchErr != nil {
		// Errors removing the partial file are ignored.
		os.Remove(f.Name())
		return "", &DownloadError{URL: u.Redacted(), Err: fetchErr}
	}

	s.emit(Event{Type: EventDownloadProgress, Percent: 100})
	log.Info("download complete", "bytes", sink.Written())
	return f.Name(), nil
}

// startProgress emits download-progress from a ticker until the returned
// stop function is called. stop waits for the ticker goroutine to exit.
func (s *Session) startProgress(sink *source.CountingSink, size int64) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		ticker := time.NewTicker(s.opts.ProgressInterval)
		defer ticker.Stop()

		var last int64 = -1
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				n := sink.Written()
				if n == last {
					continue
				}
				last = n
				s.emit(Event{Type: EventDownloadProgress, Percent: percent(n, size)})
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}
}

func percent(n, size int64) float64 {
	if size <= 0 {
		return 0
	}
	p := float64(n) / float64(size) * 100
	if p > 100 {
		return 100
	}
	return p
}

func archiveSuffix(u *url.URL) string {
	name := strings.ToLower(path.Base(u.Path))
	switch {
	case strings.HasSuffix(name, ".tar.gz"):
		return ".tar.gz"
	case strings.HasSuffix(name, ".tgz"):
		return ".tgz"
	default:
		return ".zip"
	}
}

// reset removes leftover files and returns the session to empty.
func (s *Session) reset() {
	s.mu.Lock()
	downloadPath, unpackDir := s.downloadPath, s.unpackDir
	s.downloadPath = ""
	s.unpackDir = ""
	s.manifest = nil
	s.downloading = false
	s.checking = false
	s.mu.Unlock()

	var merr *multierror.Error
	if downloadPath != "" {
		if err := os.Remove(downloadPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			merr = multierror.Append(merr, err)
		}
	}
	if unpackDir != "" {
		err := archive.WithOpaque(func() error { return os.RemoveAll(unpackDir) })
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		log.Warn("failed to clean up after failed check", logging.KeyError, err)
	}
}

func (s *Session) emit(ev Event) {
	s.mu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	log.Debug("event", "event", ev.String())
	for _, fn := range listeners {
		fn(ev)
	}
}
