package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Key constants for structured log fields.
const (
	KeyComponent  = "component"
	KeyTask       = "task"
	KeyAttempt    = "attempt"
	KeyDurationMs = "durationMs"
	KeyError      = "error"
)

// deferredHandler lets package-level loggers created before Init pick up the
// handler that Init installs later.
type deferredHandler struct {
	target *atomic.Pointer[slog.Handler]
	attrs  []slog.Attr
	groups []string
}

func newDeferredHandler(h slog.Handler) *deferredHandler {
	target := &atomic.Pointer[slog.Handler]{}
	target.Store(&h)
	return &deferredHandler{target: target}
}

func (h *deferredHandler) swap(next slog.Handler) {
	h.target.Store(&next)
}

func (h *deferredHandler) resolve() slog.Handler {
	handler := *h.target.Load()
	for _, group := range h.groups {
		handler = handler.WithGroup(group)
	}
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	return handler
}

func (h *deferredHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.resolve().Enabled(ctx, level)
}

func (h *deferredHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.resolve().Handle(ctx, record)
}

func (h *deferredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &deferredHandler{target: h.target}
	next.attrs = append(append(next.attrs, h.attrs...), attrs...)
	next.groups = append(next.groups, h.groups...)
	return next
}

func (h *deferredHandler) WithGroup(name string) slog.Handler {
	next := &deferredHandler{target: h.target}
	next.attrs = append(next.attrs, h.attrs...)
	next.groups = append(append(next.groups, h.groups...), name)
	return next
}

var (
	rootHandler   = newDeferredHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	defaultLogger = slog.New(rootHandler)
)

func init() {
	slog.SetDefault(defaultLogger)
}

// Init installs the process-wide handler. Call once after config is loaded.
// format: "json" or "text" (default "text")
// level: "debug", "info", "warn", "error" (default "info")
// output: writer to log to (nil = os.Stderr)
//
// When output is a *SharedLog the record time is omitted, since every line
// already carries the shared log's clock prefix.
func Init(format, level string, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if _, ok := output.(*SharedLog); ok {
		opts.ReplaceAttr = dropTime
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	rootHandler.swap(handler)
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

// L returns a logger tagged with the given component name.
func L(component string) *slog.Logger {
	return defaultLogger.With(slog.String(KeyComponent, component))
}

// WithTask returns a child logger tagged with the argv task being executed.
func WithTask(logger *slog.Logger, task string) *slog.Logger {
	return logger.With(slog.String(KeyTask, task))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
