// Package lifecycle owns the single graceful exit path used by every
// terminal branch of the installer.
package lifecycle

import (
	"io"
	"os"
	"sync"

	"github.com/breeze-rmm/desktop-updater/internal/logging"
)

var log = logging.L("lifecycle")

// Flusher is anything that must reach disk before the process exits.
type Flusher interface {
	Sync() error
}

// Terminator ends the process.
type Terminator interface {
	Exit()
}

// Exiter flushes its flushers in order, closes those that are also closers,
// and exits with status 0.
type Exiter struct {
	flushers []Flusher
	exit     func(int)
	once     sync.Once
}

// NewExiter returns an Exiter that calls os.Exit.
func NewExiter(flushers ...Flusher) *Exiter {
	return &Exiter{flushers: flushers, exit: os.Exit}
}

// Exit runs at most once; later calls return immediately.
func (e *Exiter) Exit() {
	e.once.Do(func() {
		log.Info("exiting")
		for _, f := range e.flushers {
			if err := f.Sync(); err != nil {
				log.Warn("flush before exit failed", logging.KeyError, err)
			}
			if c, ok := f.(io.Closer); ok {
				c.Close()
			}
		}
		e.exit(0)
	})
}
