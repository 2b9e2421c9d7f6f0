// Package copier replaces an installation directory with the contents of a
// scratch directory, retrying while the previous process releases its locks.
package copier

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/breeze-rmm/desktop-updater/internal/logging"
)

var log = logging.L("copier")

const (
	DefaultMaxAttempts = 30
	DefaultDelay       = time.Second
)

// CopyFunc copies the tree at src over dst.
type CopyFunc func(src, dst string) error

// Outcome reports how a retrying copy ended. Err holds the last failure as a
// *CopyError when Succeeded is false.
type Outcome struct {
	Succeeded bool
	Attempts  int
	Err       error
}

// CopyError is the last failure of a copy that exhausted its attempts.
type CopyError struct {
	Src      string
	Dst      string
	Attempts int
	Err      error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copy %s to %s failed after %d attempts: %v", e.Src, e.Dst, e.Attempts, e.Err)
}

func (e *CopyError) Unwrap() error {
	return e.Err
}

// Copier runs CopyFunc until it succeeds or MaxAttempts is reached, waiting
// Delay between attempts.
type Copier struct {
	MaxAttempts int
	Delay       time.Duration
	CopyFn      CopyFunc
}

// New returns a Copier using CopyTree. Non-positive values fall back to the
// defaults.
func New(maxAttempts int, delay time.Duration) *Copier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Copier{
		MaxAttempts: maxAttempts,
		Delay:       delay,
		CopyFn:      CopyTree,
	}
}

// Copy copies src over dst. Exhausting the attempts is not an error for the
// caller: the Outcome carries Succeeded=false and the caller decides what to
// do next. Cancelling ctx stops further attempts.
func (c *Copier) Copy(ctx context.Context, src, dst string) Outcome {
	copyFn := c.CopyFn
	if copyFn == nil {
		copyFn = CopyTree
	}
	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	attempts := 0
	start := time.Now()
	op := func() error {
		attempts++
		if err := copyFn(src, dst); err != nil {
			log.Warn("copy attempt failed",
				logging.KeyAttempt, attempts,
				"maxAttempts", maxAttempts,
				"src", src,
				"dst", dst,
				logging.KeyError, err,
			)
			return err
		}
		log.Info("copy attempt succeeded",
			logging.KeyAttempt, attempts,
			"src", src,
			"dst", dst,
		)
		return nil
	}

	var policy backoff.BackOff = backoff.NewConstantBackOff(c.Delay)
	policy = backoff.WithMaxRetries(policy, uint64(maxAttempts-1))
	policy = backoff.WithContext(policy, ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.Debug("retrying copy", logging.KeyAttempt, attempts+1, "delay", wait)
	})

	elapsed := time.Since(start)
	if err != nil {
		log.Error("copy gave up",
			"attempts", attempts,
			logging.KeyDurationMs, elapsed.Milliseconds(),
			logging.KeyError, err,
		)
		return Outcome{
			Attempts: attempts,
			Err:      &CopyError{Src: src, Dst: dst, Attempts: attempts, Err: err},
		}
	}

	return Outcome{Succeeded: true, Attempts: attempts}
}
