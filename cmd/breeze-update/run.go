package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/desktop-updater/internal/archive"
	"github.com/breeze-rmm/desktop-updater/internal/config"
	"github.com/breeze-rmm/desktop-updater/internal/copier"
	"github.com/breeze-rmm/desktop-updater/internal/httputil"
	"github.com/breeze-rmm/desktop-updater/internal/installer"
	"github.com/breeze-rmm/desktop-updater/internal/lifecycle"
	"github.com/breeze-rmm/desktop-updater/internal/logging"
	"github.com/breeze-rmm/desktop-updater/internal/source"
	"github.com/breeze-rmm/desktop-updater/internal/task"
	"github.com/breeze-rmm/desktop-updater/internal/updater"
)

var (
	checkInterval     time.Duration
	installAfterCheck bool
)

type runOptions struct {
	install  bool
	interval time.Duration
}

var (
	// sharedLog is opened once per process, by the task phase or the command.
	sharedLog *logging.SharedLog

	// previousInstall is the installer that ran this process's post-install
	// task, if any.
	previousInstall *installer.Installer
)

func setup() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if sharedLog == nil {
		startLogging(cfg)
	}
	return cfg, nil
}

func startLogging(cfg *config.Config) {
	sharedLog = initLogging(cfg)
	archive.SetHook(func(transparent bool) {
		log.Debug("archive transparency changed", "transparent", transparent)
	})
}

func newInstaller(cfg *config.Config) *installer.Installer {
	return installer.New(installer.Config{
		Platform:        installer.NewNative(),
		Copier:          copier.New(cfg.CopyMaxAttempts, cfg.CopyRetryDelay),
		Terminator:      lifecycle.NewExiter(sharedLog),
		ExitWaitTimeout: cfg.ExitWaitTimeout,
	})
}

// runTask executes an argv task and returns the installer that ran it. An
// install task never returns.
func runTask(ctx context.Context, t task.Task) (*installer.Installer, error) {
	cfg, err := setup()
	if err != nil {
		// The task must still run: fall back to defaults.
		cfg = config.Default()
		startLogging(cfg)
		log.Warn("using default config for update task", logging.KeyError, err)
	}

	log.Info("running update task", logging.KeyTask, string(t.Kind()), "args", t.Args()[1:])
	inst := newInstaller(cfg)
	return inst, inst.Dispatch(ctx, t)
}

// reportPreviousInstall tells the user when the update that relaunched this
// process did not replace the installed files.
func reportPreviousInstall(w io.Writer) {
	if previousInstall == nil || !previousInstall.CopyFailed() {
		return
	}
	log.Warn("previous update was not installed")
	fmt.Fprintln(w, "The previous update could not be installed; running the existing version.")
}

func runUpdater(cmd *cobra.Command, opts runOptions) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	reportPreviousInstall(errOut)

	if cfg.FeedURL == "" {
		return errors.New("no feed URL: set feed_url or pass --feed")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := httputil.NewClient(httputil.ClientOptions{
		Timeout:    cfg.HTTPTimeout,
		UserAgent:  "breeze-update/" + version,
		HTTPProxy:  cfg.Proxy.HTTP,
		HTTPSProxy: cfg.Proxy.HTTPS,
		NoProxy:    cfg.Proxy.NoProxy,
	})
	session := updater.New(updater.Options{
		FeedURL:          cfg.FeedURL,
		AllowInsecure:    cfg.AllowInsecure,
		CurrentVersion:   cfg.CurrentVersion,
		DisableGPU:       cfg.DisableGPU,
		ProgressInterval: cfg.ProgressInterval,
		Client:           client,
		FeedRetry:        httputil.DefaultRetryConfig(),
		Sources:          source.FromConfig(cfg, client),
		Installer:        newInstaller(cfg),
	})

	var lastErr error
	session.OnEvent(func(ev updater.Event) {
		switch ev.Type {
		case updater.EventUpdateAvailable:
			fmt.Fprintf(out, "Update available: %s (build %d)\n", ev.Manifest.Version, ev.Manifest.Build)
		case updater.EventDownloadProgress:
			fmt.Fprintf(out, "\rDownloading... %5.1f%%", ev.Percent)
			if ev.Percent >= 100 {
				fmt.Fprintln(out)
			}
		case updater.EventUpdateNotAvailable:
			fmt.Fprintln(out, "No update available.")
			lastErr = nil
		case updater.EventUpdateDownloaded:
			fmt.Fprintf(out, "Update %s ready to install.\n", ev.Manifest.Version)
			lastErr = nil
		case updater.EventError:
			fmt.Fprintf(errOut, "Update check failed: %v\n", ev.Err)
			lastErr = ev.Err
		}
	})

	for {
		if err := session.CheckForUpdates(ctx); err != nil {
			return err
		}
		session.Wait()

		if _, _, ok := session.Downloaded(); ok && opts.install {
			// On success the process exits inside QuitAndInstall.
			return session.QuitAndInstall()
		}
		if opts.interval <= 0 {
			return lastErr
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nShutting down updater...")
			return nil
		case <-time.After(opts.interval):
		}
	}
}
