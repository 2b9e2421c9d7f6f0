package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/desktop-updater/internal/config"
	"github.com/breeze-rmm/desktop-updater/internal/logging"
	"github.com/breeze-rmm/desktop-updater/internal/task"
)

var (
	version    = "0.1.0"
	cfgFile    string
	feedURL    string
	disableGPU bool
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "breeze-update",
	Short: "Breeze desktop updater",
	Long: `Breeze desktop updater - checks a feed for a newer build, downloads and
unpacks it, and replaces the installed application across process restarts.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Check for updates and install them when downloaded",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdater(cmd, runOptions{install: true, interval: checkInterval})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the feed once and download an available update",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdater(cmd, runOptions{install: installAfterCheck})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect updater configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Breeze Update v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is updater.yaml in the user config dir)")
	rootCmd.PersistentFlags().StringVar(&feedURL, "feed", "", "update feed URL (overrides feed_url)")
	// Relaunched generations carry this flag when hardware acceleration was
	// turned off for the update.
	rootCmd.PersistentFlags().BoolVar(&disableGPU, "disable-gpu", false, "start without hardware acceleration (overrides disable_gpu)")

	runCmd.Flags().DurationVar(&checkInterval, "interval", 0, "repeat the check at this interval (0 checks once)")
	checkCmd.Flags().BoolVar(&installAfterCheck, "install", false, "quit and install once the update is downloaded")

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs an argv update task first, if present. An install task never
// returns; a post-install task falls through to normal startup with the task
// tokens stripped.
func execute(args []string) error {
	t, err := task.Parse(args)
	switch {
	case err == nil:
		inst, err := runTask(context.Background(), t)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		previousInstall = inst
		args = task.Strip(args)
	case !errors.Is(err, task.ErrNoTask):
		fmt.Fprintf(os.Stderr, "Ignoring malformed update task: %v\n", err)
		args = task.Strip(args)
	}

	rootCmd.SetArgs(withDefaultCommand(args))
	return rootCmd.ExecuteContext(context.Background())
}

// withDefaultCommand selects run when args name no subcommand, so a relaunch
// carrying only flags starts the updater normally.
func withDefaultCommand(args []string) []string {
	for _, a := range args {
		if a == "-h" || a == "--help" {
			return args
		}
	}
	cmd, _, err := rootCmd.Find(args)
	if err != nil || cmd != rootCmd {
		return args
	}
	return append([]string{runCmd.Name()}, args...)
}

// loadConfig reads the config, applies the --feed override and validates.
// Auto-corrected values are reported on stderr.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if feedURL != "" {
		cfg.FeedURL = feedURL
	}
	if rootCmd.PersistentFlags().Changed("disable-gpu") {
		cfg.DisableGPU = disableGPU
	}

	result := cfg.ValidateTiered()
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "config warning: %v\n", w)
	}
	if result.HasFatals() {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(result.Fatals...))
	}
	return cfg, nil
}

// initLogging routes every generation's log into the shared update log,
// mirrored to stderr.
func initLogging(cfg *config.Config) *logging.SharedLog {
	shared := logging.NewSharedLog(cfg.LogFile, cfg.LogMaxBytes, os.Stderr)
	logging.Init(cfg.LogFormat, cfg.LogLevel, shared)
	return shared
}
