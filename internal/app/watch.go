package app

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/distplan/internal/config"
	"github.com/blackwell-systems/distplan/internal/output"
	"github.com/blackwell-systems/distplan/internal/planlog"
	"github.com/blackwell-systems/distplan/internal/watcher"
)

var (
	watchPlanOpts    planFlags
	watchDaemon      bool
	watchDaemonChild bool
	watchPIDFile     string
	watchDaemonLog   string
	watchStop        bool
	watchDebounce    time.Duration

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Re-plan whenever the package database changes",
		Long: `Watch the dpkg status file, the extended states file and the package
indices, and compute a new plan each time they change. Every plan is recorded
in the history database, so 'distplan history' shows how the upgrade evolves as
packages are installed and the indices are refreshed.

Watch modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as background process
  • Stop: Stop a running daemon

Changes are coalesced: a plan is computed once the files have been quiet for
the debounce interval.`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  distplan watch

  # Run as background daemon
  distplan watch --daemon

  # Stop running daemon
  distplan watch --stop

  # Use custom PID and daemon log files
  distplan watch --daemon --pid-file /tmp/watch.pid --daemon-log /tmp/watch.log`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
)

func init() {
	addPlanFlags(watchCmd, &watchPlanOpts)
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: ~/.distplan/watch.pid)")
	watchCmd.Flags().StringVar(&watchDaemonLog, "daemon-log", "", "daemon output file (default: ~/.distplan/watch.log)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "quiet interval before re-planning")

	// Hide the internal daemon-child flag from help
	watchCmd.Flags().MarkHidden("daemon-child")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchPIDFile == "" {
		defaultPID, err := getDefaultPIDFile()
		if err != nil {
			return fmt.Errorf("failed to get default PID file path: %w", err)
		}
		watchPIDFile = defaultPID
	}
	if watchDaemonLog == "" {
		defaultLog, err := getDefaultLogFile()
		if err != nil {
			return fmt.Errorf("failed to get default log file path: %w", err)
		}
		watchDaemonLog = defaultLog
	}

	if watchStop {
		return stopWatchDaemon()
	}
	if watchDaemon {
		return startWatchDaemon()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	r := &planRun{
		cfg:     cfg,
		flags:   watchPlanOpts,
		stdout:  cmd.OutOrStdout(),
		stderr:  cmd.ErrOrStderr(),
		summary: true,
	}
	r.flags.record = true
	r.flags.quiet = true

	level, err := parseLogLevel(logLevel)
	if err != nil {
		return err
	}
	w, err := watcher.New(watchPaths(cfg), r.execute, planlog.NewConsole(cmd.ErrOrStderr(), level))
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.SetDebounce(watchDebounce)

	if watchDaemonChild {
		return w.RunDaemon(watchPIDFile)
	}
	return runWatchForeground(w)
}

// watchPaths lists the files whose change invalidates the last plan.
func watchPaths(cfg *config.Config) []string {
	paths := []string{cfg.Status}
	if cfg.ExtendedStates != "" {
		paths = append(paths, cfg.ExtendedStates)
	}
	for _, idx := range cfg.Indices {
		paths = append(paths, idx.Path)
	}
	if cfg.DpkgUpdatesDir != "" {
		paths = append(paths, filepath.Join(cfg.DpkgUpdatesDir, "*"))
	}
	return paths
}

// daemonArgs are the arguments of the daemon child: the current command
// line without the flags that control the daemon itself.
func daemonArgs(argv []string) []string {
	var out []string
	for _, arg := range argv {
		switch arg {
		case "--daemon", "--daemon=true", "--stop":
			continue
		}
		out = append(out, arg)
	}
	return out
}

func stopWatchDaemon() error {
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		fmt.Println("Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping daemon")
	spinner.Start()
	if err := watcher.StopDaemon(watchPIDFile); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")
	return nil
}

func startWatchDaemon() error {
	spinner := output.NewSpinner("Starting daemon")
	spinner.Start()
	if err := watcher.StartDaemon(watchPIDFile, watchDaemonLog, daemonArgs(os.Args[1:])); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon started")

	fmt.Printf("\nRe-planning daemon started\n")
	fmt.Printf("  PID file: %s\n", watchPIDFile)
	fmt.Printf("  Log file: %s\n", watchDaemonLog)
	fmt.Printf("\nTo stop: distplan watch --stop\n")
	return nil
}

func runWatchForeground(w *watcher.Watcher) error {
	fmt.Println("Watching the package database (press Ctrl+C to stop)...")
	fmt.Println()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	sig := <-sigCh
	fmt.Printf("\nReceived signal %v, shutting down...\n", sig)

	if err := w.Stop(); err != nil {
		return fmt.Errorf("failed to stop watcher: %w", err)
	}
	fmt.Println("Watcher stopped")
	return nil
}
