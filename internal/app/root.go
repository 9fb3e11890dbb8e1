// Package app implements the distplan command line.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configDir string
	dbPath    string
	logLevel  string

	// RootCmd is the root command for distplan
	RootCmd = &cobra.Command{
		Use:   "distplan",
		Short: "Plan a distribution release upgrade without touching the system",
		Long: `distplan computes the package changes a distribution release upgrade
would make: which packages are installed, upgraded, removed or purged, how much
must be downloaded, and whether every filesystem has room for it.

Planning reads the dpkg status file, the package indices and a DistUpgrade.cfg
policy file. It takes the package-system locks for the duration of the run but
never installs or removes anything.

Quick Start:
  1. distplan plan
  2. distplan plan --record   # keep the result in the history database
  3. distplan history

Exit codes:
  0  the plan is safe to apply
  2  dependencies could not be resolved
  3  no meta-package is installed
  4  the plan removes a blacklisted or essential package
  5  the plan installs a known-bad version
  6  the plan installs packages without a trusted origin
  7  a filesystem lacks room
  8  the package-system lock is held by another process
  9  a previous dpkg run was interrupted`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "distplan: distribution upgrade planner")
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'distplan plan' to compute an upgrade plan.")
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'distplan --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default: $XDG_CONFIG_HOME/distplan)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "history database path (default: ~/.distplan/history.db)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "plan log level on stderr (debug, info, warn, error, disabled)")

	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(planCmd)
	RootCmd.AddCommand(historyCmd)
	RootCmd.AddCommand(showCmd)
	RootCmd.AddCommand(watchCmd)
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// parseLogLevel maps the --log-level flag to a zerolog level.
func parseLogLevel(s string) (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// getDataDir returns ~/.distplan, creating it if needed.
func getDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	dir := filepath.Join(home, ".distplan")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create distplan directory: %w", err)
	}
	return dir, nil
}

// getDBPath returns the database path: the flag, then the config file,
// then the default.
func getDBPath(configured string) (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	if configured != "" {
		return configured, nil
	}
	dir, err := getDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// getDefaultPIDFile returns the default PID file path
func getDefaultPIDFile() (string, error) {
	dir, err := getDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "watch.pid"), nil
}

// getDefaultLogFile returns the default log file path
func getDefaultLogFile() (string, error) {
	dir, err := getDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "watch.log"), nil
}
