package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/distplan/internal/config"
	"github.com/blackwell-systems/distplan/internal/output"
	"github.com/blackwell-systems/distplan/internal/planlog"
	"github.com/blackwell-systems/distplan/internal/planner"
	"github.com/blackwell-systems/distplan/internal/space"
)

// planFlags are the flags of the plan and watch commands.
type planFlags struct {
	partial              bool
	serverMode           string
	withNetwork          string
	allowUnauthenticated bool
	snapshots            bool
	uname                string
	mounts               string
	logFile              string
	record               bool
	quiet                bool
}

var (
	planOpts planFlags

	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Compute the package changes of a release upgrade",
		Long: `Compute the package changes a release upgrade would make and check that
the result is safe to apply.

The plan is printed as a table of installs, upgrades and removals followed by
the download size and the space required on each filesystem. Packages without
a trusted origin, demoted packages and packages from foreign archives are
listed after the table.

If the plan is unsafe the command explains why and exits with a non-zero
code (see 'distplan --help').`,
		Example: `  # Plan a full release upgrade
  distplan plan

  # Plan and keep the result in the history database
  distplan plan --record

  # Treat the machine as a server and plan for another kernel
  distplan plan --server-mode yes --uname 3.2.0-23-generic

  # Use a saved mount table instead of the live one
  distplan plan --mounts /tmp/mounts.txt`,
		Args: cobra.NoArgs,
		RunE: runPlanCmd,
	}
)

func init() {
	addPlanFlags(planCmd, &planOpts)
	planCmd.Flags().BoolVar(&planOpts.record, "record", false, "record the plan in the history database")
}

func addPlanFlags(cmd *cobra.Command, f *planFlags) {
	cmd.Flags().BoolVar(&f.partial, "partial", false, "partial upgrade: skip quirks and tolerate a missing meta-package")
	cmd.Flags().StringVar(&f.serverMode, "server-mode", "auto", "treat the machine as a server (auto, yes, no)")
	cmd.Flags().StringVar(&f.withNetwork, "with-network", "auto", "assume the archive is reachable (auto, yes, no)")
	cmd.Flags().BoolVar(&f.allowUnauthenticated, "allow-unauthenticated", false, "accept packages without a trusted origin")
	cmd.Flags().BoolVar(&f.snapshots, "snapshots", false, "account for filesystem snapshots of replaced files")
	cmd.Flags().StringVar(&f.uname, "uname", "", "running kernel release (default: uname -r)")
	cmd.Flags().StringVar(&f.mounts, "mounts", "", "read the mount table from this file instead of the system")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "append the JSON plan log to this file")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "do not show stage progress")
}

func runPlanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	r := &planRun{
		cfg:    cfg,
		flags:  planOpts,
		stdout: cmd.OutOrStdout(),
		stderr: cmd.ErrOrStderr(),
	}
	return r.execute()
}

// planRun is one invocation of the planner from the command line.
type planRun struct {
	cfg    *config.Config
	flags  planFlags
	stdout io.Writer
	stderr io.Writer
	// summary prints one line per run instead of the full plan.
	summary bool
	// mountinfo replaces the mount table named by the flags.
	mountinfo space.Mountinfo
}

// execute loads the inputs, plans, records the outcome if asked and
// prints it. The planner's error is returned so main can map it to an
// exit code.
func (r *planRun) execute() error {
	log, closeLog, err := r.logger()
	if err != nil {
		return err
	}
	defer closeLog()

	spinner := output.NewSpinner("Reading package lists")
	spinner.SetWriter(r.stderr)
	if !r.flags.quiet {
		spinner.Start()
	}
	u, err := loadUniverse(r.cfg)
	spinner.Stop()
	if err != nil {
		return err
	}

	p, err := loadPolicy(r.cfg)
	if err != nil {
		return err
	}

	opts, err := r.options(log)
	if err != nil {
		return err
	}

	progress := output.NewStageProgress(planner.Stages)
	progress.SetWriter(r.stderr)
	if !r.flags.quiet {
		opts.Progress = progress.Enter
	}

	plan, planErr := planner.Run(u, p, r.mounts(), opts)
	if !r.flags.quiet {
		progress.Finish()
	}

	var id int64
	if r.flags.record {
		id, err = r.recordOutcome(plan, planErr)
		if err != nil {
			fmt.Fprintf(r.stderr, "Warning: %v\n", err)
		}
	}

	switch {
	case r.summary:
		renderSummaryLine(r.stdout, time.Now(), id, plan, planErr)
		return planErr
	case planErr != nil:
		renderFailure(r.stdout, planErr)
	default:
		renderPlan(r.stdout, plan)
	}
	if id > 0 {
		fmt.Fprintf(r.stdout, "\nRecorded as plan #%d.\n", id)
	}
	return planErr
}

// logger returns the plan log: JSON to --log-file when given, otherwise
// the console on stderr.
func (r *planRun) logger() (*planlog.Logger, func(), error) {
	level, err := parseLogLevel(logLevel)
	if err != nil {
		return nil, nil, err
	}
	if r.flags.logFile == "" {
		return planlog.NewConsole(r.stderr, level), func() {}, nil
	}
	f, err := os.OpenFile(r.flags.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return planlog.New(f, level), func() { f.Close() }, nil
}

func (r *planRun) mounts() space.Mountinfo {
	if r.mountinfo != nil {
		return r.mountinfo
	}
	if r.flags.mounts != "" {
		return space.Table{Path: r.flags.mounts}
	}
	return space.System{}
}

// options translates flags and configuration into planner options.
func (r *planRun) options(log *planlog.Logger) (planner.Options, error) {
	server, err := parseTristate("--server-mode", r.flags.serverMode)
	if err != nil {
		return planner.Options{}, err
	}
	network, err := parseTristate("--with-network", r.flags.withNetwork)
	if err != nil {
		return planner.Options{}, err
	}
	if network == nil {
		network = r.cfg.WithNetwork
	}

	uname := r.flags.uname
	if uname == "" {
		uname = r.cfg.Uname
	}
	if uname == "" {
		uname = kernelRelease()
	}

	return planner.Options{
		PartialUpgrade:       r.flags.partial,
		ServerMode:           server,
		SnapshotsInUse:       r.flags.snapshots,
		AllowUnauthenticated: r.flags.allowUnauthenticated,
		WithNetwork:          network,
		InsideChroot:         insideChroot(),
		RunningKernel:        uname,
		RecommendedKernels:   recommendedKernels(r.cfg.Kernels, uname),
		ArchiveDir:           r.cfg.ArchiveDir,
		PackageLock:          flock.New(r.cfg.PackageLockPath()),
		ListsLock:            flock.New(r.cfg.ListsLockPath()),
		DpkgUpdatesDir:       r.cfg.DpkgUpdatesDir,
		Logger:               log,
	}, nil
}

// recommendedKernels returns the configured kernels, or the image package
// of the running kernel's flavour.
func recommendedKernels(configured []string, uname string) func() ([]string, error) {
	return func() ([]string, error) {
		if len(configured) > 0 {
			return configured, nil
		}
		u, err := planner.ParseUname(uname)
		if err != nil {
			return nil, fmt.Errorf("failed to parse running kernel: %w", err)
		}
		return []string{"linux-image-" + u.Flavour}, nil
	}
}

// parseTristate parses auto, yes or no. Auto is nil.
func parseTristate(flag, value string) (*bool, error) {
	switch strings.ToLower(value) {
	case "", "auto":
		return nil, nil
	case "yes", "true", "on":
		v := true
		return &v, nil
	case "no", "false", "off":
		v := false
		return &v, nil
	}
	return nil, fmt.Errorf("invalid %s value %q (must be auto, yes or no)", flag, value)
}

// renderPlan prints a successful plan.
func renderPlan(w io.Writer, plan *planner.Plan) {
	mode := "desktop"
	if plan.ServerMode {
		mode = "server"
	}
	if plan.MetaPackage != "" {
		fmt.Fprintf(w, "Upgrade plan (%s, %s)\n\n", mode, plan.MetaPackage)
	} else {
		fmt.Fprintf(w, "Upgrade plan (%s)\n\n", mode)
	}

	fmt.Fprint(w, output.RenderChangeTable(plan.Changes))
	fmt.Fprintln(w)
	fmt.Fprintln(w, output.RenderSummary(plan))
	delta, verb := plan.InstalledDelta, "used"
	if delta < 0 {
		delta, verb = -delta, "freed"
	}
	fmt.Fprintf(w, "Need to get %s. After this operation, %s of disk space will be %s.\n",
		humanize.IBytes(uint64(plan.RequiredDownloadBytes)), humanize.IBytes(uint64(delta)), verb)

	fmt.Fprintln(w)
	fmt.Fprint(w, output.RenderSpaceTable(plan.PerMountRequiredBytes, nil))

	lists := []struct {
		title string
		names []string
	}{
		{"Allowed without a trusted origin", plan.UntrustedPackages},
		{"Demoted from the supported set", plan.DemotedInstalledPackages},
		{"From foreign archives", plan.ForeignPackages},
		{"Need to be reinstalled", plan.ReqReinstPackages},
	}
	for _, l := range lists {
		if s := output.RenderNameList(l.title, l.names); s != "" {
			fmt.Fprintln(w)
			fmt.Fprint(w, s)
		}
	}

	if len(plan.Warnings) > 0 {
		fmt.Fprintln(w)
		for _, warning := range plan.Warnings {
			fmt.Fprintf(w, "Warning: %s\n", warning)
		}
	}
}

// renderSummaryLine prints the outcome of a run on one line.
func renderSummaryLine(w io.Writer, now time.Time, id int64, plan *planner.Plan, planErr error) {
	line := now.Format("15:04:05") + " "
	if id > 0 {
		line += fmt.Sprintf("plan #%d ", id)
	}
	line += planner.ExitKind(planErr)
	if plan != nil {
		line += ": " + output.RenderSummary(plan)
	}
	fmt.Fprintln(w, line)
}

// renderFailure prints what the user needs to act on a failed plan.
func renderFailure(w io.Writer, err error) {
	fmt.Fprintf(w, "The upgrade cannot be planned (%s).\n\n", planner.ExitKind(err))

	var resolution *planner.ResolutionFailedError
	var untrusted *planner.UntrustedPackagesError
	var short *planner.InsufficientSpaceError
	switch {
	case errors.As(err, &resolution):
		if resolution.Report != "" {
			fmt.Fprint(w, resolution.Report)
		}
	case errors.As(err, &untrusted):
		fmt.Fprint(w, output.RenderNameList("Packages without a trusted origin", untrusted.Packages))
		fmt.Fprintln(w, "\nUse --allow-unauthenticated to plan anyway.")
	case errors.As(err, &short):
		fmt.Fprintln(w, "Not enough free disk space:")
		fmt.Fprint(w, output.RenderDeficits(short.Deficits))
	}
}
