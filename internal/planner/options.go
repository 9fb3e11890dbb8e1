// Package planner computes distribution upgrade plans. A Session owns the
// planning cache for one run and drives it through marking, meta-package
// selection, kernel selection, obsolete reaping and the final trust,
// policy and space checks.
package planner

import (
	"github.com/blackwell-systems/distplan/internal/cache"
	"github.com/blackwell-systems/distplan/internal/planlog"
)

// Stage names, used in the plan log and progress callbacks.
const (
	StageSanity   = "sanity"
	StageMarking  = "marking"
	StageMeta     = "meta"
	StageKernel   = "kernel"
	StageResolver = "resolver"
	StageReaper   = "reaper"
	StageTrust    = "trust"
	StageVerify   = "verify"
	StageSpace    = "space"
)

// Stages lists the stages of a planning run in the order they are first
// entered. The resolver runs again after the reaper.
var Stages = []string{
	StageSanity, StageMarking, StageMeta, StageKernel, StageResolver,
	StageReaper, StageTrust, StageVerify, StageSpace,
}

// Locker is an exclusive, non-blocking lock. *flock.Flock satisfies it.
type Locker interface {
	TryLock() (bool, error)
	Unlock() error
}

// Options tune a planning run.
type Options struct {
	// PartialUpgrade skips the quirks hook and turns a missing
	// meta-package into a warning.
	PartialUpgrade bool
	// ServerMode overrides desktop/server detection when set.
	ServerMode *bool
	// SnapshotsInUse adds the size of replaced files to the budget.
	SnapshotsInUse bool
	// AllowUnauthenticated accepts untrusted origins. The policy can grant
	// the same.
	AllowUnauthenticated bool
	// WithNetwork overrides the policy's network flag when set. Section
	// keep rules only run with a network.
	WithNetwork *bool
	// InsideChroot skips kernel selection.
	InsideChroot bool

	// RunningKernel is the uname -r of the running kernel.
	RunningKernel string
	// RecommendedKernels lists kernel packages suited to the hardware, in
	// order of preference.
	RecommendedKernels func() ([]string, error)
	// PlatformProbe returns a warning about the running platform, such as
	// a UP kernel on an SMP machine, or "".
	PlatformProbe func() string

	// ArchiveDir overrides the policy's archive directory.
	ArchiveDir string
	// KernelInitrdSize overrides the initrd estimate measured in BootDir.
	KernelInitrdSize int64
	BootDir          string
	// Realpath resolves paths for mount lookup; nil uses EvalSymlinks.
	Realpath func(string) (string, error)

	// Quirks runs after the post-upgrade rules unless PartialUpgrade.
	Quirks func(c *cache.Cache) error
	// FixReqReinst is called with the packages dpkg wants reinstalled but
	// that cannot be downloaded. It runs without the package lock.
	FixReqReinst func(names []string) error

	// PackageLock and ListsLock are held for the whole run when set.
	PackageLock Locker
	ListsLock   Locker
	// DpkgUpdatesDir is checked for pending dpkg journal entries.
	DpkgUpdatesDir string

	// Resolver defaults to the greedy resolver.
	Resolver cache.Resolver
	Logger   *planlog.Logger
	// Progress is called when a stage starts.
	Progress func(stage string)
}

// PackageChange is one entry of a plan.
type PackageChange struct {
	Name         string
	Mark         cache.Mark
	Auto         bool
	From         string // installed version
	To           string // version after the upgrade
	DownloadSize int64
}

// Plan is the frozen result of a planning run.
type Plan struct {
	Changes               []PackageChange
	RequiredDownloadBytes int64
	InstalledDelta        int64
	PerMountRequiredBytes map[string]int64

	UntrustedPackages        []string
	DemotedInstalledPackages []string
	ForeignPackages          []string
	ReqReinstPackages        []string

	ServerMode  bool
	MetaPackage string
	Warnings    []string
}

// Count returns how many changes carry mark m.
func (p *Plan) Count(m cache.Mark) int {
	n := 0
	for _, ch := range p.Changes {
		if ch.Mark == m {
			n++
		}
	}
	return n
}

// Change returns the change for name.
func (p *Plan) Change(name string) (PackageChange, bool) {
	for _, ch := range p.Changes {
		if ch.Name == name {
			return ch, true
		}
	}
	return PackageChange{}, false
}
