package planner

import (
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/blackwell-systems/distplan/internal/space"
)

const defaultBootDir = "/boot"

// verifyTrust collects the packages whose version to install has no
// trusted origin. They fail the plan unless unauthenticated packages are
// allowed.
func (s *Session) verifyTrust() ([]string, error) {
	log := s.enter(StageTrust)
	var untrusted []string
	for _, ch := range s.cache.Changes() {
		if !ch.Mark.IsInstall() {
			continue
		}
		if v := s.cache.Target(ch.Name); v != nil && !v.Trusted() {
			untrusted = append(untrusted, ch.Name)
		}
	}
	if len(untrusted) == 0 {
		return nil, nil
	}
	sort.Strings(untrusted)
	if s.opts.AllowUnauthenticated || s.policy.AllowUnauthenticated() {
		s.warn(StageTrust, "allow", "", "installing untrusted packages: "+strings.Join(untrusted, " "))
		return untrusted, nil
	}
	log.Error("reject", "", strings.Join(untrusted, " "))
	return nil, &UntrustedPackagesError{Packages: untrusted}
}

// verifyPlan checks the final marks against the removal blacklist, the
// essential flag and the bad versions list.
func (s *Session) verifyPlan() error {
	log := s.enter(StageVerify)
	for _, ch := range s.cache.Changes() {
		if !ch.Mark.IsRemoval() {
			continue
		}
		if s.policy.MatchesRemovalBlacklist(ch.Name) {
			log.Error("reject", ch.Name, "blacklisted removal")
			return &RemovalError{Package: ch.Name}
		}
		if ch.Package.Essential() && !s.policy.RemoveEssentialAllowed(ch.Name) {
			log.Error("reject", ch.Name, "essential removal")
			return &RemovalError{Package: ch.Name, Essential: true}
		}
	}
	for _, bv := range s.policy.BadVersions() {
		if !s.cache.Mark(bv.Name).IsInstall() {
			continue
		}
		if v := s.cache.Target(bv.Name); v != nil && v.Version == bv.Version {
			log.Error("reject", bv.Name, "bad version "+bv.Version)
			return &BadVersionError{Name: bv.Name, Version: bv.Version}
		}
	}
	return nil
}

// checkSpace budgets the plan against the free space of each filesystem.
func (s *Session) checkSpace() (*space.Budget, error) {
	log := s.enter(StageSpace)
	mounts, err := s.mounts.Mounts()
	if err != nil {
		return nil, errors.Annotate(err, "reading mounts")
	}

	opts := space.Options{
		ArchiveDir:       s.policy.ArchiveDir(),
		KernelInitrdSize: s.opts.KernelInitrdSize,
		Realpath:         s.opts.Realpath,
	}
	if s.opts.ArchiveDir != "" {
		opts.ArchiveDir = s.opts.ArchiveDir
	}
	if opts.KernelInitrdSize == 0 {
		bootDir := s.opts.BootDir
		if bootDir == "" {
			bootDir = defaultBootDir
		}
		opts.KernelInitrdSize = space.InitrdSize(bootDir, s.opts.RunningKernel)
	}
	if aufs := s.policy.Aufs(); aufs.Enabled {
		opts.AufsRWDir = aufs.RWDir
		if opts.AufsRWDir == "" {
			opts.AufsRWDir = os.TempDir()
		}
	}
	if s.opts.SnapshotsInUse {
		opts.SnapshotDir = space.DefaultSnapshotDir
	}

	b := space.Compute(s.cache.Changes(), mounts, opts)
	for mp, n := range b.Required {
		log.Debug("require", mp, humanize.IBytes(uint64(n)))
	}
	if !b.Fits() {
		return nil, &InsufficientSpaceError{Deficits: b.Deficits}
	}
	return b, nil
}

// foreignPackages lists installed, downloadable packages whose candidate
// comes from no official archive of either release.
func (s *Session) foreignPackages() set.Strings {
	foreign := set.NewStrings()
	src := s.policy.Sources()
	if src.ValidOrigin == "" {
		return foreign
	}
	for _, name := range s.cache.InstalledNames() {
		p, _ := s.cache.Universe().Package(name)
		if !p.CandidateDownloadable() {
			continue
		}
		official := false
		for _, o := range p.Candidate.Origins {
			if o.Origin != src.ValidOrigin {
				continue
			}
			if (src.From != "" && strings.Contains(o.Archive, src.From)) ||
				(src.To != "" && strings.Contains(o.Archive, src.To)) {
				official = true
				break
			}
		}
		if !official {
			foreign.Add(name)
		}
	}
	return foreign
}

// demotedPackages lists manually installed packages the new release no
// longer supports officially.
func (s *Session) demotedPackages() []string {
	var out []string
	for _, name := range s.policy.Demotions() {
		p, ok := s.cache.Universe().Package(name)
		if !ok || !p.IsInstalled() || s.cache.Auto(name) || s.cache.Mark(name).IsRemoval() {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// reqReinstPackages lists packages dpkg wants reinstalled that cannot be
// downloaded.
func (s *Session) reqReinstPackages() []string {
	var out []string
	for _, name := range s.cache.InstalledNames() {
		p, _ := s.cache.Universe().Package(name)
		if p.ReinstReq() && !p.CandidateDownloadable() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Session) handleReqReinst() error {
	names := s.reqReinstPackages()
	s.reqReinst = names
	if len(names) == 0 {
		return nil
	}
	s.warn(StageSanity, "reqreinst", "", "packages need reinstallation but cannot be downloaded: "+strings.Join(names, " "))
	if s.opts.FixReqReinst == nil {
		return nil
	}
	return errors.Annotate(s.withoutPackageLock(func() error {
		return s.opts.FixReqReinst(names)
	}), "fixing packages in reinstreq state")
}
