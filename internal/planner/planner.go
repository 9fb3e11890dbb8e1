package planner

import (
	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/blackwell-systems/distplan/internal/cache"
	"github.com/blackwell-systems/distplan/internal/policy"
	"github.com/blackwell-systems/distplan/internal/space"
)

// Run computes the upgrade plan for u under policy p. Errors match one of
// the Err* kinds through errors.Is; ExitKind names them.
func Run(u cache.PackageUniverse, p *policy.Policy, m space.Mountinfo, opts Options) (*Plan, error) {
	return NewSession(u, p, m, opts).Plan()
}

// Plan runs every stage in order and returns the frozen plan. The locks
// are held for the whole run and released on every path.
func (s *Session) Plan() (*Plan, error) {
	if err := s.Acquire(); err != nil {
		return nil, err
	}
	defer s.Release()

	s.protectRunningKernel()
	if err := s.sanityCheck(); err != nil {
		return nil, err
	}
	s.serverMode = s.detectServerMode()
	s.log.Decision("mode", "", modeName(s.serverMode))

	if err := s.applyMarkingRules(); err != nil {
		return nil, err
	}
	if err := s.selectMetaPackages(); err != nil {
		return nil, err
	}
	kernels := s.selectKernel()
	if err := s.resolve("after marking"); err != nil {
		return nil, err
	}

	foreign := s.foreignPackages()
	s.reapObsoletes(s.removalCandidates(kernels), foreign)
	if err := s.resolve("after reaping"); err != nil {
		return nil, err
	}

	untrusted, err := s.verifyTrust()
	if err != nil {
		return nil, err
	}
	if err := s.verifyPlan(); err != nil {
		return nil, err
	}
	budget, err := s.checkSpace()
	if err != nil {
		return nil, err
	}
	return s.freeze(budget, untrusted, foreign), nil
}

// sanityCheck repairs a cache that is already broken before any upgrade
// mark is set and reports packages stuck in reinstreq.
func (s *Session) sanityCheck() error {
	log := s.enter(StageSanity)
	if s.cache.IsBroken() {
		log.Warn("broken", "", "cache is broken before planning, trying to fix it")
		if err := s.cache.FixBroken(log.TraceWriter()); err != nil {
			return s.resolutionFailed("broken packages", "", err)
		}
	}
	return errors.Trace(s.handleReqReinst())
}

func (s *Session) freeze(b *space.Budget, untrusted []string, foreign set.Strings) *Plan {
	plan := &Plan{
		RequiredDownloadBytes:    b.DownloadBytes,
		InstalledDelta:           b.InstalledDelta,
		PerMountRequiredBytes:    b.Required,
		UntrustedPackages:        untrusted,
		DemotedInstalledPackages: s.demotedPackages(),
		ForeignPackages:          foreign.SortedValues(),
		ReqReinstPackages:        s.reqReinst,
		ServerMode:               s.serverMode,
		MetaPackage:              s.metaPackage,
		Warnings:                 s.Warnings(),
	}
	for _, ch := range s.cache.Changes() {
		pc := PackageChange{Name: ch.Name, Mark: ch.Mark, Auto: ch.Auto}
		if ch.Package.Installed != nil {
			pc.From = ch.Package.Installed.Version
		}
		if v := s.cache.Target(ch.Name); v != nil {
			pc.To = v.Version
			if ch.Mark.IsInstall() && v.Downloadable {
				pc.DownloadSize = v.DownloadSize
			}
		}
		plan.Changes = append(plan.Changes, pc)
	}
	return plan
}

func modeName(server bool) string {
	if server {
		return "server"
	}
	return "desktop"
}
