package planner

import (
	"strings"

	"github.com/juju/errors"

	"github.com/blackwell-systems/distplan/internal/cache"
)

// kernelBaseName is the image package prefix protected for the running
// kernel even when the policy names no kernel base names.
const kernelBaseName = "linux-image"

// Uname is a parsed kernel release such as 3.0.0-15-generic.
type Uname struct {
	Version string
	Build   string
	Flavour string
}

// ParseUname splits a kernel release into version, build and flavour.
func ParseUname(release string) (Uname, error) {
	parts := strings.Split(release, "-")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Uname{}, errors.NotValidf("kernel release %q", release)
	}
	return Uname{Version: parts[0], Build: parts[1], Flavour: parts[2]}, nil
}

func (s *Session) kernelBaseNames() []string {
	names := s.policy.KernelRemoval().BaseNames
	for _, n := range names {
		if n == kernelBaseName {
			return names
		}
	}
	return append(names, kernelBaseName)
}

// protectRunningKernel forbids removing the packages of the running
// kernel build.
func (s *Session) protectRunningKernel() {
	if s.opts.RunningKernel == "" {
		return
	}
	for _, base := range s.kernelBaseNames() {
		s.cache.Protect(base + "-" + s.opts.RunningKernel)
	}
}

// selectKernel makes sure a recommended kernel gets installed and returns
// the installed kernels of the old release that can go.
func (s *Session) selectKernel() []string {
	s.enter(StageKernel)
	obsolete := s.obsoleteKernels()

	if s.opts.InsideChroot {
		s.warn(StageKernel, "skip", "", "running inside a chroot")
		return obsolete
	}
	if _, err := ParseUname(s.opts.RunningKernel); err != nil {
		s.warn(StageKernel, "skip", "", err.Error())
		return obsolete
	}
	if s.opts.PlatformProbe != nil {
		if msg := s.opts.PlatformProbe(); msg != "" {
			s.warn(StageKernel, "platform", "", msg)
		}
	}
	if s.opts.RecommendedKernels == nil {
		return obsolete
	}
	kernels, err := s.opts.RecommendedKernels()
	if err != nil {
		s.warn(StageKernel, "skip", "", "recommended kernels: "+err.Error())
		return obsolete
	}
	s.markKernel(kernels)
	return obsolete
}

// markKernel keeps the first recommended kernel already present, or
// installs the first one that can be installed.
func (s *Session) markKernel(kernels []string) {
	log := s.cache.Logger()
	for _, name := range kernels {
		p, ok := s.cache.Universe().Package(name)
		if !ok || !p.CandidateDownloadable() {
			continue
		}
		m := s.cache.Mark(name)
		if !(p.IsInstalled() && !m.IsRemoval()) && !m.IsInstall() {
			continue
		}
		if p.IsUpgradable() && m != cache.MarkUpgrade {
			s.cache.MarkUpgrade(name, "recommended kernel")
		}
		log.Decision("keep", name, "recommended kernel present")
		return
	}
	for _, name := range kernels {
		if s.cache.MarkInstall(name, "recommended kernel") {
			return
		}
	}
	s.warn(StageKernel, "install", "", "none of the recommended kernels could be installed")
}

// obsoleteKernels lists installed kernel packages of the old release,
// except those of the running build.
func (s *Session) obsoleteKernels() []string {
	kr := s.policy.KernelRemoval()
	if kr.Version == "" || len(kr.BaseNames) == 0 || len(kr.Types) == 0 {
		return nil
	}
	var out []string
	for _, name := range s.cache.InstalledNames() {
		if s.kernelCandidate(name, kr.Version, kr.BaseNames, kr.Types) {
			out = append(out, name)
		}
	}
	return out
}

func (s *Session) kernelCandidate(name, version string, bases, types []string) bool {
	for _, base := range bases {
		if s.opts.RunningKernel != "" && name == base+"-"+s.opts.RunningKernel {
			return false
		}
		if !strings.HasPrefix(name, base+"-"+version+"-") {
			continue
		}
		for _, typ := range types {
			if strings.HasSuffix(name, typ) {
				return true
			}
		}
	}
	return false
}
