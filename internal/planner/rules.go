package planner

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/blackwell-systems/distplan/internal/cache"
	"github.com/blackwell-systems/distplan/internal/policy"
	"github.com/blackwell-systems/distplan/internal/universe"
)

// applyMarkingRules marks the full upgrade and layers the policy rules on
// top of it. The rules run in one action group so the resolver sees them
// together.
func (s *Session) applyMarkingRules() error {
	log := s.enter(StageMarking)
	var trace bytes.Buffer
	if err := s.cache.Upgrade(io.MultiWriter(&trace, log.TraceWriter())); err != nil {
		return s.resolutionFailed("full upgrade", trace.String(), err)
	}

	err := s.cache.WithActionGroup(func() error {
		s.markRequired()
		s.keepInstalled()
		s.postUpgrade()
		return nil
	})
	if err != nil {
		return s.resolutionFailed("marking rules", "", err)
	}

	if s.opts.Quirks != nil && !s.opts.PartialUpgrade {
		if err := s.opts.Quirks(s.cache); err != nil {
			return errors.Annotate(err, "running quirks")
		}
	}
	return nil
}

// markRequired installs every required-priority package that is not
// installed yet. Packages allowed to lose their essential status and
// arch-qualified names are left alone.
func (s *Session) markRequired() {
	for _, p := range s.cache.Universe().Packages() {
		if p.Priority() != universe.PriorityRequired || !p.CandidateDownloadable() {
			continue
		}
		if p.IsInstalled() || s.cache.Mark(p.Name).IsInstall() {
			continue
		}
		if s.policy.RemoveEssentialAllowed(p.Name) || strings.Contains(p.Name, ":") {
			continue
		}
		s.cache.MarkInstall(p.Name, "priority required")
	}
}

// activeMetas returns the meta-packages that are installed or about to
// be, in policy order.
func (s *Session) activeMetas() []string {
	var out []string
	for _, name := range s.policy.MetaPackages() {
		p, ok := s.cache.Universe().Package(name)
		if !ok {
			continue
		}
		if p.IsInstalled() || s.cache.Mark(name) == cache.MarkInstall {
			out = append(out, name)
		}
	}
	return out
}

// keepPackage undoes a removal of an installed package.
func (s *Session) keepPackage(name, reason string) {
	p, ok := s.cache.Universe().Package(name)
	if !ok || !p.IsInstalled() || !s.cache.Mark(name).IsRemoval() {
		return
	}
	s.cache.MarkInstall(name, reason)
}

func (s *Session) keepInstalled() {
	metas := s.activeMetas()

	for _, name := range s.policy.KeepInstalledPackages() {
		s.keepPackage(name, "keep installed")
	}
	for _, meta := range metas {
		rules, _ := s.policy.Meta(meta)
		for _, name := range rules.KeepInstalledPackages {
			s.keepPackage(name, "keep installed for "+meta)
		}
	}

	if !s.withNetwork() {
		return
	}
	sections := set.NewStrings(s.policy.KeepInstalledSections()...)
	for _, meta := range metas {
		rules, _ := s.policy.Meta(meta)
		sections = sections.Union(set.NewStrings(rules.KeepInstalledSections...))
	}
	if sections.IsEmpty() {
		return
	}
	for _, ch := range s.cache.Changes() {
		if !ch.Mark.IsRemoval() || !ch.Package.CandidateDownloadable() {
			continue
		}
		if section := ch.Package.Section(); sections.Contains(section) {
			s.keepPackage(ch.Name, fmt.Sprintf("keep installed section %s", section))
		}
	}
}

func (s *Session) withNetwork() bool {
	if s.opts.WithNetwork != nil {
		return *s.opts.WithNetwork
	}
	return s.policy.WithNetwork()
}

// postUpgrade applies the post-upgrade rules: for each action the global
// list first, then the lists of the active meta-packages.
func (s *Session) postUpgrade() {
	metas := s.activeMetas()
	for _, action := range policy.Actions {
		names := s.policy.PostUpgrade(action)
		for _, meta := range metas {
			rules, _ := s.policy.Meta(meta)
			names = append(names, rules.PostUpgrade[action]...)
		}
		for _, name := range names {
			s.applyAction(action, name)
		}
	}
}

func (s *Session) applyAction(action policy.Action, name string) {
	if _, ok := s.cache.Universe().Package(name); !ok {
		s.warn(StageMarking, string(action), name, "post-upgrade rule names an unknown package")
		return
	}
	reason := "post-upgrade " + string(action)
	switch action {
	case policy.ActionInstall:
		s.cache.MarkInstall(name, reason)
	case policy.ActionUpgrade:
		s.cache.MarkUpgrade(name, reason)
	case policy.ActionRemove:
		s.cache.MarkRemove(name, reason)
	case policy.ActionPurge:
		s.cache.MarkPurge(name, reason)
	}
}
