package planner

import (
	"strings"

	"github.com/juju/collections/set"
)

// removalCandidates gathers installed packages that are no longer
// downloadable, packages nothing needs any more and obsolete kernels.
func (s *Session) removalCandidates(kernels []string) set.Strings {
	candidates := set.NewStrings(kernels...)
	for _, name := range s.cache.InstalledNames() {
		p, _ := s.cache.Universe().Package(name)
		if !p.AnyVersionDownloadable() {
			candidates.Add(name)
		}
	}
	for _, name := range s.cache.Garbage() {
		candidates.Add(name)
	}
	return candidates
}

// reapObsoletes tries to remove every candidate on its own. A trial is
// undone when it needs more than the candidate set allows.
func (s *Session) reapObsoletes(candidates, foreign set.Strings) []string {
	log := s.enter(StageReaper)
	var removed []string
	for _, name := range candidates.SortedValues() {
		ok, reason := s.tryRemoveObsolete(name, candidates, foreign)
		if !ok {
			log.Debug("skip", name, reason)
			continue
		}
		log.Decision("reap", name, reason)
		removed = append(removed, name)
	}
	return removed
}

func (s *Session) tryRemoveObsolete(name string, candidates, foreign set.Strings) (bool, string) {
	c := s.cache
	if uname := s.opts.RunningKernel; uname != "" && strings.HasSuffix(name, uname) {
		return false, "belongs to the running kernel"
	}
	if s.policy.MatchesRemovalBlacklist(name) {
		return false, "in removal blacklist"
	}
	p, ok := c.Universe().Package(name)
	if !ok {
		return true, "not in the package universe"
	}
	if !p.IsInstalled() || c.Mark(name).IsRemoval() {
		return false, "not installed or already removed"
	}
	if sections := set.NewStrings(s.policy.KeepInstalledSections()...); sections.Contains(p.Section()) {
		return false, "section " + p.Section() + " is kept"
	}

	before := c.Snapshot()
	removedBefore := set.NewStrings()
	for _, ch := range c.Changes() {
		if ch.Mark.IsRemoval() {
			removedBefore.Add(ch.Name)
		}
	}

	var marked bool
	if s.policy.PurgeObsoletes() {
		marked = c.MarkPurge(name, "obsolete")
	} else {
		marked = c.MarkRemove(name, "obsolete")
	}
	if !marked {
		c.Restore(before)
		return false, "removal could not be resolved"
	}

	for _, ch := range c.Changes() {
		if !ch.Mark.IsRemoval() || removedBefore.Contains(ch.Name) {
			continue
		}
		var reason string
		switch {
		case !candidates.Contains(ch.Name):
			reason = "would also remove " + ch.Name
		case foreign.Contains(ch.Name):
			reason = "would remove foreign package " + ch.Name
		case s.policy.MatchesRemovalBlacklist(ch.Name):
			reason = "would remove blacklisted package " + ch.Name
		}
		if reason != "" {
			c.Restore(before)
			return false, reason
		}
	}
	return true, "obsolete"
}
