package planner

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/blackwell-systems/distplan/internal/cache"
	"github.com/blackwell-systems/distplan/internal/universe"
)

// resolve runs the resolver once over the whole cache. The trace goes to
// the plan log and, on failure, into the returned error.
func (s *Session) resolve(run string) error {
	log := s.enter(StageResolver)
	log.Decision("resolve", "", run)
	var trace bytes.Buffer
	if err := s.cache.FixBroken(io.MultiWriter(&trace, log.TraceWriter())); err != nil {
		return s.resolutionFailed(run, trace.String(), err)
	}
	return nil
}

func (s *Session) resolutionFailed(stage, trace string, cause error) error {
	return &ResolutionFailedError{
		Stage:  stage,
		Report: UnmetReport(s.cache, s.reportKinds()...),
		Trace:  trace,
		Cause:  cause,
	}
}

// reportKinds are the relation kinds listed for a broken package: the hard
// kinds plus Recommends and Suggests when the policy installs them.
func (s *Session) reportKinds() []universe.DepKind {
	kinds := append([]universe.DepKind(nil), cache.HardKinds...)
	if s.policy.InstallRecommends() {
		kinds = append(kinds, universe.Recommends)
	}
	if s.policy.InstallSuggests() {
		kinds = append(kinds, universe.Suggests)
	}
	return kinds
}

// UnmetReport describes every broken package of c, one relation per line,
// listing unsatisfied relations of the given kinds (HardKinds when none).
// It is empty when nothing is broken.
func UnmetReport(c *cache.Cache, kinds ...universe.DepKind) string {
	broken := c.Broken()
	if len(broken) == 0 {
		return ""
	}
	if len(kinds) == 0 {
		kinds = cache.HardKinds
	}
	var b strings.Builder
	b.WriteString("The following packages have unmet dependencies:\n\n")
	for _, name := range broken {
		indent := strings.Repeat(" ", len(name)+2)
		first := true
		for _, pr := range c.Problems(name, kinds...) {
			if first {
				b.WriteString(name + ": ")
				first = false
			} else {
				b.WriteString(indent)
			}
			b.WriteString(problemLine(c, pr, indent))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func problemLine(c *cache.Cache, pr cache.Problem, indent string) string {
	kind := string(pr.Dep.Kind)
	if pr.Dep.Kind.IsNegative() {
		rel := pr.Dep.Alternatives[0]
		culprits := append([]string(nil), pr.Culprits...)
		sort.Strings(culprits)
		return fmt.Sprintf("%s: %s but %s is to be installed", kind, rel, strings.Join(culprits, ", "))
	}
	parts := make([]string, len(pr.Dep.Alternatives))
	for i, rel := range pr.Dep.Alternatives {
		parts[i] = fmt.Sprintf("%s: %s but %s", kind, rel, why(c, rel))
	}
	return strings.Join(parts, " or\n"+indent)
}

// why explains why rel is not satisfied.
func why(c *cache.Cache, rel universe.Relation) string {
	u := c.Universe()
	p, ok := u.Package(rel.Name)
	if !ok {
		if u.IsVirtual(rel.Name) {
			return "it is a virtual package"
		}
		return "it is not installable"
	}
	if v := c.Target(rel.Name); v != nil {
		if c.Mark(rel.Name).IsInstall() {
			return fmt.Sprintf("%s is to be installed", v.Version)
		}
		return fmt.Sprintf("%s is installed", v.Version)
	}
	if p.IsInstalled() {
		return "it is going to be removed"
	}
	return "it is not installed"
}
