// Package resolver provides a greedy dependency resolver for the planning
// cache. It fixes one broken package at a time, preferring to satisfy a
// dependency over removing the package that declares it.
package resolver

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/blackwell-systems/distplan/internal/cache"
	"github.com/blackwell-systems/distplan/internal/universe"
)

// DefaultMaxSteps bounds the number of marks a single Resolve may change.
const DefaultMaxSteps = 10000

// Greedy is a cache.Resolver.
type Greedy struct {
	MaxSteps int
}

// New returns a Greedy resolver with default limits.
func New() *Greedy {
	return &Greedy{MaxSteps: DefaultMaxSteps}
}

var _ cache.Resolver = (*Greedy)(nil)

// Upgrade marks every installed, upgradable package whose mark is keep for
// upgrade, then resolves. Packages that cannot be upgraded are held back.
func (g *Greedy) Upgrade(o cache.Overlay, trace io.Writer) error {
	fmt.Fprintln(trace, "Calculating upgrade")
	count := 0
	for _, p := range o.Universe().Packages() {
		if !p.IsUpgradable() || !p.CandidateDownloadable() {
			continue
		}
		if o.Mark(p.Name) != cache.MarkKeep {
			continue
		}
		o.SetMark(p.Name, cache.MarkUpgrade)
		count++
	}
	fmt.Fprintf(trace, "%d packages marked for upgrade\n", count)
	return errors.Trace(g.Resolve(o, nil, trace))
}

// Resolve changes marks until nothing is broken. Marks of pinned names are
// never changed.
func (g *Greedy) Resolve(o cache.Overlay, pinned []string, trace io.Writer) error {
	r := &run{
		o:        o,
		u:        o.Universe(),
		pinned:   set.NewStrings(pinned...),
		rejected: set.NewStrings(),
		trace:    trace,
	}
	maxSteps := g.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	for step := 0; ; step++ {
		broken := o.Broken()
		if len(broken) == 0 {
			fmt.Fprintln(trace, "Done")
			return nil
		}
		if step >= maxSteps {
			return errors.Errorf("giving up after %d steps, broken packages: %s", step, strings.Join(broken, ", "))
		}
		name := broken[0]
		fmt.Fprintf(trace, "Investigating (%d) %s\n", step, name)
		fixed := false
		for _, prob := range o.Problems(name) {
			fmt.Fprintf(trace, "Broken %s:%s on %s\n", name, prob.Dep.Kind, formatGroup(prob.Dep))
			if r.fix(prob) {
				fixed = true
				break
			}
		}
		if !fixed {
			return errors.Errorf("unable to correct problems with %s", name)
		}
	}
}

// rejected holds packages whose install or upgrade was cancelled during
// this run; they are not offered again.
type run struct {
	o        cache.Overlay
	u        cache.PackageUniverse
	pinned   set.Strings
	rejected set.Strings
	trace    io.Writer
}

func (r *run) fix(prob cache.Problem) bool {
	if prob.Dep.Kind.IsNegative() {
		for _, culprit := range prob.Culprits {
			if r.resolveConflict(culprit, prob.Dep.Alternatives[0]) {
				return true
			}
		}
		return r.giveUp(prob.Package)
	}
	for _, alt := range prob.Dep.Alternatives {
		if r.satisfy(alt) {
			return true
		}
	}
	return r.giveUp(prob.Package)
}

func (r *run) changeable(name string) bool {
	return !r.pinned.Contains(name)
}

func (r *run) removable(name string) bool {
	if !r.changeable(name) || r.o.Protected(name) {
		return false
	}
	p, ok := r.u.Package(name)
	return ok && !p.Essential()
}

func (r *run) set(name string, m cache.Mark, why string) {
	fmt.Fprintf(r.trace, "  %s %s: %s\n", m, name, why)
	r.o.SetMark(name, m)
}

// reject cancels a pending install or upgrade for the rest of the run.
func (r *run) reject(name, why string) {
	r.rejected.Add(name)
	r.set(name, cache.MarkKeep, why)
}

// satisfy tries to make rel satisfied by changing one package.
func (r *run) satisfy(rel universe.Relation) bool {
	if p, ok := r.u.Package(rel.Name); ok && r.changeable(p.Name) {
		if r.satisfyWith(p, rel) {
			return true
		}
	}
	if rel.Operator != "" {
		return false
	}
	providers := r.u.Providers(rel.Name)
	// installed providers first, then by name
	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].IsInstalled() && !providers[j].IsInstalled()
	})
	for _, p := range providers {
		if p.Name == rel.Name || !r.changeable(p.Name) {
			continue
		}
		if p.Installed != nil && providesName(p.Installed, rel.Name) && r.o.Mark(p.Name).IsRemoval() {
			r.set(p.Name, cache.MarkKeep, "provides "+rel.Name)
			return true
		}
		if r.rejected.Contains(p.Name) {
			continue
		}
		if p.CandidateDownloadable() && providesName(p.Candidate, rel.Name) && r.o.Mark(p.Name) == cache.MarkKeep {
			r.set(p.Name, installMark(p), "provides "+rel.Name)
			return true
		}
	}
	return false
}

func (r *run) satisfyWith(p *universe.Package, rel universe.Relation) bool {
	mark := r.o.Mark(p.Name)
	if mark.IsRemoval() && p.Installed != nil && rel.Satisfies(p.Installed.Version) {
		r.set(p.Name, cache.MarkKeep, "needed by "+rel.String())
		return true
	}
	if mark.IsInstall() || r.rejected.Contains(p.Name) {
		return false
	}
	if !p.CandidateDownloadable() || !rel.Satisfies(p.Candidate.Version) {
		return false
	}
	if p.IsInstalled() && !p.IsUpgradable() {
		return false
	}
	r.set(p.Name, installMark(p), "needed by "+rel.String())
	return true
}

// resolveConflict tries to move culprit out of the way of rel.
func (r *run) resolveConflict(culprit string, rel universe.Relation) bool {
	if !r.changeable(culprit) {
		return false
	}
	p, ok := r.u.Package(culprit)
	if !ok {
		return false
	}
	switch r.o.Mark(culprit) {
	case cache.MarkInstall:
		r.reject(culprit, "conflicts with "+rel.String())
		return true
	case cache.MarkKeep:
		if p.IsUpgradable() && p.CandidateDownloadable() && !r.rejected.Contains(culprit) && !hits(p.Name, p.Candidate, rel) {
			r.set(culprit, cache.MarkUpgrade, "avoids "+rel.String())
			return true
		}
	case cache.MarkUpgrade:
		if p.Installed != nil && !hits(p.Name, p.Installed, rel) {
			r.reject(culprit, "avoids "+rel.String())
			return true
		}
	}
	if !r.removable(culprit) {
		return false
	}
	r.set(culprit, cache.MarkRemove, "conflicts with "+rel.String())
	return true
}

// giveUp changes the broken package itself: a pending install or upgrade
// is cancelled, a kept package is removed.
func (r *run) giveUp(name string) bool {
	if !r.changeable(name) {
		return false
	}
	p, ok := r.u.Package(name)
	if !ok {
		return false
	}
	switch r.o.Mark(name) {
	case cache.MarkInstall, cache.MarkUpgrade:
		r.reject(name, "dependencies cannot be satisfied")
		return true
	case cache.MarkKeep:
		if p.IsInstalled() && r.removable(name) {
			r.set(name, cache.MarkRemove, "dependencies cannot be satisfied")
			return true
		}
	}
	return false
}

func installMark(p *universe.Package) cache.Mark {
	if p.IsInstalled() {
		return cache.MarkUpgrade
	}
	return cache.MarkInstall
}

// hits reports whether version v of package name is forbidden by rel.
func hits(name string, v *universe.Version, rel universe.Relation) bool {
	if name == rel.Name && rel.Satisfies(v.Version) {
		return true
	}
	return rel.Operator == "" && providesName(v, rel.Name)
}

func providesName(v *universe.Version, name string) bool {
	for _, p := range v.Provides {
		if p == name {
			return true
		}
	}
	return false
}

func formatGroup(dep universe.Dependency) string {
	parts := make([]string, len(dep.Alternatives))
	for i, alt := range dep.Alternatives {
		parts[i] = alt.String()
	}
	return strings.Join(parts, " | ")
}
