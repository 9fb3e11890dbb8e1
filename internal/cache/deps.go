package cache

import (
	"sort"

	"github.com/juju/collections/set"

	"github.com/blackwell-systems/distplan/internal/universe"
)

// targeted returns the sorted names of packages that are, or will be,
// installed.
func (c *Cache) targeted() []string {
	names := set.NewStrings(c.installed...)
	for name, s := range c.marks {
		if s.mark.IsInstall() {
			names.Add(name)
		}
	}
	out := make([]string, 0, names.Size())
	for _, name := range names.SortedValues() {
		if c.Target(name) != nil {
			out = append(out, name)
		}
	}
	return out
}

// Broken returns the sorted names of targeted packages with an unsatisfied
// hard relation.
func (c *Cache) Broken() []string {
	var out []string
	for _, name := range c.targeted() {
		if len(c.Problems(name)) > 0 {
			out = append(out, name)
		}
	}
	return out
}

// IsBroken reports whether any targeted package has an unsatisfied hard
// relation.
func (c *Cache) IsBroken() bool {
	for _, name := range c.targeted() {
		if len(c.Problems(name)) > 0 {
			return true
		}
	}
	return false
}

// Problems lists the unsatisfied relations of name's target version among
// kinds, or among HardKinds when none are given.
func (c *Cache) Problems(name string, kinds ...universe.DepKind) []Problem {
	v := c.Target(name)
	if v == nil {
		return nil
	}
	if len(kinds) == 0 {
		kinds = HardKinds
	}
	var out []Problem
	for _, dep := range v.Depends {
		if !hasKind(kinds, dep.Kind) {
			continue
		}
		if dep.Kind.IsNegative() {
			for _, alt := range dep.Alternatives {
				if culprits := c.conflicting(name, alt); len(culprits) > 0 {
					out = append(out, Problem{
						Package:  name,
						Dep:      universe.Dependency{Kind: dep.Kind, Alternatives: []universe.Relation{alt}},
						Culprits: culprits,
					})
				}
			}
			continue
		}
		satisfied := false
		for _, alt := range dep.Alternatives {
			if len(c.Satisfiers(alt)) > 0 {
				satisfied = true
				break
			}
		}
		if !satisfied {
			out = append(out, Problem{Package: name, Dep: dep})
		}
	}
	return out
}

// Satisfiers returns the targeted packages satisfying rel, directly or by
// an unversioned Provides.
func (c *Cache) Satisfiers(rel universe.Relation) []string {
	var out []string
	if v := c.Target(rel.Name); v != nil && rel.Satisfies(v.Version) {
		out = append(out, rel.Name)
	}
	if rel.Operator != "" {
		return out
	}
	for _, p := range c.u.Providers(rel.Name) {
		if p.Name == rel.Name {
			continue
		}
		if v := c.Target(p.Name); v != nil && provides(v, rel.Name) {
			out = append(out, p.Name)
		}
	}
	return out
}

// conflicting returns the targeted packages other than self that rel
// forbids.
func (c *Cache) conflicting(self string, rel universe.Relation) []string {
	var out []string
	for _, name := range c.Satisfiers(rel) {
		if name != self {
			out = append(out, name)
		}
	}
	return out
}

// Garbage returns installed packages, not marked for removal, that are
// auto-installed and not reachable from any manually installed package
// through Depends, PreDepends or Recommends.
func (c *Cache) Garbage() []string {
	reachable := set.NewStrings()
	var queue []string
	for _, name := range c.targeted() {
		if !c.Auto(name) {
			reachable.Add(name)
			queue = append(queue, name)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, dep := range c.Target(name).Depends {
			switch dep.Kind {
			case universe.Depends, universe.PreDepends, universe.Recommends:
			default:
				continue
			}
			for _, alt := range dep.Alternatives {
				for _, n := range c.Satisfiers(alt) {
					if !reachable.Contains(n) {
						reachable.Add(n)
						queue = append(queue, n)
					}
				}
			}
		}
	}
	var out []string
	for _, name := range c.installed {
		if c.Mark(name).IsRemoval() || reachable.Contains(name) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func provides(v *universe.Version, name string) bool {
	for _, p := range v.Provides {
		if p == name {
			return true
		}
	}
	return false
}

func hasKind(kinds []universe.DepKind, k universe.DepKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
