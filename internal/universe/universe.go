package universe

import (
	"sort"
)

// Universe is an in-memory package universe. It is built once by the
// loaders (or by tests through Add) and then only read.
type Universe struct {
	pkgs      map[string]*Package
	providers map[string][]string
	dirty     bool
}

// New creates a Universe holding the given packages. Candidates are left as
// given; use AddVersion to let the universe select them.
func New(pkgs ...*Package) *Universe {
	u := &Universe{pkgs: make(map[string]*Package)}
	for _, p := range pkgs {
		u.Add(p)
	}
	return u
}

// Add inserts or replaces a package.
func (u *Universe) Add(p *Package) {
	if p.Installed != nil && !containsVersion(p.Versions, p.Installed) {
		p.Versions = append(p.Versions, p.Installed)
	}
	if p.Candidate != nil && !containsVersion(p.Versions, p.Candidate) {
		p.Versions = append(p.Versions, p.Candidate)
	}
	u.pkgs[p.Name] = p
	u.dirty = true
}

// AddVersion records a version of name, merging it with an already known
// identical version, and reselects the candidate.
func (u *Universe) AddVersion(name string, v *Version, installed bool) *Package {
	p, ok := u.pkgs[name]
	if !ok {
		p = &Package{Name: name}
		u.pkgs[name] = p
	}
	merged := false
	for _, known := range p.Versions {
		if known.Version != v.Version {
			continue
		}
		mergeVersion(known, v)
		v = known
		merged = true
		break
	}
	if !merged {
		p.Versions = append(p.Versions, v)
	}
	if installed {
		p.Installed = v
	}
	p.Candidate = selectCandidate(p)
	u.dirty = true
	return p
}

// Package looks up a package by name.
func (u *Universe) Package(name string) (*Package, bool) {
	p, ok := u.pkgs[name]
	return p, ok
}

// Packages returns every package sorted by name.
func (u *Universe) Packages() []*Package {
	out := make([]*Package, 0, len(u.pkgs))
	for _, p := range u.pkgs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Providers returns the packages any of whose versions provide name.
func (u *Universe) Providers(name string) []*Package {
	u.index()
	var out []*Package
	for _, n := range u.providers[name] {
		out = append(out, u.pkgs[n])
	}
	return out
}

// IsVirtual reports whether name is only known through Provides.
func (u *Universe) IsVirtual(name string) bool {
	if _, ok := u.pkgs[name]; ok {
		return false
	}
	u.index()
	return len(u.providers[name]) > 0
}

func (u *Universe) index() {
	if !u.dirty && u.providers != nil {
		return
	}
	u.providers = make(map[string][]string)
	for _, p := range u.Packages() {
		seen := make(map[string]bool)
		for _, v := range p.Versions {
			for _, prov := range v.Provides {
				if seen[prov] {
					continue
				}
				seen[prov] = true
				u.providers[prov] = append(u.providers[prov], p.Name)
			}
		}
	}
	u.dirty = false
}

// selectCandidate picks the highest downloadable version, or the installed
// version when nothing newer can be fetched.
func selectCandidate(p *Package) *Version {
	var best *Version
	for _, v := range p.Versions {
		if !v.Downloadable {
			continue
		}
		if best == nil || CompareVersions(v.Version, best.Version) > 0 {
			best = v
		}
	}
	if p.Installed != nil && (best == nil || CompareVersions(p.Installed.Version, best.Version) > 0) {
		return p.Installed
	}
	return best
}

func mergeVersion(dst, src *Version) {
	if src.Downloadable {
		dst.Downloadable = true
		if src.DownloadSize > 0 {
			dst.DownloadSize = src.DownloadSize
		}
	}
	dst.Origins = append(dst.Origins, src.Origins...)
	if dst.Section == "" {
		dst.Section = src.Section
	}
	if dst.Priority == PriorityUnset {
		dst.Priority = src.Priority
	}
	if dst.InstalledSize == 0 {
		dst.InstalledSize = src.InstalledSize
	}
	if len(dst.Depends) == 0 {
		dst.Depends = src.Depends
	}
	if len(dst.Provides) == 0 {
		dst.Provides = src.Provides
	}
	dst.Essential = dst.Essential || src.Essential
}

func containsVersion(vs []*Version, v *Version) bool {
	for _, known := range vs {
		if known == v {
			return true
		}
	}
	return false
}
