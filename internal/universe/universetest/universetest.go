// Package universetest builds small in-memory universes for tests.
package universetest

import (
	"github.com/blackwell-systems/distplan/internal/universe"
)

// Default origin of candidate versions.
const (
	DefaultArchive = "trusty"
	DefaultOrigin  = "Ubuntu"
)

// Pkg describes one package. Relation fields use control-file syntax.
type Pkg struct {
	Name      string
	Installed string // installed version, "" if not installed
	Candidate string // candidate version, "" for none

	Auto      bool
	Essential bool
	Section   string
	Priority  universe.Priority
	State     universe.InstallState

	// Relations of the candidate. The installed version uses the
	// Installed* fields when set and these otherwise.
	Depends    string
	Recommends string
	Suggests   string
	Conflicts  string
	Breaks     string
	Provides   string

	InstalledDepends  string
	InstalledProvides string

	Size          int64 // candidate download size
	InstalledSize int64 // both versions unless CandidateSize is set
	CandidateSize int64

	NotDownloadable bool
	Untrusted       bool
	Archive         string
	Origin          string
}

// Package builds a package from s. It panics on malformed relations.
func Package(s Pkg) *universe.Package {
	p := &universe.Package{Name: s.Name, Auto: s.Auto, State: s.State}
	if s.Installed != "" {
		deps := s.InstalledDepends
		if deps == "" {
			deps = s.Depends
		}
		provides := s.InstalledProvides
		if provides == "" {
			provides = s.Provides
		}
		p.Installed = version(s, s.Installed, deps, provides, s.InstalledSize)
	}
	if s.Candidate != "" {
		size := s.InstalledSize
		if s.CandidateSize != 0 {
			size = s.CandidateSize
		}
		c := p.Installed
		if c == nil || s.Candidate != s.Installed {
			c = version(s, s.Candidate, s.Depends, s.Provides, size)
		}
		c.Downloadable = !s.NotDownloadable
		c.DownloadSize = s.Size
		archive, origin := s.Archive, s.Origin
		if archive == "" {
			archive = DefaultArchive
		}
		if origin == "" {
			origin = DefaultOrigin
		}
		c.Origins = []universe.Origin{{Archive: archive, Origin: origin, Trusted: !s.Untrusted}}
		p.Candidate = c
	}
	return p
}

func version(s Pkg, ver, depends, provides string, size int64) *universe.Version {
	v := &universe.Version{
		Version:       ver,
		Section:       s.Section,
		Priority:      s.Priority,
		Essential:     s.Essential,
		InstalledSize: size,
	}
	for _, field := range []struct {
		kind universe.DepKind
		raw  string
	}{
		{universe.Depends, depends},
		{universe.Recommends, s.Recommends},
		{universe.Suggests, s.Suggests},
		{universe.Conflicts, s.Conflicts},
		{universe.Breaks, s.Breaks},
	} {
		deps, err := universe.ParseDependencies(field.kind, field.raw)
		if err != nil {
			panic(err)
		}
		v.Depends = append(v.Depends, deps...)
	}
	prov, err := universe.ParseDependencies(universe.Depends, provides)
	if err != nil {
		panic(err)
	}
	for _, d := range prov {
		for _, alt := range d.Alternatives {
			v.Provides = append(v.Provides, alt.Name)
		}
	}
	return v
}

// Universe builds a universe from pkgs.
func Universe(pkgs ...Pkg) *universe.Universe {
	u := universe.New()
	for _, s := range pkgs {
		u.Add(Package(s))
	}
	return u
}
