package universe

import (
	"io"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"pault.ag/go/debian/control"
	"pault.ag/go/debian/dependency"
)

// paragraph is the subset of binary control fields the planner reads from
// dpkg status files and Packages indices.
type paragraph struct {
	control.Paragraph

	Package       string
	Version       string
	Status        string
	Section       string
	Priority      string
	Essential     string
	InstalledSize string `control:"Installed-Size"`
	Size          string
	Filename      string
	Depends       string
	PreDepends    string `control:"Pre-Depends"`
	Recommends    string
	Suggests      string
	Breaks        string
	Conflicts     string
	Provides      string
	AutoInstalled string `control:"Auto-Installed"`
}

func decodeParagraphs(r io.Reader, fn func(*paragraph) error) error {
	decoder, err := control.NewDecoder(r, nil)
	if err != nil {
		return errors.Annotate(err, "creating control decoder")
	}
	for {
		var p paragraph
		if err := decoder.Decode(&p); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Annotate(err, "decoding control paragraph")
		}
		if p.Package == "" {
			continue
		}
		if err := fn(&p); err != nil {
			return errors.Trace(err)
		}
	}
}

// LoadStatus reads a dpkg status file. Every paragraph whose status leaves
// files on disk becomes the installed version of its package.
func (u *Universe) LoadStatus(r io.Reader) error {
	return decodeParagraphs(r, func(p *paragraph) error {
		state, installed := parseStatus(p.Status)
		if !installed {
			return nil
		}
		v, err := p.version()
		if err != nil {
			return errors.Annotatef(err, "package %s", p.Package)
		}
		pkg := u.AddVersion(p.Package, v, true)
		pkg.State = state
		return nil
	})
}

// LoadIndex reads a Packages index published by origin. Entries carrying a
// Filename are downloadable.
func (u *Universe) LoadIndex(r io.Reader, origin Origin) error {
	return decodeParagraphs(r, func(p *paragraph) error {
		v, err := p.version()
		if err != nil {
			return errors.Annotatef(err, "package %s", p.Package)
		}
		v.Origins = []Origin{origin}
		v.Downloadable = p.Filename != ""
		u.AddVersion(p.Package, v, false)
		return nil
	})
}

// LoadExtendedStates reads apt's extended_states file and sets the
// auto-installed flag of known packages.
func (u *Universe) LoadExtendedStates(r io.Reader) error {
	return decodeParagraphs(r, func(p *paragraph) error {
		pkg, ok := u.pkgs[p.Package]
		if !ok {
			return nil
		}
		pkg.Auto = strings.TrimSpace(p.AutoInstalled) == "1"
		return nil
	})
}

func (p *paragraph) version() (*Version, error) {
	v := &Version{
		Version:   strings.TrimSpace(p.Version),
		Section:   strings.TrimSpace(p.Section),
		Priority:  ParsePriority(p.Priority),
		Essential: strings.EqualFold(strings.TrimSpace(p.Essential), "yes"),
	}
	if v.Version == "" {
		return nil, errors.NotValidf("empty version")
	}
	if s := strings.TrimSpace(p.InstalledSize); s != "" {
		kib, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.Annotatef(err, "Installed-Size %q", s)
		}
		v.InstalledSize = kib * 1024
	}
	if s := strings.TrimSpace(p.Size); s != "" {
		size, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.Annotatef(err, "Size %q", s)
		}
		v.DownloadSize = size
	}
	for _, field := range []struct {
		kind DepKind
		raw  string
	}{
		{PreDepends, p.PreDepends},
		{Depends, p.Depends},
		{Recommends, p.Recommends},
		{Suggests, p.Suggests},
		{Breaks, p.Breaks},
		{Conflicts, p.Conflicts},
	} {
		deps, err := ParseDependencies(field.kind, field.raw)
		if err != nil {
			return nil, errors.Annotatef(err, "%s", field.kind)
		}
		v.Depends = append(v.Depends, deps...)
	}
	provides, err := ParseDependencies(Depends, p.Provides)
	if err != nil {
		return nil, errors.Annotate(err, "Provides")
	}
	for _, d := range provides {
		for _, alt := range d.Alternatives {
			v.Provides = append(v.Provides, alt.Name)
		}
	}
	return v, nil
}

// ParseDependencies parses a relation field such as
// "libc6 (>= 2.15), debconf | debconf-2.0" into dependencies of kind.
func ParseDependencies(kind DepKind, raw string) ([]Dependency, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := dependency.Parse(raw)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var out []Dependency
	for _, rel := range parsed.Relations {
		dep := Dependency{Kind: kind}
		for _, poss := range rel.Possibilities {
			r := Relation{Name: poss.Name}
			if poss.Version != nil {
				r.Operator = poss.Version.Operator
				r.Version = poss.Version.Number
			}
			dep.Alternatives = append(dep.Alternatives, r)
		}
		if len(dep.Alternatives) > 0 {
			out = append(out, dep)
		}
	}
	return out, nil
}

// parseStatus interprets a dpkg "want flag status" triple.
func parseStatus(raw string) (InstallState, bool) {
	fields := strings.Fields(raw)
	if len(fields) != 3 {
		return StateOK, false
	}
	want, flag, status := fields[0], fields[1], fields[2]
	state := StateOK
	if flag == "reinstreq" {
		state = StateReinstReq
		if want == "hold" {
			state = StateHoldReinstReq
		}
	}
	switch status {
	case "not-installed", "config-files":
		return state, false
	}
	return state, true
}
