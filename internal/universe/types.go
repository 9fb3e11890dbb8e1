// Package universe holds the package/version graph the planner reads:
// installed state, candidate versions, dependency relations, archive
// origins and sizes. Nothing in this package knows about pending changes.
package universe

import "strings"

// Priority is the Debian archive priority of a version.
type Priority int

const (
	PriorityUnset Priority = iota
	PriorityRequired
	PriorityImportant
	PriorityStandard
	PriorityOptional
	PriorityExtra
)

var priorityNames = map[Priority]string{
	PriorityUnset:     "unset",
	PriorityRequired:  "required",
	PriorityImportant: "important",
	PriorityStandard:  "standard",
	PriorityOptional:  "optional",
	PriorityExtra:     "extra",
}

func (p Priority) String() string {
	if s, ok := priorityNames[p]; ok {
		return s
	}
	return "unset"
}

// ParsePriority maps a control-file Priority value to a Priority.
// Unknown values map to PriorityUnset.
func ParsePriority(s string) Priority {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range priorityNames {
		if name == s {
			return p
		}
	}
	return PriorityUnset
}

// Origin describes the archive a version was published in.
type Origin struct {
	Archive string // e.g. "precise-updates"
	Origin  string // e.g. "Ubuntu"
	Label   string
	Trusted bool
}

// DepKind is the relation type of a Dependency.
type DepKind string

const (
	Depends    DepKind = "Depends"
	PreDepends DepKind = "PreDepends"
	Recommends DepKind = "Recommends"
	Suggests   DepKind = "Suggests"
	Breaks     DepKind = "Breaks"
	Conflicts  DepKind = "Conflicts"
)

// IsNegative reports whether the relation forbids its targets instead of
// requiring one of them.
func (k DepKind) IsNegative() bool {
	return k == Breaks || k == Conflicts
}

// Relation is one alternative of a dependency, e.g. "libc6 (>= 2.15)".
type Relation struct {
	Name     string
	Operator string // "", "<<", "<=", "=", ">=", ">>"
	Version  string
}

func (r Relation) String() string {
	if r.Operator == "" {
		return r.Name
	}
	return r.Name + " (" + r.Operator + " " + r.Version + ")"
}

// Dependency is an or-group of relations of a single kind. For negative
// kinds every alternative is a separate forbidden target.
type Dependency struct {
	Kind         DepKind
	Alternatives []Relation
}

// Version is one concrete version of a package.
type Version struct {
	Version       string
	Section       string
	Priority      Priority
	Essential     bool
	InstalledSize int64 // bytes
	DownloadSize  int64 // bytes
	Downloadable  bool
	Origins       []Origin
	Depends       []Dependency
	Provides      []string
}

// Trusted reports whether at least one origin of v is trusted.
func (v *Version) Trusted() bool {
	for _, o := range v.Origins {
		if o.Trusted {
			return true
		}
	}
	return false
}

// InstallState mirrors the dpkg error flag of an installed package.
type InstallState int

const (
	StateOK InstallState = iota
	StateReinstReq
	StateHoldReinstReq
)

// Package is a named node of the universe.
type Package struct {
	Name      string
	Installed *Version
	Candidate *Version
	Versions  []*Version
	Auto      bool
	State     InstallState
}

// IsInstalled reports whether any version of p is currently installed.
func (p *Package) IsInstalled() bool {
	return p.Installed != nil
}

// IsUpgradable reports whether p is installed and its candidate is newer.
func (p *Package) IsUpgradable() bool {
	return p.Installed != nil && p.Candidate != nil &&
		CompareVersions(p.Candidate.Version, p.Installed.Version) > 0
}

// CandidateDownloadable reports whether the candidate has a reachable archive.
func (p *Package) CandidateDownloadable() bool {
	return p.Candidate != nil && p.Candidate.Downloadable
}

// AnyVersionDownloadable reports whether some version of p, not only the
// candidate, can be fetched. Older versions count: an -updates pocket of the
// source release may be newer than the target release.
func (p *Package) AnyVersionDownloadable() bool {
	for _, v := range p.Versions {
		if v.Downloadable {
			return true
		}
	}
	return false
}

// Essential reports the essential flag of the installed version, falling
// back to the candidate.
func (p *Package) Essential() bool {
	if p.Installed != nil {
		return p.Installed.Essential
	}
	return p.Candidate != nil && p.Candidate.Essential
}

// Section returns the candidate section, or the installed one.
func (p *Package) Section() string {
	if p.Candidate != nil && p.Candidate.Section != "" {
		return p.Candidate.Section
	}
	if p.Installed != nil {
		return p.Installed.Section
	}
	return ""
}

// Priority returns the candidate priority.
func (p *Package) Priority() Priority {
	if p.Candidate != nil {
		return p.Candidate.Priority
	}
	return PriorityUnset
}

// ReinstReq reports whether dpkg flagged p as needing reinstallation.
func (p *Package) ReinstReq() bool {
	return p.State == StateReinstReq || p.State == StateHoldReinstReq
}
