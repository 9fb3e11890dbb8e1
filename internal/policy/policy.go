// Package policy holds the declarative upgrade rules every planning stage
// consults. A Policy is built once and never changes.
package policy

import (
	"regexp"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
)

// DefaultArchiveDir is where downloaded archives land when the policy does
// not say otherwise.
const DefaultArchiveDir = "/var/cache/apt/archives"

// Action is a post-upgrade rule kind.
type Action string

const (
	ActionInstall Action = "Install"
	ActionUpgrade Action = "Upgrade"
	ActionRemove  Action = "Remove"
	ActionPurge   Action = "Purge"
)

// Actions lists the post-upgrade actions in application order.
var Actions = []Action{ActionInstall, ActionUpgrade, ActionRemove, ActionPurge}

// MetaRules are rules that apply only while a meta-package is installed or
// marked for installation.
type MetaRules struct {
	KeyDependencies       []string
	KeepInstalledPackages []string
	KeepInstalledSections []string
	PostUpgrade           map[Action][]string
}

// KernelRemoval describes the kernel packages of the source release.
// Obsolete kernels are named <basename>-<Version>-...<type>.
type KernelRemoval struct {
	Version   string
	BaseNames []string
	Types     []string
}

// Sources names the releases involved and the official origin.
type Sources struct {
	From        string
	To          string
	ValidOrigin string
}

// Aufs configures overlay filesystem accounting.
type Aufs struct {
	Enabled bool
	RWDir   string
}

// Rules is the raw input of New.
type Rules struct {
	MetaPackages          []string
	BaseMetaPackages      []string
	KeepInstalledPackages []string
	KeepInstalledSections []string
	PostUpgrade           map[Action][]string
	PerMeta               map[string]MetaRules
	RemoveEssentialAllow  []string
	RemovalBlacklist      []string // regular expressions
	BadVersions           []string // name_version
	Demotions             []string
	KernelRemoval         KernelRemoval
	Sources               Sources
	Aufs                  Aufs
	AllowUnauthenticated  bool
	PurgeObsoletes        bool
	InstallRecommends     bool
	InstallSuggests       bool
	WithNetwork           bool
	ArchiveDir            string
}

// BadVersion is a parsed bad_versions entry.
type BadVersion struct {
	Name    string
	Version string
}

func (b BadVersion) String() string {
	return b.Name + "_" + b.Version
}

// Policy is the parsed, immutable rule set.
type Policy struct {
	rules       Rules
	blacklist   []*regexp.Regexp
	essentialOK set.Strings
	badVersions []BadVersion
	warnings    []string
}

// New validates r and compiles its regular expressions.
func New(r Rules) (*Policy, error) {
	p := &Policy{rules: cloneRules(r), essentialOK: set.NewStrings(r.RemoveEssentialAllow...)}
	if p.rules.ArchiveDir == "" {
		p.rules.ArchiveDir = DefaultArchiveDir
	}
	for _, expr := range r.RemovalBlacklist {
		re, err := regexp.Compile("^(?:" + expr + ")")
		if err != nil {
			return nil, errors.Annotatef(err, "removal blacklist entry %q", expr)
		}
		p.blacklist = append(p.blacklist, re)
	}
	for _, entry := range r.BadVersions {
		name, version, ok := strings.Cut(entry, "_")
		if !ok || name == "" || version == "" {
			return nil, errors.NotValidf("bad version entry %q", entry)
		}
		p.badVersions = append(p.badVersions, BadVersion{Name: name, Version: version})
	}
	return p, nil
}

// MustNew is New for static rule sets; it panics on error.
func MustNew(r Rules) *Policy {
	p, err := New(r)
	if err != nil {
		panic(err)
	}
	return p
}

// Empty returns a policy without any rules.
func Empty() *Policy {
	return MustNew(Rules{})
}

// MatchesRemovalBlacklist reports whether name may never be removed.
// Patterns are anchored at the start of the name.
func (p *Policy) MatchesRemovalBlacklist(name string) bool {
	for _, re := range p.blacklist {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// IsBadVersion reports whether name at version is blacklisted.
func (p *Policy) IsBadVersion(name, version string) bool {
	for _, b := range p.badVersions {
		if b.Name == name && b.Version == version {
			return true
		}
	}
	return false
}

// RemoveEssentialAllowed reports whether the essential package name may be
// removed.
func (p *Policy) RemoveEssentialAllowed(name string) bool {
	return p.essentialOK.Contains(name)
}

// MetaPackages returns the candidate top-level meta-packages in order.
func (p *Policy) MetaPackages() []string {
	return clone(p.rules.MetaPackages)
}

// BaseMetaPackages returns the meta-packages that stay installed in every
// mode.
func (p *Policy) BaseMetaPackages() []string {
	return clone(p.rules.BaseMetaPackages)
}

func (p *Policy) RemoveEssentialAllow() []string {
	return p.essentialOK.SortedValues()
}

func (p *Policy) KeepInstalledPackages() []string {
	return clone(p.rules.KeepInstalledPackages)
}

func (p *Policy) KeepInstalledSections() []string {
	return clone(p.rules.KeepInstalledSections)
}

func (p *Policy) BadVersions() []BadVersion {
	return append([]BadVersion(nil), p.badVersions...)
}

// Demotions returns the names demoted from the official archive.
func (p *Policy) Demotions() []string {
	return clone(p.rules.Demotions)
}

func (p *Policy) KernelRemoval() KernelRemoval {
	k := p.rules.KernelRemoval
	k.BaseNames = clone(k.BaseNames)
	k.Types = clone(k.Types)
	return k
}

func (p *Policy) Sources() Sources {
	return p.rules.Sources
}

func (p *Policy) Aufs() Aufs {
	return p.rules.Aufs
}

// AllowUnauthenticated reports whether untrusted origins are accepted.
func (p *Policy) AllowUnauthenticated() bool {
	return p.rules.AllowUnauthenticated
}

// PurgeObsoletes reports whether obsolete packages are purged instead of
// removed.
func (p *Policy) PurgeObsoletes() bool {
	return p.rules.PurgeObsoletes
}

// InstallRecommends reports whether Recommends count in unmet reports.
func (p *Policy) InstallRecommends() bool {
	return p.rules.InstallRecommends
}

// InstallSuggests reports whether Suggests count in unmet reports.
func (p *Policy) InstallSuggests() bool {
	return p.rules.InstallSuggests
}

// WithNetwork is the network availability declared in the policy file.
// Callers usually override it.
func (p *Policy) WithNetwork() bool {
	return p.rules.WithNetwork
}

func (p *Policy) ArchiveDir() string {
	return p.rules.ArchiveDir
}

// RemovalBlacklist returns the blacklist patterns.
func (p *Policy) RemovalBlacklist() []string {
	return clone(p.rules.RemovalBlacklist)
}

// PostUpgrade returns the global post-upgrade list for action.
func (p *Policy) PostUpgrade(action Action) []string {
	return clone(p.rules.PostUpgrade[action])
}

// Meta returns the rules attached to meta-package name.
func (p *Policy) Meta(name string) (MetaRules, bool) {
	m, ok := p.rules.PerMeta[name]
	if !ok {
		return MetaRules{}, false
	}
	return cloneMeta(m), true
}

// KeyDependencies returns the packages whose joint installation implies
// meta.
func (p *Policy) KeyDependencies(meta string) []string {
	return clone(p.rules.PerMeta[meta].KeyDependencies)
}

// Warnings returns the problems found while loading the policy.
func (p *Policy) Warnings() []string {
	return clone(p.warnings)
}

func clone(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func clonePost(m map[Action][]string) map[Action][]string {
	if m == nil {
		return nil
	}
	out := make(map[Action][]string, len(m))
	for k, v := range m {
		out[k] = clone(v)
	}
	return out
}

func cloneMeta(m MetaRules) MetaRules {
	return MetaRules{
		KeyDependencies:       clone(m.KeyDependencies),
		KeepInstalledPackages: clone(m.KeepInstalledPackages),
		KeepInstalledSections: clone(m.KeepInstalledSections),
		PostUpgrade:           clonePost(m.PostUpgrade),
	}
}

func cloneRules(r Rules) Rules {
	out := r
	out.MetaPackages = clone(r.MetaPackages)
	out.BaseMetaPackages = clone(r.BaseMetaPackages)
	out.KeepInstalledPackages = clone(r.KeepInstalledPackages)
	out.KeepInstalledSections = clone(r.KeepInstalledSections)
	out.PostUpgrade = clonePost(r.PostUpgrade)
	out.RemoveEssentialAllow = clone(r.RemoveEssentialAllow)
	out.RemovalBlacklist = clone(r.RemovalBlacklist)
	out.BadVersions = clone(r.BadVersions)
	out.Demotions = clone(r.Demotions)
	out.KernelRemoval.BaseNames = clone(r.KernelRemoval.BaseNames)
	out.KernelRemoval.Types = clone(r.KernelRemoval.Types)
	if r.PerMeta != nil {
		out.PerMeta = make(map[string]MetaRules, len(r.PerMeta))
		for k, v := range r.PerMeta {
			out.PerMeta[k] = cloneMeta(v)
		}
	}
	return out
}
