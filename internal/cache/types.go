// Package cache implements the planning cache: a mutable overlay of
// marks on top of a read-only package universe, with snapshots and
// action groups.
package cache

import (
	"io"

	"github.com/blackwell-systems/distplan/internal/universe"
)

// Mark is the pending state transition of a package.
type Mark int

const (
	MarkKeep Mark = iota
	MarkInstall
	MarkUpgrade
	MarkRemove
	MarkPurge
)

func (m Mark) String() string {
	switch m {
	case MarkInstall:
		return "install"
	case MarkUpgrade:
		return "upgrade"
	case MarkRemove:
		return "remove"
	case MarkPurge:
		return "purge"
	}
	return "keep"
}

// ParseMark is the inverse of Mark.String.
func ParseMark(s string) (Mark, bool) {
	for m := MarkKeep; m <= MarkPurge; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return MarkKeep, false
}

// IsRemoval reports whether m removes the package.
func (m Mark) IsRemoval() bool {
	return m == MarkRemove || m == MarkPurge
}

// IsInstall reports whether m installs or upgrades the package.
func (m Mark) IsInstall() bool {
	return m == MarkInstall || m == MarkUpgrade
}

// PackageUniverse is the read capability the cache needs.
// *universe.Universe satisfies it.
type PackageUniverse interface {
	Package(name string) (*universe.Package, bool)
	Packages() []*universe.Package
	IsVirtual(name string) bool
	Providers(name string) []*universe.Package
}

// Overlay is the view of the cache a Resolver works on. SetMark records an
// automatic change; newly installed packages become auto-installed.
type Overlay interface {
	Universe() PackageUniverse
	Mark(name string) Mark
	SetMark(name string, m Mark)
	Protected(name string) bool
	Target(name string) *universe.Version
	Broken() []string
	Problems(name string, kinds ...universe.DepKind) []Problem
}

// Resolver makes the marks of an overlay consistent. Upgrade marks every
// upgradable package and resolves the result. Resolve must not change the
// mark of any name in pinned. Both write a human readable trace.
type Resolver interface {
	Upgrade(o Overlay, trace io.Writer) error
	Resolve(o Overlay, pinned []string, trace io.Writer) error
}

// Problem is an unsatisfied relation of a package's target version. For
// positive kinds Dep is the whole or-group; for negative kinds Dep holds
// the single offending alternative and Culprits the packages hitting it.
type Problem struct {
	Package  string
	Dep      universe.Dependency
	Culprits []string
}

// Change is a package whose mark differs from keep.
type Change struct {
	Name    string
	Mark    Mark
	Auto    bool
	Package *universe.Package
}

// HardKinds are the relation kinds that make a package broken.
var HardKinds = []universe.DepKind{
	universe.PreDepends,
	universe.Depends,
	universe.Breaks,
	universe.Conflicts,
}
