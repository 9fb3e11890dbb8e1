package universe

import (
	"strings"

	"pault.ag/go/debian/dependency"
	"pault.ag/go/debian/version"
)

// CompareVersions compares two Debian version strings. Strings that do not
// parse as Debian versions are compared lexically.
func CompareVersions(a, b string) int {
	va, errA := version.Parse(a)
	vb, errB := version.Parse(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return version.Compare(va, vb)
}

// Satisfies reports whether the version string v satisfies the relation
// operator and version of r. An unversioned relation is always satisfied;
// a versioned one is never satisfied by a malformed version.
func (r Relation) Satisfies(v string) bool {
	if r.Operator == "" {
		return true
	}
	ver, err := version.Parse(v)
	if err != nil {
		return false
	}
	rel := dependency.VersionRelation{Number: r.Version, Operator: r.Operator}
	return rel.SatisfiedBy(ver)
}
