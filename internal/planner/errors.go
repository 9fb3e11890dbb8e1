package planner

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"

	"github.com/blackwell-systems/distplan/internal/space"
)

// Exit taxonomy. Every error returned by Run matches exactly one of these
// through errors.Is, except unexpected I/O failures.
const (
	ErrResolutionFailed   = errors.ConstError("resolution failed")
	ErrMetaPackageMissing = errors.ConstError("meta-package missing")
	ErrBlacklistedRemoval = errors.ConstError("blacklisted removal")
	ErrEssentialRemoval   = errors.ConstError("essential removal")
	ErrBadVersion         = errors.ConstError("bad version")
	ErrUntrustedPackages  = errors.ConstError("untrusted packages")
	ErrInsufficientSpace  = errors.ConstError("insufficient space")
	ErrLockUnavailable    = errors.ConstError("lock unavailable")
	ErrDpkgInterrupted    = errors.ConstError("dpkg interrupted")
)

// Exit kind names.
const (
	KindSuccess            = "SUCCESS"
	KindResolutionFailed   = "RESOLUTION_FAILED"
	KindMetaPackageMissing = "META_PACKAGE_MISSING"
	KindBlacklistedRemoval = "BLACKLISTED_REMOVAL"
	KindEssentialRemoval   = "ESSENTIAL_REMOVAL"
	KindBadVersion         = "BAD_VERSION"
	KindUntrustedPackages  = "UNTRUSTED_PACKAGES"
	KindInsufficientSpace  = "INSUFFICIENT_SPACE"
	KindLockUnavailable    = "LOCK_UNAVAILABLE"
	KindDpkgInterrupted    = "DPKG_INTERRUPTED"
	KindInternal           = "INTERNAL_ERROR"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrResolutionFailed, KindResolutionFailed},
	{ErrMetaPackageMissing, KindMetaPackageMissing},
	{ErrBlacklistedRemoval, KindBlacklistedRemoval},
	{ErrEssentialRemoval, KindEssentialRemoval},
	{ErrBadVersion, KindBadVersion},
	{ErrUntrustedPackages, KindUntrustedPackages},
	{ErrInsufficientSpace, KindInsufficientSpace},
	{ErrLockUnavailable, KindLockUnavailable},
	{ErrDpkgInterrupted, KindDpkgInterrupted},
}

// ExitKind maps err to its exit taxonomy name. A nil error is SUCCESS.
func ExitKind(err error) string {
	if err == nil {
		return KindSuccess
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// ResolutionFailedError is returned when the resolver cannot make the
// marks consistent. Report lists the unmet dependencies; Trace holds the
// resolver output captured during the failing run.
type ResolutionFailedError struct {
	Stage  string
	Report string
	Trace  string
	Cause  error
}

func (e *ResolutionFailedError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrResolutionFailed, e.Stage)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ResolutionFailedError) Is(target error) bool { return target == ErrResolutionFailed }

func (e *ResolutionFailedError) Unwrap() error { return e.Cause }

// MetaPackageMissingError is returned when no meta-package could be kept
// or guessed.
type MetaPackageMissingError struct {
	Candidates []string
}

func (e *MetaPackageMissingError) Error() string {
	return fmt.Sprintf("%s: none of %s is installed and none could be selected",
		ErrMetaPackageMissing, strings.Join(e.Candidates, ", "))
}

func (e *MetaPackageMissingError) Is(target error) bool { return target == ErrMetaPackageMissing }

// RemovalError is returned when the plan removes a package it must not.
type RemovalError struct {
	Package   string
	Essential bool
}

func (e *RemovalError) Error() string {
	if e.Essential {
		return fmt.Sprintf("%s: the essential package %s is marked for removal", ErrEssentialRemoval, e.Package)
	}
	return fmt.Sprintf("%s: %s is marked for removal but it is in the removal blacklist", ErrBlacklistedRemoval, e.Package)
}

func (e *RemovalError) Is(target error) bool {
	if e.Essential {
		return target == ErrEssentialRemoval
	}
	return target == ErrBlacklistedRemoval
}

// BadVersionError is returned when a blacklisted version would be
// installed.
type BadVersionError struct {
	Name    string
	Version string
}

func (e *BadVersionError) Error() string {
	return fmt.Sprintf("%s: trying to install blacklisted version %s_%s", ErrBadVersion, e.Name, e.Version)
}

func (e *BadVersionError) Is(target error) bool { return target == ErrBadVersion }

// UntrustedPackagesError lists packages without a trusted origin, sorted.
type UntrustedPackagesError struct {
	Packages []string
}

func (e *UntrustedPackagesError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUntrustedPackages, strings.Join(e.Packages, " "))
}

func (e *UntrustedPackagesError) Is(target error) bool { return target == ErrUntrustedPackages }

// InsufficientSpaceError lists every filesystem that falls short.
type InsufficientSpaceError struct {
	Deficits []space.Deficit
}

func (e *InsufficientSpaceError) Error() string {
	parts := make([]string, len(e.Deficits))
	for i, d := range e.Deficits {
		parts[i] = fmt.Sprintf("%s needs %s, short by %s",
			d.MountPoint, humanize.IBytes(uint64(d.Required)), humanize.IBytes(uint64(d.ShortBy)))
	}
	return fmt.Sprintf("%s: %s", ErrInsufficientSpace, strings.Join(parts, "; "))
}

func (e *InsufficientSpaceError) Is(target error) bool { return target == ErrInsufficientSpace }
