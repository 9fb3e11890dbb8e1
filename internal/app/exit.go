package app

import (
	"github.com/blackwell-systems/distplan/internal/planner"
)

// exitCodes maps exit kinds to process exit codes. Unlisted kinds,
// including internal errors, exit 1.
var exitCodes = map[string]int{
	planner.KindSuccess:            0,
	planner.KindResolutionFailed:   2,
	planner.KindMetaPackageMissing: 3,
	planner.KindBlacklistedRemoval: 4,
	planner.KindEssentialRemoval:   4,
	planner.KindBadVersion:         5,
	planner.KindUntrustedPackages:  6,
	planner.KindInsufficientSpace:  7,
	planner.KindLockUnavailable:    8,
	planner.KindDpkgInterrupted:    9,
}

// ExitCode returns the process exit code for an error returned by Execute.
func ExitCode(err error) int {
	if code, ok := exitCodes[planner.ExitKind(err)]; ok {
		return code
	}
	return 1
}
