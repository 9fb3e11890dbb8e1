package app

import (
	"golang.org/x/sys/unix"
)

// kernelRelease returns uname -r.
func kernelRelease() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return ""
	}
	return unix.ByteSliceToString(u.Release[:])
}

// insideChroot reports whether / is a different directory than the root
// of init.
func insideChroot() bool {
	var root, initRoot unix.Stat_t
	if err := unix.Stat("/", &root); err != nil {
		return false
	}
	if err := unix.Stat("/proc/1/root", &initRoot); err != nil {
		return false
	}
	return root.Dev != initRoot.Dev || root.Ino != initRoot.Ino
}
