//go:build linux

package space

import (
	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

// FreeBytes returns the bytes available to unprivileged users on the
// filesystem holding path.
func FreeBytes(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, errors.Annotatef(err, "statfs %s", path)
	}
	return int64(st.Bavail) * int64(st.Frsize), nil
}
