//go:build !linux

package space

import "github.com/juju/errors"

// FreeBytes is only implemented on linux.
func FreeBytes(path string) (int64, error) {
	return 0, errors.NotSupportedf("statfs on this platform")
}
