// Package space computes the disk budget of a plan: how many bytes each
// filesystem must provide and which ones fall short.
package space

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/moby/sys/mountinfo"
)

// Mount is one mounted filesystem and its free bytes.
type Mount struct {
	Device     string
	MountPoint string
	FSType     string
	Free       int64
}

// Mountinfo enumerates mounted filesystems.
type Mountinfo interface {
	Mounts() ([]Mount, error)
}

// Static is a fixed mount list.
type Static []Mount

// Mounts returns a copy of s.
func (s Static) Mounts() ([]Mount, error) {
	return append([]Mount(nil), s...), nil
}

// Table reads a mount table in /proc/mounts format and asks Statfs for the
// free bytes of each mount point.
type Table struct {
	Path   string
	Statfs func(path string) (int64, error)
}

// Mounts implements Mountinfo. Mount points whose free space cannot be
// determined report zero free bytes.
func (t Table) Mounts() ([]Mount, error) {
	path := t.Path
	if path == "" {
		path = "/proc/mounts"
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Annotate(err, "opening mount table")
	}
	defer f.Close()
	mounts, err := ParseTable(f)
	if err != nil {
		return nil, errors.Trace(err)
	}
	statfs := t.Statfs
	if statfs == nil {
		statfs = FreeBytes
	}
	for i := range mounts {
		if free, err := statfs(mounts[i].MountPoint); err == nil {
			mounts[i].Free = free
		}
	}
	return mounts, nil
}

// ParseTable parses "device path fstype opts dump pass" records. Lines that
// do not have six fields are skipped. Octal escapes such as \040 are
// decoded.
func ParseTable(r io.Reader) ([]Mount, error) {
	var mounts []Mount
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 6 {
			continue
		}
		mounts = append(mounts, Mount{
			Device:     unescape(fields[0]),
			MountPoint: unescape(fields[1]),
			FSType:     fields[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Annotate(err, "reading mount table")
	}
	return mounts, nil
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// System enumerates the live mount table through /proc/self/mountinfo.
type System struct{}

// Mounts implements Mountinfo.
func (System) Mounts() ([]Mount, error) {
	infos, err := mountinfo.GetMounts(nil)
	if err != nil {
		return nil, errors.Annotate(err, "reading mountinfo")
	}
	mounts := make([]Mount, 0, len(infos))
	for _, info := range infos {
		m := Mount{Device: info.Source, MountPoint: info.Mountpoint, FSType: info.FSType}
		if free, err := FreeBytes(info.Mountpoint); err == nil {
			m.Free = free
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}
