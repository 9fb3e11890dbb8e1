package space

import (
	"path/filepath"
	"sort"
	"strings"
)

// Deficit is a filesystem that cannot hold what the plan needs.
type Deficit struct {
	MountPoint string
	Required   int64
	Free       int64
	ShortBy    int64
}

// Accountant sums byte requirements per mount point. Paths are resolved
// through Realpath and mapped to the longest mount point containing them,
// so every directory on one filesystem shares a single accumulator.
type Accountant struct {
	mounts   []Mount
	realpath func(string) (string, error)
	need     map[string]int64
}

// NewAccountant creates an accountant over mounts. A nil realpath uses
// filepath.EvalSymlinks. When a mount point is listed twice the later
// entry wins, as it shadows the earlier one.
func NewAccountant(mounts []Mount, realpath func(string) (string, error)) *Accountant {
	if realpath == nil {
		realpath = filepath.EvalSymlinks
	}
	byPoint := make(map[string]Mount)
	for _, m := range mounts {
		m.MountPoint = filepath.Clean(m.MountPoint)
		byPoint[m.MountPoint] = m
	}
	sorted := make([]Mount, 0, len(byPoint))
	for _, m := range byPoint {
		sorted = append(sorted, m)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i].MountPoint) != len(sorted[j].MountPoint) {
			return len(sorted[i].MountPoint) > len(sorted[j].MountPoint)
		}
		return sorted[i].MountPoint < sorted[j].MountPoint
	})
	return &Accountant{mounts: sorted, realpath: realpath, need: make(map[string]int64)}
}

func (a *Accountant) resolve(path string) string {
	path = filepath.Clean(path)
	if real, err := a.realpath(path); err == nil {
		return filepath.Clean(real)
	}
	return path
}

// MountFor returns the mount holding path. Without a matching entry a
// root mount with no free space is returned.
func (a *Accountant) MountFor(path string) Mount {
	path = a.resolve(path)
	for _, m := range a.mounts {
		if within(path, m.MountPoint) {
			return m
		}
	}
	return Mount{MountPoint: "/"}
}

func within(path, mountPoint string) bool {
	if mountPoint == "/" || path == mountPoint {
		return true
	}
	return strings.HasPrefix(path, mountPoint+"/")
}

// Require adds n bytes to the filesystem holding path. Negative and zero
// amounts are ignored.
func (a *Accountant) Require(path string, n int64) {
	if n <= 0 {
		return
	}
	a.need[a.MountFor(path).MountPoint] += n
}

// Required returns the bytes needed per mount point.
func (a *Accountant) Required() map[string]int64 {
	out := make(map[string]int64, len(a.need))
	for k, v := range a.need {
		out[k] = v
	}
	return out
}

// Deficits returns every mount point whose requirement exceeds its free
// bytes, sorted by mount point.
func (a *Accountant) Deficits() []Deficit {
	free := make(map[string]int64)
	for _, m := range a.mounts {
		free[m.MountPoint] = m.Free
	}
	var out []Deficit
	for point, need := range a.need {
		if f := free[point]; need > f {
			out = append(out, Deficit{MountPoint: point, Required: need, Free: f, ShortBy: need - f})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MountPoint < out[j].MountPoint
	})
	return out
}
