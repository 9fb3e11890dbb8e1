package space

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/blackwell-systems/distplan/internal/cache"
)

const (
	MiB = 1024 * 1024

	// UsrBuffer is added to the installed-size delta on /usr.
	UsrBuffer = 50 * MiB
	// TmpBuffer covers post-install scripts building modules in /tmp.
	TmpBuffer = 5 * MiB
	// RootBuffer is a small safety margin on /.
	RootBuffer = 10 * MiB
	// DefaultInitrdSize is used when no initrd could be measured.
	DefaultInitrdSize = 28 * MiB
	// InitrdMargin is always added to the initrd estimate.
	InitrdMargin = 1 * MiB

	// DefaultSnapshotDir receives copies of replaced files when
	// filesystem snapshots are in use.
	DefaultSnapshotDir = "/usr"
)

var kernelImage = regexp.MustCompile(`^linux-(image|image-debug)-[0-9.]*-.*`)

// Options describes the paths and estimates a budget depends on.
type Options struct {
	ArchiveDir       string
	KernelInitrdSize int64
	// AufsRWDir enables overlay accounting when set.
	AufsRWDir string
	// SnapshotDir enables snapshot accounting when set.
	SnapshotDir string
	// Realpath resolves symlinks; nil uses filepath.EvalSymlinks.
	Realpath func(string) (string, error)
}

// Budget is the space a plan needs.
type Budget struct {
	DownloadBytes  int64
	InstalledDelta int64
	Required       map[string]int64
	Deficits       []Deficit
}

// Fits reports whether every filesystem has enough room.
func (b *Budget) Fits() bool {
	return len(b.Deficits) == 0
}

// Compute sums the requirements of changes over mounts.
func Compute(changes []cache.Change, mounts []Mount, opts Options) *Budget {
	a := NewAccountant(mounts, opts.Realpath)
	b := &Budget{}

	var aufs, snapshot int64
	newKernels := 0
	for _, ch := range changes {
		p := ch.Package
		if p == nil {
			continue
		}
		var current int64
		if p.Installed != nil {
			current = p.Installed.InstalledSize
		}
		switch {
		case ch.Mark.IsInstall():
			if p.CandidateDownloadable() {
				b.DownloadBytes += p.Candidate.DownloadSize
			}
			if p.Candidate != nil {
				b.InstalledDelta += p.Candidate.InstalledSize - current
				aufs += p.Candidate.InstalledSize
			}
			if ch.Mark == cache.MarkInstall && kernelImage.MatchString(ch.Name) {
				newKernels++
			}
			if ch.Mark == cache.MarkUpgrade {
				snapshot += current
			}
		case ch.Mark.IsRemoval():
			b.InstalledDelta -= current
			snapshot += current
		}
	}

	archive := opts.ArchiveDir
	if archive == "" {
		archive = "/var/cache/apt/archives"
	}
	a.Require(archive, b.DownloadBytes)
	a.Require("/usr", b.InstalledDelta)
	a.Require("/usr", UsrBuffer)
	a.Require("/boot", opts.KernelInitrdSize*int64(newKernels))
	a.Require("/tmp", TmpBuffer)
	a.Require("/", RootBuffer)
	if opts.AufsRWDir != "" {
		a.Require(opts.AufsRWDir, aufs)
	}
	if opts.SnapshotDir != "" {
		a.Require(opts.SnapshotDir, snapshot)
	}

	b.Required = a.Required()
	b.Deficits = a.Deficits()
	return b
}

// InitrdSize estimates the size of one kernel's boot files from the files
// in bootDir belonging to the running kernel uname.
func InitrdSize(bootDir, uname string) int64 {
	var total int64
	if uname != "" {
		entries, err := os.ReadDir(bootDir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() || !strings.Contains(e.Name(), uname) {
					continue
				}
				if info, err := os.Stat(filepath.Join(bootDir, e.Name())); err == nil {
					total += info.Size()
				}
			}
		}
	}
	if total == 0 {
		total = DefaultInitrdSize
	}
	return total + InitrdMargin
}
