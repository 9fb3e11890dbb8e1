package planner

import (
	"os"
	"strings"

	"github.com/juju/errors"

	"github.com/blackwell-systems/distplan/internal/cache"
	"github.com/blackwell-systems/distplan/internal/planlog"
	"github.com/blackwell-systems/distplan/internal/policy"
	"github.com/blackwell-systems/distplan/internal/resolver"
	"github.com/blackwell-systems/distplan/internal/space"
)

// Session is one planning run. It holds the locks, the planning cache and
// the warnings collected along the way.
type Session struct {
	policy *policy.Policy
	mounts space.Mountinfo
	opts   Options
	log    *planlog.Logger
	cache  *cache.Cache

	packageLocked bool
	listsLocked   bool

	serverMode  bool
	metaPackage string
	reqReinst   []string
	warnings    []string
}

// NewSession prepares a run over u. Nothing is locked or marked until Plan
// is called.
func NewSession(u cache.PackageUniverse, p *policy.Policy, m space.Mountinfo, opts Options) *Session {
	if p == nil {
		p = policy.Empty()
	}
	if m == nil {
		m = space.System{}
	}
	if opts.Logger == nil {
		opts.Logger = planlog.Nop()
	}
	if opts.Resolver == nil {
		opts.Resolver = resolver.New()
	}
	s := &Session{
		policy: p,
		mounts: m,
		opts:   opts,
		log:    opts.Logger,
	}
	s.cache = cache.New(u, opts.Resolver, opts.Logger)
	s.warnings = append(s.warnings, p.Warnings()...)
	return s
}

// Cache returns the planning cache of the session.
func (s *Session) Cache() *cache.Cache {
	return s.cache
}

// Warnings returns every non-fatal problem recorded so far.
func (s *Session) Warnings() []string {
	return append([]string(nil), s.warnings...)
}

func (s *Session) warn(stage, decision, name, reason string) {
	s.log.Stage(stage).Warn(decision, name, reason)
	msg := reason
	if name != "" {
		msg = name + ": " + reason
	}
	s.warnings = append(s.warnings, msg)
}

// enter starts a stage: the cache logs under its name and the progress
// callback is told.
func (s *Session) enter(stage string) *planlog.Logger {
	log := s.log.Stage(stage)
	s.cache.SetLogger(log)
	if s.opts.Progress != nil {
		s.opts.Progress(stage)
	}
	return log
}

// Acquire takes the package and lists locks and checks for an
// interrupted dpkg run.
func (s *Session) Acquire() error {
	if err := s.lockPackages(); err != nil {
		return err
	}
	if s.opts.ListsLock != nil {
		ok, err := s.opts.ListsLock.TryLock()
		if err != nil {
			s.Release()
			return errors.Annotatef(ErrLockUnavailable, "lists lock: %v", err)
		}
		if !ok {
			s.Release()
			return errors.Annotate(ErrLockUnavailable, "lists lock is held by another process")
		}
		s.listsLocked = true
	}
	if s.opts.DpkgUpdatesDir != "" {
		interrupted, err := dpkgInterrupted(s.opts.DpkgUpdatesDir)
		if err != nil {
			s.Release()
			return errors.Annotate(err, "checking dpkg journal")
		}
		if interrupted {
			s.Release()
			return errors.Annotate(ErrDpkgInterrupted, "dpkg was interrupted, run 'dpkg --configure -a' first")
		}
	}
	return nil
}

func (s *Session) lockPackages() error {
	if s.opts.PackageLock == nil {
		return nil
	}
	ok, err := s.opts.PackageLock.TryLock()
	if err != nil {
		return errors.Annotatef(ErrLockUnavailable, "package lock: %v", err)
	}
	if !ok {
		return errors.Annotate(ErrLockUnavailable, "package lock is held by another process")
	}
	s.packageLocked = true
	return nil
}

// Release drops every lock the session holds. It is safe to call more
// than once.
func (s *Session) Release() {
	if s.listsLocked {
		if err := s.opts.ListsLock.Unlock(); err != nil {
			s.log.Warn("unlock", "lists", err.Error())
		}
		s.listsLocked = false
	}
	if s.packageLocked {
		if err := s.opts.PackageLock.Unlock(); err != nil {
			s.log.Warn("unlock", "packages", err.Error())
		}
		s.packageLocked = false
	}
}

// withoutPackageLock runs fn with the package lock released and takes it
// back afterwards.
func (s *Session) withoutPackageLock(fn func() error) error {
	held := s.packageLocked
	if held {
		if err := s.opts.PackageLock.Unlock(); err != nil {
			return errors.Annotate(err, "releasing package lock")
		}
		s.packageLocked = false
	}
	ferr := fn()
	if held {
		if err := s.lockPackages(); err != nil {
			return err
		}
	}
	return ferr
}

// dpkgInterrupted reports whether dir holds dpkg journal entries. Entries
// are named by number only.
func dpkgInterrupted(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Trace(err)
	}
	for _, e := range entries {
		if e.Name() != "" && strings.Trim(e.Name(), "0123456789") == "" {
			return true, nil
		}
	}
	return false, nil
}
