package cache

import (
	"fmt"
	"io"
	"sort"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/blackwell-systems/distplan/internal/planlog"
	"github.com/blackwell-systems/distplan/internal/universe"
)

type state struct {
	mark Mark
	auto bool
}

// Cache is the planning cache. It is owned by a single planning run and
// is not safe for concurrent use.
type Cache struct {
	u         PackageUniverse
	resolver  Resolver
	log       *planlog.Logger
	installed []string
	marks     map[string]state
	protected set.Strings

	depth       int
	groupPinned set.Strings
}

// New creates a cache over u with every package marked keep.
func New(u PackageUniverse, r Resolver, log *planlog.Logger) *Cache {
	if log == nil {
		log = planlog.Nop()
	}
	c := &Cache{
		u:         u,
		resolver:  r,
		log:       log,
		marks:     make(map[string]state),
		protected: set.NewStrings(),
	}
	for _, p := range u.Packages() {
		if p.IsInstalled() {
			c.installed = append(c.installed, p.Name)
		}
	}
	return c
}

// SetLogger replaces the logger marks are recorded with. The planner
// switches it per stage.
func (c *Cache) SetLogger(log *planlog.Logger) {
	c.log = log
}

// Logger returns the current logger.
func (c *Cache) Logger() *planlog.Logger {
	return c.log
}

// Universe returns the package universe the cache overlays.
func (c *Cache) Universe() PackageUniverse {
	return c.u
}

// InstalledNames returns the names of every installed package, sorted.
func (c *Cache) InstalledNames() []string {
	return append([]string(nil), c.installed...)
}

func (c *Cache) state(name string) state {
	if s, ok := c.marks[name]; ok {
		return s
	}
	p, ok := c.u.Package(name)
	return state{mark: MarkKeep, auto: ok && p.Auto}
}

func (c *Cache) set(name string, m Mark, auto bool) {
	p, ok := c.u.Package(name)
	if m == MarkKeep && (!ok || auto == p.Auto || !p.IsInstalled()) {
		delete(c.marks, name)
		return
	}
	c.marks[name] = state{mark: m, auto: auto}
}

// Mark returns the current mark of name. Unknown names are kept.
func (c *Cache) Mark(name string) Mark {
	return c.state(name).mark
}

// Auto reports whether name is, or will be once the plan is applied,
// automatically installed.
func (c *Cache) Auto(name string) bool {
	return c.state(name).auto
}

// SetMark records a change decided by the resolver.
func (c *Cache) SetMark(name string, m Mark) {
	p, ok := c.u.Package(name)
	if !ok {
		return
	}
	auto := c.Auto(name)
	if m == MarkInstall && !p.IsInstalled() {
		auto = true
	}
	c.set(name, m, auto)
}

// Protect forbids removing name for the rest of the run.
func (c *Cache) Protect(name string) {
	c.protected.Add(name)
}

// Protected reports whether name may not be removed.
func (c *Cache) Protected(name string) bool {
	return c.protected.Contains(name)
}

// Target returns the version name will have once the plan is applied, or
// nil if it will not be installed.
func (c *Cache) Target(name string) *universe.Version {
	p, ok := c.u.Package(name)
	if !ok {
		return nil
	}
	switch c.Mark(name) {
	case MarkInstall, MarkUpgrade:
		return p.Candidate
	case MarkRemove, MarkPurge:
		return nil
	}
	return p.Installed
}

// Changes returns every package whose mark is not keep, sorted by name.
func (c *Cache) Changes() []Change {
	names := make([]string, 0, len(c.marks))
	for name, s := range c.marks {
		if s.mark != MarkKeep {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]Change, 0, len(names))
	for _, name := range names {
		p, _ := c.u.Package(name)
		s := c.marks[name]
		out = append(out, Change{Name: name, Mark: s.mark, Auto: s.auto, Package: p})
	}
	return out
}

// Snapshot is a restorable image of every mark.
type Snapshot struct {
	marks map[string]state
}

// Snapshot captures the current marks.
func (c *Cache) Snapshot() Snapshot {
	return Snapshot{marks: copyMarks(c.marks)}
}

// Restore resets every mark to its value when s was taken. A snapshot may
// be restored more than once.
func (c *Cache) Restore(s Snapshot) {
	c.marks = copyMarks(s.marks)
}

func copyMarks(m map[string]state) map[string]state {
	out := make(map[string]state, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithActionGroup runs fn with dependency fixing postponed. When the
// outermost group exits, on every path, the cache is fixed once with all
// names marked inside the group pinned.
func (c *Cache) WithActionGroup(fn func() error) (err error) {
	if c.depth == 0 {
		c.groupPinned = set.NewStrings()
	}
	c.depth++
	defer func() {
		c.depth--
		if c.depth > 0 {
			return
		}
		pinned := c.groupPinned.SortedValues()
		c.groupPinned = nil
		if ferr := c.fixNow(pinned, c.log.TraceWriter()); ferr != nil && err == nil {
			err = errors.Annotate(ferr, "fixing marks of action group")
		}
	}()
	return fn()
}

// InActionGroup reports whether fixing is currently postponed.
func (c *Cache) InActionGroup() bool {
	return c.depth > 0
}

func (c *Cache) fix(pinned ...string) error {
	if c.depth > 0 {
		for _, name := range pinned {
			c.groupPinned.Add(name)
		}
		return nil
	}
	return c.fixNow(pinned, c.log.TraceWriter())
}

func (c *Cache) fixNow(pinned []string, trace io.Writer) error {
	if !c.IsBroken() {
		return nil
	}
	if c.resolver == nil {
		return errors.New("no resolver configured")
	}
	return errors.Trace(c.resolver.Resolve(c, pinned, trace))
}

// FixBroken asks the resolver to make the marks consistent. The resolver
// trace is written to trace.
func (c *Cache) FixBroken(trace io.Writer) error {
	if trace == nil {
		trace = io.Discard
	}
	return c.fixNow(nil, trace)
}

// Upgrade marks every upgradable package and resolves the result.
func (c *Cache) Upgrade(trace io.Writer) error {
	if c.resolver == nil {
		return errors.New("no resolver configured")
	}
	if trace == nil {
		trace = io.Discard
	}
	return errors.Trace(c.resolver.Upgrade(c, trace))
}

// apply sets a mark on behalf of a caller and fixes the cache. On failure
// the marks are restored and false is returned.
func (c *Cache) apply(name string, m Mark, auto bool) bool {
	before := c.Snapshot()
	c.set(name, m, auto)
	if err := c.fix(name); err != nil {
		c.Restore(before)
		c.log.Error(m.String(), name, err.Error())
		return false
	}
	if got := c.Mark(name); got != m {
		c.log.Error(m.String(), name, fmt.Sprintf("resolver left it marked %s", got))
		return false
	}
	return true
}

// MarkInstall marks name for installation, or for upgrade if it is
// installed and upgradable. An installed package marked for removal is
// kept. Unknown and uninstallable packages are logged and return false.
func (c *Cache) MarkInstall(name, reason string) bool {
	c.log.Decision("install", name, reason)
	p, ok := c.u.Package(name)
	if !ok {
		c.log.Error("install", name, "unknown package")
		return false
	}
	if c.Mark(name).IsInstall() {
		return true
	}
	if p.IsInstalled() {
		m := MarkKeep
		if p.IsUpgradable() && p.CandidateDownloadable() {
			m = MarkUpgrade
		}
		return c.apply(name, m, c.Auto(name))
	}
	if !p.CandidateDownloadable() {
		c.log.Error("install", name, "no installable candidate")
		return false
	}
	return c.apply(name, MarkInstall, false)
}

// MarkUpgrade marks an installed package for upgrade.
func (c *Cache) MarkUpgrade(name, reason string) bool {
	c.log.Decision("upgrade", name, reason)
	p, ok := c.u.Package(name)
	if !ok || !p.IsInstalled() {
		c.log.Warn("upgrade", name, "not installed")
		return false
	}
	if c.Mark(name) == MarkUpgrade {
		return true
	}
	if !p.IsUpgradable() || !p.CandidateDownloadable() {
		c.log.Error("upgrade", name, "not upgradable")
		return false
	}
	return c.apply(name, MarkUpgrade, c.Auto(name))
}

// MarkRemove marks name for removal.
func (c *Cache) MarkRemove(name, reason string) bool {
	return c.markRemoval(name, reason, MarkRemove)
}

// MarkPurge marks name for removal including its configuration.
func (c *Cache) MarkPurge(name, reason string) bool {
	return c.markRemoval(name, reason, MarkPurge)
}

func (c *Cache) markRemoval(name, reason string, m Mark) bool {
	c.log.Decision(m.String(), name, reason)
	p, ok := c.u.Package(name)
	if !ok {
		c.log.Warn(m.String(), name, "unknown package")
		return false
	}
	if c.Protected(name) {
		c.log.Warn(m.String(), name, "package is protected")
		return false
	}
	if !p.IsInstalled() {
		if c.Mark(name).IsInstall() {
			return c.apply(name, MarkKeep, false)
		}
		return true
	}
	if c.Mark(name) == m {
		return true
	}
	return c.apply(name, m, c.Auto(name))
}

// MarkKeep cancels any pending change of name. It never triggers a fix.
func (c *Cache) MarkKeep(name string) bool {
	c.log.Decision("keep", name, "")
	p, ok := c.u.Package(name)
	if !ok {
		c.log.Warn("keep", name, "unknown package")
		return false
	}
	c.set(name, MarkKeep, p.Auto)
	return true
}
