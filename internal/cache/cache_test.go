package cache_test

import (
	"reflect"
	"testing"

	"github.com/blackwell-systems/distplan/internal/cache"
	"github.com/blackwell-systems/distplan/internal/resolver"
	"github.com/blackwell-systems/distplan/internal/universe/universetest"
)

type pkg = universetest.Pkg

func newCache(pkgs ...pkg) *cache.Cache {
	return cache.New(universetest.Universe(pkgs...), resolver.New(), nil)
}

func marks(c *cache.Cache) map[string]cache.Mark {
	out := make(map[string]cache.Mark)
	for _, ch := range c.Changes() {
		out[ch.Name] = ch.Mark
	}
	return out
}

func TestMarkInstallUnknown(t *testing.T) {
	c := newCache(pkg{Name: "a", Installed: "1", Candidate: "1"})
	if c.MarkInstall("missing", "test") {
		t.Error("MarkInstall of unknown package should return false")
	}
	if len(c.Changes()) != 0 {
		t.Errorf("changes = %v, want none", c.Changes())
	}
}

func TestMarkInstallPullsDependencies(t *testing.T) {
	c := newCache(
		pkg{Name: "app", Candidate: "1", Depends: "libfoo (>= 2)"},
		pkg{Name: "libfoo", Installed: "1", Candidate: "2"},
	)
	if !c.MarkInstall("app", "test") {
		t.Fatal("MarkInstall(app) = false, want true")
	}
	want := map[string]cache.Mark{"app": cache.MarkInstall, "libfoo": cache.MarkUpgrade}
	if got := marks(c); !reflect.DeepEqual(got, want) {
		t.Errorf("marks = %v, want %v", got, want)
	}
	if c.IsBroken() {
		t.Error("cache is broken after MarkInstall")
	}
	if c.Auto("app") {
		t.Error("explicitly installed package should not be auto")
	}
}

func TestMarkInstallNewDependencyIsAuto(t *testing.T) {
	c := newCache(
		pkg{Name: "app", Candidate: "1", Depends: "libnew"},
		pkg{Name: "libnew", Candidate: "1"},
	)
	if !c.MarkInstall("app", "test") {
		t.Fatal("MarkInstall(app) = false, want true")
	}
	if c.Mark("libnew") != cache.MarkInstall || !c.Auto("libnew") {
		t.Errorf("libnew mark = %v auto = %v, want auto install", c.Mark("libnew"), c.Auto("libnew"))
	}
}

func TestMarkInstallUnsatisfiableRestores(t *testing.T) {
	c := newCache(
		pkg{Name: "app", Candidate: "1", Depends: "ghost"},
		pkg{Name: "other", Installed: "1", Candidate: "2"},
	)
	c.MarkUpgrade("other", "test")
	before := marks(c)

	if c.MarkInstall("app", "test") {
		t.Fatal("MarkInstall with a missing dependency should fail")
	}
	if got := marks(c); !reflect.DeepEqual(got, before) {
		t.Errorf("marks = %v, want %v", got, before)
	}
}

func TestMarkInstallWithoutCandidate(t *testing.T) {
	c := newCache(pkg{Name: "gone", Candidate: "1", NotDownloadable: true})
	if c.MarkInstall("gone", "test") {
		t.Error("MarkInstall of undownloadable package should fail")
	}
}

func TestMarkInstallUnremoves(t *testing.T) {
	c := newCache(pkg{Name: "a", Installed: "1", Candidate: "1"})
	if !c.MarkRemove("a", "test") {
		t.Fatal("MarkRemove(a) = false")
	}
	if !c.MarkInstall("a", "keep it") {
		t.Fatal("MarkInstall(a) = false")
	}
	if c.Mark("a") != cache.MarkKeep {
		t.Errorf("mark = %v, want keep", c.Mark("a"))
	}
}

func TestMarkUpgrade(t *testing.T) {
	c := newCache(
		pkg{Name: "a", Installed: "1", Candidate: "2"},
		pkg{Name: "b", Installed: "1", Candidate: "1"},
		pkg{Name: "c", Candidate: "1"},
	)

	tests := []struct {
		name string
		want bool
	}{
		{"a", true},
		{"b", false},
		{"c", false},
		{"missing", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.MarkUpgrade(tt.name, "test"); got != tt.want {
				t.Errorf("MarkUpgrade(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
	if c.Mark("a") != cache.MarkUpgrade {
		t.Errorf("a mark = %v, want upgrade", c.Mark("a"))
	}
}

func TestMarkRemoveCascades(t *testing.T) {
	c := newCache(
		pkg{Name: "lib", Installed: "1", Candidate: "1"},
		pkg{Name: "app", Installed: "1", Candidate: "1", Depends: "lib"},
		pkg{Name: "unrelated", Installed: "1", Candidate: "1"},
	)
	if !c.MarkRemove("lib", "test") {
		t.Fatal("MarkRemove(lib) = false")
	}
	want := map[string]cache.Mark{"lib": cache.MarkRemove, "app": cache.MarkRemove}
	if got := marks(c); !reflect.DeepEqual(got, want) {
		t.Errorf("marks = %v, want %v", got, want)
	}
}

func TestMarkRemoveProtected(t *testing.T) {
	c := newCache(pkg{Name: "linux-image-3.0.0-15-generic", Installed: "3.0.0-15.26"})
	c.Protect("linux-image-3.0.0-15-generic")
	if c.MarkRemove("linux-image-3.0.0-15-generic", "test") {
		t.Error("MarkRemove of protected package should fail")
	}
	if c.MarkPurge("linux-image-3.0.0-15-generic", "test") {
		t.Error("MarkPurge of protected package should fail")
	}
	if len(c.Changes()) != 0 {
		t.Errorf("changes = %v, want none", c.Changes())
	}
}

func TestMarkRemoveCancelsInstall(t *testing.T) {
	c := newCache(pkg{Name: "new", Candidate: "1"})
	c.MarkInstall("new", "test")
	if !c.MarkRemove("new", "test") {
		t.Fatal("MarkRemove(new) = false")
	}
	if c.Mark("new") != cache.MarkKeep {
		t.Errorf("mark = %v, want keep", c.Mark("new"))
	}
}

func TestMarkIdempotent(t *testing.T) {
	c := newCache(pkg{Name: "a", Installed: "1", Candidate: "2"})
	for i := 0; i < 2; i++ {
		if !c.MarkPurge("a", "test") {
			t.Fatalf("MarkPurge call %d = false", i)
		}
	}
	if c.Mark("a") != cache.MarkPurge {
		t.Errorf("mark = %v, want purge", c.Mark("a"))
	}
	c.MarkKeep("a")
	if len(c.Changes()) != 0 {
		t.Errorf("changes after MarkKeep = %v, want none", c.Changes())
	}
}

func TestSnapshotRestore(t *testing.T) {
	c := newCache(
		pkg{Name: "a", Installed: "1", Candidate: "2"},
		pkg{Name: "b", Installed: "1", Candidate: "1"},
		pkg{Name: "c", Candidate: "1"},
	)
	c.MarkUpgrade("a", "test")
	before := marks(c)
	snap := c.Snapshot()

	c.MarkRemove("b", "trial")
	c.MarkInstall("c", "trial")
	c.MarkKeep("a")

	c.Restore(snap)
	if got := marks(c); !reflect.DeepEqual(got, before) {
		t.Errorf("marks after restore = %v, want %v", got, before)
	}
	for _, name := range []string{"b", "c"} {
		if c.Mark(name) != cache.MarkKeep {
			t.Errorf("%s mark = %v, want keep", name, c.Mark(name))
		}
	}

	// a snapshot survives a second restore
	c.MarkRemove("b", "trial")
	c.Restore(snap)
	if c.Mark("b") != cache.MarkKeep {
		t.Errorf("b mark after second restore = %v, want keep", c.Mark("b"))
	}
}

func TestActionGroupDefersFix(t *testing.T) {
	c := newCache(
		pkg{Name: "app", Candidate: "1", Depends: "lib"},
		pkg{Name: "lib", Candidate: "1"},
	)
	err := c.WithActionGroup(func() error {
		if !c.MarkInstall("app", "test") {
			t.Error("MarkInstall(app) inside group = false")
		}
		if !c.IsBroken() {
			t.Error("cache should still be broken inside the group")
		}
		if c.Mark("lib") != cache.MarkKeep {
			t.Error("dependency was installed before the group exited")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to run action group: %v", err)
	}
	if c.IsBroken() {
		t.Error("cache is broken after the group exited")
	}
	if c.Mark("lib") != cache.MarkInstall {
		t.Errorf("lib mark = %v, want install", c.Mark("lib"))
	}
}

func TestActionGroupNested(t *testing.T) {
	c := newCache(
		pkg{Name: "app", Candidate: "1", Depends: "lib"},
		pkg{Name: "lib", Candidate: "1"},
	)
	err := c.WithActionGroup(func() error {
		if err := c.WithActionGroup(func() error {
			c.MarkInstall("app", "test")
			return nil
		}); err != nil {
			return err
		}
		if !c.InActionGroup() || !c.IsBroken() {
			t.Error("inner group exit must not fix the cache")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to run action group: %v", err)
	}
	if c.IsBroken() {
		t.Error("cache is broken after the outer group exited")
	}
}

func TestActionGroupUnresolvable(t *testing.T) {
	c := newCache(
		pkg{Name: "lib", Installed: "1", Candidate: "1"},
		pkg{Name: "app", Installed: "1", Candidate: "1", Depends: "lib"},
	)
	err := c.WithActionGroup(func() error {
		c.MarkRemove("lib", "test")
		c.MarkInstall("app", "test")
		return nil
	})
	if err == nil {
		t.Fatal("expected an error for contradictory pinned marks")
	}
}

func TestGarbage(t *testing.T) {
	c := newCache(
		pkg{Name: "app", Installed: "1", Candidate: "1", Depends: "libused"},
		pkg{Name: "libused", Installed: "1", Candidate: "1", Auto: true},
		pkg{Name: "libold", Installed: "1", Candidate: "1", Auto: true},
		pkg{Name: "manual", Installed: "1", Candidate: "1"},
	)
	if got, want := c.Garbage(), []string{"libold"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Garbage() = %v, want %v", got, want)
	}

	c.MarkRemove("app", "test")
	if got, want := c.Garbage(), []string{"libold", "libused"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Garbage() after removing app = %v, want %v", got, want)
	}
}

func TestUpgradeHoldsBack(t *testing.T) {
	c := newCache(
		pkg{Name: "a", Installed: "1", Candidate: "2"},
		pkg{Name: "b", Installed: "1", Candidate: "2", Depends: "ghost"},
		pkg{Name: "c", Installed: "1", Candidate: "1"},
	)
	if err := c.Upgrade(nil); err != nil {
		t.Fatalf("Failed to upgrade: %v", err)
	}
	want := map[string]cache.Mark{"a": cache.MarkUpgrade}
	if got := marks(c); !reflect.DeepEqual(got, want) {
		t.Errorf("marks = %v, want %v", got, want)
	}
}

func TestProblemsProvidesAndConflicts(t *testing.T) {
	c := newCache(
		pkg{Name: "mailer", Installed: "1", Candidate: "1", Depends: "mail-transport-agent"},
		pkg{Name: "postfix", Installed: "1", Candidate: "1", Provides: "mail-transport-agent", Conflicts: "mail-transport-agent"},
		pkg{Name: "exim4", Candidate: "1", Provides: "mail-transport-agent", Conflicts: "mail-transport-agent"},
	)
	if c.IsBroken() {
		t.Fatalf("initial state broken: %v", c.Broken())
	}
	if !c.MarkInstall("exim4", "test") {
		t.Fatal("MarkInstall(exim4) = false")
	}
	if c.Mark("postfix") != cache.MarkRemove {
		t.Errorf("postfix mark = %v, want remove", c.Mark("postfix"))
	}
	if c.Mark("mailer") != cache.MarkKeep {
		t.Errorf("mailer mark = %v, want keep", c.Mark("mailer"))
	}
}

func TestParseMark(t *testing.T) {
	for m := cache.MarkKeep; m <= cache.MarkPurge; m++ {
		got, ok := cache.ParseMark(m.String())
		if !ok || got != m {
			t.Errorf("ParseMark(%q) = %v, %v; want %v", m.String(), got, ok, m)
		}
	}
	if _, ok := cache.ParseMark("hold"); ok {
		t.Error("ParseMark should reject unknown marks")
	}
}
