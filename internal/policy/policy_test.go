package policy

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const mockConfig = `# comment
[View]
View=DistUpgradeViewGtk

[Distro]
MetaPkgs=ubuntu-desktop, kubuntu-desktop
BaseMetaPkgs=ubuntu-minimal, ubuntu-standard
PostUpgradePurge=xorg-common, libgl1-mesa
PostUpgradeRemove=,
RemoveEssentialOk=sysvinit, sysvutils
RemovalBlacklistFile=removal_blacklist.cfg
BadVersions=linux-image-3.0.0-12-generic_3.0.0-12.20
KeepInstalledSection=translations
Demotions=demoted.cfg
AllowUnauthenticated=no
PurgeObsoletes=yes
FancyNewKey=1

[ubuntu-desktop]
KeyDependencies=gdm, ubuntu-artwork
PostUpgradeRemove=gnome-cups-manager

[KernelRemoval]
Version=3.0.0
BaseNames=linux-image,linux-headers
Types=generic,server

[Sources]
From=oneiric
To=precise
ValidOrigin=Ubuntu

[Aufs]
Enabled=True
RWDir=/tmp/upgrade-rw
`

const mockBlacklist = `# blacklist
^linux-image-.*
  ^linux-restricted-modules-.*

`

const mockDemotions = `# demoted
example-demoted
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func loadMock(t *testing.T, overrides map[string]string) *Policy {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "DistUpgrade.cfg"), mockConfig)
	writeFile(t, filepath.Join(dir, "removal_blacklist.cfg"), mockBlacklist)
	writeFile(t, filepath.Join(dir, "demoted.cfg"), mockDemotions)

	overrideDir := filepath.Join(dir, "release-upgrades.d")
	if err := os.Mkdir(overrideDir, 0755); err != nil {
		t.Fatalf("Failed to create override dir: %v", err)
	}
	for name, content := range overrides {
		writeFile(t, filepath.Join(overrideDir, name), content)
	}

	p, err := Load(filepath.Join(dir, "DistUpgrade.cfg"), LoadOptions{OverrideDir: overrideDir})
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	return p
}

func TestLoad(t *testing.T) {
	p := loadMock(t, nil)

	if got, want := p.MetaPackages(), []string{"ubuntu-desktop", "kubuntu-desktop"}; !reflect.DeepEqual(got, want) {
		t.Errorf("MetaPackages() = %v, want %v", got, want)
	}
	if got, want := p.BaseMetaPackages(), []string{"ubuntu-minimal", "ubuntu-standard"}; !reflect.DeepEqual(got, want) {
		t.Errorf("BaseMetaPackages() = %v, want %v", got, want)
	}
	if got, want := p.PostUpgrade(ActionPurge), []string{"xorg-common", "libgl1-mesa"}; !reflect.DeepEqual(got, want) {
		t.Errorf("PostUpgrade(purge) = %v, want %v", got, want)
	}
	if got := p.PostUpgrade(ActionRemove); len(got) != 0 {
		t.Errorf("PostUpgrade(remove) = %v, want empty list", got)
	}
	if got, want := p.KeyDependencies("ubuntu-desktop"), []string{"gdm", "ubuntu-artwork"}; !reflect.DeepEqual(got, want) {
		t.Errorf("KeyDependencies() = %v, want %v", got, want)
	}
	meta, ok := p.Meta("ubuntu-desktop")
	if !ok || !reflect.DeepEqual(meta.PostUpgrade[ActionRemove], []string{"gnome-cups-manager"}) {
		t.Errorf("Meta(ubuntu-desktop) = %+v, %v", meta, ok)
	}
	if _, ok := p.Meta("kubuntu-desktop"); ok {
		t.Error("kubuntu-desktop has no section and should have no rules")
	}
	if !p.RemoveEssentialAllowed("sysvinit") || p.RemoveEssentialAllowed("bash") {
		t.Error("RemoveEssentialAllowed mismatch")
	}
	if got, want := p.Demotions(), []string{"example-demoted"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Demotions() = %v, want %v", got, want)
	}
	if p.AllowUnauthenticated() || !p.PurgeObsoletes() {
		t.Error("boolean options not parsed")
	}
	k := p.KernelRemoval()
	if k.Version != "3.0.0" || !reflect.DeepEqual(k.BaseNames, []string{"linux-image", "linux-headers"}) {
		t.Errorf("KernelRemoval() = %+v", k)
	}
	if s := p.Sources(); s.From != "oneiric" || s.To != "precise" || s.ValidOrigin != "Ubuntu" {
		t.Errorf("Sources() = %+v", s)
	}
	if a := p.Aufs(); !a.Enabled || a.RWDir != "/tmp/upgrade-rw" {
		t.Errorf("Aufs() = %+v", a)
	}
	if p.ArchiveDir() != DefaultArchiveDir {
		t.Errorf("ArchiveDir() = %q, want default", p.ArchiveDir())
	}
}

func TestLoadWarnsUnknown(t *testing.T) {
	p := loadMock(t, nil)
	warnings := strings.Join(p.Warnings(), "\n")
	for _, want := range []string{"unknown section [View]", "unknown key fancynewkey in [Distro]"} {
		if !strings.Contains(warnings, want) {
			t.Errorf("warnings %q do not contain %q", warnings, want)
		}
	}
}

func TestLoadOverrides(t *testing.T) {
	p := loadMock(t, map[string]string{
		"local.cfg": "[Distro]\nAllowUnauthenticated=yes\n",
	})
	if !p.AllowUnauthenticated() {
		t.Error("override did not apply")
	}
}

func TestRemovalBlacklist(t *testing.T) {
	p := loadMock(t, nil)

	tests := []struct {
		name string
		want bool
	}{
		{"linux-image-3.0.0-15-generic", true},
		{"linux-restricted-modules-2.6.24", true},
		{"linux-headers-3.0.0-15", false},
		{"xlinux-image-3.0.0", false},
		{"bash", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.MatchesRemovalBlacklist(tt.name); got != tt.want {
				t.Errorf("MatchesRemovalBlacklist(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestIsBadVersion(t *testing.T) {
	p := loadMock(t, nil)
	if !p.IsBadVersion("linux-image-3.0.0-12-generic", "3.0.0-12.20") {
		t.Error("expected bad version match")
	}
	if p.IsBadVersion("linux-image-3.0.0-12-generic", "3.0.0-12.21") {
		t.Error("other versions are fine")
	}
}

func TestNewRejectsInvalidRules(t *testing.T) {
	tests := []struct {
		name  string
		rules Rules
	}{
		{"bad regexp", Rules{RemovalBlacklist: []string{"^linux-(image"}}},
		{"bad version without separator", Rules{BadVersions: []string{"foo"}}},
		{"bad version without version", Rules{BadVersions: []string{"foo_"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.rules); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestPolicyIsImmutable(t *testing.T) {
	meta := []string{"ubuntu-desktop"}
	p := MustNew(Rules{MetaPackages: meta})
	meta[0] = "changed"
	got := p.MetaPackages()
	got[0] = "changed again"
	if p.MetaPackages()[0] != "ubuntu-desktop" {
		t.Errorf("MetaPackages() = %v, policy was mutated", p.MetaPackages())
	}
}
