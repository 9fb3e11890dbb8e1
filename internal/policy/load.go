package policy

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"gopkg.in/ini.v1"
)

// DefaultOverrideDir holds local overrides read after the main file.
const DefaultOverrideDir = "/etc/update-manager/release-upgrades.d"

// LoadOptions controls Load.
type LoadOptions struct {
	// OverrideDir is searched for *.cfg files applied after the main
	// file. Empty disables overrides.
	OverrideDir string
	// DataDir resolves relative list file names such as the removal
	// blacklist file. Defaults to the directory of the main file.
	DataDir string
}

var knownKeys = map[string]set.Strings{
	"Distro": set.NewStrings(
		"metapkgs", "basemetapkgs", "keepinstalledpkgs", "keepinstalledsection",
		"postupgradeinstall", "postupgradeupgrade", "postupgraderemove", "postupgradepurge",
		"removeessentialok", "removalblacklist", "removalblacklistfile", "badversions",
		"demotions", "allowunauthenticated", "purgeobsoletes", "installrecommends",
		"installsuggests",
	),
	"KernelRemoval": set.NewStrings("version", "basenames", "types"),
	"Sources":       set.NewStrings("from", "to", "validorigin"),
	"Aufs":          set.NewStrings("enabled", "rwdir"),
	"Options":       set.NewStrings("withnetwork"),
	"Files":         set.NewStrings("archivedir"),
}

var metaKeys = set.NewStrings(
	"keydependencies", "keepinstalledpkgs", "keepinstalledsection",
	"postupgradeinstall", "postupgradeupgrade", "postupgraderemove", "postupgradepurge",
)

// Load reads a policy file in the DistUpgrade.cfg layout plus any
// overrides. Unknown sections and keys are reported through Warnings.
func Load(path string, opts LoadOptions) (*Policy, error) {
	files := []interface{}{}
	if opts.OverrideDir != "" {
		matches, err := filepath.Glob(filepath.Join(opts.OverrideDir, "*.cfg"))
		if err != nil {
			return nil, errors.Annotate(err, "listing policy overrides")
		}
		sort.Strings(matches)
		for _, m := range matches {
			files = append(files, m)
		}
	}
	cfg, err := ini.LoadSources(ini.LoadOptions{
		InsensitiveKeys:            true,
		AllowPythonMultilineValues: true,
	}, path, files...)
	if err != nil {
		return nil, errors.Annotatef(err, "loading policy %s", path)
	}
	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = filepath.Dir(path)
	}
	l := &loader{cfg: cfg, dataDir: dataDir}
	rules := l.rules()
	p, err := New(rules)
	if err != nil {
		return nil, errors.Trace(err)
	}
	p.warnings = l.warnings
	return p, nil
}

type loader struct {
	cfg      *ini.File
	dataDir  string
	warnings []string
}

func (l *loader) warnf(format string, args ...interface{}) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func (l *loader) section(name string) *ini.Section {
	sec, err := l.cfg.GetSection(name)
	if err != nil {
		return nil
	}
	return sec
}

func (l *loader) value(section, key string) string {
	sec := l.section(section)
	if sec == nil || !sec.HasKey(key) {
		return ""
	}
	return strings.TrimSpace(sec.Key(key).String())
}

func (l *loader) list(section, key string) []string {
	return splitList(l.value(section, key))
}

func (l *loader) boolean(section, key string) bool {
	sec := l.section(section)
	if sec == nil || !sec.HasKey(key) {
		return false
	}
	b, err := sec.Key(key).Bool()
	if err != nil {
		l.warnf("[%s] %s: %v", section, key, err)
		return false
	}
	return b
}

// listFile reads a file named by section.key, one entry per line, skipping
// blank lines and # comments.
func (l *loader) listFile(section, key string) []string {
	name := l.value(section, key)
	if name == "" {
		return nil
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(l.dataDir, name)
	}
	f, err := os.Open(name)
	if err != nil {
		l.warnf("[%s] %s: %v", section, key, err)
		return nil
	}
	defer f.Close()
	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		l.warnf("[%s] %s: %v", section, key, err)
	}
	return out
}

func (l *loader) postUpgrade(section string) map[Action][]string {
	out := make(map[Action][]string)
	for _, action := range Actions {
		if items := l.list(section, "postupgrade"+strings.ToLower(string(action))); len(items) > 0 {
			out[action] = items
		}
	}
	return out
}

func (l *loader) rules() Rules {
	r := Rules{
		MetaPackages:          l.list("Distro", "metapkgs"),
		BaseMetaPackages:      l.list("Distro", "basemetapkgs"),
		KeepInstalledPackages: l.list("Distro", "keepinstalledpkgs"),
		KeepInstalledSections: l.list("Distro", "keepinstalledsection"),
		PostUpgrade:           l.postUpgrade("Distro"),
		RemoveEssentialAllow:  l.list("Distro", "removeessentialok"),
		RemovalBlacklist:      append(l.list("Distro", "removalblacklist"), l.listFile("Distro", "removalblacklistfile")...),
		BadVersions:           l.list("Distro", "badversions"),
		Demotions:             l.listFile("Distro", "demotions"),
		AllowUnauthenticated:  l.boolean("Distro", "allowunauthenticated"),
		PurgeObsoletes:        l.boolean("Distro", "purgeobsoletes"),
		InstallRecommends:     l.boolean("Distro", "installrecommends"),
		InstallSuggests:       l.boolean("Distro", "installsuggests"),
		KernelRemoval: KernelRemoval{
			Version:   l.value("KernelRemoval", "version"),
			BaseNames: l.list("KernelRemoval", "basenames"),
			Types:     l.list("KernelRemoval", "types"),
		},
		Sources: Sources{
			From:        l.value("Sources", "from"),
			To:          l.value("Sources", "to"),
			ValidOrigin: l.value("Sources", "validorigin"),
		},
		Aufs: Aufs{
			Enabled: l.boolean("Aufs", "enabled"),
			RWDir:   l.value("Aufs", "rwdir"),
		},
		WithNetwork: l.boolean("Options", "withnetwork"),
		ArchiveDir:  l.value("Files", "archivedir"),
		PerMeta:     make(map[string]MetaRules),
	}
	metas := set.NewStrings(r.MetaPackages...).Union(set.NewStrings(r.BaseMetaPackages...))
	for _, meta := range metas.SortedValues() {
		if l.section(meta) == nil {
			continue
		}
		r.PerMeta[meta] = MetaRules{
			KeyDependencies:       l.list(meta, "keydependencies"),
			KeepInstalledPackages: l.list(meta, "keepinstalledpkgs"),
			KeepInstalledSections: l.list(meta, "keepinstalledsection"),
			PostUpgrade:           l.postUpgrade(meta),
		}
	}
	l.checkUnknown(metas)
	return r
}

func (l *loader) checkUnknown(metas set.Strings) {
	for _, sec := range l.cfg.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection && len(sec.Keys()) == 0 {
			continue
		}
		known, ok := knownKeys[name]
		if !ok && metas.Contains(name) {
			known, ok = metaKeys, true
		}
		if !ok {
			l.warnf("unknown section [%s]", name)
			continue
		}
		for _, key := range sec.Keys() {
			if !known.Contains(key.Name()) {
				l.warnf("unknown key %s in [%s]", key.Name(), name)
			}
		}
	}
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
