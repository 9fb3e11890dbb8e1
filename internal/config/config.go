// Package config provides configuration file parsing for distplan.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/juju/errors"
)

// FileName is the name of the configuration file inside Dir.
const FileName = "config.toml"

// Defaults for a Debian-style system.
const (
	DefaultStatus         = "/var/lib/dpkg/status"
	DefaultExtendedStates = "/var/lib/apt/extended_states"
	DefaultPolicy         = "/usr/share/distplan/DistUpgrade.cfg"
	DefaultLockDir        = "/var/lib/dpkg"
	DefaultListsDir       = "/var/lib/apt/lists"
	DefaultDpkgUpdatesDir = "/var/lib/dpkg/updates"
)

// Dir returns the distplan config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/distplan if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "distplan"), nil
}

// Index is one Packages file and the origin its versions come from.
type Index struct {
	Path    string `toml:"path"`
	Archive string `toml:"archive"`
	Origin  string `toml:"origin"`
	Label   string `toml:"label"`
	Trusted bool   `toml:"trusted"`
}

// Config names the inputs of a planning run.
type Config struct {
	Status          string `toml:"status"`
	ExtendedStates  string `toml:"extended_states"`
	Policy          string `toml:"policy"`
	PolicyOverrides string `toml:"policy_overrides"`
	ArchiveDir      string `toml:"archive_dir"`
	DB              string `toml:"db"`
	LockDir         string `toml:"lock_dir"`
	ListsDir        string `toml:"lists_dir"`
	DpkgUpdatesDir  string `toml:"dpkg_updates_dir"`
	WithNetwork     *bool  `toml:"with_network"`
	Uname           string `toml:"uname"`

	// Kernels are the recommended kernel packages in order of preference.
	// Empty means linux-image-<flavour> of the running kernel.
	Kernels []string `toml:"kernels"`
	Indices []Index  `toml:"index"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Status:         DefaultStatus,
		ExtendedStates: DefaultExtendedStates,
		Policy:         DefaultPolicy,
		LockDir:        DefaultLockDir,
		ListsDir:       DefaultListsDir,
		DpkgUpdatesDir: DefaultDpkgUpdatesDir,
	}
}

// Load reads {dir}/config.toml over the defaults. If the file does not
// exist, the defaults are returned without an error. Relative index paths
// are resolved against ListsDir.
func Load(dir string) (*Config, error) {
	cfg := Default()
	path := filepath.Join(dir, FileName)
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Annotatef(err, "reading %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, errors.NotValidf("unknown key %q in %s", undecoded[0].String(), path)
	}
	for i, idx := range cfg.Indices {
		if idx.Path == "" {
			return cfg, errors.NotValidf("index %d without path in %s", i, path)
		}
		if !filepath.IsAbs(idx.Path) {
			cfg.Indices[i].Path = filepath.Join(cfg.ListsDir, idx.Path)
		}
	}
	return cfg, nil
}

// PackageLockPath is the dpkg frontend lock.
func (c *Config) PackageLockPath() string {
	return filepath.Join(c.LockDir, "lock")
}

// ListsLockPath is the lock of the index directory.
func (c *Config) ListsLockPath() string {
	return filepath.Join(c.ListsDir, "lock")
}
