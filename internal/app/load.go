package app

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/blackwell-systems/distplan/internal/config"
	"github.com/blackwell-systems/distplan/internal/policy"
	"github.com/blackwell-systems/distplan/internal/universe"
)

// loadConfig reads config.toml from --config-dir or the default directory.
func loadConfig() (*config.Config, error) {
	dir := configDir
	if dir == "" {
		var err error
		dir, err = config.Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate config directory: %w", err)
		}
	}
	return config.Load(dir)
}

// loadUniverse builds the package universe from the status file, every
// configured index and the extended states file. The extended states file
// is optional.
func loadUniverse(cfg *config.Config) (*universe.Universe, error) {
	u := universe.New()

	if err := loadFile(cfg.Status, u.LoadStatus); err != nil {
		return nil, err
	}

	for _, idx := range cfg.Indices {
		origin := universe.Origin{
			Archive: idx.Archive,
			Origin:  idx.Origin,
			Label:   idx.Label,
			Trusted: idx.Trusted,
		}
		err := loadFile(idx.Path, func(r io.Reader) error {
			return u.LoadIndex(r, origin)
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.ExtendedStates != "" {
		err := loadFile(cfg.ExtendedStates, u.LoadExtendedStates)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return u, nil
}

func loadFile(path string, load func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := load(f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// loadPolicy reads the policy file and its override directory.
func loadPolicy(cfg *config.Config) (*policy.Policy, error) {
	return policy.Load(cfg.Policy, policy.LoadOptions{OverrideDir: cfg.PolicyOverrides})
}
