package planner

// detectServerMode reports whether the system looks like a server: no
// meta-package is installed and none has all of its key dependencies
// installed. A meta-package without key dependencies never counts as
// present.
func (s *Session) detectServerMode() bool {
	if s.opts.ServerMode != nil {
		return *s.opts.ServerMode
	}
	for _, meta := range s.policy.MetaPackages() {
		if s.installed(meta) || s.keyDependenciesInstalled(meta) {
			return false
		}
	}
	return true
}

func (s *Session) installed(name string) bool {
	p, ok := s.cache.Universe().Package(name)
	return ok && p.IsInstalled()
}

func (s *Session) keyDependenciesInstalled(meta string) bool {
	deps := s.policy.KeyDependencies(meta)
	if len(deps) == 0 {
		return false
	}
	for _, name := range deps {
		if !s.installed(name) {
			return false
		}
	}
	return true
}

// metaPresent reports whether some meta-package stays installed or gets
// installed, and returns the first such one.
func (s *Session) metaPresent() (string, bool) {
	for _, meta := range s.policy.MetaPackages() {
		m := s.cache.Mark(meta)
		if m.IsInstall() || (s.installed(meta) && !m.IsRemoval()) {
			return meta, true
		}
	}
	return "", false
}

// selectMetaPackages keeps the base meta-packages and, outside server
// mode, makes sure one desktop meta-package survives the upgrade.
func (s *Session) selectMetaPackages() error {
	log := s.enter(StageMeta)

	for _, name := range s.policy.BaseMetaPackages() {
		if s.installed(name) {
			s.keepPackage(name, "base meta-package")
			continue
		}
		s.cache.MarkInstall(name, "base meta-package")
	}

	if s.serverMode {
		log.Decision("skip", "", "server mode")
		return nil
	}

	for _, meta := range s.policy.MetaPackages() {
		p, ok := s.cache.Universe().Package(meta)
		if !ok || !p.IsUpgradable() || s.cache.Mark(meta).IsInstall() {
			continue
		}
		if !s.cache.MarkUpgrade(meta, "installed meta-package") {
			s.warn(StageMeta, "upgrade", meta, "meta-package could not be upgraded")
		}
	}

	if meta, ok := s.metaPresent(); ok {
		s.metaPackage = meta
		return nil
	}

	for _, meta := range s.policy.MetaPackages() {
		if !s.keyDependenciesInstalled(meta) {
			continue
		}
		if s.cache.MarkInstall(meta, "key dependencies installed") {
			log.Decision("guess", meta, "all key dependencies installed")
		}
		break
	}

	if meta, ok := s.metaPresent(); ok {
		s.metaPackage = meta
		return nil
	}
	if s.opts.PartialUpgrade {
		s.warn(StageMeta, "missing", "", "no meta-package is installed")
		return nil
	}
	return &MetaPackageMissingError{Candidates: s.policy.MetaPackages()}
}
