// Package watcher re-plans the upgrade whenever the package database
// changes.
//
// The Watcher watches the directories holding the dpkg status file, the
// extended states file and the package index files with fsnotify. Tools
// such as dpkg and apt replace these files by renaming a temporary file,
// so whole directories are watched and events are filtered by a Matcher.
// Bursts of events are coalesced: the replan callback runs once the files
// have been quiet for the debounce interval.
//
// Example usage:
//
//	w, err := watcher.New(paths, func() error {
//		_, err := planOnce(cfg)
//		return err
//	}, logger)
//	if err != nil {
//		return err
//	}
//	if err := w.Start(); err != nil {
//		return err
//	}
//	defer w.Stop()
//
// The daemon helpers run the same loop in a detached child process that
// records its PID in a file.
package watcher
