package watcher

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/blackwell-systems/distplan/internal/planlog"
)

// DefaultDebounce is how long the watched files must be quiet before a
// replan runs.
const DefaultDebounce = 2 * time.Second

// relevantOps are the operations that change a file's contents.
const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

// Watcher runs a replan callback when the package database changes.
type Watcher struct {
	matcher  *Matcher
	replan   func() error
	debounce time.Duration
	log      *planlog.Logger

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stopped bool
}

// New creates a Watcher over paths. It does not start watching.
func New(paths []string, replan func() error, log *planlog.Logger) (*Watcher, error) {
	if replan == nil {
		return nil, fmt.Errorf("replan callback cannot be nil")
	}
	m := NewMatcher(paths)
	if len(m.Dirs()) == 0 {
		return nil, fmt.Errorf("no paths to watch")
	}
	if log == nil {
		log = planlog.Nop()
	}
	return &Watcher{
		matcher:  m,
		replan:   replan,
		debounce: DefaultDebounce,
		log:      log.Stage("watch"),
		stopCh:   make(chan struct{}),
	}, nil
}

// SetDebounce changes the quiet interval. It must be called before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start runs an initial replan and then watches for changes in the
// background. Directories that do not exist are skipped with a warning;
// it is an error if none can be watched.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fs != nil {
		return fmt.Errorf("watcher already started")
	}
	if w.stopped {
		return fmt.Errorf("watcher already stopped")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	watched := 0
	for _, dir := range w.matcher.Dirs() {
		if err := fsw.Add(dir); err != nil {
			w.log.Warn("skip", dir, err.Error())
			continue
		}
		watched++
	}
	if watched == 0 {
		fsw.Close()
		return fmt.Errorf("none of the watched directories exist")
	}
	w.fs = fsw

	w.runReplan("initial")

	w.wg.Add(1)
	go w.loop(fsw.Events, fsw.Errors)
	return nil
}

// loop coalesces events and replans once the files are quiet.
func (w *Watcher) loop(events <-chan fsnotify.Event, errs <-chan error) {
	defer w.wg.Done()

	var fire <-chan time.Time
	var trigger string
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Op&relevantOps == 0 || !w.matcher.Match(ev.Name) {
				continue
			}
			w.log.Debug("changed", ev.Name, ev.Op.String())
			trigger = ev.Name
			fire = time.After(w.debounce)
		case err, ok := <-errs:
			if !ok {
				return
			}
			w.log.Warn("watch error", "", err.Error())
		case <-fire:
			fire = nil
			w.runReplan(trigger)
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) runReplan(trigger string) {
	w.log.Decision("replan", trigger, "package database changed")
	if err := w.replan(); err != nil {
		w.log.Error("replan failed", trigger, err.Error())
	}
}

// Stop halts the watcher. It is safe to call before Start and more than
// once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	fsw := w.fs
	w.mu.Unlock()

	w.wg.Wait()
	if fsw != nil {
		if err := fsw.Close(); err != nil {
			return fmt.Errorf("failed to close file watcher: %w", err)
		}
	}
	return nil
}
