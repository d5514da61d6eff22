package graph

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gnana997/migr8/pkg/parser"
)

// WatchOptions configures a Watcher.
type WatchOptions struct {
	// DebounceMs groups rapid events on one file. Default 200.
	DebounceMs int

	// Include and Exclude are the same globs the graph was built with.
	Include []string
	Exclude []string

	// OnChange runs after each refresh or removal with the affected path.
	// It is called from timer goroutines, one at a time.
	OnChange func(path string, err error)
}

// Watcher keeps a ProjectGraph current while files change on disk.
//
// **Usage:**
//
//	w, err := NewWatcher(builder, g, opts, logger)
//	if err != nil {
//	    return err
//	}
//	if err := w.Start(); err != nil {
//	    return err
//	}
//	defer w.Stop()
type Watcher struct {
	watcher *fsnotify.Watcher
	builder *Builder
	graph   *ProjectGraph
	logger  *slog.Logger
	options WatchOptions

	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex

	// serializes graph refreshes and OnChange calls
	refreshMu sync.Mutex

	stopChan chan struct{}
	stopped  bool
	mu       sync.Mutex
}

// NewWatcher creates a watcher for g's root.
func NewWatcher(builder *Builder, g *ProjectGraph, options WatchOptions, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if options.DebounceMs == 0 {
		options.DebounceMs = 200
	}
	if options.Exclude == nil {
		options.Exclude = DefaultExclude
	}

	return &Watcher{
		watcher:        fw,
		builder:        builder,
		graph:          g,
		logger:         logger,
		options:        options,
		debounceTimers: make(map[string]*time.Timer),
		stopChan:       make(chan struct{}),
	}, nil
}

// Start adds watches for every non-excluded directory under the graph root
// and begins processing events in the background.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return fmt.Errorf("watcher already stopped")
	}
	w.mu.Unlock()

	root := w.graph.Root
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to setup watches: %w", err)
	}

	w.logger.Info("file watcher started", "root", root)
	go w.eventLoop()
	return nil
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopChan)

	w.debounceMu.Lock()
	for _, timer := range w.debounceTimers {
		timer.Stop()
	}
	w.debounceTimers = make(map[string]*time.Timer)
	w.debounceMu.Unlock()

	err := w.watcher.Close()
	w.logger.Info("file watcher stopped")
	return err
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	if w.shouldIgnore(path) {
		return
	}

	if event.Has(fsnotify.Create) {
		if isDir, err := statDir(path); err == nil && isDir {
			if err := w.watcher.Add(path); err != nil {
				w.logger.Warn("failed to watch new directory", "path", path, "error", err)
			}
			return
		}
	}

	if !parser.CanContainMarkup(path) {
		return
	}
	rel := w.graph.Rel(path)
	if len(w.options.Include) > 0 && !MatchesAny(w.options.Include, rel) {
		return
	}

	w.logger.Debug("file event", "op", event.Op.String(), "file", path)

	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		w.debounce(path, func() { w.refresh(path) })
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.debounce(path, func() { w.remove(path) })
	}
}

// debounce schedules fn after the debounce delay, replacing any pending
// action for the same path.
func (w *Watcher) debounce(path string, fn func()) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.debounceTimers[path]; exists {
		timer.Stop()
	}

	w.debounceTimers[path] = time.AfterFunc(
		time.Duration(w.options.DebounceMs)*time.Millisecond,
		func() {
			fn()

			w.debounceMu.Lock()
			delete(w.debounceTimers, path)
			w.debounceMu.Unlock()
		},
	)
}

func (w *Watcher) refresh(path string) {
	w.refreshMu.Lock()
	defer w.refreshMu.Unlock()

	changed, err := w.builder.Refresh(w.graph, path)
	switch {
	case err != nil:
		w.logger.Warn("failed to refresh file", "file", path, "error", err)
	case !changed:
		w.logger.Debug("file unchanged", "file", path)
		return
	default:
		w.logger.Debug("file refreshed", "file", path)
	}
	if w.options.OnChange != nil {
		w.options.OnChange(path, err)
	}
}

func (w *Watcher) remove(path string) {
	w.refreshMu.Lock()
	defer w.refreshMu.Unlock()

	w.graph.Remove(path)
	w.logger.Debug("file removed from graph", "file", path)
	if w.options.OnChange != nil {
		w.options.OnChange(path, nil)
	}
}

func (w *Watcher) shouldIgnore(path string) bool {
	rel := w.graph.Rel(path)
	if MatchesAny(w.options.Exclude, rel) {
		return true
	}
	switch filepath.Base(path) {
	case "node_modules", ".git", ".migr8":
		return true
	}
	return false
}

// Pending returns the number of debounced actions not yet run.
func (w *Watcher) Pending() int {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	return len(w.debounceTimers)
}

func statDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
