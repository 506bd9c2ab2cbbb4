package index

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"gptshell/internal/logging"
)

// Watcher keeps the index current by rebuilding after filesystem changes.
// Events are debounced so a burst of writes triggers one rebuild.
type Watcher struct {
	builder  *Builder
	root     string
	debounce time.Duration
	ignored  func(name string) bool
}

// NewWatcher creates a watcher that rebuilds via the given builder.
func NewWatcher(builder *Builder, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		builder:  builder,
		root:     builder.root,
		debounce: debounce,
		ignored:  builder.scanner.ignored,
	}
}

// Run watches the workspace until ctx is cancelled. Each settled burst of
// change events triggers one incremental build. onBuild, when non-nil, is
// invoked after every rebuild.
func (w *Watcher) Run(ctx context.Context, onBuild func(*BuildResult, error)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, w.root); err != nil {
		return err
	}
	logging.Index("Watching %s for changes (debounce %v)", w.root, w.debounce)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.ignored(filepath.Base(ev.Name)) {
				continue
			}
			// New directories must be added to the watch set
			if ev.Op.Has(fsnotify.Create) {
				if err := w.addRecursive(fsw, ev.Name); err != nil {
					logging.IndexDebug("Failed to watch %s: %v", ev.Name, err)
				}
			}
			logging.IndexDebug("Change event: %s %s", ev.Op, ev.Name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryIndex).Error("Watcher error: %v", err)

		case <-timerC:
			timer = nil
			timerC = nil
			result, err := w.builder.Build(ctx)
			if err != nil {
				logging.Get(logging.CategoryIndex).Error("Watch rebuild failed: %v", err)
			}
			if onBuild != nil {
				onBuild(result, err)
			}
		}
	}
}

// addRecursive registers path and all non-ignored subdirectories.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d == nil || !d.IsDir() {
			return nil
		}
		if p != path && w.ignored(d.Name()) {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			logging.IndexDebug("Failed to watch directory %s: %v", p, err)
		}
		return nil
	})
}
