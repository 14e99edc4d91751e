package deltasync

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/contextvault/cv/internal/logging"
)

// Watcher drives incremental syncs from filesystem change events, for
// config.Sync.AutoSync. Grounded on the teacher's core.MangleWatcher:
// same recursive-add-on-create, debounce-map, stop/done-channel shape,
// generalized from a single directory to the whole tracked tree.
type Watcher struct {
	engine      *Engine
	fsw         *fsnotify.Watcher
	debounce    time.Duration
	mu          sync.Mutex
	pending     map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewWatcher builds a Watcher over every directory under engine.root,
// skipping the same exclude patterns the delta walk honors.
func NewWatcher(engine *Engine) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		engine:   engine,
		fsw:      fsw,
		debounce: 750 * time.Millisecond,
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if err := w.addTree(engine.root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel != "." && matchesAny(w.engine.cfg.Sync.ExcludePatterns, filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Start begins watching in a background goroutine, debouncing rapid
// successive events per path and triggering an incremental Sync once
// events settle. Non-blocking.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.recordEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warnf(logging.CategorySync, "watcher error: %v", err)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) recordEvent(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(ev.Name)
		}
	}
	w.mu.Lock()
	w.pending[ev.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	ready := false
	now := time.Now()
	for _, t := range w.pending {
		if now.Sub(t) >= w.debounce {
			ready = true
			break
		}
	}
	if !ready {
		w.mu.Unlock()
		return
	}
	w.pending = make(map[string]time.Time)
	w.mu.Unlock()

	if _, err := w.engine.Sync(ctx, ModeIncremental); err != nil {
		logging.Errorf(logging.CategorySync, "auto-sync failed: %v", err)
	}
}

// Stop halts the watch loop and releases the underlying fsnotify handle.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.fsw.Close()
}
