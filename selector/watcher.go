package selector

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures the change feed for watch mode.
type WatcherConfig struct {
	// Roots are the directories watched recursively for code changes
	Roots []string

	// Debounce is how long to collect changes before emitting a batch
	Debounce time.Duration

	// Logger for logging events
	Logger *slog.Logger
}

// Watcher watches code roots and emits debounced batches of changed paths.
// Paths keep the form of the configured root, slash-separated, so they match
// dependency map globs authored against the same tree.
type Watcher struct {
	config  WatcherConfig
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	// Debouncing: collect changes before emitting
	pendingMu sync.Mutex
	pending   map[string]struct{}

	// Output channel
	batches chan []string
}

// NewWatcher creates a change watcher over the configured roots.
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Debounce == 0 {
		config.Debounce = 2 * time.Second
	}

	return &Watcher{
		config:  config,
		watcher: fsw,
		logger:  logger,
		pending: make(map[string]struct{}),
		batches: make(chan []string, 16),
	}, nil
}

// Batches returns the channel of debounced change batches. It closes once
// the watcher stops and the event loop drains.
func (w *Watcher) Batches() <-chan []string {
	return w.batches
}

// Start begins watching the configured roots for changes.
func (w *Watcher) Start(ctx context.Context) error {
	for _, root := range w.config.Roots {
		if err := w.addWatchesRecursive(root); err != nil {
			return err
		}
	}

	go w.processEvents(ctx)

	w.logger.Info("change watcher started",
		"roots", strings.Join(w.config.Roots, ","),
		"debounce", w.config.Debounce)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// addWatchesRecursive adds watches to all directories under root.
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if skipDir(filepath.Base(path)) && path != root {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory",
				"path", path,
				"error", err)
		} else {
			w.logger.Debug("watching directory", "path", path)
		}
		return nil
	})
}

// skipDir filters hidden directories and dependency trees out of the watch.
func skipDir(base string) bool {
	return strings.HasPrefix(base, ".") || base == "vendor" || base == "node_modules"
}

// processEvents handles fsnotify events with debouncing. It owns the batch
// channel and closes it on exit.
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.batches)

	ticker := time.NewTicker(w.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)

		case <-ticker.C:
			w.flushPending()
		}
	}
}

// handleFSEvent records a single fsnotify event as a pending change.
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	// Permission-only churn is not a code change.
	if event.Op == fsnotify.Chmod {
		return
	}

	path := filepath.Clean(event.Name)
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if skipDir(part) && part != "." && part != ".." {
			return
		}
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
	}

	w.pendingMu.Lock()
	w.pending[filepath.ToSlash(path)] = struct{}{}
	w.pendingMu.Unlock()

	w.logger.Debug("file change detected",
		"path", path,
		"op", event.Op.String())
}

// handleNewDirectory adds a watch to a newly created directory.
func (w *Watcher) handleNewDirectory(path string) {
	if skipDir(filepath.Base(path)) {
		return
	}
	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("failed to watch new directory",
			"path", path,
			"error", err)
	} else {
		w.logger.Debug("added watch for new directory", "path", path)
	}
}

// flushPending emits the accumulated changes as one sorted batch. When the
// consumer is behind, the changes carry over to the next flush instead of
// being dropped.
func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	batch := make([]string, 0, len(w.pending))
	for p := range w.pending {
		batch = append(batch, p)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	sort.Strings(batch)

	select {
	case w.batches <- batch:
		w.logger.Debug("emitted change batch", "paths", len(batch))
	default:
		w.pendingMu.Lock()
		for _, p := range batch {
			w.pending[p] = struct{}{}
		}
		w.pendingMu.Unlock()
		w.logger.Debug("batch channel full, carrying changes to next flush",
			"paths", len(batch))
	}
}
