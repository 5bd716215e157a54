// Copyright 2026 © The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Watcher monitors the skills root for manifest or instruction changes and
// triggers a registry reload. Detection is polling-based (mtime comparison),
// good enough for a directory of small files and free of platform quirks.
type Watcher struct {
	mu          sync.RWMutex
	registry    *Registry
	interval    time.Duration
	lastModTime map[string]time.Time
	listeners   []func(*Registry)
	started     bool
	stopOnce    sync.Once
	stopCh      chan struct{}
	doneCh      chan struct{}
	logger      *slog.Logger
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval for file changes.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a watcher over the registry's root directory.
func NewWatcher(registry *Registry, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		registry:    registry,
		interval:    2 * time.Second,
		lastModTime: make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.snapshotModTimes()
	return w
}

// OnReload registers a callback invoked after a successful reload.
func (w *Watcher) OnReload(fn func(*Registry)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Start begins watching for skill definition changes. Calling Start more
// than once has no effect.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.watch(ctx)
}

// Stop stops the watcher and waits for the poll loop to exit. It is safe
// to call Stop multiple times, or without a prior Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.stopCh) })
	if started {
		<-w.doneCh
	}
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.checkForChanges() {
				w.reload()
			}
		}
	}
}

// checkForChanges walks the skills root comparing mtimes against the last
// snapshot. New, modified, and deleted files all count as changes.
func (w *Watcher) checkForChanges() bool {
	current := w.scanModTimes()

	w.mu.Lock()
	defer w.mu.Unlock()

	changed := len(current) != len(w.lastModTime)
	if !changed {
		for path, mod := range current {
			last, ok := w.lastModTime[path]
			if !ok || mod.After(last) {
				changed = true
				break
			}
		}
	}
	if changed {
		w.lastModTime = current
	}
	return changed
}

func (w *Watcher) snapshotModTimes() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastModTime = w.scanModTimes()
}

func (w *Watcher) scanModTimes() map[string]time.Time {
	mods := make(map[string]time.Time)
	root := w.registry.Root()
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		if info, err := os.Stat(path); err == nil {
			mods[path] = info.ModTime()
		}
		return nil
	})
	return mods
}

func (w *Watcher) reload() {
	w.logger.Info("skill definitions changed, reloading registry",
		"root", w.registry.Root())

	if err := w.registry.Reload(); err != nil {
		// Fail-closed: the previous catalog stays visible.
		w.logger.Error("skill registry reload failed", "error", err)
		return
	}

	w.mu.RLock()
	listeners := make([]func(*Registry), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.RUnlock()

	for _, fn := range listeners {
		fn(w.registry)
	}
}
