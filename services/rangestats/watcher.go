// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rangestats

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var watcherReloads = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rangestats_watcher_reloads_total",
		Help: "Dataset reloads triggered by file changes, by status",
	},
	[]string{"status"},
)

// ReloadFunc is called after a watched file has been reloaded.
type ReloadFunc func(path string, info DatasetInfo, err error)

// WatcherOptions configures the Watcher.
type WatcherOptions struct {
	// DebounceWindow is how long to wait for further writes before reloading.
	// Default: 200ms
	DebounceWindow time.Duration

	// OnReload is called after every reload attempt. Optional.
	OnReload ReloadFunc
}

// DefaultWatcherOptions returns sensible defaults.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		DebounceWindow: 200 * time.Millisecond,
	}
}

// Watcher reloads dataset files into a Service when they change on disk.
//
// # Description
//
// Parent directories are watched rather than the files themselves, so
// editors that save by renaming a temp file over the original are seen as
// a Create. Events for one file are debounced and the file is reloaded
// once, replacing its dataset atomically. A file that fails to parse
// leaves the previous dataset in place. Removing a file keeps the dataset.
//
// # Thread Safety
//
// Safe for concurrent use. Reloads run on a single goroutine.
type Watcher struct {
	svc      *Service
	watcher  *fsnotify.Watcher
	files    map[string]struct{}
	debounce time.Duration
	onReload ReloadFunc

	changes  chan string
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// NewWatcher creates a watcher for paths. Call Start to begin watching.
//
// # Example
//
//	w, err := rangestats.NewWatcher(svc, cfg.DatasetFiles, nil)
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	if err := w.Start(ctx); err != nil {
//	    return err
//	}
func NewWatcher(svc *Service, paths []string, opts *WatcherOptions) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultWatcherOptions()
		opts = &defaults
	}

	files := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		files[abs] = struct{}{}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		svc:      svc,
		watcher:  fw,
		files:    files,
		debounce: opts.DebounceWindow,
		onReload: opts.OnReload,
		changes:  make(chan string, 64),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. It returns once every parent directory is
// registered; events are processed in the background until Stop is called
// or ctx is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	dirs := make(map[string]struct{})
	for f := range w.files {
		dirs[filepath.Dir(f)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.mu.Lock()
			w.watching = false
			w.mu.Unlock()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			path := filepath.Clean(event.Name)
			if _, tracked := w.files[path]; !tracked {
				continue
			}

			// Blocks while the debounce loop is reloading, so no tracked
			// file's change is dropped.
			select {
			case w.changes <- path:
			case <-ctx.Done():
				return
			case <-w.done:
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("dataset watcher error", "error", err)
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		for path := range pending {
			w.reload(ctx, path)
		}
		clear(pending)
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case path := <-w.changes:
			pending[path] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

func (w *Watcher) reload(ctx context.Context, path string) {
	df, err := LoadDatasetFile(path)
	var info DatasetInfo
	if err == nil {
		info, err = w.svc.Replace(ctx, df.Name, df.Values)
	}

	if err != nil {
		watcherReloads.WithLabelValues("error").Inc()
		slog.Error("dataset reload failed", "path", path, "error", err)
	} else {
		watcherReloads.WithLabelValues("success").Inc()
		slog.Info("dataset reloaded", "path", path, "dataset", info.Name, "len", info.Len)
	}

	if w.onReload != nil {
		w.onReload(path, info, err)
	}
}
