// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce coalesces the burst of events editors emit on save.
const DefaultReloadDebounce = 500 * time.Millisecond

// Watcher reloads the config file after it changes and hands the new,
// validated configuration to onChange. Invalid edits are logged and the
// running configuration is kept.
type Watcher struct {
	path     string
	load     func(path string) (*Config, error)
	onChange func(*Config)
	debounce time.Duration
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}

	mu      sync.Mutex
	pending *time.Timer
	stopped bool
}

// NewWatcher watches the directory holding path, so files replaced by
// rename are still noticed.
func NewWatcher(path string, debounce time.Duration, onChange func(*Config), logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, ccgerr.Errorf(ccgerr.CodeConfigWatchFailure, "resolving config path %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ccgerr.Errorf(ccgerr.CodeConfigWatchFailure, "creating config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, ccgerr.Errorf(ccgerr.CodeConfigWatchFailure, "watching %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		load:     Load,
		onChange: onChange,
		debounce: debounce,
		logger:   logger,
		watcher:  fsw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// SetLoadFunc replaces the loader used on reload. Call before Start.
func (w *Watcher) SetLoadFunc(fn func(path string) (*Config, error)) {
	w.load = fn
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
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
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("config file changed", "path", event.Name, "op", event.Op.String())
	w.schedule()
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	w.pending = nil
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	cfg, err := w.load(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected, keeping running configuration", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Stop ends watching and cancels a pending reload.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()

	close(w.stopCh)
	err := w.watcher.Close()
	<-w.doneCh
	return err
}
