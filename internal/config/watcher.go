package config

import (
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher hot-reloads configuration when files under the loader's
// base path change. The current configuration lives behind an atomic
// pointer, so readers never block a reload.
type Watcher struct {
	loader   *Loader
	current  atomic.Pointer[Config]
	debounce time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	callbacks []func(*Config)

	// reloadMu serializes reloads when debounce timers overlap.
	reloadMu sync.Mutex

	fs       *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher starts watching the loader's base path. The initial
// configuration must already be loaded and valid.
func NewWatcher(loader *Loader, initial *Config, logger *zap.Logger) (*Watcher, error) {
	return newWatcher(loader, initial, logger, defaultDebounce)
}

func newWatcher(loader *Loader, initial *Config, logger *zap.Logger, debounce time.Duration) (*Watcher, error) {
	w := &Watcher{
		loader:   loader,
		debounce: debounce,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	w.current.Store(initial)

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(loader.basePath); err != nil {
		fs.Close()
		return nil, err
	}
	w.fs = fs

	go w.loop()
	logger.Info("configuration hot reload enabled",
		zap.String("path", loader.basePath))
	return w, nil
}

// Current returns the live configuration.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.fs.Close()
	})
}

func (w *Watcher) loop() {
	var pending *time.Timer
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isConfigFile(event.Name) {
				continue
			}
			w.logger.Info("configuration file changed",
				zap.String("file", event.Name),
				zap.String("op", event.Op.String()))
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", zap.Error(err))

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	next, err := w.loader.Load()
	if err != nil {
		// The previous configuration stays live.
		w.logger.Error("config reload rejected", zap.Error(err))
		return
	}

	prev := w.current.Load()
	if configsEqual(prev, next) {
		w.logger.Debug("configuration unchanged after reload")
		return
	}
	w.current.Store(next)
	w.logger.Info("configuration reloaded",
		zap.Strings("sources", next.LoadedFrom))

	w.mu.Lock()
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, fn := range callbacks {
		go func(cb func(*Config)) {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("config change callback panicked", zap.Any("panic", r))
				}
			}()
			cb(next)
		}(fn)
	}
}

func configsEqual(a, b *Config) bool {
	ac, bc := *a, *b
	ac.LoadedFrom, bc.LoadedFrom = nil, nil
	return reflect.DeepEqual(ac, bc)
}

func isConfigFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
