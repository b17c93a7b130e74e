package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mdnaeem95/stupify-extension/logger"
)

// ReloadCallback is called when config is reloaded.
// Receives the new config and returns any error.
type ReloadCallback func(*Config) error

// Watcher watches a config file for changes and triggers reload callbacks.
// Changes are debounced so editors that write in several bursts trigger a
// single reload.
type Watcher struct {
	configPath     string
	watcher        *fsnotify.Watcher
	callbacks      []ReloadCallback
	mu             sync.RWMutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	ownWrite       bool
	ownWriteMu     sync.Mutex
	done           chan struct{}
}

// NewWatcher creates a config file watcher for the given path.
func NewWatcher(configPath string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(configPath); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		configPath:     configPath,
		watcher:        fsw,
		callbacks:      make([]ReloadCallback, 0),
		debouncePeriod: 500 * time.Millisecond,
		done:           make(chan struct{}),
	}, nil
}

// OnReload registers a callback to be called when config is reloaded.
func (w *Watcher) OnReload(callback ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// MarkOwnWrite marks the next write as coming from us, preventing reload
// loops when we persist UI settings.
func (w *Watcher) MarkOwnWrite() {
	w.ownWriteMu.Lock()
	defer w.ownWriteMu.Unlock()
	w.ownWrite = true
}

func (w *Watcher) checkOwnWrite() bool {
	w.ownWriteMu.Lock()
	defer w.ownWriteMu.Unlock()
	if w.ownWrite {
		w.ownWrite = false
		return true
	}
	return false
}

// Start begins watching for config changes in a background goroutine.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop stops watching and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if w.checkOwnWrite() {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("Config watcher error", "error", err)
		}
	}
}

// scheduleReload debounces rapid file changes into one reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := LoadFromFile(w.configPath)
	if err != nil {
		logger.Warnw("Config reload failed", "path", w.configPath, "error", err)
		return
	}

	w.mu.RLock()
	callbacks := make([]ReloadCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb(cfg); err != nil {
			logger.Warnw("Config reload callback failed", "error", err)
		}
	}

	logger.Infow("Config reloaded", "path", w.configPath)
}
