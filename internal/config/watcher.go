package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads a configuration file. On every write to the file the
// watcher reloads it, revalidates, and republishes the parsed Config to all
// subscribers; a file that fails to parse leaves the last good Config in
// place.
type Watcher struct {
	mu        sync.RWMutex
	current   Config
	callbacks []func(Config)

	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher loads path and starts watching it. The containing directory is
// watched rather than the file itself so editors that replace the file on
// save keep triggering reloads.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		current: initial,
		path:    filepath.Clean(path),
		watcher: fsWatcher,
		logger:  logger.Named("config"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

// Current returns the most recently published configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe registers a callback invoked with each successfully reloaded
// configuration. Callbacks run on the watcher goroutine and must not block.
func (w *Watcher) Subscribe(fn func(Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stopCh)
	<-w.doneCh
	return nil
}

const debounceDelay = 250 * time.Millisecond

func (w *Watcher) watchLoop() {
	defer close(w.doneCh)
	defer w.watcher.Close()

	var debounce *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous configuration",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := make([]func(Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("configuration reloaded", zap.String("path", w.path))
	for _, fn := range callbacks {
		fn(cfg)
	}
}
