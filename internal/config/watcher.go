// internal/config/watcher.go
package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/valpere/GigScrapexter/internal/utils"
)

// Watcher watches the targets registry file and notifies callbacks
// when it changes, so a long-running deployment can pick up new
// venues without a restart.
type Watcher struct {
	watcher   *fsnotify.Watcher
	path      string
	callbacks []func(string)
	logger    utils.Logger
	mu        sync.RWMutex
	stopped   bool
}

// NewWatcher creates a watcher for the given file.
func NewWatcher(path string, logger utils.Logger) (*Watcher, error) {
	if logger == nil {
		logger = utils.NewLogger()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		watcher: fw,
		path:    path,
		logger:  logger,
	}

	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	// Watch the directory as well; editors often replace the file
	// rather than writing it in place.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		logger.Warnf("failed to watch directory of %s: %v", path, err)
	}

	go w.watch()

	return w, nil
}

// OnChange registers a callback invoked with the file path whenever
// the watched file is written or recreated.
func (w *Watcher) OnChange(callback func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

func (w *Watcher) watch() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name == w.path && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.notify()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) notify() {
	w.mu.RLock()
	if w.stopped {
		w.mu.RUnlock()
		return
	}
	callbacks := make([]func(string), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	w.logger.Infof("%s changed, reloading", w.path)
	for _, callback := range callbacks {
		callback(w.path)
	}
}

// Close stops the watcher and releases resources
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	return w.watcher.Close()
}
