package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads the configuration file and publishes immutable
// snapshots. Callers read the current snapshot with Current() at the top of
// each operation; a reload never mutates a snapshot already handed out, so
// in-flight operations see a consistent view.
//
// An edit that fails to parse or validate is logged and ignored; the last
// good snapshot stays in effect.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher loads the file once and begins watching it for changes.
// Call Stop to clean up.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: failed to create watcher: %w", err)
	}
	// Watch the directory rather than the file: editors that rename-replace
	// would otherwise drop the watch after the first save.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("config: failed to watch %s: %w", path, err)
	}

	w := &Watcher{
		path:    path,
		watcher: fw,
		done:    make(chan struct{}),
	}
	w.current.Store(cfg)

	go w.loop()
	return w, nil
}

// Current returns the latest good configuration snapshot.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	_ = w.watcher.Close()
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(evt.Name) != filepath.Clean(w.path) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config: watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Printf("config: reload of %s rejected, keeping previous snapshot: %v", w.path, err)
		return
	}
	w.current.Store(cfg)
	log.Printf("config: reloaded %s", w.path)
}
