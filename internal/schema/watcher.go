package schema

import (
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a schema-source file for changes and reloads a
// Registry on write, debouncing rapid successive writes. Mirrors the
// teacher's config.Watcher almost exactly — same fsnotify setup, same
// 500ms debounce — because the hot-reload shape is identical; only what
// gets reloaded differs.
type Watcher struct {
	path     string
	registry *Registry
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}

	// onReloadErr, if set, is called when a reload attempt fails so the
	// caller can surface it via metrics/logging without the Watcher
	// depending on those packages directly.
	onReloadErr func(error)
}

// NewWatcher starts watching path for changes and reloads registry's
// shared snapshot whenever the file is written.
func NewWatcher(path string, registry *Registry, onReloadErr func(error)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}

	sw := &Watcher{
		path:        path,
		registry:    registry,
		watcher:     w,
		stopCh:      make(chan struct{}),
		onReloadErr: onReloadErr,
	}

	// Load once synchronously so the registry isn't empty until the
	// first fs event arrives.
	if err := sw.reload(); err != nil && onReloadErr != nil {
		onReloadErr(err)
	}

	go sw.run()
	return sw, nil
}

func (sw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					if err := sw.reload(); err != nil && sw.onReloadErr != nil {
						sw.onReloadErr(err)
					}
				})
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[schema] watcher error: %v", err)
		case <-sw.stopCh:
			return
		}
	}
}

func (sw *Watcher) reload() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	tables, err := LoadFile(sw.path)
	if err != nil {
		return err
	}
	sw.registry.Reload(tables)
	log.Printf("[schema] reloaded %d tables from %s", len(tables), sw.path)
	return nil
}

// Stop stops the watcher.
func (sw *Watcher) Stop() error {
	close(sw.stopCh)
	return sw.watcher.Close()
}
