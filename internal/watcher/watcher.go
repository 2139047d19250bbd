// Package watcher normalises OS file-change notifications and coalesces
// noisy change-bursts into settled ingestion candidates.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tanaste/tanaste/internal/debug"
)

// EventKind classifies a normalised file event.
type EventKind string

const (
	Created  EventKind = "created"
	Modified EventKind = "modified"
	Deleted  EventKind = "deleted"
	Renamed  EventKind = "renamed"
)

// Event is a normalised OS file notification.
type Event struct {
	Path       string
	Kind       EventKind
	OccurredAt time.Time
	OldPath    string
}

// Watcher wraps fsnotify and funnels normalised events to a single
// handler. The OS delivers events on internal goroutines: the handler must
// enqueue-and-return, never do heavy work.
type Watcher struct {
	mu      sync.Mutex
	fs      *fsnotify.Watcher
	handler func(Event)
	dirs    map[string]bool // path -> recursive
	started bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a watcher delivering events to handler.
func New(handler func(Event)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	return &Watcher{
		fs:      fsw,
		handler: handler,
		dirs:    map[string]bool{},
		done:    make(chan struct{}),
	}, nil
}

// AddDirectory registers a directory; recursive watches also register
// every existing subdirectory and any created later.
func (w *Watcher) AddDirectory(path string, recursive bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.addLocked(path, recursive); err != nil {
		return err
	}
	w.dirs[path] = recursive
	return nil
}

func (w *Watcher) addLocked(path string, recursive bool) error {
	if !recursive {
		return w.fs.Add(path)
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fs.Add(p)
		}
		return nil
	})
}

// Start begins event delivery. Safe to call once.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.loop()
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		fsw := w.current()
		select {
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				// Closed channels mean shutdown, or a hot swap retired
				// this instance. Pick up the replacement and keep going.
				if w.current() != fsw {
					continue
				}
				return
			}
			w.dispatch(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				if w.current() != fsw {
					continue
				}
				return
			}
			debug.Logf("watcher: fsnotify error: %v\n", err)
		}
	}
}

func (w *Watcher) current() *fsnotify.Watcher {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fs
}

func (w *Watcher) dispatch(ev fsnotify.Event) {
	var kind EventKind
	switch {
	case ev.Has(fsnotify.Create):
		kind = Created
		// A directory created under a recursive watch joins the watch set.
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			for dir, recursive := range w.dirs {
				if recursive && isUnder(dir, ev.Name) {
					_ = w.fs.Add(ev.Name)
				}
			}
			w.mu.Unlock()
			return
		}
	case ev.Has(fsnotify.Write):
		kind = Modified
	case ev.Has(fsnotify.Remove):
		kind = Deleted
	case ev.Has(fsnotify.Rename):
		kind = Renamed
	default:
		return // Chmod-only events are noise
	}
	w.handler(Event{Path: ev.Name, Kind: kind, OccurredAt: time.Now()})
}

func isUnder(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !filepath.IsAbs(rel) &&
		rel != "" && !hasDotDotPrefix(rel))
}

func hasDotDotPrefix(rel string) bool {
	return rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)
}

// UpdateDirectory hot-swaps the watched directory without restarting the
// service: the old fsnotify instance is torn down and replaced atomically
// under the lock, keeping the pipeline's event subscription intact.
func (w *Watcher) UpdateDirectory(path string, recursive bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	replacement, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: replacement failed: %w", err)
	}
	old := w.fs
	oldDirs := w.dirs
	w.fs = replacement
	w.dirs = map[string]bool{path: recursive}
	if err := w.addLocked(path, recursive); err != nil {
		// Restore the previous watcher so the service keeps running.
		w.fs = old
		w.dirs = oldDirs
		_ = replacement.Close()
		return fmt.Errorf("watcher: update %s: %w", path, err)
	}
	_ = old.Close()
	return nil
}

// Stop ends event delivery.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}

// Close stops delivery and releases OS watch resources.
func (w *Watcher) Close() error {
	w.Stop()
	w.mu.Lock()
	fsw := w.fs
	w.mu.Unlock()
	err := fsw.Close()
	w.wg.Wait()
	return err
}
