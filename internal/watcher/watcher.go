package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventType represents the type of file system event
type EventType string

const (
	EventCreate EventType = "create"
	EventModify EventType = "modify"
	EventDelete EventType = "delete"
	EventRename EventType = "rename"
)

// Event represents a file system event
type Event struct {
	Path string
	Type EventType
}

// Watcher watches a single file for changes. The parent directory is
// watched so editors that save by rename are still seen.
type Watcher struct {
	path     string
	debounce time.Duration
	callback func(Event)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
	started  bool
	closed   bool
	mu       sync.Mutex
	timer    *time.Timer
	timerMu  sync.Mutex
}

// New creates a watcher for path. callback runs once per burst of
// events, debounce after the last one.
func New(path string, debounce time.Duration, logger *slog.Logger, callback func(Event)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path = filepath.Clean(path)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		path:     path,
		debounce: debounce,
		callback: callback,
		logger:   logger.With("component", "watcher"),
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// Start starts watching for events
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watcher is closed")
	}
	if w.started {
		return fmt.Errorf("watcher already started")
	}
	w.started = true

	go w.watch()
	return nil
}

// Close stops watching and cancels a pending callback
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.started {
		close(w.done)
	}

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) watch() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "path", w.path, "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}

	var eventType EventType
	switch {
	case event.Has(fsnotify.Create):
		eventType = EventCreate
	case event.Has(fsnotify.Write):
		eventType = EventModify
	case event.Has(fsnotify.Remove):
		eventType = EventDelete
	case event.Has(fsnotify.Rename):
		eventType = EventRename
	default:
		return
	}

	w.debounceEvent(Event{Path: w.path, Type: eventType})
}

// debounceEvent restarts the timer so only the last event of a burst fires
func (w *Watcher) debounceEvent(e Event) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}
		w.callback(e)
	})
}
