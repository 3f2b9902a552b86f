package library

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ha1tch/qconsole/pkg/log"
)

// Watcher keeps an FSStore index current from file system notifications.
type Watcher struct {
	mu sync.Mutex

	store     *FSStore
	logger    *log.Logger
	fsWatcher *fsnotify.Watcher

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// Events are collected per file and applied together once the folder
	// has been quiet for debounceDelay.
	debounceDelay time.Duration
	pendingEvents map[string]fsnotify.Op
	eventTimer    *time.Timer

	onChange func(name, event string)
	onError  func(err error)
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay for batching file events.
// Default is 100ms.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithOnChange sets a callback invoked after a file is indexed or dropped.
// event is "changed" or "removed".
func WithOnChange(fn func(name, event string)) WatcherOption {
	return func(w *Watcher) {
		w.onChange = fn
	}
}

// WithOnError sets a callback for watcher errors.
func WithOnError(fn func(err error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// NewWatcher creates a watcher for store's folder.
func NewWatcher(store *FSStore, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		store:         store,
		logger:        store.logger,
		fsWatcher:     fsw,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		debounceDelay: 100 * time.Millisecond,
		pendingEvents: make(map[string]fsnotify.Op),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. The store stops rescanning the folder on every
// read while the watcher runs.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.fsWatcher.Add(w.store.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	// Catch files written before the watch was in place.
	if err := w.store.Reindex(); err != nil {
		return err
	}
	w.store.setWatched(true)

	w.logger.Library().Info("library watcher started", "folder", w.store.dir)

	go w.processEvents()
	return nil
}

// Stop stops the watcher and returns the store to rescanning.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.store.setWatched(false)
	w.logger.Library().Info("library watcher stopped")
	return w.fsWatcher.Close()
}

// IsRunning returns whether the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			w.mu.Lock()
			if w.eventTimer != nil {
				w.eventTimer.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Library().Error("watcher error", err)
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return
	}
	// A description change re-indexes the query file it describes.
	name = strings.TrimSuffix(name, DescExtension)
	if !isQueryFile(name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pendingEvents[name] |= event.Op
	if w.eventTimer != nil {
		w.eventTimer.Stop()
	}
	w.eventTimer = time.AfterFunc(w.debounceDelay, w.processPendingEvents)
}

func (w *Watcher) processPendingEvents() {
	w.mu.Lock()
	events := w.pendingEvents
	w.pendingEvents = make(map[string]fsnotify.Op)
	w.mu.Unlock()

	for name, op := range events {
		// The file's current state decides, whatever the events were.
		_, present := w.store.refresh(name)

		event := "changed"
		if !present {
			event = "removed"
		}
		w.logger.Library().Debug("library index updated",
			"filename", name,
			"event", event,
			"op", op.String(),
		)
		if w.onChange != nil {
			w.onChange(name, event)
		}
	}
}
