// Package watch notifies subscribers about filesystem changes under
// session working directories, so connected viewers can refresh previews
// while the agent edits files.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

const debounceInterval = 100 * time.Millisecond

// Notifier receives change notifications for one subscription.
type Notifier interface {
	NotifyChange(ctx context.Context, subID, path string) error
}

type fsSub struct {
	id       string
	path     string
	notifier Notifier
}

// FSWatcher multiplexes fsnotify watches across subscribers. Watches are
// refcounted per path and removed with the last subscriber.
type FSWatcher struct {
	watcher *fsnotify.Watcher

	mu        sync.RWMutex
	subs      map[string]*fsSub
	pathToIDs map[string][]string
	pathRefs  map[string]int

	timerMu  sync.Mutex
	timerMap map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

func NewFSWatcher() *FSWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &FSWatcher{
		subs:      make(map[string]*fsSub),
		pathToIDs: make(map[string][]string),
		pathRefs:  make(map[string]int),
		timerMap:  make(map[string]*time.Timer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (w *FSWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	go w.eventLoop()
	slog.Info("fs watcher started")
	return nil
}

func (w *FSWatcher) Stop() {
	w.cancel()
	if w.watcher != nil {
		w.watcher.Close()
	}

	// Cancel any pending debounce timers
	w.timerMu.Lock()
	for _, timer := range w.timerMap {
		timer.Stop()
	}
	w.timerMap = make(map[string]*time.Timer)
	w.timerMu.Unlock()

	slog.Info("fs watcher stopped")
}

// Subscribe watches path (a directory or file) and notifies n on changes.
func (w *FSWatcher) Subscribe(path string, n Notifier) (string, error) {
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}

	id := "f-" + uuid.Must(uuid.NewV7()).String()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pathRefs[path] == 0 {
		if err := w.watcher.Add(path); err != nil {
			return "", err
		}
		slog.Debug("started watching path", "path", path)
	}

	w.subs[id] = &fsSub{id: id, path: path, notifier: n}
	w.pathToIDs[path] = append(w.pathToIDs[path], id)
	w.pathRefs[path]++

	return id, nil
}

// Unsubscribe removes a subscription; the underlying watch is dropped
// with the last subscriber of its path. Unknown ids are ignored.
func (w *FSWatcher) Unsubscribe(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sub, ok := w.subs[id]
	if !ok {
		return
	}
	delete(w.subs, id)

	ids := w.pathToIDs[sub.path]
	for i, v := range ids {
		if v == id {
			w.pathToIDs[sub.path] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(w.pathToIDs[sub.path]) == 0 {
		delete(w.pathToIDs, sub.path)
	}

	w.pathRefs[sub.path]--
	if w.pathRefs[sub.path] == 0 {
		w.watcher.Remove(sub.path)
		delete(w.pathRefs, sub.path)
		slog.Debug("stopped watching path", "path", sub.path)
	}
}

func (w *FSWatcher) eventLoop() {
	for {
		select {
		case <-w.ctx.Done():
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
			slog.Error("fsnotify error", "error", err)
		}
	}
}

// handleEvent debounces rapid changes to the same path into one notification.
func (w *FSWatcher) handleEvent(event fsnotify.Event) {
	// Notify on the watched directory, not the changed entry inside it.
	w.mu.RLock()
	path := event.Name
	if _, watched := w.pathRefs[path]; !watched {
		path = filepath.Dir(event.Name)
		if _, watched := w.pathRefs[path]; !watched {
			w.mu.RUnlock()
			return
		}
	}
	w.mu.RUnlock()

	w.timerMu.Lock()
	if timer, exists := w.timerMap[path]; exists {
		timer.Stop()
	}
	w.timerMap[path] = time.AfterFunc(debounceInterval, func() {
		w.notifyPath(path)
		w.timerMu.Lock()
		delete(w.timerMap, path)
		w.timerMu.Unlock()
	})
	w.timerMu.Unlock()
}

func (w *FSWatcher) notifyPath(path string) {
	// Timer may fire after Stop.
	if w.ctx.Err() != nil {
		return
	}

	w.mu.RLock()
	ids := make([]string, len(w.pathToIDs[path]))
	copy(ids, w.pathToIDs[path])
	subs := make([]*fsSub, 0, len(ids))
	for _, id := range ids {
		if sub, ok := w.subs[id]; ok {
			subs = append(subs, sub)
		}
	}
	w.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.notifier.NotifyChange(w.ctx, sub.id, path); err != nil {
			slog.Debug("failed to notify fs subscriber", "id", sub.id, "error", err)
		}
	}
}
