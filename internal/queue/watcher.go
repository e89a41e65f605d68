package queue

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher signals queue file writes between poll cycles so producers do not
// have to wait out the full poll interval. The poller remains the source of
// truth; the watcher only shortens latency.
type Watcher struct {
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	running bool

	// events coalesces bursts of writes into a single pending signal.
	events chan struct{}
}

// NewWatcher creates a watcher for the queue file.
func NewWatcher(path string) *Watcher {
	return &Watcher{
		path:   path,
		events: make(chan struct{}, 1),
	}
}

// Events delivers at most one pending signal per drain.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Start begins watching the queue file's directory. The directory is
// watched rather than the file because the file may not exist yet and is
// truncated on every drain.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		_ = watcher.Close()
		return err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.watcher = watcher
	w.cancel = cancel
	w.running = true

	go w.eventLoop(watchCtx)

	log.Debug().Str("path", w.path).Msg("queue watcher started")
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	w.cancel()
	_ = w.watcher.Close()
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			select {
			case w.events <- struct{}{}:
			default:
				// A signal is already pending.
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("queue watcher error")
		}
	}
}
