package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Invalidator drops cached data for a source file.
// Implemented by *graph.ShardStore.
type Invalidator interface {
	Invalidate(file string) bool
}

// DefaultDebounce is how long the watcher waits for a burst of writes to
// settle before invalidating.
const DefaultDebounce = 100 * time.Millisecond

// ShardWatcher invalidates cached shards when their documents change on
// disk. Changes are batched over a debounce window and deduplicated per
// source file; the invalidator is called from a single goroutine.
type ShardWatcher struct {
	layout   Layout
	target   Invalidator
	logger   *slog.Logger
	debounce time.Duration

	watcher  *fsnotify.Watcher
	changes  chan string
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.Mutex
	watching bool
}

// NewShardWatcher returns a watcher for l's shard directory. A zero debounce
// selects DefaultDebounce; a nil logger discards output.
func NewShardWatcher(l Layout, target Invalidator, logger *slog.Logger, debounce time.Duration) (*ShardWatcher, error) {
	if target == nil {
		return nil, errors.New("storage: watcher needs an invalidator")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("storage: create watcher: %w", err)
	}
	return &ShardWatcher{
		layout:   l,
		target:   target,
		logger:   logger,
		debounce: debounce,
		watcher:  w,
		changes:  make(chan string, 1024),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. It returns an error if the shard directory cannot
// be watched (for example because it does not exist).
func (w *ShardWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		return nil
	}
	if err := w.watcher.Add(w.layout.ShardDir()); err != nil {
		return fmt.Errorf("storage: watch %s: %w", w.layout.ShardDir(), err)
	}
	w.watching = true
	w.logger.Debug("watching shard directory", slog.String("dir", w.layout.ShardDir()))

	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop ends watching and waits for the background goroutines.
func (w *ShardWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
	return err
}

// processEvents maps fsnotify events on shard documents to source files.
func (w *ShardWatcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			file, ok := SourceFile(filepath.Base(event.Name))
			if !ok {
				continue
			}
			select {
			case w.changes <- file:
			default:
				w.logger.Warn("shard change dropped, buffer full", slog.String("file", file))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("shard watcher error", slog.Any("error", err))
		}
	}
}

// debounceLoop batches changed files and invalidates them once the window
// passes without new changes.
func (w *ShardWatcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	pending := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		for file := range pending {
			dropped := w.target.Invalidate(file)
			w.logger.Debug("shard changed on disk",
				slog.String("file", file),
				slog.Bool("was_cached", dropped),
			)
		}
		clear(pending)
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case file := <-w.changes:
			pending[file] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}
