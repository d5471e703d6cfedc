// Package subscribe delivers live aggregate-count snapshots for prayer items.
// It wakes on writes to the SQLite files and falls back to polling.
package subscribe

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/verte-zerg/prayerwall/internal/logging"
)

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = time.Second

// CountReader reads the authoritative aggregate of one item.
type CountReader interface {
	AggregateCount(ctx context.Context, key string) (count int64, aggregated bool, err error)
}

// Watcher fans database change notifications out to item subscriptions.
type Watcher struct {
	reader   CountReader
	dbPath   string
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	nextID  int
	wakers  map[int]chan struct{}
	running bool
	fsw     *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher returns a watcher reading counts from reader. dbPath may be empty,
// in which case only polling is used.
func NewWatcher(reader CountReader, dbPath string, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		reader:   reader,
		dbPath:   dbPath,
		interval: interval,
		logger:   logging.OrNop(logger),
		wakers:   map[int]chan struct{}{},
	}
}

// Start begins watching the database directory. Failing to set up file
// notifications is logged and leaves the watcher in polling mode.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running || w.dbPath == "" {
		return
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("file notifications unavailable; polling only", zap.Error(err))
		return
	}
	if err := fsw.Add(filepath.Dir(w.dbPath)); err != nil {
		w.logger.Warn("failed to watch database directory; polling only", zap.Error(err))
		_ = fsw.Close()
		return
	}
	w.running = true
	w.fsw = fsw
	w.done = make(chan struct{})
	go w.run(ctx, fsw, w.done)
}

// Stop ends file notifications and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	fsw := w.fsw
	done := w.done
	w.mu.Unlock()

	if err := fsw.Close(); err != nil {
		w.logger.Debug("failed to close file watcher", zap.Error(err))
	}
	<-done
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	base := filepath.Base(w.dbPath)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.wakeAll()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) wakeAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, wake := range w.wakers {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

func (w *Watcher) register() (int, chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	wake := make(chan struct{}, 1)
	w.wakers[id] = wake
	return id, wake
}

func (w *Watcher) unregister(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.wakers, id)
}

// Subscribe returns a channel of aggregate snapshots for itemKey. A value is
// sent on the first successful read of an aggregated item and then whenever it
// changes. Items never aggregated yield nothing. The channel is closed once ctx ends.
func (w *Watcher) Subscribe(ctx context.Context, itemKey string) (<-chan int64, error) {
	out := make(chan int64, 1)
	id, wake := w.register()
	go func() {
		defer close(out)
		defer w.unregister(id)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		var last int64
		delivered := false
		for {
			count, aggregated, err := w.reader.AggregateCount(ctx, itemKey)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				w.logger.Debug("aggregate read failed", zap.String("item", itemKey), zap.Error(err))
			case aggregated && (!delivered || count != last):
				select {
				case out <- count:
					last = count
					delivered = true
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-wake:
			case <-ticker.C:
			}
		}
	}()
	return out, nil
}
