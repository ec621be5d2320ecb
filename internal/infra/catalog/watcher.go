package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/sololeveling/lifesystem/internal/domain"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 300 * time.Millisecond

// ReloadFunc receives the freshly parsed catalog after the seed file changes.
type ReloadFunc func(ctx context.Context, templates []domain.QuestTemplate) error

// Watcher reloads a seed file whenever it changes on disk.
// The parent directory is watched so editors that replace the file by
// rename are picked up too.
type Watcher struct {
	path     string
	onReload ReloadFunc
	debounce time.Duration
	log      *zap.Logger

	fsw     *fsnotify.Watcher
	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher(path string, onReload ReloadFunc, log *zap.Logger) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("catalog watcher needs a seed file path")
	}
	if log == nil {
		log = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		onReload: onReload,
		debounce: DefaultDebounce,
		log:      log.Named("catalog"),
		fsw:      fsw,
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce overrides the debounce window. Must be called before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Start begins watching. It returns immediately; the loop runs until ctx is
// cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.started = true
	go w.run(ctx)
	w.log.Info("watching catalog", zap.String("path", w.path))
	return nil
}

// Close stops the watcher and waits for the loop to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-fire:
			fire = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	templates, err := Load(w.path)
	if err != nil {
		w.log.Warn("catalog reload failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := w.onReload(ctx, templates); err != nil {
		w.log.Warn("catalog reload rejected", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.log.Info("catalog reloaded", zap.String("path", w.path), zap.Int("templates", len(templates)))
}
