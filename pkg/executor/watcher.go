package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Reloader is anything that can rebuild its actions.
type Reloader interface {
	Reload(ctx context.Context) error
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	Dir                string
	StabilityThreshold time.Duration
	Reloader           Reloader
	Logger             zerolog.Logger
}

// Watcher reloads the registry whenever files in the actions directory
// change. Bursts of events within StabilityThreshold collapse into a single
// reload.
type Watcher struct {
	watcher            *fsnotify.Watcher
	dir                string
	stabilityThreshold time.Duration
	reloader           Reloader
	logger             zerolog.Logger
	done               chan struct{}
	timerMu            sync.Mutex
	timer              *time.Timer
	stopOnce           sync.Once
}

// NewWatcher creates a new actions directory watcher
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if config.Reloader == nil {
		return nil, fmt.Errorf("watcher requires a reloader")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if config.StabilityThreshold == 0 {
		config.StabilityThreshold = 250 * time.Millisecond
	}

	return &Watcher{
		watcher:            watcher,
		dir:                config.Dir,
		stabilityThreshold: config.StabilityThreshold,
		reloader:           config.Reloader,
		logger:             config.Logger.With().Str("component", "watcher").Logger(),
		done:               make(chan struct{}),
	}, nil
}

// Start starts watching the actions directory
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch actions directory: %w", err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.dir).Msg("Actions watcher started")

	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.logger.Info().Msg("Actions watcher stopped")
	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.shouldIgnore(event) {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

// schedule (re)arms the debounce timer.
func (w *Watcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.stabilityThreshold, func() {
		select {
		case <-w.done:
			return
		default:
		}

		if err := w.reloader.Reload(context.Background()); err != nil {
			w.logger.Error().Err(err).Msg("Reload after file change failed")
			return
		}
		w.logger.Info().Msg("Actions reloaded after file change")
	})
}

func (w *Watcher) shouldIgnore(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return true
	}
	base := filepath.Base(event.Name)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~")
}
