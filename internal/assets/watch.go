package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher drops a Loader's cache whenever a file under the watched root
// changes, so edited reference tables are picked up without a restart.
type Watcher struct {
	watcher *fsnotify.Watcher
	loader  *Loader
	logger  zerolog.Logger

	invalidations atomic.Int64
	done          chan struct{}
}

// Watch starts watching root and every directory below it.
func Watch(root string, loader *Loader, logger zerolog.Logger) (*Watcher, error) {
	if loader == nil {
		return nil, errors.New("watch requires a loader")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{watcher: fw, loader: loader, logger: logger, done: make(chan struct{})}
	if err := w.addTree(root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w.logger.Info().Str("event", "assets.watcher_started").Str("path", root).Msg("watching asset root")
	go w.loop()
	return w, nil
}

// Invalidations reports how many cache drops the watcher has issued.
func (w *Watcher) Invalidations() int64 { return w.invalidations.Load() }

// Close stops the watcher and waits for its loop to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn().Err(err).Str("path", event.Name).Msg("watch new directory")
					}
				}
			}
			w.loader.Invalidate()
			w.invalidations.Add(1)
			w.logger.Debug().
				Str("event", "assets.invalidated").
				Str("path", event.Name).
				Str("op", event.Op.String()).
				Msg("asset cache dropped")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Str("event", "assets.watcher_error").Msg("asset watcher error")
		}
	}
}
