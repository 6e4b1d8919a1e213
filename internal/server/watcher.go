package server

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultWatchDebounce = 500 * time.Millisecond

// LibraryWatcher rescans the library when files below its root change.
// fsnotify is not recursive, so every directory is watched on its own and
// new directories are added as they appear.
type LibraryWatcher struct {
	lib      *Library
	debounce time.Duration
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
}

func NewLibraryWatcher(lib *Library, debounce time.Duration, logger zerolog.Logger) (*LibraryWatcher, error) {
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("server: create watcher: %w", err)
	}
	lw := &LibraryWatcher{lib: lib, debounce: debounce, logger: logger, watcher: w}
	if err := lw.addTree(lib.Root()); err != nil {
		_ = w.Close()
		return nil, err
	}
	return lw, nil
}

func (lw *LibraryWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := lw.watcher.Add(path); err != nil {
			return fmt.Errorf("server: watch %s: %w", path, err)
		}
		return nil
	})
}

// Run blocks until ctx is done, rescanning once per burst of changes.
func (lw *LibraryWatcher) Run(ctx context.Context) error {
	defer lw.watcher.Close()

	timer := time.NewTimer(lw.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-lw.watcher.Events:
			if !ok {
				return nil
			}
			if !lw.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				lw.watchCreated(event.Name)
			}
			lw.logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("library changed")
			timer.Reset(lw.debounce)

		case <-timer.C:
			if err := lw.lib.Scan(); err != nil {
				lw.logger.Warn().Err(err).Msg("rescan after change failed")
			}

		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return nil
			}
			lw.logger.Error().Err(err).Msg("library watcher error")
		}
	}
}

// watchCreated adds a watch for a new category directory. Without it later
// changes below that directory never trigger a rescan.
func (lw *LibraryWatcher) watchCreated(path string) {
	if err := lw.addTree(path); err != nil {
		lw.logger.Warn().Err(err).Str("path", path).Msg("watch new directory failed")
	}
}

func (lw *LibraryWatcher) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return true
}
