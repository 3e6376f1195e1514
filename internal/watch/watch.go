// Package watch triggers recomputes when the ratings dataset changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	vlog "github.com/speechviz/voicemap/internal/log"
)

const debounceDuration = 500 * time.Millisecond

// Watcher observes the ratings file and invokes the recompute callback
// after changes settle.
type Watcher struct {
	path    string
	onWrite func(ctx context.Context)
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
}

// New creates a watcher for the ratings file at path. onWrite runs after a
// debounce window once the file is written, created, or atomically renamed
// into place (editors and scp both save that way).
func New(path string, onWrite func(ctx context.Context)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the parent directory: rename-into-place replaces the inode, so
	// watching the file itself would go quiet after the first save.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		path:    path,
		onWrite: onWrite,
		watcher: fw,
		logger:  vlog.WithComponent("watch"),
	}, nil
}

// Start runs the watch loop until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info().
		Str("event", "watch.started").
		Str("path", w.path).
		Msg("watching ratings file for changes")
	go w.loop(ctx)
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str("event", "watch.stopped").Msg("ratings watcher stopped")
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.logger.Debug().
					Str("event", "watch.file_changed").
					Str("op", event.Op.String()).
					Msg("ratings file changed")

				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDuration, func() {
					w.onWrite(ctx)
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().
				Err(err).
				Str("event", "watch.error").
				Msg("ratings watcher error")
		}
	}
}
