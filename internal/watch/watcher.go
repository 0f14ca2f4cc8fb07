// Package watch invalidates cached collections when their backing files are
// edited by something other than this process.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/justwrite/internal/checksum"
	"github.com/starford/justwrite/internal/resource"
	"github.com/starford/justwrite/internal/storage"
)

// settle is how long a file must stay quiet before it is compared against
// the engine snapshot.
const settle = 150 * time.Millisecond

// Callback is called after a collection cache was invalidated.
type Callback func(collection string)

// Watch watches the content root until ctx is cancelled. For every
// collection file that changes, it compares the file digest with the one the
// engine last loaded or wrote; a mismatch drops the engine cache and calls cb.
// Writes made by the engines themselves therefore do not trigger a reload.
func Watch(ctx context.Context, reg *resource.Registry, store storage.Provider, root string, logger *slog.Logger, cb Callback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	pending := make(map[string]*resource.Engine)
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	schedule := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(settle)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-settleCh:
			for file, e := range pending {
				reconcile(e, store, file, logger, cb)
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if storage.IsTemp(ev.Name) {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			e, ok := reg.ByFile(rel)
			if !ok {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("watcher: collection file event",
				slog.String("file", rel),
				slog.String("op", ev.Op.String()))
			pending[rel] = e
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile drops e's cache unless the file on disk is exactly what e last saw.
func reconcile(e *resource.Engine, store storage.Provider, file string, logger *slog.Logger, cb Callback) {
	data, err := store.Read(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("watcher: collection file removed", slog.String("collection", e.Name()))
	case err != nil:
		logger.Warn("watcher: read failed", slog.String("file", file), slog.String("error", err.Error()))
	case checksum.Matches(data, e.Checksum()):
		return
	}

	e.Invalidate()
	logger.Info("watcher: collection reloaded", slog.String("collection", e.Name()))
	if cb != nil {
		cb(e.Name())
	}
}
